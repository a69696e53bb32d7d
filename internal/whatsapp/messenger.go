// internal/whatsapp/messenger.go
package whatsapp

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"picme-bot/internal/models"
	"picme-bot/pkg/logger"
)

// MessengerOptions carries the funnel copy parameters the messages embed.
type MessengerOptions struct {
	ImageThreshold int
	GuideURL       string
	ExamplesURL    string
	LitePrice      string
	StandardPrice  string
	PremiumPrice   string
}

// Messenger renders and sends every localized outbound message for one
// conversation. Send failures are logged, never propagated: outbound
// notifications are best effort.
type Messenger struct {
	client *Client
	phone  string
	lang   models.Language
	opts   MessengerOptions
	logger *logger.Logger
}

func NewMessenger(client *Client, phone string, lang models.Language, opts MessengerOptions, l *logger.Logger) *Messenger {
	return &Messenger{
		client: client,
		phone:  phone,
		lang:   lang,
		opts:   opts,
		logger: l.Named("messenger"),
	}
}

func (m *Messenger) SetLanguage(lang models.Language) {
	m.lang = lang
}

func (m *Messenger) english() bool {
	return m.lang == models.LanguageEnglish
}

func (m *Messenger) send(err error) {
	if err != nil {
		m.logger.Error("Failed to send message", "phone", m.phone, "error", err)
	}
}

func (m *Messenger) pick(en, he string) string {
	if m.english() {
		return en
	}
	return he
}

func (m *Messenger) SendTyping(ctx context.Context, messageID string) {
	m.send(m.client.SendTypingIndicator(ctx, messageID))
}

func (m *Messenger) SendText(ctx context.Context, body string) {
	m.send(m.client.SendText(ctx, m.phone, body))
}

func (m *Messenger) SendImage(ctx context.Context, url string) {
	m.send(m.client.SendImage(ctx, m.phone, url, ""))
}

func (m *Messenger) SendReaction(ctx context.Context, messageID, emoji string) {
	m.send(m.client.SendReaction(ctx, m.phone, messageID, emoji))
}

func (m *Messenger) SendInvalidMedia(ctx context.Context) {
	m.SendText(ctx, m.pick(
		"Hi!😊 Currently, I can only work with images.\nOther files (like videos, documents, links, etc.) are not supported.",
		"היי!😊 כרגע אני מסוגל לעבוד עם תמונות בלבד.\nקבצים אחרים (כמו סרטונים, מסמכים, קישורים וכו') לא נתמכים."))
}

// SendInit sends the localized main menu.
func (m *Messenger) SendInit(ctx context.Context) {
	body := m.pick(
		"Hi! 👋 I’m here to help you create stunning headshots using AI.\nLet’s start with a quick step of uploading images – I’m here for you every step of the way",
		"היי! 👋 אני כאן כדי לעזור לך ליצור תמונות תדמית מהממות בעזרת בינה מלאכותית.\nנתחיל עם שלב קצר של העלאת תמונות - אני איתך בכל צעד")
	options := []ListOption{
		{ID: strconv.Itoa(models.ActionBegin), Title: m.pick("Let's begin!", "יאללה, נתחיל!")},
		{ID: strconv.Itoa(models.ActionHowItWorks), Title: m.pick("How it works", "איך זה עובד?")},
		{ID: strconv.Itoa(models.ActionChangeLanguage), Title: m.pick("Change to hebrew", "החלף לאנגלית")},
		{ID: strconv.Itoa(models.ActionContactSupport), Title: m.pick("Contact support", "צור קשר עם תמיכה")},
	}
	m.send(m.client.SendList(ctx, m.phone, "", body, "PicMeAI", m.pick("Options", "אופציות"), options))
}

func (m *Messenger) SendHowItWorks(ctx context.Context) {
	m.SendText(ctx, m.pick(
		"*How it works:*\n\n- Just upload your photos\n- I’ll train a personal model just for you\n- I’ll create your images in the style you choose\n- You’ll get your new, unique images\n- Your model is saved with us for 30 days, so you can use it whenever you want",
		"*איך זה עובד:*\n\n- פשוט תעלה את התמונות שלך\n- אני אאמן מודל אישי במיוחד בשבילך\n- אצור את התמונות שלך לפי הסגנון שבחרת\n- תוכל לקבל את התמונות החדשות והמיוחדות שלך\n- המודל שלך נשמר אצלנו למשך 30 יום, כך שתוכל להשתמש בו מתי שתרצה"))
	m.send(m.client.SendReplyButtons(ctx, m.phone,
		m.pick("Let's do this!", "בואו נעשה את זה!"),
		m.pick("Would you like to begin?", "האם תרצה להתחיל?"),
		[]Button{{ID: strconv.Itoa(models.ActionBegin), Title: m.pick("Let's begin!", "בואו נתחיל!")}}))
}

// SendImageGuidelines sends the upload rules and the ready/examples buttons.
func (m *Messenger) SendImageGuidelines(ctx context.Context) {
	threshold := strconv.Itoa(m.opts.ImageThreshold)
	m.SendText(ctx, m.pick(
		"To create the best results for you\n\n✅ Please upload:\n- At least "+threshold+" clear, high-quality face photos\n- In natural or well-lit lighting\n\n❌ Do not upload photos that are:\n- Blurry\n- Dark\n- With hats/sunglasses\n- Heavily filtered\n- Group photos",
		"כדי שאצור עבורך תוצאה הכי מדויקת\n\n✅ יש להעלות:\n- לפחות "+threshold+" תמונות פנים ברורות באיכות טובה\n- בתאורה טבעית או מוארת\n\n❌ אין להעלות תמונות:\n- מטושטשות\n- כהות\n- עם כובע/משקפי שמש\n- פילטרים מוגזמים\n- תמונות קבוצתיות"))
	m.send(m.client.SendReplyButtons(ctx, m.phone,
		m.pick("Ready to upload photos?", "מוכן\\ה להעלות תמונות?"), "",
		[]Button{
			{ID: strconv.Itoa(models.ActionReadyForUpload), Title: m.pick("I'm ready!", "אני מוכן\\ה!")},
			{ID: strconv.Itoa(models.ActionShowExamples), Title: m.pick("Show me examples", "שלח לי תמונות לדוגמה")},
		}))
}

// SendGuidelineExamples sends the example photos followed by a ready button.
func (m *Messenger) SendGuidelineExamples(ctx context.Context) {
	m.SendImage(ctx, m.opts.ExamplesURL)
	m.SendImage(ctx, m.opts.GuideURL)
	m.send(m.client.SendReplyButtons(ctx, m.phone,
		m.pick("Ready to upload photos?", "מוכן\\ה להעלות תמונות?"), "",
		[]Button{{ID: strconv.Itoa(models.ActionReadyForUpload), Title: m.pick("I'm ready!", "אני מוכן\\ה!")}}))
}

func (m *Messenger) SendUploadRequest(ctx context.Context, firstTime bool) {
	threshold := strconv.Itoa(m.opts.ImageThreshold)
	if firstTime {
		m.SendText(ctx, m.pick(
			"Awesome! Please upload your images now, minimum "+threshold+" images required",
			"מעולה! אנא העלה את התמונות שלך עכשיו, מזכירים לך- לפחות "+threshold+" תמונות"))
		return
	}
	m.SendText(ctx, m.pick(
		"Awesome! Please upload your images now\nWhen you're done, send me another text message",
		"מעולה! אנא העלה את התמונות שלך עכשיו\nכשתסיים תשלח לי הודעת טקסט נוספת"))
}

// SendAdditionalImagesRequest is the upsell list sent exactly once when the
// image threshold is reached.
func (m *Messenger) SendAdditionalImagesRequest(ctx context.Context) {
	options := []ListOption{
		{ID: strconv.Itoa(models.ActionUploadMore), Title: m.pick("Yes!", "כן!")},
		{ID: strconv.Itoa(models.ActionSendPacks), Title: m.pick("No, I'm done", "לא, אני סיימתי")},
		{ID: strconv.Itoa(models.ActionOverrideTune), Title: m.pick("Reset images", "אני רוצה תמונות אחרות")},
		{ID: strconv.Itoa(models.ActionContactSupport), Title: m.pick("Contact support", "צור קשר עם תמיכה")},
	}
	m.send(m.client.SendList(ctx, m.phone,
		m.pick("Great! I have enough images to get started!", "מעולה! יש לי מספיק תמונות כדי להתחיל!"),
		m.pick("Would you like to add more? It can improve the accuracy even more", "רוצה להוסיף עוד? זה יכול לשפר את הדיוק אפילו יותר"),
		"", m.pick("Options", "אופציות"), options))
}

// SendPackTiers presents the three price tiers as an option list.
func (m *Messenger) SendPackTiers(ctx context.Context) {
	body := m.pick(
		"- *Lite* – 12 images for "+m.opts.LitePrice+"$ (great for trying out)\n- *Standard* – 24 images for "+m.opts.StandardPrice+"$ (more variety, better value)\n- *Premium* – 40 images for "+m.opts.PremiumPrice+"$ (maximum images + best deal)\n\n🚀 Choose the plan that matches your vision and let’s create something amazing:",
		"- *חבילת בסיס* – 12 תמונות ב- "+m.opts.LitePrice+"$ (מעולה לניסיון)\n- *חבילה סטנדרטית* – 24 תמונות ב- "+m.opts.StandardPrice+"$ (יותר מגוון, יותר משתלם)\n- *חבילת פרימיום* – 40 תמונות ב- "+m.opts.PremiumPrice+"$ (מקסימום תמונות + העסקה הטובה ביותר)\n\n🚀 בחר את החבילה שמתאימה לחזון שלך ובוא ניצור משהו מדהים יחד:")
	options := []ListOption{
		{ID: strconv.Itoa(models.ActionLitePack), Title: m.pick("Lite Pack", "חבילת בסיס")},
		{ID: strconv.Itoa(models.ActionStandardPack), Title: m.pick("Standard Pack", "חבילה סטנדרטית")},
		{ID: strconv.Itoa(models.ActionPremiumPack), Title: m.pick("Premium Pack", "חבילת פרימיום")},
	}
	m.send(m.client.SendList(ctx, m.phone,
		m.pick("Choose Your AI Image Plan 🎨", "בחר את חבילת התמונות שלך 🎨"),
		body, "PicMeAI", m.pick("Options", "אופציות"), options))
}

// SendPackOptions presents each catalog entry with its cover image, price
// and a pick/examples button pair. Entries with no cost for the entity type
// are skipped.
func (m *Messenger) SendPackOptions(ctx context.Context, packs []models.Pack, entityType, price string) {
	m.SendText(ctx, m.pick(
		"Choose the type of pack you want to create – and I'll take care of the rest 😊",
		"בחרו את סוג החבילה שתרצו ליצור – ואני כבר אדאג לכל השאר 😊"))

	for _, pack := range packs {
		cost, ok := pack.Costs[entityType]
		if !ok {
			continue
		}
		images := strconv.Itoa(cost.NumImages)
		body := pack.Title + "\n" + m.pick(
			"costs "+price+"$ for "+images+" images\n",
			"עלות "+price+"$ עבור "+images+" תמונות\n")
		buttons := []Button{
			{ID: strconv.Itoa(pack.ID), Title: m.pick("I want this!", "אני רוצה את זה!")},
			{ID: fmt.Sprintf("%d_%d", models.ActionShowPackImages, pack.ID), Title: m.pick("Show me examples", "תראה לי דוגמאות")},
		}
		m.send(m.client.SendImageButtons(ctx, m.phone, pack.CoverURL, body, buttons))
	}
}

// SendTunes lists the user's saved models, each with a pick button.
func (m *Messenger) SendTunes(ctx context.Context, tunes []models.Tune) {
	m.SendText(ctx, m.pick("Choose your model:", "בחר את המודל שלך:"))
	if len(tunes) == 0 {
		m.SendText(ctx, m.pick(
			"No models available at the moment, please try again later",
			"אין מודלים זמינים כרגע, אנא נסה שוב מאוחר יותר"))
		return
	}
	for _, tune := range tunes {
		body := m.pick(
			"*Created at*: "+formatTuneDate(tune.CreatedAt)+"\n*Expires at*: "+formatTuneDate(tune.ExpiresAt),
			"*נוצר בתאריך*: "+formatTuneDate(tune.CreatedAt)+"\n*פג תוקף בתאריך*: "+formatTuneDate(tune.ExpiresAt))
		m.send(m.client.SendReplyButtons(ctx, m.phone,
			m.pick("Type: "+tune.Name, "סוג: "+tune.Name), body,
			[]Button{{
				ID:    fmt.Sprintf("%d_%d", models.ActionSetTune, tune.ID),
				Title: m.pick("use this model", "השתמש במודל הזה"),
			}}))
	}
}

func formatTuneDate(iso string) string {
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return iso
	}
	return t.Format("2006-01-02 15:04:05")
}

func (m *Messenger) SendReturningCustomer(ctx context.Context) {
	m.send(m.client.SendReplyButtons(ctx, m.phone,
		m.pick("Welcome back! 👋", "ברוך שובך! 👋"),
		m.pick(
			"I noticed that you have saved models.\nWould you like to use one of the saved models or create a new model?",
			"שמתי לב שיש לך מודלים שמורים.\nהאם תרצה להשתמש באחד המודלים השמורים או ליצור מודל חדש?"),
		[]Button{
			{ID: strconv.Itoa(models.ActionSendTunes), Title: m.pick("Show saved models", "הצג מודלים שמורים")},
			{ID: strconv.Itoa(models.ActionOverrideTune), Title: m.pick("New model", "מודל חדש")},
		}))
}

// SendAgreement asks for consent before the payment step.
func (m *Messenger) SendAgreement(ctx context.Context) {
	m.send(m.client.SendReplyButtons(ctx, m.phone,
		m.pick("Terms of Use", "תנאי שימוש"),
		m.pick(
			"Just before we continue! 😊\nThese images are created by AI 🤖 and might not look 100% like you.\nThey’re auto-generated — without human editing.\nTherefore, some minor deviations or artifacts may appear.\n\nPlease confirm you understand and agree to this before we continue onto the payment.",
			"לפני שנמשיך! 😊\nהתמונות האלה נוצרות על ידי בינה מלאכותית 🤖 ולא תמיד ייראו 100% כמוך.\nהן נוצרות אוטומטית - ללא עריכה אנושית.\nלכן יכולות להופיע סטיות קלות או תקלות.\n\nאנא אשר\\י שאת\\ה מבין\\ה ומסכים\\ה לכך לפני שנמשיך לתשלום."),
		[]Button{{ID: strconv.Itoa(models.ActionGetPaymentLink), Title: m.pick("I agree", "אני מסכים\\ה")}}))
}

func (m *Messenger) SendPaymentLink(ctx context.Context, link string) {
	m.send(m.client.SendURLButton(ctx, m.phone,
		m.pick("You're almost there! 😊", "כמעט סיימנו! 😊"),
		m.pick(
			"To get started, all you need to do is complete the payment here\n\nIt's easy and simple, we promise!\nLet's start creating something amazing together 🚀",
			"כדי שנוכל להתחיל, כל מה שנשאר זה להשלים את התשלום כאן\n\nהכל קל ופשוט, מבטיחים!\nבואו נתחיל ליצור משהו מדהים יחד 🚀"),
		"PicMeAI",
		m.pick("Pay Now", "שלם עכשיו"),
		link))
	m.SendText(ctx, m.pick(
		"Please note that payment processing takes a few minutes, don't worry, we'll notify you as soon as it's done!",
		"אנא שימו לב כי עיבוד התשלום לוקח כמה דקות, אל תדאגו, נודיע לכם ברגע שזה יסתיים!"))
}

func (m *Messenger) SendPaymentReceived(ctx context.Context, fullName string) {
	m.SendText(ctx, m.pick(
		"Thank you for your payment💸,\n"+fullName,
		"תודה רבה על התשלום💸,\n"+fullName))
}

// SendProcessing tells the user how long training is expected to take.
func (m *Messenger) SendProcessing(ctx context.Context, remaining time.Duration) {
	eta := FormatTimeLeft(remaining, m.lang)
	m.SendText(ctx, m.pick(
		"*Amazing! we’re kicking things off⚡*\n\nYou’ll get your new images within "+eta+" 📸\nCan’t wait for you to see yourself at your very best!🤩\n\nFeel free to go about your day – I’ll send you a message as soon as everything’s ready!",
		"*מעולה! אני יוצא לדרך⚡*\n\nתוך "+eta+" אשלח לך את התמונות החדשות שלך 📸\nמחכה שתראה\\י את עצמך מהצד הכי טוב שלך!🤩\n\nבינתיים אפשר ללכת לעשות דברים אחרים בכיף – ברגע שזה יהיה מוכן תקבל\\י הודעה עם התמונות החדשות."))
}

// FormatTimeLeft renders a duration as the coarsest meaningful unit:
// whole days over one, then "one day", then hours the same way, otherwise
// minutes with no singular form.
func FormatTimeLeft(d time.Duration, lang models.Language) string {
	english := lang == models.LanguageEnglish
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	switch {
	case days > 1:
		if english {
			return strconv.Itoa(days) + " days"
		}
		return strconv.Itoa(days) + " ימים"
	case days == 1:
		if english {
			return "one day"
		}
		return "יום אחד"
	case hours > 1:
		if english {
			return strconv.Itoa(hours) + " hours"
		}
		return strconv.Itoa(hours) + " שעות"
	case hours == 1:
		if english {
			return "one hour"
		}
		return "שעה אחת"
	default:
		if english {
			return strconv.Itoa(minutes) + " minutes"
		}
		return strconv.Itoa(minutes) + " דקות"
	}
}

// SendImagesReady announces the generated pack images that follow.
func (m *Messenger) SendImagesReady(ctx context.Context) {
	m.SendText(ctx, m.pick(
		"🎉 Done! Your new headshots are ready.\nEnjoy the new you:",
		"🎉 סיימנו! התמונות שלך מוכנות.\nתהנה מאתה החדש:"))
}

// SendRatingPrompt asks for a star rating and offers another pack.
func (m *Messenger) SendRatingPrompt(ctx context.Context) {
	var stars []ListOption
	for i := 1; i <= 5; i++ {
		stars = append(stars, ListOption{
			ID:    fmt.Sprintf("%d_%d", models.ActionStarRating, i),
			Title: fmt.Sprintf("%d⭐", i),
		})
	}
	m.send(m.client.SendList(ctx, m.phone,
		m.pick("Rate us", "דרגו אותנו"),
		m.pick("Wow🤩 Beautiful images! What do you think? 😊", "וואו🤩 תמונות מדהימות! מה דעתך? 😊"),
		"PicMeAI", m.pick("Rating", "דירוג"), stars))
	m.send(m.client.SendReplyButtons(ctx, m.phone,
		m.pick("Create another pack", "צור חבילה נוספת"),
		m.pick("Amazing! Would you like to create another pack at a special price?", "יצא מדהים! תרצה ליצור חבילה נוספת במחיר מיוחד?"),
		[]Button{{ID: strconv.Itoa(models.ActionSendPacks), Title: m.pick("I want it now!", "אני רוצה!")}}))
}

// SendFeedbackAck thanks for a rating, or asks for detail after a poor one.
func (m *Messenger) SendFeedbackAck(ctx context.Context, askForDetail bool) {
	if askForDetail {
		m.SendText(ctx, m.pick(
			"We are sorry to hear that you didn't have a great experience 😞\nPlease let us know how we can improve",
			"אנחנו מצטערים לשמוע שלא הייתה לך חוויה טובה 😞\nאנא ספר לנו איך נוכל להשתפר"))
		return
	}
	m.SendText(ctx, m.pick(
		"Your feedback has been recorded.\nThank you for your input!",
		"תגובתך נרשמה במערכת.\nתודה על המשוב!"))
}

func (m *Messenger) SendSupport(ctx context.Context) {
	m.SendText(ctx, m.pick(
		"If you need support or you want to request a new feature,\nplease contact our support team at support@picmeai.app",
		"אם אתה זקוק לעזרה או שיש לך רעיונות נוספים לשיפור המוצר,\nאנא פנה לצוות התמיכה שלנו בכתובת support@picmeai.app"))
}

// SendImageRejected replies to the offending image with the localized reason.
func (m *Messenger) SendImageRejected(ctx context.Context, messageID string, reason models.RejectReason) {
	m.send(m.client.ReplyToMessage(ctx, m.phone, m.pick(
		"Hmm, this image might not work so well...\nReason: "+rejectReasonText(reason, models.LanguageEnglish)+".\n\nTry a different one – I’m here to help! 😊",
		"התמונה הזו לא תעבוד כל כך...\nהסיבה: "+rejectReasonText(reason, models.LanguageHebrew)+".\n\nנסה תמונה אחרת. אני כאן! 😊"),
		messageID))
}

func rejectReasonText(reason models.RejectReason, lang models.Language) string {
	english := lang == models.LanguageEnglish
	switch reason {
	case models.RejectNoPerson:
		if english {
			return "person was not detected in the image"
		}
		return "לא זוהתה דמות בתמונה"
	case models.RejectFunnyFace:
		if english {
			return "it includes a funny face"
		}
		return "היא כוללת פרצוף מצחיק"
	case models.RejectBlurry:
		if english {
			return "it is blurry"
		}
		return "היא מטושטשת"
	case models.RejectSunglasses:
		if english {
			return "you are wearing sunglasses"
		}
		return "אתה מרכיב משקפי שמש"
	case models.RejectMultiplePeople:
		if english {
			return "includes multiple people"
		}
		return "יש בתמונה מספר אנשים"
	case models.RejectHat:
		if english {
			return "you are wearing a hat"
		}
		return "אתה חובש כובע"
	default:
		if english {
			return "it did not pass the quality check"
		}
		return "היא לא עברה את בדיקת האיכות"
	}
}

func (m *Messenger) SendVideoExample(ctx context.Context, url string) {
	m.send(m.client.SendVideo(ctx, m.phone, url, m.pick(
		"Here are the video examples from your pack",
		"הנה דוגמאות הווידאו מהחבילה שלך")))
}

func (m *Messenger) SendError(ctx context.Context) {
	m.SendText(ctx, m.pick(
		"Oops! Something went wrong on our end. 😞\nPlease try again",
		"אופס! משהו השתבש אצלנו. 😞\nאנא נסה שוב"))
}
