// internal/bot/dispatcher.go
package bot

import (
	"context"
	"errors"
	"strconv"
	"time"

	"picme-bot/internal/db"
	"picme-bot/internal/models"
	"picme-bot/pkg/logger"
)

// Store is the conversation record store. All cross-task coordination goes
// through its conditional update and the dedup markers' uniqueness
// constraint; there is no other locking.
type Store interface {
	InsertMessageMarker(ctx context.Context, messageID string) error
	InsertPaymentMarker(ctx context.Context, paymentID string) error
	GetUser(ctx context.Context, phone string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUserState(ctx context.Context, phone string, expected, next models.State) (int64, error)
	SetUserLanguage(ctx context.Context, phone string, lang models.Language) error
	SetChosenPack(ctx context.Context, phone string, packID *string) error
	AssignTune(ctx context.Context, phone, tuneID, entityType string) error
	CompleteTune(ctx context.Context, phone, tuneID string, expected models.State) (int64, error)
	ResetUser(ctx context.Context, phone string) error
	SetEntityTypeIfEmpty(ctx context.Context, phone, entityType string) error
	AddPendingImage(ctx context.Context, phone, mediaID string) error
	CountPendingImages(ctx context.Context, phone string) (int, error)
	ListPendingImages(ctx context.Context, phone string) ([]string, error)
	PurgePendingImages(ctx context.Context, phone string) error
	InsertRating(ctx context.Context, phone string, rating int) error
	AttachFeedback(ctx context.Context, phone, feedback string) error
}

// Generator is the generation service behind the retry gateway. Nil results
// mean the retry budget was exhausted; there is never an error to inspect.
type Generator interface {
	Inspect(ctx context.Context, image []byte) map[string]interface{}
	// ListPacks returns the full catalog; ListedPacks only the entries
	// flagged as publicly listed. Menus use ListedPacks, reconciliation
	// and id lookups use ListPacks.
	ListPacks(ctx context.Context) []models.Pack
	ListedPacks(ctx context.Context) []models.Pack
	GetPack(ctx context.Context, id string) *models.Pack
	ListTunes(ctx context.Context) []models.Tune
	CreateTune(ctx context.Context, packID string, req models.TuneRequest) *models.TuneResult
}

// Notifier renders and sends the localized outbound messages for one
// conversation; sends are best effort and never fail the flow.
type Notifier interface {
	SetLanguage(lang models.Language)
	SendTyping(ctx context.Context, messageID string)
	SendInvalidMedia(ctx context.Context)
	SendInit(ctx context.Context)
	SendHowItWorks(ctx context.Context)
	SendImageGuidelines(ctx context.Context)
	SendGuidelineExamples(ctx context.Context)
	SendUploadRequest(ctx context.Context, firstTime bool)
	SendAdditionalImagesRequest(ctx context.Context)
	SendPackTiers(ctx context.Context)
	SendPackOptions(ctx context.Context, packs []models.Pack, entityType, price string)
	SendTunes(ctx context.Context, tunes []models.Tune)
	SendReturningCustomer(ctx context.Context)
	SendAgreement(ctx context.Context)
	SendPaymentLink(ctx context.Context, link string)
	SendPaymentReceived(ctx context.Context, fullName string)
	SendProcessing(ctx context.Context, remaining time.Duration)
	SendImagesReady(ctx context.Context)
	SendRatingPrompt(ctx context.Context)
	SendFeedbackAck(ctx context.Context, askForDetail bool)
	SendSupport(ctx context.Context)
	SendImageRejected(ctx context.Context, messageID string, reason models.RejectReason)
	SendReaction(ctx context.Context, messageID, emoji string)
	SendVideoExample(ctx context.Context, url string)
	SendImage(ctx context.Context, url string)
	SendError(ctx context.Context)
}

// NotifierFactory binds a notifier to one conversation.
type NotifierFactory func(phone string, lang models.Language) Notifier

// MediaFetcher downloads channel media bytes by opaque reference.
type MediaFetcher interface {
	GetMedia(ctx context.Context, mediaID string) ([]byte, error)
}

// PaymentLinks resolves the checkout link for a price tier.
type PaymentLinks interface {
	LinkFor(ctx context.Context, phone, tier string) (string, error)
}

// Config is the dispatcher's slice of the process configuration.
type Config struct {
	ImageThreshold  int
	TuneCallbackURL string
	StorageURL      string
	TierPrices      map[string]string
}

// Dispatcher is the composition root of the funnel: it dedups inbound
// events, bootstraps conversation records and routes each event to the
// handler of the conversation's current state.
type Dispatcher struct {
	store       Store
	gen         Generator
	media       MediaFetcher
	links       PaymentLinks
	newNotifier NotifierFactory
	cfg         Config
	logger      *logger.Logger
}

func NewDispatcher(store Store, gen Generator, media MediaFetcher, links PaymentLinks, factory NotifierFactory, cfg Config, l *logger.Logger) *Dispatcher {
	return &Dispatcher{
		store:       store,
		gen:         gen,
		media:       media,
		links:       links,
		newNotifier: factory,
		cfg:         cfg,
		logger:      l.Named("dispatcher"),
	}
}

// HandleMessage processes one normalized inbound event to completion.
// Nothing escapes: every failure path ends in a logged no-op or a
// best-effort apology message.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg models.IncomingMessage) {
	if err := d.store.InsertMessageMarker(ctx, msg.MessageID); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			d.logger.Info("Duplicate message stopped", "message_id", msg.MessageID)
		} else {
			d.logger.Error("Failed to record message marker", "message_id", msg.MessageID, "error", err)
		}
		return
	}

	user, err := d.store.GetUser(ctx, msg.From)
	if err != nil {
		d.logger.Error("Failed to load user", "phone", msg.From, "error", err)
		return
	}
	if user == nil {
		user = &models.User{
			Phone:    msg.From,
			State:    models.StateNew,
			Credits:  "0",
			Language: models.LanguageEnglish,
		}
		if err := d.store.CreateUser(ctx, user); err != nil {
			// Degraded by design: the event is dropped with only a log entry.
			d.logger.Error("Failed to create user record", "phone", msg.From, "error", err)
			return
		}
		d.logger.Info("User entered db", "phone", msg.From)
	}

	msn := d.newNotifier(user.Phone, user.Language)
	msn.SendTyping(ctx, msg.MessageID)

	if msg.InvalidMedia {
		msn.SendInvalidMedia(ctx)
		return
	}

	s := &session{d: d, user: user, msn: msn}
	h := s.handler()

	switch {
	case len(msg.MediaIDs) > 0:
		d.logger.Info("Processing media", "phone", user.Phone, "state", user.State.String())
		h.handleMedia(ctx, msg)
	case msg.Reply != nil:
		action, ok := parseAction(msg.Reply.ID)
		if !ok {
			return
		}
		if s.preIntercept(ctx, action) {
			return
		}
		h.handleReply(ctx, action)
	case msg.ListReply != nil:
		action, ok := parseAction(msg.ListReply.ID)
		if !ok {
			return
		}
		if s.preIntercept(ctx, action) {
			return
		}
		h.handleListReply(ctx, action)
	default:
		h.handleText(ctx, msg.Body)
	}
}

// preIntercept applies the two state-independent rules before the state
// handler sees the event. Returns true when the event was consumed.
func (s *session) preIntercept(ctx context.Context, action Action) bool {
	d := s.d

	// Star ratings short-circuit everything else.
	if action.ID == models.ActionStarRating && action.HasPayload {
		if err := d.store.InsertRating(ctx, s.user.Phone, action.Payload); err != nil {
			d.logger.Error("Failed to store rating", "phone", s.user.Phone, "error", err)
		}
		askForDetail := action.Payload < 4
		s.msn.SendFeedbackAck(ctx, askForDetail)
		if askForDetail {
			if _, err := d.store.UpdateUserState(ctx, s.user.Phone, s.user.State, models.StateWritingFeedback); err != nil {
				d.logger.Error("Failed to enter feedback state", "phone", s.user.Phone, "error", err)
			}
		}
		return true
	}

	// A bare numeric action outside the reserved set is a catalog pick.
	if !action.HasPayload && !action.reserved() {
		packs := d.gen.ListPacks(ctx)
		if packs == nil {
			return true
		}
		for _, pack := range packs {
			if pack.ID != action.ID {
				continue
			}
			d.logger.Info("User selected pack", "phone", s.user.Phone, "pack", pack.ID)
			if s.user.State == models.StatePicturesLoaded || s.user.State == models.StateTuneReady {
				id := strconv.Itoa(pack.ID)
				if err := d.store.SetChosenPack(ctx, s.user.Phone, &id); err != nil {
					d.logger.Error("Failed to store chosen pack", "phone", s.user.Phone, "error", err)
					return true
				}
				s.msn.SendAgreement(ctx)
			}
			return true
		}
	}
	return false
}

// HandleTuneImages delivers finished pack images back to the user and asks
// for a rating. Triggered by the generation service callback.
func (d *Dispatcher) HandleTuneImages(ctx context.Context, phone string, imageURLs []string) {
	user, err := d.store.GetUser(ctx, phone)
	if err != nil || user == nil {
		d.logger.Error("Failed to load user for tune images", "phone", phone, "error", err)
		return
	}
	msn := d.newNotifier(phone, user.Language)
	msn.SendImagesReady(ctx)
	for _, url := range imageURLs {
		msn.SendImage(ctx, url)
	}
	msn.SendRatingPrompt(ctx)
}
