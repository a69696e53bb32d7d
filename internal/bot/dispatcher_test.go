package bot

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"picme-bot/internal/db"
	"picme-bot/internal/models"
	"picme-bot/pkg/logger"
)

type ratingRecord struct {
	phone    string
	rating   int
	feedback string
}

// fakeStore is an in-memory Store good enough for dispatch-level tests.
type fakeStore struct {
	mu       sync.Mutex
	users    map[string]*models.User
	markers  map[string]bool
	payments map[string]bool
	pending  map[string][]string
	ratings  []ratingRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]*models.User),
		markers:  make(map[string]bool),
		payments: make(map[string]bool),
		pending:  make(map[string][]string),
	}
}

func (f *fakeStore) InsertMessageMarker(ctx context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markers[messageID] {
		return db.ErrDuplicate
	}
	f.markers[messageID] = true
	return nil
}

func (f *fakeStore) InsertPaymentMarker(ctx context.Context, paymentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.payments[paymentID] {
		return db.ErrDuplicate
	}
	f.payments[paymentID] = true
	return nil
}

func (f *fakeStore) GetUser(ctx context.Context, phone string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[phone]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (f *fakeStore) CreateUser(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *user
	f.users[user.Phone] = &copied
	return nil
}

func (f *fakeStore) UpdateUserState(ctx context.Context, phone string, expected, next models.State) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[phone]
	if !ok || u.State != expected {
		return 0, nil
	}
	u.State = next
	return 1, nil
}

func (f *fakeStore) SetUserLanguage(ctx context.Context, phone string, lang models.Language) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[phone]; ok {
		u.Language = lang
	}
	return nil
}

func (f *fakeStore) SetChosenPack(ctx context.Context, phone string, packID *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[phone]; ok {
		u.ChosenPack = packID
	}
	return nil
}

func (f *fakeStore) AssignTune(ctx context.Context, phone, tuneID, entityType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[phone]; ok {
		u.TuneID = &tuneID
		u.EntityType = &entityType
		u.ChosenPack = nil
	}
	return nil
}

func (f *fakeStore) CompleteTune(ctx context.Context, phone, tuneID string, expected models.State) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[phone]
	if !ok || u.State != expected {
		return 0, nil
	}
	u.TuneID = &tuneID
	u.State = models.StateTuneReady
	return 1, nil
}

func (f *fakeStore) ResetUser(ctx context.Context, phone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[phone]; ok {
		u.State = models.StateNew
		u.TuneID = nil
		u.ChosenPack = nil
		u.EntityType = nil
	}
	return nil
}

func (f *fakeStore) SetEntityTypeIfEmpty(ctx context.Context, phone, entityType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[phone]; ok && (u.EntityType == nil || *u.EntityType == "") {
		u.EntityType = &entityType
	}
	return nil
}

func (f *fakeStore) AddPendingImage(ctx context.Context, phone, mediaID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[phone] = append(f.pending[phone], mediaID)
	return nil
}

func (f *fakeStore) CountPendingImages(ctx context.Context, phone string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending[phone]), nil
}

func (f *fakeStore) ListPendingImages(ctx context.Context, phone string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.pending[phone]...), nil
}

func (f *fakeStore) PurgePendingImages(ctx context.Context, phone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, phone)
	return nil
}

func (f *fakeStore) InsertRating(ctx context.Context, phone string, rating int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ratings = append(f.ratings, ratingRecord{phone: phone, rating: rating})
	return nil
}

func (f *fakeStore) AttachFeedback(ctx context.Context, phone, feedback string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.ratings) - 1; i >= 0; i-- {
		if f.ratings[i].phone == phone {
			f.ratings[i].feedback = feedback
			return nil
		}
	}
	f.ratings = append(f.ratings, ratingRecord{phone: phone, feedback: feedback})
	return nil
}

// fakeGenerator serves a fixed catalog and records tune requests.
type fakeGenerator struct {
	mu          sync.Mutex
	packs       []models.Pack
	tunes       []models.Tune
	inspection  map[string]interface{}
	tuneResult  *models.TuneResult
	tuneCreated []models.TuneRequest
}

func (f *fakeGenerator) Inspect(ctx context.Context, image []byte) map[string]interface{} {
	return f.inspection
}

func (f *fakeGenerator) ListPacks(ctx context.Context) []models.Pack { return f.packs }

func (f *fakeGenerator) ListedPacks(ctx context.Context) []models.Pack { return f.packs }

func (f *fakeGenerator) GetPack(ctx context.Context, id string) *models.Pack {
	for i := range f.packs {
		if strconv.Itoa(f.packs[i].ID) == id {
			return &f.packs[i]
		}
	}
	return nil
}

func (f *fakeGenerator) ListTunes(ctx context.Context) []models.Tune { return f.tunes }

func (f *fakeGenerator) CreateTune(ctx context.Context, packID string, req models.TuneRequest) *models.TuneResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tuneCreated = append(f.tuneCreated, req)
	return f.tuneResult
}

// fakeNotifier records the message sequence by name.
type fakeNotifier struct {
	mu        sync.Mutex
	calls     []string
	lastPacks []models.Pack
}

func (f *fakeNotifier) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeNotifier) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeNotifier) SetLanguage(lang models.Language) {}

func (f *fakeNotifier) SendTyping(ctx context.Context, messageID string) { f.record("typing") }

func (f *fakeNotifier) SendInvalidMedia(ctx context.Context) { f.record("invalid_media") }

func (f *fakeNotifier) SendInit(ctx context.Context) { f.record("init") }

func (f *fakeNotifier) SendHowItWorks(ctx context.Context) { f.record("how_it_works") }

func (f *fakeNotifier) SendImageGuidelines(ctx context.Context) { f.record("guidelines") }

func (f *fakeNotifier) SendGuidelineExamples(ctx context.Context) { f.record("examples") }

func (f *fakeNotifier) SendUploadRequest(ctx context.Context, first bool) { f.record("upload_request") }

func (f *fakeNotifier) SendAdditionalImagesRequest(ctx context.Context) { f.record("upsell") }

func (f *fakeNotifier) SendPackTiers(ctx context.Context) { f.record("pack_tiers") }

func (f *fakeNotifier) SendPackOptions(ctx context.Context, packs []models.Pack, entityType, price string) {
	f.record("pack_options")
	f.mu.Lock()
	f.lastPacks = packs
	f.mu.Unlock()
}

func (f *fakeNotifier) SendTunes(ctx context.Context, tunes []models.Tune) { f.record("tunes") }

func (f *fakeNotifier) SendReturningCustomer(ctx context.Context) { f.record("returning") }

func (f *fakeNotifier) SendAgreement(ctx context.Context) { f.record("agreement") }

func (f *fakeNotifier) SendPaymentLink(ctx context.Context, link string) { f.record("payment_link") }

func (f *fakeNotifier) SendPaymentReceived(ctx context.Context, fullName string) {
	f.record("payment_received")
}

func (f *fakeNotifier) SendProcessing(ctx context.Context, remaining time.Duration) {
	f.record("processing")
}

func (f *fakeNotifier) SendImagesReady(ctx context.Context) { f.record("images_ready") }

func (f *fakeNotifier) SendRatingPrompt(ctx context.Context) { f.record("rating_prompt") }

func (f *fakeNotifier) SendFeedbackAck(ctx context.Context, askForDetail bool) {
	if askForDetail {
		f.record("feedback_ask")
	} else {
		f.record("feedback_ack")
	}
}

func (f *fakeNotifier) SendSupport(ctx context.Context) { f.record("support") }

func (f *fakeNotifier) SendImageRejected(ctx context.Context, messageID string, reason models.RejectReason) {
	f.record("rejected")
}

func (f *fakeNotifier) SendReaction(ctx context.Context, messageID, emoji string) {
	f.record("reaction")
}

func (f *fakeNotifier) SendVideoExample(ctx context.Context, url string) { f.record("video") }

func (f *fakeNotifier) SendImage(ctx context.Context, url string) { f.record("image") }

func (f *fakeNotifier) SendError(ctx context.Context) { f.record("error") }

type fakeMedia struct{}

func (fakeMedia) GetMedia(ctx context.Context, mediaID string) ([]byte, error) {
	return []byte("image-bytes"), nil
}

type fakeLinks struct{}

func (fakeLinks) LinkFor(ctx context.Context, phone, tier string) (string, error) {
	return "https://pay.example/" + tier, nil
}

type fixture struct {
	d     *Dispatcher
	store *fakeStore
	gen   *fakeGenerator
	msn   *fakeNotifier
}

func newFixture(t *testing.T, threshold int) *fixture {
	t.Helper()
	store := newFakeStore()
	gen := &fakeGenerator{
		inspection: map[string]interface{}{"name": "man", "hair_color": "brown"},
		tuneResult: &models.TuneResult{ID: 77, ETA: time.Now().Add(30 * time.Minute).Format(time.RFC3339)},
	}
	msn := &fakeNotifier{}
	factory := func(phone string, lang models.Language) Notifier { return msn }
	d := NewDispatcher(store, gen, fakeMedia{}, fakeLinks{}, factory, Config{
		ImageThreshold:  threshold,
		TuneCallbackURL: "https://bot.example/webhook/tune-images?key=k",
		StorageURL:      "https://cdn.example",
		TierPrices:      map[string]string{"lite": "79", "standard": "119", "premium": "159"},
	}, logger.NewDevelopment())
	return &fixture{d: d, store: store, gen: gen, msn: msn}
}

func textMessage(id, from, body string) models.IncomingMessage {
	return models.IncomingMessage{MessageID: id, From: from, Body: body}
}

func TestHandleMessageDeduplicates(t *testing.T) {
	f := newFixture(t, 8)
	ctx := context.Background()

	f.d.HandleMessage(ctx, textMessage("m1", "972500000001", "hi"))
	f.d.HandleMessage(ctx, textMessage("m1", "972500000001", "hi"))

	// The redelivery stops at the marker: one ack, one menu.
	assert.Equal(t, 1, f.msn.count("typing"))
	assert.Equal(t, 1, f.msn.count("init"))
}

func TestHandleMessageCreatesRecord(t *testing.T) {
	f := newFixture(t, 8)
	ctx := context.Background()

	f.d.HandleMessage(ctx, textMessage("m1", "972500000001", "hi"))

	u, err := f.store.GetUser(ctx, "972500000001")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, models.StateNew, u.State)
	assert.Equal(t, "0", u.Credits)
}

func TestInvalidMediaShortCircuits(t *testing.T) {
	f := newFixture(t, 8)

	f.d.HandleMessage(context.Background(), models.IncomingMessage{
		MessageID:    "m1",
		From:         "972500000001",
		InvalidMedia: true,
	})

	assert.Equal(t, 1, f.msn.count("invalid_media"))
	assert.Equal(t, 0, f.msn.count("init"))
}

func TestThresholdPromotionPromptsOnce(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.d.HandleMessage(ctx, models.IncomingMessage{
			MessageID: "m" + strconv.Itoa(i),
			From:      "972500000001",
			MediaIDs:  []string{"media-" + strconv.Itoa(i)},
		})
	}

	u, _ := f.store.GetUser(ctx, "972500000001")
	require.NotNil(t, u)
	assert.Equal(t, models.StatePicturesLoaded, u.State)
	// The third image lands after promotion and must not re-prompt.
	assert.Equal(t, 1, f.msn.count("upsell"))
	count, _ := f.store.CountPendingImages(ctx, "972500000001")
	assert.Equal(t, 3, count)
}

func TestConcurrentPromotionSingleWinner(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	require.NoError(t, f.store.CreateUser(ctx, &models.User{Phone: "p", State: models.StateNew, Credits: "0"}))

	var wins int64
	var wg sync.WaitGroup
	var mu sync.Mutex
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := f.store.UpdateUserState(ctx, "p", models.StateNew, models.StatePicturesLoaded)
			assert.NoError(t, err)
			mu.Lock()
			wins += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins)
}

func TestImageRejectionReacts(t *testing.T) {
	f := newFixture(t, 8)
	f.gen.inspection = map[string]interface{}{"name": "man", "wearing_sunglasses": true}
	ctx := context.Background()

	f.d.HandleMessage(ctx, models.IncomingMessage{
		MessageID: "m1",
		From:      "972500000001",
		MediaIDs:  []string{"media-1"},
	})

	assert.Equal(t, 1, f.msn.count("rejected"))
	count, _ := f.store.CountPendingImages(ctx, "972500000001")
	assert.Equal(t, 0, count)
}

func TestTuneReadyIgnoresMedia(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	require.NoError(t, f.store.CreateUser(ctx, &models.User{Phone: "p", State: models.StateTuneReady, Credits: "0"}))

	f.d.HandleMessage(ctx, models.IncomingMessage{
		MessageID: "m1",
		From:      "p",
		MediaIDs:  []string{"media-1"},
	})

	count, _ := f.store.CountPendingImages(ctx, "p")
	assert.Equal(t, 0, count)
}

func TestStarRatingLowOpensFeedback(t *testing.T) {
	f := newFixture(t, 8)
	ctx := context.Background()
	require.NoError(t, f.store.CreateUser(ctx, &models.User{Phone: "p", State: models.StateTuneReady, Credits: "0"}))

	f.d.HandleMessage(ctx, models.IncomingMessage{
		MessageID: "m1",
		From:      "p",
		ListReply: &models.InteractiveReply{ID: "14_2"},
	})

	u, _ := f.store.GetUser(ctx, "p")
	assert.Equal(t, models.StateWritingFeedback, u.State)
	assert.Equal(t, 1, f.msn.count("feedback_ask"))
	require.Len(t, f.store.ratings, 1)
	assert.Equal(t, 2, f.store.ratings[0].rating)
}

func TestStarRatingHighJustThanks(t *testing.T) {
	f := newFixture(t, 8)
	ctx := context.Background()
	require.NoError(t, f.store.CreateUser(ctx, &models.User{Phone: "p", State: models.StateTuneReady, Credits: "0"}))

	f.d.HandleMessage(ctx, models.IncomingMessage{
		MessageID: "m1",
		From:      "p",
		ListReply: &models.InteractiveReply{ID: "14_5"},
	})

	u, _ := f.store.GetUser(ctx, "p")
	assert.Equal(t, models.StateTuneReady, u.State)
	assert.Equal(t, 1, f.msn.count("feedback_ack"))
}

func TestWritingFeedbackAttachesText(t *testing.T) {
	f := newFixture(t, 8)
	ctx := context.Background()
	require.NoError(t, f.store.CreateUser(ctx, &models.User{Phone: "p", State: models.StateTuneReady, Credits: "0"}))

	f.d.HandleMessage(ctx, models.IncomingMessage{
		MessageID: "m1",
		From:      "p",
		ListReply: &models.InteractiveReply{ID: "14_1"},
	})
	f.d.HandleMessage(ctx, textMessage("m2", "p", "the lighting felt off"))

	u, _ := f.store.GetUser(ctx, "p")
	assert.Equal(t, models.StateTuneReady, u.State)
	require.Len(t, f.store.ratings, 1)
	assert.Equal(t, "the lighting felt off", f.store.ratings[0].feedback)
	assert.Equal(t, 1, f.msn.count("feedback_ack"))
}

func TestBareCatalogSelection(t *testing.T) {
	f := newFixture(t, 8)
	f.gen.packs = []models.Pack{
		{ID: 260, Slug: "portrait-lite", Costs: map[string]models.PackCost{"man": {NumImages: 20}}},
	}
	ctx := context.Background()
	require.NoError(t, f.store.CreateUser(ctx, &models.User{Phone: "p", State: models.StatePicturesLoaded, Credits: "0"}))

	f.d.HandleMessage(ctx, models.IncomingMessage{
		MessageID: "m1",
		From:      "p",
		Reply:     &models.InteractiveReply{ID: "260"},
	})

	u, _ := f.store.GetUser(ctx, "p")
	require.NotNil(t, u.ChosenPack)
	assert.Equal(t, "260", *u.ChosenPack)
	assert.Equal(t, 1, f.msn.count("agreement"))
}

func TestBareCatalogSelectionIgnoredForNewUsers(t *testing.T) {
	f := newFixture(t, 8)
	f.gen.packs = []models.Pack{
		{ID: 260, Slug: "portrait-lite", Costs: map[string]models.PackCost{"man": {NumImages: 20}}},
	}
	ctx := context.Background()
	require.NoError(t, f.store.CreateUser(ctx, &models.User{Phone: "p", State: models.StateNew, Credits: "0"}))

	f.d.HandleMessage(ctx, models.IncomingMessage{
		MessageID: "m1",
		From:      "p",
		Reply:     &models.InteractiveReply{ID: "260"},
	})

	u, _ := f.store.GetUser(ctx, "p")
	assert.Nil(t, u.ChosenPack)
	assert.Equal(t, 0, f.msn.count("agreement"))
}

func TestTierMenuShowsOnlyMatchingPacks(t *testing.T) {
	f := newFixture(t, 8)
	costs := map[string]models.PackCost{"man": {NumImages: 20}}
	f.gen.packs = []models.Pack{
		{ID: 1, Slug: "portrait-lite", Costs: costs},
		{ID: 2, Slug: "portrait-standard", Costs: costs},
		{ID: 3, Slug: "portrait-premium", Costs: costs},
	}
	ctx := context.Background()
	require.NoError(t, f.store.CreateUser(ctx, &models.User{Phone: "p", State: models.StatePicturesLoaded, Credits: "0"}))

	f.d.HandleMessage(ctx, models.IncomingMessage{
		MessageID: "m1",
		From:      "p",
		ListReply: &models.InteractiveReply{ID: "15"},
	})

	assert.Equal(t, 1, f.msn.count("pack_options"))
	require.Len(t, f.msn.lastPacks, 1)
	assert.Equal(t, "portrait-lite", f.msn.lastPacks[0].Slug)
}

func TestHandlePaymentFirstTimeTune(t *testing.T) {
	f := newFixture(t, 2)
	f.gen.packs = []models.Pack{
		{ID: 1, Slug: "fantasy-standard", Costs: map[string]models.PackCost{"man": {NumImages: 20}}},
		{ID: 2, Slug: "portrait-standard", Costs: map[string]models.PackCost{"man": {NumImages: 20}}},
		{ID: 3, Slug: "portrait-lite", Costs: map[string]models.PackCost{"man": {NumImages: 20}}},
	}
	ctx := context.Background()
	chosen := "3"
	entity := "man"
	require.NoError(t, f.store.CreateUser(ctx, &models.User{
		Phone: "p", State: models.StatePicturesLoaded, Credits: "0",
		ChosenPack: &chosen, EntityType: &entity,
	}))
	require.NoError(t, f.store.AddPendingImage(ctx, "p", "media-1"))
	require.NoError(t, f.store.AddPendingImage(ctx, "p", "media-2"))

	f.d.HandlePayment(ctx, models.PaymentNotification{
		PaymentID: "pay-1", Phone: "p", FullName: "Dana", Tier: "Standard",
	})

	u, _ := f.store.GetUser(ctx, "p")
	require.NotNil(t, u.TuneID)
	assert.Equal(t, "77", *u.TuneID)
	assert.Equal(t, models.StateTuneReady, u.State)
	// The paid tier did not match the chosen slug: the same-category
	// standard pack replaces it.
	require.NotNil(t, u.ChosenPack)
	assert.Equal(t, "2", *u.ChosenPack)

	count, _ := f.store.CountPendingImages(ctx, "p")
	assert.Equal(t, 0, count)
	assert.Equal(t, 1, f.msn.count("payment_received"))
	assert.Equal(t, 1, f.msn.count("processing"))

	require.Len(t, f.gen.tuneCreated, 1)
	req := f.gen.tuneCreated[0]
	assert.Len(t, req.Images, 2)
	assert.Equal(t, "brown", req.Characteristics["hair_color"])
	assert.Contains(t, req.Callback, "phone_number=p")
}

func TestHandlePaymentReusePath(t *testing.T) {
	f := newFixture(t, 2)
	f.gen.packs = []models.Pack{
		{ID: 2, Slug: "portrait-standard", Costs: map[string]models.PackCost{"man": {NumImages: 20}}},
	}
	ctx := context.Background()
	chosen := "2"
	entity := "man"
	tune := "55"
	require.NoError(t, f.store.CreateUser(ctx, &models.User{
		Phone: "p", State: models.StateTuneReady, Credits: "0",
		ChosenPack: &chosen, EntityType: &entity, TuneID: &tune,
	}))

	f.d.HandlePayment(ctx, models.PaymentNotification{
		PaymentID: "pay-2", Phone: "p", FullName: "Dana", Tier: "standard",
	})

	require.Len(t, f.gen.tuneCreated, 1)
	req := f.gen.tuneCreated[0]
	assert.Equal(t, "55", req.TuneID)
	assert.Empty(t, req.Images)
}

func TestHandlePaymentDeduplicates(t *testing.T) {
	f := newFixture(t, 2)
	f.gen.packs = []models.Pack{
		{ID: 2, Slug: "portrait-standard", Costs: map[string]models.PackCost{"man": {NumImages: 20}}},
	}
	ctx := context.Background()
	chosen := "2"
	entity := "man"
	tune := "55"
	require.NoError(t, f.store.CreateUser(ctx, &models.User{
		Phone: "p", State: models.StateTuneReady, Credits: "0",
		ChosenPack: &chosen, EntityType: &entity, TuneID: &tune,
	}))

	payment := models.PaymentNotification{PaymentID: "pay-3", Phone: "p", FullName: "Dana", Tier: "standard"}
	f.d.HandlePayment(ctx, payment)
	f.d.HandlePayment(ctx, payment)

	assert.Equal(t, 1, f.msn.count("payment_received"))
	assert.Len(t, f.gen.tuneCreated, 1)
}

func TestHandleTuneImages(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	require.NoError(t, f.store.CreateUser(ctx, &models.User{Phone: "p", State: models.StateTuneReady, Credits: "0"}))

	f.d.HandleTuneImages(ctx, "p", []string{"https://cdn.example/1.jpg", "https://cdn.example/2.jpg"})

	assert.Equal(t, 1, f.msn.count("images_ready"))
	assert.Equal(t, 2, f.msn.count("image"))
	assert.Equal(t, 1, f.msn.count("rating_prompt"))
}

func TestLanguageToggleResendsMenu(t *testing.T) {
	f := newFixture(t, 8)
	ctx := context.Background()
	require.NoError(t, f.store.CreateUser(ctx, &models.User{Phone: "p", State: models.StateNew, Credits: "0"}))

	f.d.HandleMessage(ctx, models.IncomingMessage{
		MessageID: "m1",
		From:      "p",
		ListReply: &models.InteractiveReply{ID: "3"},
	})

	u, _ := f.store.GetUser(ctx, "p")
	assert.Equal(t, models.LanguageHebrew, u.Language)
	assert.Equal(t, 1, f.msn.count("init"))
}

func TestResetClearsEverything(t *testing.T) {
	f := newFixture(t, 8)
	ctx := context.Background()
	chosen := "2"
	tune := "55"
	require.NoError(t, f.store.CreateUser(ctx, &models.User{
		Phone: "p", State: models.StateTuneReady, Credits: "0",
		ChosenPack: &chosen, TuneID: &tune,
	}))
	require.NoError(t, f.store.AddPendingImage(ctx, "p", "media-1"))

	f.d.HandleMessage(ctx, models.IncomingMessage{
		MessageID: "m1",
		From:      "p",
		Reply:     &models.InteractiveReply{ID: "7"},
	})

	u, _ := f.store.GetUser(ctx, "p")
	assert.Equal(t, models.StateNew, u.State)
	assert.Nil(t, u.TuneID)
	assert.Nil(t, u.ChosenPack)
	count, _ := f.store.CountPendingImages(ctx, "p")
	assert.Equal(t, 0, count)
	assert.Equal(t, 1, f.msn.count("guidelines"))
	assert.Equal(t, 1, f.msn.count("upload_request"))
}
