// internal/bot/states.go
package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"picme-bot/internal/models"
)

// stateHandler is the closed set of operations every conversation state
// answers. One variant per state; the dispatcher picks the variant from the
// record's current state.
type stateHandler interface {
	handleMedia(ctx context.Context, msg models.IncomingMessage)
	handleReply(ctx context.Context, action Action)
	handleListReply(ctx context.Context, action Action)
	handleText(ctx context.Context, body string)
}

// session carries one event's conversation context through its handler.
type session struct {
	d    *Dispatcher
	user *models.User
	msn  Notifier
}

func (s *session) handler() stateHandler {
	switch s.user.State {
	case models.StatePicturesLoaded:
		return &picturesLoadedState{s}
	case models.StateTuneReady:
		return &tuneReadyState{s}
	case models.StateWritingFeedback:
		return &feedbackState{s}
	default:
		// Unrecognized states fall back to the entry handler.
		return &newState{s}
	}
}

// handleControl covers the actions that behave identically in every state.
// Returns true when the action was one of them.
func (s *session) handleControl(ctx context.Context, action Action) bool {
	switch action.ID {
	case models.ActionBegin:
		s.msn.SendInit(ctx)
	case models.ActionHowItWorks:
		s.msn.SendHowItWorks(ctx)
	case models.ActionChangeLanguage:
		s.changeLanguage(ctx)
	case models.ActionShowExamples:
		s.msn.SendGuidelineExamples(ctx)
	case models.ActionContactSupport:
		s.msn.SendSupport(ctx)
	case models.ActionSendPacks:
		s.msn.SendPackTiers(ctx)
	case models.ActionSendTunes:
		s.sendUserTunes(ctx)
	case models.ActionOverrideTune:
		s.reset(ctx)
	case models.ActionLitePack:
		s.sendPackOptions(ctx, "lite")
	case models.ActionStandardPack:
		s.sendPackOptions(ctx, "standard")
	case models.ActionPremiumPack:
		s.sendPackOptions(ctx, "premium")
	default:
		return false
	}
	return true
}

func (s *session) changeLanguage(ctx context.Context) {
	next := s.user.Language.Toggle()
	if err := s.d.store.SetUserLanguage(ctx, s.user.Phone, next); err != nil {
		s.d.logger.Error("Failed to switch language", "phone", s.user.Phone, "error", err)
		return
	}
	s.user.Language = next
	s.msn.SetLanguage(next)
	s.msn.SendInit(ctx)
}

// reset clears everything a previous tune flow left behind and returns the
// conversation to the upload step.
func (s *session) reset(ctx context.Context) {
	if err := s.d.store.ResetUser(ctx, s.user.Phone); err != nil {
		s.d.logger.Error("Failed to reset user", "phone", s.user.Phone, "error", err)
		s.msn.SendError(ctx)
		return
	}
	if err := s.d.store.PurgePendingImages(ctx, s.user.Phone); err != nil {
		s.d.logger.Error("Failed to purge pending images", "phone", s.user.Phone, "error", err)
	}
	s.user.State = models.StateNew
	s.msn.SendImageGuidelines(ctx)
	s.msn.SendUploadRequest(ctx, true)
}

func (s *session) entityType() string {
	if s.user.EntityType != nil && *s.user.EntityType != "" {
		return *s.user.EntityType
	}
	return "man"
}

func (s *session) sendPackOptions(ctx context.Context, tier string) {
	packs := s.d.gen.ListedPacks(ctx)
	if packs == nil {
		s.msn.SendError(ctx)
		return
	}
	var relevant []models.Pack
	for _, pack := range packs {
		if strings.Contains(pack.Slug, tier) {
			relevant = append(relevant, pack)
		}
	}
	s.msn.SendPackOptions(ctx, relevant, s.entityType(), s.d.cfg.TierPrices[tier])
}

// sendUserTunes lists the tunes the generation service holds under this
// identity so a returning customer can skip the upload step.
func (s *session) sendUserTunes(ctx context.Context) {
	tunes := s.d.gen.ListTunes(ctx)
	if tunes == nil {
		s.msn.SendError(ctx)
		return
	}
	var own []models.Tune
	for _, t := range tunes {
		if t.Title == s.user.Phone {
			own = append(own, t)
		}
	}
	if len(own) == 0 {
		s.msn.SendReturningCustomer(ctx)
		return
	}
	s.msn.SendTunes(ctx, own)
}

// setTune adopts an existing tune: tune reference and category come from the
// service's record, any previous catalog choice is dropped.
func (s *session) setTune(ctx context.Context, tuneID int) {
	tunes := s.d.gen.ListTunes(ctx)
	if tunes == nil {
		s.msn.SendError(ctx)
		return
	}
	for _, t := range tunes {
		if t.ID != tuneID {
			continue
		}
		if err := s.d.store.AssignTune(ctx, s.user.Phone, strconv.Itoa(t.ID), t.Name); err != nil {
			s.d.logger.Error("Failed to assign tune", "phone", s.user.Phone, "tune", t.ID, "error", err)
			s.msn.SendError(ctx)
			return
		}
		s.msn.SendPackTiers(ctx)
		return
	}
	s.msn.SendError(ctx)
}

// tierOfSlug maps a catalog slug to its price tier token.
func tierOfSlug(slug string) string {
	switch {
	case strings.Contains(slug, "lite"):
		return "lite"
	case strings.Contains(slug, "standard"):
		return "standard"
	default:
		return "premium"
	}
}

func (s *session) sendPaymentLink(ctx context.Context) {
	if s.user.ChosenPack == nil {
		s.msn.SendPackTiers(ctx)
		return
	}
	pack := s.d.gen.GetPack(ctx, *s.user.ChosenPack)
	if pack == nil {
		s.msn.SendError(ctx)
		return
	}
	link, err := s.d.links.LinkFor(ctx, s.user.Phone, tierOfSlug(pack.Slug))
	if err != nil {
		s.d.logger.Error("Failed to build payment link", "phone", s.user.Phone, "error", err)
		s.msn.SendError(ctx)
		return
	}
	s.msn.SendPaymentLink(ctx, link)
}

// showPackImages previews one catalog entry with its example video.
func (s *session) showPackImages(ctx context.Context, packID int) {
	pack := s.d.gen.GetPack(ctx, strconv.Itoa(packID))
	if pack == nil {
		s.msn.SendError(ctx)
		return
	}
	if pack.CoverURL != "" {
		s.msn.SendImage(ctx, pack.CoverURL)
	}
	url := fmt.Sprintf("%s/videos/%d_%s.mp4", s.d.cfg.StorageURL, pack.ID, s.entityType())
	s.msn.SendVideoExample(ctx, url)
}

// newState: the conversation exists but not enough images were accepted yet.
type newState struct{ *session }

func (h *newState) handleMedia(ctx context.Context, msg models.IncomingMessage) {
	h.handleImages(ctx, msg)

	count, err := h.d.store.CountPendingImages(ctx, h.user.Phone)
	if err != nil {
		h.d.logger.Error("Failed to count pending images", "phone", h.user.Phone, "error", err)
		return
	}
	if count < h.d.cfg.ImageThreshold {
		return
	}
	// Only the attempt that wins the guarded update prompts the user, so a
	// burst of concurrent uploads produces the upsell exactly once.
	affected, err := h.d.store.UpdateUserState(ctx, h.user.Phone, models.StateNew, models.StatePicturesLoaded)
	if err != nil {
		h.d.logger.Error("Failed to promote user", "phone", h.user.Phone, "error", err)
		return
	}
	if affected == 0 {
		return
	}
	h.user.State = models.StatePicturesLoaded
	h.msn.SendAdditionalImagesRequest(ctx)
}

func (h *newState) handleReply(ctx context.Context, action Action) {
	if h.handleControl(ctx, action) {
		return
	}
	switch action.ID {
	case models.ActionReadyForUpload:
		h.msn.SendImageGuidelines(ctx)
		h.msn.SendUploadRequest(ctx, true)
	case models.ActionSetTune:
		if action.HasPayload {
			h.setTune(ctx, action.Payload)
		}
	}
}

func (h *newState) handleListReply(ctx context.Context, action Action) {
	h.handleReply(ctx, action)
}

func (h *newState) handleText(ctx context.Context, body string) {
	h.msn.SendInit(ctx)
}

// picturesLoadedState: enough images exist, the funnel is selling.
type picturesLoadedState struct{ *session }

func (h *picturesLoadedState) handleMedia(ctx context.Context, msg models.IncomingMessage) {
	// Extra images past the threshold still improve the tune.
	h.handleImages(ctx, msg)
}

func (h *picturesLoadedState) handleReply(ctx context.Context, action Action) {
	if h.handleControl(ctx, action) {
		return
	}
	switch action.ID {
	case models.ActionReadyForUpload, models.ActionUploadMore:
		h.msn.SendUploadRequest(ctx, false)
	case models.ActionSetTune:
		if action.HasPayload {
			h.setTune(ctx, action.Payload)
		}
	case models.ActionShowPackImages:
		if action.HasPayload {
			h.showPackImages(ctx, action.Payload)
		}
	case models.ActionGetPaymentLink:
		h.sendPaymentLink(ctx)
	}
}

func (h *picturesLoadedState) handleListReply(ctx context.Context, action Action) {
	h.handleReply(ctx, action)
}

func (h *picturesLoadedState) handleText(ctx context.Context, body string) {
	h.msn.SendPackTiers(ctx)
}

// tuneReadyState: a tune exists; selling continues but media is ignored.
type tuneReadyState struct{ *session }

func (h *tuneReadyState) handleMedia(ctx context.Context, msg models.IncomingMessage) {
	// Tuning is complete; new media changes nothing.
}

func (h *tuneReadyState) handleReply(ctx context.Context, action Action) {
	(&picturesLoadedState{h.session}).handleReply(ctx, action)
}

func (h *tuneReadyState) handleListReply(ctx context.Context, action Action) {
	h.handleReply(ctx, action)
}

func (h *tuneReadyState) handleText(ctx context.Context, body string) {
	h.msn.SendPackTiers(ctx)
}

// feedbackState: waiting for free-text feedback, everything else is ignored.
type feedbackState struct{ *session }

func (h *feedbackState) handleMedia(ctx context.Context, msg models.IncomingMessage) {}

func (h *feedbackState) handleReply(ctx context.Context, action Action) {}

func (h *feedbackState) handleListReply(ctx context.Context, action Action) {}

func (h *feedbackState) handleText(ctx context.Context, body string) {
	if err := h.d.store.AttachFeedback(ctx, h.user.Phone, body); err != nil {
		h.d.logger.Error("Failed to attach feedback", "phone", h.user.Phone, "error", err)
	}
	if _, err := h.d.store.UpdateUserState(ctx, h.user.Phone, models.StateWritingFeedback, models.StateTuneReady); err != nil {
		h.d.logger.Error("Failed to leave feedback state", "phone", h.user.Phone, "error", err)
	}
	h.msn.SendFeedbackAck(ctx, false)
	h.msn.SendSupport(ctx)
}
