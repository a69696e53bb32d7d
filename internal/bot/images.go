// internal/bot/images.go
package bot

import (
	"context"
	"strconv"
	"time"

	"picme-bot/internal/models"
)

const fallbackETA = 2 * time.Minute

// handleImages runs the upload half of the tuning pipeline: fetch each media
// reference, inspect it, apply the validity rules and persist what passes.
// An image whose fetch or inspection fails is excluded silently.
func (s *session) handleImages(ctx context.Context, msg models.IncomingMessage) {
	for _, mediaID := range msg.MediaIDs {
		data, err := s.d.media.GetMedia(ctx, mediaID)
		if err != nil {
			s.d.logger.Error("Failed to fetch media", "phone", s.user.Phone, "media", mediaID, "error", err)
			continue
		}
		attrs := s.d.gen.Inspect(ctx, data)
		if attrs == nil {
			s.d.logger.Warn("Image inspection unavailable", "phone", s.user.Phone, "media", mediaID)
			continue
		}
		if reason, rejected := findRejectReason(attrs); rejected {
			s.msn.SendImageRejected(ctx, msg.MessageID, reason)
			s.msn.SendReaction(ctx, msg.MessageID, "\U0001F44E")
			continue
		}
		if err := s.d.store.AddPendingImage(ctx, s.user.Phone, mediaID); err != nil {
			s.d.logger.Error("Failed to store pending image", "phone", s.user.Phone, "media", mediaID, "error", err)
			continue
		}
		if name, ok := attrs["name"].(string); ok && name != "" {
			if err := s.d.store.SetEntityTypeIfEmpty(ctx, s.user.Phone, name); err != nil {
				s.d.logger.Error("Failed to store entity type", "phone", s.user.Phone, "error", err)
			}
		}
		s.msn.SendReaction(ctx, msg.MessageID, "\U0001F929")
	}
}

// findRejectReason applies the validity rules in strict priority order and
// reports at most one reason per image.
func findRejectReason(attrs map[string]interface{}) (models.RejectReason, bool) {
	name, _ := attrs["name"].(string)
	switch {
	case name == "":
		return models.RejectNoPerson, true
	case truthy(attrs["funny_face"]):
		return models.RejectFunnyFace, true
	case truthy(attrs["blurry"]):
		return models.RejectBlurry, true
	case truthy(attrs["wearing_sunglasses"]):
		return models.RejectSunglasses, true
	case truthy(attrs["includes_multiple_people"]):
		return models.RejectMultiplePeople, true
	case truthy(attrs["wearing_hat"]):
		return models.RejectHat, true
	}
	return 0, false
}

// truthy tolerates the inspection service reporting flags as booleans or
// lowercase strings.
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true" || t == "yes"
	}
	return false
}

// aggregateCharacteristics merges per-image attribute maps by majority vote:
// a key qualifies when it appears as a non-empty string on at least half of
// the images, and its mode value wins with first-seen order breaking ties.
// The returned key slice preserves first-seen order for stable encoding.
func aggregateCharacteristics(attrsList []map[string]interface{}) (map[string]string, []string) {
	if len(attrsList) == 0 {
		return map[string]string{}, nil
	}

	var keyOrder []string
	valueOrder := make(map[string][]string)
	counts := make(map[string]map[string]int)

	for _, attrs := range attrsList {
		for key, raw := range attrs {
			value, ok := raw.(string)
			if !ok || value == "" {
				continue
			}
			if counts[key] == nil {
				counts[key] = make(map[string]int)
				keyOrder = append(keyOrder, key)
			}
			if counts[key][value] == 0 {
				valueOrder[key] = append(valueOrder[key], value)
			}
			counts[key][value]++
		}
	}

	half := float64(len(attrsList)) / 2
	result := make(map[string]string)
	var resultKeys []string
	for _, key := range keyOrder {
		total := 0
		for _, n := range counts[key] {
			total += n
		}
		if float64(total) < half {
			continue
		}
		best := ""
		bestCount := 0
		for _, value := range valueOrder[key] {
			if counts[key][value] > bestCount {
				best = value
				bestCount = counts[key][value]
			}
		}
		result[key] = best
		resultKeys = append(resultKeys, key)
	}
	return result, resultKeys
}

// startTune submits the tune request for the resolved catalog entry. With an
// existing tune reference only the id and callback travel; otherwise every
// pending image is fetched, re-inspected for its attributes and attached.
func (s *session) startTune(ctx context.Context, pack *models.Pack) {
	callback := s.d.cfg.TuneCallbackURL + "&phone_number=" + s.user.Phone
	packID := strconv.Itoa(pack.ID)

	var req models.TuneRequest
	if s.user.TuneID != nil && *s.user.TuneID != "" {
		req = models.TuneRequest{TuneID: *s.user.TuneID, Callback: callback}
	} else {
		mediaIDs, err := s.d.store.ListPendingImages(ctx, s.user.Phone)
		if err != nil {
			s.d.logger.Error("Failed to list pending images", "phone", s.user.Phone, "error", err)
			s.msn.SendError(ctx)
			return
		}
		var images [][]byte
		var attrsList []map[string]interface{}
		for _, mediaID := range mediaIDs {
			data, err := s.d.media.GetMedia(ctx, mediaID)
			if err != nil {
				s.d.logger.Error("Failed to fetch media for tune", "phone", s.user.Phone, "media", mediaID, "error", err)
				continue
			}
			attrs := s.d.gen.Inspect(ctx, data)
			if attrs == nil {
				continue
			}
			images = append(images, data)
			attrsList = append(attrsList, attrs)
		}
		if len(images) == 0 {
			s.d.logger.Error("No usable images for tune", "phone", s.user.Phone)
			s.msn.SendError(ctx)
			return
		}
		characteristics, keys := aggregateCharacteristics(attrsList)
		req = models.TuneRequest{
			Title:              s.user.Phone,
			Name:               s.entityType(),
			Callback:           callback,
			Images:             images,
			Characteristics:    characteristics,
			CharacteristicKeys: keys,
		}
	}

	result := s.d.gen.CreateTune(ctx, packID, req)
	if result == nil {
		s.msn.SendError(ctx)
		return
	}

	remaining := fallbackETA
	if result.ID != 0 {
		tuneID := strconv.Itoa(result.ID)
		if _, err := s.d.store.CompleteTune(ctx, s.user.Phone, tuneID, s.user.State); err != nil {
			s.d.logger.Error("Failed to record tune", "phone", s.user.Phone, "tune", tuneID, "error", err)
		}
		if err := s.d.store.PurgePendingImages(ctx, s.user.Phone); err != nil {
			s.d.logger.Error("Failed to purge pending images", "phone", s.user.Phone, "error", err)
		}
		if eta, err := time.Parse(time.RFC3339, result.ETA); err == nil {
			if d := time.Until(eta); d > 0 {
				remaining = d
			}
		}
	}
	s.msn.SendProcessing(ctx, remaining)
}
