// internal/bot/payment.go
package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"picme-bot/internal/db"
	"picme-bot/internal/models"
)

// HandlePayment reconciles a payment notification with the user's catalog
// selection and kicks off tuning. Redelivered notifications stop at the
// payment marker.
func (d *Dispatcher) HandlePayment(ctx context.Context, payment models.PaymentNotification) {
	if err := d.store.InsertPaymentMarker(ctx, payment.PaymentID); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			d.logger.Info("Duplicate payment stopped", "payment_id", payment.PaymentID)
		} else {
			d.logger.Error("Failed to record payment marker", "payment_id", payment.PaymentID, "error", err)
		}
		return
	}

	user, err := d.store.GetUser(ctx, payment.Phone)
	if err != nil || user == nil {
		d.logger.Error("Failed to load paying user", "phone", payment.Phone, "error", err)
		return
	}
	msn := d.newNotifier(user.Phone, user.Language)
	msn.SendPaymentReceived(ctx, payment.FullName)

	s := &session{d: d, user: user, msn: msn}
	pack := d.resolvePaidPack(ctx, s, strings.ToLower(payment.Tier))
	if pack == nil {
		d.logger.Error("No catalog entry matches payment", "phone", payment.Phone, "tier", payment.Tier)
		msn.SendError(ctx)
		return
	}
	s.startTune(ctx, pack)
}

// resolvePaidPack returns the catalog entry the payment actually bought. The
// chosen entry wins when its slug carries the declared tier; otherwise the
// catalog is searched, preferring an entry of the same category.
func (d *Dispatcher) resolvePaidPack(ctx context.Context, s *session, tier string) *models.Pack {
	var chosen *models.Pack
	if s.user.ChosenPack != nil {
		chosen = d.gen.GetPack(ctx, *s.user.ChosenPack)
	}
	if chosen != nil && strings.Contains(strings.ToLower(chosen.Slug), tier) {
		return chosen
	}

	packs := d.gen.ListPacks(ctx)
	if packs == nil {
		return chosen
	}
	prefix := ""
	if chosen != nil {
		prefix = slugPrefix(chosen.Slug)
	}
	found := findSuitablePack(packs, tier, prefix, s.entityType())
	if found == nil {
		return chosen
	}
	id := strconv.Itoa(found.ID)
	if err := d.store.SetChosenPack(ctx, s.user.Phone, &id); err != nil {
		d.logger.Error("Failed to revise chosen pack", "phone", s.user.Phone, "error", err)
	}
	s.user.ChosenPack = &id
	return found
}

// findSuitablePack picks the entry whose slug contains the tier, preferring
// one sharing the chosen entry's category prefix. Entries without a cost for
// the user's category are skipped.
func findSuitablePack(packs []models.Pack, tier, prefix, entityType string) *models.Pack {
	var fallback *models.Pack
	for i := range packs {
		pack := &packs[i]
		if _, ok := pack.Costs[entityType]; !ok {
			continue
		}
		slug := strings.ToLower(pack.Slug)
		if !strings.Contains(slug, tier) {
			continue
		}
		if prefix != "" && slugPrefix(slug) == prefix {
			return pack
		}
		if fallback == nil {
			fallback = pack
		}
	}
	return fallback
}

// slugPrefix strips the trailing tier token from a slug and flattens the
// rest, so "business-portrait-lite" and "business-portrait-standard" share
// the prefix "businessportrait".
func slugPrefix(slug string) string {
	tokens := strings.Split(strings.ToLower(slug), "-")
	if len(tokens) > 1 {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, "")
}
