// internal/payment/stripe.go
package payment

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/checkout/session"

	"picme-bot/config"
)

// LinkProvider resolves the checkout link for a price tier. With Stripe
// configured it creates a Checkout Session per request; otherwise it falls
// back to the static per-tier links from the configuration.
type LinkProvider struct {
	secretKey  string
	successURL string
	cancelURL  string
	priceIDs   map[string]string
	links      map[string]string
}

func NewLinkProvider(cfg *config.Config) *LinkProvider {
	if cfg.Stripe.SecretKey != "" {
		stripe.Key = cfg.Stripe.SecretKey
	}
	return &LinkProvider{
		secretKey:  cfg.Stripe.SecretKey,
		successURL: cfg.Stripe.SuccessURL,
		cancelURL:  cfg.Stripe.CancelURL,
		priceIDs: map[string]string{
			"lite":     cfg.Stripe.LitePriceID,
			"standard": cfg.Stripe.StandardPriceID,
			"premium":  cfg.Stripe.PremiumPriceID,
		},
		links: map[string]string{
			"lite":     cfg.Tiers.LiteLink,
			"standard": cfg.Tiers.StandardLink,
			"premium":  cfg.Tiers.PremiumLink,
		},
	}
}

// LinkFor returns a payment link for the given tier, tagged with the buyer's
// phone so the payment webhook can be reconciled back to the conversation.
func (p *LinkProvider) LinkFor(ctx context.Context, phone, tier string) (string, error) {
	if p.secretKey != "" && p.priceIDs[tier] != "" {
		return p.checkoutSession(phone, p.priceIDs[tier])
	}
	link, ok := p.links[tier]
	if !ok || link == "" {
		return "", fmt.Errorf("no payment link configured for tier %q", tier)
	}
	return link + "?phone=" + phone, nil
}

func (p *LinkProvider) checkoutSession(phone, priceID string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(p.successURL),
		CancelURL:         stripe.String(p.cancelURL),
		ClientReferenceID: stripe.String(phone),
	}

	sess, err := session.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %v", err)
	}
	return sess.URL, nil
}
