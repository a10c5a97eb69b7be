package payproc

import (
	"context"

	"github.com/shopspring/decimal"

	"ticket-market/internal/services/payproc/stripeish"
)

// StripeishAdapter adapts the stripeish Gateway to the Processor interface.
type StripeishAdapter struct {
	gw *stripeish.Gateway

	// bridge forwards gateway notifications to the consumer channel.
	bridge chan *stripeish.Notification
}

func NewStripeishAdapter(ctx context.Context, cfg *stripeish.Config) (*StripeishAdapter, error) {
	gw, err := stripeish.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &StripeishAdapter{gw: gw}, nil
}

func (a *StripeishAdapter) GetProvider() Provider {
	return ProviderStripeish
}

func (a *StripeishAdapter) CreateIntent(ctx context.Context, amount decimal.Decimal, currency, description string) (*Intent, error) {
	in, err := a.gw.CreateIntent(ctx, amount, currency, description)
	if err != nil {
		return nil, err
	}
	return fromStripeish(in), nil
}

func (a *StripeishAdapter) Capture(ctx context.Context, clientSecret string, card *CardDetails) (*Intent, error) {
	in, err := a.gw.Capture(ctx, clientSecret, &stripeish.Card{
		Name:     card.Name,
		Number:   card.Number,
		ExpMonth: card.ExpMonth,
		ExpYear:  card.ExpYear,
		CVC:      card.CVC,
	})
	if err != nil {
		return nil, err
	}
	return fromStripeish(in), nil
}

func (a *StripeishAdapter) RetrieveIntent(ctx context.Context, intentID string) (*Intent, error) {
	in, err := a.gw.RetrieveIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	return fromStripeish(in), nil
}

func (a *StripeishAdapter) Refund(ctx context.Context, intentID string, amount decimal.Decimal) error {
	return a.gw.Refund(ctx, intentID, amount)
}

func (a *StripeishAdapter) SetNotificationChannel(ch chan *Notification) {
	if a.bridge == nil {
		a.bridge = make(chan *stripeish.Notification, 1)
		a.gw.SetNotificationChannel(a.bridge)
	}

	go func() {
		for n := range a.bridge {
			ch <- &Notification{
				IntentID: n.IntentID,
				Status:   n.Status,
				Amount:   n.Amount,
			}
		}
	}()
}

func (a *StripeishAdapter) Close(ctx context.Context) error {
	// Unsubscribe and detach the gateway's channel before closing the
	// bridge, so the subscription loop cannot send on a closed channel.
	err := a.gw.Close(ctx)
	if a.bridge != nil {
		a.gw.SetNotificationChannel(nil)
		close(a.bridge)
		a.bridge = nil
	}
	return err
}

func fromStripeish(in *stripeish.Intent) *Intent {
	return &Intent{
		ID:           in.ID,
		ClientSecret: in.ClientSecret,
		Status:       in.Status,
		Amount:       in.Amount,
		Currency:     in.Currency,
		Description:  in.Description,
	}
}
