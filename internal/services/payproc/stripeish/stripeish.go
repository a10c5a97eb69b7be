package stripeish

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	pubnub "github.com/pubnub/go/v7"
	"github.com/shopspring/decimal"
)

type (
	Config struct {
		BaseURL   string `json:"baseUrl" mapstructure:"base_url"`
		AccountID string `json:"accountId" mapstructure:"account_id"`
		ClientID  string `json:"clientId" mapstructure:"client_id"`
		ClientKey string `json:"clientKey" mapstructure:"client_key"`
		HMACKey   string `json:"hmacKey" mapstructure:"hmac_key"`
		Currency  string `json:"currency" mapstructure:"currency"`

		PNSubKey  string `json:"pn_subkey" mapstructure:"pn_subkey"`
		PNUUID    string `json:"pn_uuid" mapstructure:"pn_uuid"`
		PNChannel string `json:"pn_channel" mapstructure:"pn_channel"`
	}

	// Gateway is a client for the Stripeish card processing API. It holds
	// a refreshing access token and an optional PubNub subscription for
	// asynchronous capture results.
	Gateway struct {
		AccountID string
		Currency  string

		pnSubKey   string
		pnUUID     string
		pnChannels []string

		sub *subscribe

		client *Client
	}

	// Intent mirrors the processor's payment intent resource.
	Intent struct {
		ID           string          `json:"id"`
		ClientSecret string          `json:"clientSecret,omitempty"`
		Status       string          `json:"status"`
		Amount       decimal.Decimal `json:"amount"`
		Currency     string          `json:"currency"`
		Description  string          `json:"description,omitempty"`
	}

	Card struct {
		Name     string
		Number   string
		ExpMonth string
		ExpYear  string
		CVC      string
	}

	// Notification is an async capture result pushed by the processor.
	Notification struct {
		IntentID string          `json:"intentId"`
		Status   string          `json:"status"`
		Amount   decimal.Decimal `json:"amount"`
	}
)

// New returns a connected Gateway instance.
func New(ctx context.Context, cfg *Config) (*Gateway, error) {
	client := newClient(ctx, &ClientConfig{
		BaseURL:   cfg.BaseURL,
		AccountID: cfg.AccountID,
		ClientID:  cfg.ClientID,
		ClientKey: cfg.ClientKey,
		HMACKey:   cfg.HMACKey,
	})

	// Authenticate against the processor backend. Get access token.
	token, err := client.connect(ctx)
	if err != nil {
		return nil, err
	}
	client.setAccessToken(token)

	// Notify access token expired.
	go client.notifyAccessTokenExpired(ctx)

	g := &Gateway{
		AccountID: cfg.AccountID,
		Currency:  cfg.Currency,

		pnSubKey:   cfg.PNSubKey,
		pnUUID:     cfg.PNUUID,
		pnChannels: []string{cfg.PNChannel},

		client: client,
	}

	// The PubNub subscription is optional; without it, capture results
	// are only observable through RetrieveIntent polling.
	if cfg.PNSubKey != "" {
		pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(g.pnUUID))
		pnCfg.SubscribeKey = g.pnSubKey

		sub, err := g.newSubscription(ctx, pnCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to subscribe to processor notification channel: %v", err)
		}
		sub.pn.AddListener(sub.lis)
		sub.pn.Subscribe().Channels(g.pnChannels).Execute()
		g.sub = sub
	}

	return g, nil
}

type subscribe struct {
	pn   *pubnub.PubNub
	lis  *pubnub.Listener
	ch   chan *Notification
	done chan struct{}
}

func (g *Gateway) newSubscription(ctx context.Context, pnCfg *pubnub.Config) (*subscribe, error) {
	sub := &subscribe{
		pn:   pubnub.NewPubNub(pnCfg),
		lis:  pubnub.NewListener(),
		done: make(chan struct{}),
	}

	go sub.processSubscription(ctx)

	return sub, nil
}

func (s *subscribe) processSubscription(ctx context.Context) error {
	listener := s.lis
	for {
		select {
		case status := <-listener.Status:
			switch status.Category {
			case pubnub.PNConnectedCategory:
				log.Println("connected to processor notifications")

			case pubnub.PNReconnectedCategory:
				log.Println("reconnected to processor notifications")

			case pubnub.PNDisconnectedCategory:
				log.Println("disconnected from processor notifications")

			case pubnub.PNTimeoutCategory:
				log.Println("timeout on processor notification channel")

			default:
				log.Printf("processor notification status: %v", status.Category)
			}

		case message := <-listener.Message:
			raw, ok := message.Message.(string)
			if !ok {
				continue
			}

			var n Notification
			dec := json.NewDecoder(strings.NewReader(raw))
			if err := dec.Decode(&n); err != nil {
				log.Println(err)
				continue
			}

			if s.ch != nil {
				select {
				case s.ch <- &n:
				case <-s.done:
					return nil
				}
			}

		case <-s.done:
			return nil

		case <-ctx.Done():
			log.Println("close processor subscription")
			return nil
		}
	}
}

// SetNotificationChannel routes async capture results to ch.
func (g *Gateway) SetNotificationChannel(ch chan *Notification) {
	if g.sub != nil {
		g.sub.ch = ch
	}
}

// CreateIntent opens a pending charge. The returned intent carries the
// client secret used to capture it; the caller stores that secret, not the
// intent id.
func (g *Gateway) CreateIntent(ctx context.Context, amount decimal.Decimal, currency, description string) (*Intent, error) {
	if currency == "" {
		currency = g.Currency
	}
	return g.client.createIntent(ctx, amount, currency, description)
}

// Capture submits card details against a client secret.
func (g *Gateway) Capture(ctx context.Context, clientSecret string, card *Card) (*Intent, error) {
	return g.client.capture(ctx, clientSecret, card)
}

// RetrieveIntent reads a captured charge by its post-capture identifier.
func (g *Gateway) RetrieveIntent(ctx context.Context, intentID string) (*Intent, error) {
	return g.client.retrieveIntent(ctx, intentID)
}

// Refund returns funds for a captured charge.
func (g *Gateway) Refund(ctx context.Context, intentID string, amount decimal.Decimal) error {
	return g.client.refund(ctx, intentID, amount)
}

// Close unsubscribes and stops the subscription loop. After it returns
// no further notifications are delivered.
func (g *Gateway) Close(ctx context.Context) error {
	if g.sub != nil {
		g.sub.pn.Unsubscribe().Channels(g.pnChannels).Execute()
		close(g.sub.done)
	}
	return nil
}
