package stripeish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type ClientConfig struct {
	BaseURL   string `json:"baseUrl" mapstructure:"base_url"`
	AccountID string `json:"accountId" mapstructure:"account_id"`
	ClientID  string `json:"clientId" mapstructure:"client_id"`
	ClientKey string `json:"clientKey" mapstructure:"client_key"`
	HMACKey   string `json:"hmacKey" mapstructure:"hmac_key"`
}

type Client struct {
	// baseURL is the base url of the processor backend.
	baseURL string

	// accountID is the merchant account id at the processor.
	accountID string

	// clientID is the api client id.
	clientID string

	// clientKey is the api client key.
	clientKey string

	// hmacKey signs request bodies.
	hmacKey string

	// accessToken is used to authenticate with the processor backend.
	accessToken string

	// mu is used to lock access token.
	mu sync.Mutex

	// toggleTokenRefresher is used to notify token refresher to refresh token.
	toggleTokenRefresher chan struct{}

	// hc is the http client.
	hc *http.Client
}

// newClient creates a new instance of the processor api client.
func newClient(_ context.Context, c *ClientConfig) *Client {
	return &Client{
		baseURL:   c.BaseURL,
		accountID: c.AccountID,
		clientID:  c.ClientID,
		clientKey: c.ClientKey,
		hmacKey:   c.HMACKey,

		// make a buffered channel to avoid blocking.
		toggleTokenRefresher: make(chan struct{}, 1),

		// set http client with timeout.
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// notifyAccessTokenExpired does an infinite loop with a period of time
// to perform auto renew of the token from the processor backend with an
// exponential backOff strategy.
func (c *Client) notifyAccessTokenExpired(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	for {
		select {
		case <-ctx.Done():
			ticker.Stop()
			return

		case <-ticker.C:

		case <-c.toggleTokenRefresher:
			log.Println("notifyAccessTokenExpired: toggleTokenRefresher => token refreshed")
		}

		// reconnect with exponential backOff strategy
		backOff := time.Second

	Retry:
		for {
			token, err := c.connect(ctx)
			switch err {
			case nil:
				c.setAccessToken(token)

				break Retry

			default:
				log.Printf("notifyAccessTokenExpired: %v", err)
				select {
				case <-ctx.Done():
					return

				case <-time.After(backOff):
					backOff *= 2
				}
			}
		}
	}
}

// setAccessToken sets the access token on the client.
func (c *Client) setAccessToken(accessToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = accessToken
}

// getAccessToken gets the access token from the client.
func (c *Client) getAccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// connect makes an http call to perform authentication with the processor
// backend.
func (c *Client) connect(ctx context.Context) (string, error) {
	number, err := randomNumber()
	if err != nil {
		return "", fmt.Errorf("connect: randomNumber: %v", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"accountId":%q,"clientId":%q,"clientSecret":%q}`, number, c.accountID, c.clientID, c.clientKey)
	bodyReader := bytes.NewReader([]byte(body))

	_baseURL, _ := url.Parse(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", _baseURL.String(), "/v1/auth/token"), bodyReader)
	if err != nil {
		return "", fmt.Errorf("connect: http.NewReq: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("SignedHash", Hmac256([]byte(body), []byte(c.hmacKey)))

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("connect: http.Do: %v", err)
	}
	defer resp.Body.Close()

	// toggle token refresher if unauthorized
	if resp.StatusCode == http.StatusUnauthorized {
		c.toggleTokenRefresher <- struct{}{}
		return "", errors.New("connect: resp.StatusCode: 401 => Unauthorized")
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("connect: http.StatusCode: %d", resp.StatusCode)
	}

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AccessToken string `json:"accessToken"`
			TokenType   string `json:"tokenType"`
		} `json:"data"`
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return "", fmt.Errorf("connect: json.Decode: %v", err)
	}
	if reply.Status != "OK" {
		return "", fmt.Errorf("connect: reply.Status: %v, reply.Message: %v", reply.Status, reply.Message)
	}

	accessToken := fmt.Sprintf("%s %s", reply.Data.TokenType, reply.Data.AccessToken)
	return accessToken, nil
}

// createIntent opens a pending charge at the processor.
func (c *Client) createIntent(ctx context.Context, amount decimal.Decimal, currency, description string) (*Intent, error) {
	number, err := randomNumber()
	if err != nil {
		return nil, fmt.Errorf("createIntent: randomNumber: %v", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"accountId":%q,"amount":%s,"currency":%q,"description":%q}`,
		number, c.accountID, amount, currency, description)

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    Intent `json:"data"`
	}
	if err := c.post(ctx, "/v1/payment_intents", body, &reply); err != nil {
		return nil, fmt.Errorf("createIntent: %w", err)
	}
	if reply.Status != "OK" {
		return nil, fmt.Errorf("createIntent: reply.Status: %v, reply.Message: %v", reply.Status, reply.Message)
	}

	return &reply.Data, nil
}

// capture submits card details against a client secret. The reply carries
// the post-capture intent id; the client secret is not echoed back.
func (c *Client) capture(ctx context.Context, clientSecret string, card *Card) (*Intent, error) {
	number, err := randomNumber()
	if err != nil {
		return nil, fmt.Errorf("capture: randomNumber: %v", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"clientSecret":%q,"card":{"name":%q,"number":%q,"expMonth":%q,"expYear":%q,"cvc":%q}}`,
		number, clientSecret, card.Name, card.Number, card.ExpMonth, card.ExpYear, card.CVC)

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    Intent `json:"data"`
	}
	if err := c.post(ctx, "/v1/payment_intents/capture", body, &reply); err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	if reply.Status != "OK" {
		if reply.Status == "DECLINED" {
			return nil, errors.New("payment declined")
		}
		return nil, fmt.Errorf("capture: reply.Status: %v, reply.Message: %v", reply.Status, reply.Message)
	}

	return &reply.Data, nil
}

// retrieveIntent reads the authoritative status of a charge.
func (c *Client) retrieveIntent(ctx context.Context, intentID string) (*Intent, error) {
	number, err := randomNumber()
	if err != nil {
		return nil, fmt.Errorf("retrieveIntent: randomNumber: %v", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"intentId":%q}`, number, intentID)

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    Intent `json:"data"`
	}
	if err := c.post(ctx, "/v1/payment_intents/retrieve", body, &reply); err != nil {
		return nil, fmt.Errorf("retrieveIntent: %w", err)
	}
	if reply.Status != "OK" {
		if reply.Status == "NOT_FOUND" {
			return nil, errors.New("payment intent not found")
		}
		return nil, fmt.Errorf("retrieveIntent: reply.Status: %v, reply.Message: %v", reply.Status, reply.Message)
	}

	return &reply.Data, nil
}

// refund returns funds for a captured charge.
func (c *Client) refund(ctx context.Context, intentID string, amount decimal.Decimal) error {
	number, err := randomNumber()
	if err != nil {
		return fmt.Errorf("refund: randomNumber: %v", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"intentId":%q,"amount":%s}`, number, intentID, amount)

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := c.post(ctx, "/v1/refunds", body, &reply); err != nil {
		return fmt.Errorf("refund: %w", err)
	}
	if reply.Status != "OK" {
		return fmt.Errorf("refund: reply.Status: %v, reply.Message: %v", reply.Status, reply.Message)
	}

	return nil
}

// post sends a signed, authenticated JSON body and decodes the reply
// envelope into out.
func (c *Client) post(ctx context.Context, path, body string, out any) error {
	bodyReader := bytes.NewReader([]byte(body))

	_baseURL, _ := url.Parse(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", _baseURL.String(), path), bodyReader)
	if err != nil {
		return fmt.Errorf("http.NewReq: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("SignedHash", Hmac256([]byte(body), []byte(c.hmacKey)))
	req.Header.Set("Authorization", c.getAccessToken())

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("http.Do: %w", err)
	}
	defer resp.Body.Close()

	// toggle token refresher if unauthorized
	if resp.StatusCode == http.StatusUnauthorized {
		c.toggleTokenRefresher <- struct{}{}
		return errors.New("resp.StatusCode: 401 => Unauthorized")
	}

	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("json.Decode: %v", err)
	}

	return nil
}
