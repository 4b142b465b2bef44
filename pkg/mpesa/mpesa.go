// Package mpesa is a client for the Safaricom Daraja API: OAuth token
// generation and Lipa na M-PESA Online (STK push) payment prompts, plus the
// types of the asynchronous result callback Daraja delivers afterwards.
package mpesa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"duka/pkg/cache"
)

// Sentinel errors for the two gateway failure classes.
var (
	// ErrAuth means the gateway did not hand out an access token.
	ErrAuth = errors.New("mpesa: failed to obtain access token")
	// ErrRequest means the STK push was rejected or not acknowledged with
	// response code 0. The wrapped message carries the gateway's own text.
	ErrRequest = errors.New("mpesa: stk push rejected")
)

const (
	tokenCacheKey = "mpesa:access_token"
	// Daraja tokens expire after 3599s; cache for less to never serve a
	// token that dies mid-request.
	tokenCacheTTL = 50 * time.Minute

	transactionType = "CustomerPayBillOnline"
)

// Config holds the Daraja application credentials and endpoints.
type Config struct {
	BaseURL        string
	ShortCode      string
	Passkey        string
	ConsumerKey    string
	ConsumerSecret string
	CallbackURL    string
	// Timeout bounds each outbound gateway call. Zero means 30s.
	Timeout time.Duration
}

// Client talks to the Daraja sandbox or production gateway.
type Client struct {
	cfg        Config
	httpClient *http.Client
	tokenCache cache.Cache // optional; nil disables token reuse
	now        func() time.Time
}

// NewClient creates a Daraja client. tokenCache may be nil, in which case a
// fresh access token is fetched for every push.
func NewClient(cfg Config, tokenCache cache.Cache) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		tokenCache: tokenCache,
		now:        time.Now,
	}
}

// STKPushRequest is one payment prompt to be dispatched to a customer phone.
type STKPushRequest struct {
	Amount           int64
	Phone            string
	AccountReference string
	Description      string
}

// STKPushResponse is the gateway's synchronous acknowledgment. ResponseCode
// "0" means the prompt reached the customer's device; the payment outcome
// arrives later on the callback URL.
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
	ErrorMessage        string `json:"errorMessage"`
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ErrorDescription string `json:"error_description"`
}

// AccessToken returns a bearer token for the configured app credentials,
// reusing a cached one when available. Cache failures degrade to a direct
// fetch; they are never fatal.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if c.tokenCache != nil {
		token, err := c.tokenCache.Get(ctx, tokenCacheKey)
		if err != nil {
			log.Printf("mpesa: token cache read failed, fetching directly: %v", err)
		} else if token != "" {
			return token, nil
		}
	}

	endpoint := c.cfg.BaseURL + "/oauth/v1/generate?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("mpesa: build token request: %w", err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.cfg.ConsumerKey + ":" + c.cfg.ConsumerSecret))
	req.Header.Set("Authorization", "Basic "+basic)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	defer resp.Body.Close()

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("%w: decoding token response: %v", ErrAuth, err)
	}
	if tr.AccessToken == "" {
		if tr.ErrorDescription != "" {
			return "", fmt.Errorf("%w: %s", ErrAuth, tr.ErrorDescription)
		}
		return "", ErrAuth
	}

	if c.tokenCache != nil {
		if err := c.tokenCache.Set(ctx, tokenCacheKey, tr.AccessToken, tokenCacheTTL); err != nil {
			log.Printf("mpesa: token cache write failed: %v", err)
		}
	}
	return tr.AccessToken, nil
}

// STKPush requests the gateway to prompt the customer's phone for payment.
// A nil error means the prompt was dispatched, not that it was paid.
func (c *Client) STKPush(ctx context.Context, push STKPushRequest) (*STKPushResponse, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	ts := c.timestamp()
	payload := map[string]interface{}{
		"BusinessShortCode": c.cfg.ShortCode,
		"Password":          c.password(ts),
		"Timestamp":         ts,
		"TransactionType":   transactionType,
		"Amount":            push.Amount,
		"PartyA":            push.Phone,
		"PartyB":            c.cfg.ShortCode,
		"PhoneNumber":       push.Phone,
		"CallBackURL":       c.cfg.CallbackURL,
		"AccountReference":  push.AccountReference,
		"TransactionDesc":   push.Description,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("mpesa: marshal stk payload: %w", err)
	}

	endpoint := c.cfg.BaseURL + "/mpesa/stkpush/v1/processrequest"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("mpesa: build stk request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if urlErr := new(url.Error); errors.As(err, &urlErr) && urlErr.Timeout() {
			return nil, fmt.Errorf("%w: gateway timed out", ErrRequest)
		}
		return nil, fmt.Errorf("%w: %v", ErrRequest, err)
	}
	defer resp.Body.Close()

	var sr STKPushResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("%w: decoding stk response: %v", ErrRequest, err)
	}
	if sr.ResponseCode != "0" {
		if sr.ErrorMessage != "" {
			return nil, fmt.Errorf("%w: %s", ErrRequest, sr.ErrorMessage)
		}
		if sr.ResponseDescription != "" {
			return nil, fmt.Errorf("%w: %s", ErrRequest, sr.ResponseDescription)
		}
		return nil, ErrRequest
	}
	return &sr, nil
}

// timestamp is the current time in the gateway's YYYYMMDDHHMMSS format.
func (c *Client) timestamp() string {
	return c.now().Format("20060102150405")
}

// password is the Lipa na M-PESA transaction password:
// base64(shortcode + passkey + timestamp).
func (c *Client) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.cfg.ShortCode + c.cfg.Passkey + timestamp))
}
