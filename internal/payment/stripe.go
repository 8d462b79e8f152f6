package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"
)

var log = logging.Logger("payment")

const defaultStripeURL = "https://api.stripe.com"

// Stripe creates payment intents through the Stripe REST API.
type Stripe struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewStripe returns a client for the given secret key. An empty baseURL
// selects the public API.
func NewStripe(secretKey, baseURL string, timeout time.Duration) *Stripe {
	if baseURL == "" {
		baseURL = defaultStripeURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Stripe{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type stripeIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

type stripeError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Stripe) CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountCents, 10))
	form.Set("currency", currency)
	for k, v := range metadata {
		form.Set("metadata["+k+"]", v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return Intent{}, xerrors.Errorf("building intent request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Intent{}, xerrors.Errorf("creating intent: %v: %w", err, ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var se stripeError
		msg := string(body)
		if json.Unmarshal(body, &se) == nil && se.Error.Message != "" {
			msg = fmt.Sprintf("%s: %s", se.Error.Type, se.Error.Message)
		}
		log.Warnw("stripe rejected intent", "status", resp.StatusCode, "error", msg)
		return Intent{}, xerrors.Errorf("stripe status %d: %s: %w", resp.StatusCode, msg, ErrUnavailable)
	}

	var pi stripeIntent
	if err := json.NewDecoder(resp.Body).Decode(&pi); err != nil {
		return Intent{}, xerrors.Errorf("decoding intent: %v: %w", err, ErrUnavailable)
	}
	if pi.ID == "" || pi.ClientSecret == "" {
		return Intent{}, xerrors.Errorf("stripe returned an incomplete intent: %w", ErrUnavailable)
	}
	return Intent{Ref: pi.ID, ClientSecret: pi.ClientSecret}, nil
}
