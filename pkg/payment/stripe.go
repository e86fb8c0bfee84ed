package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultStripeBaseURL = "https://api.stripe.com"

// signatureTolerance bounds how old a signed webhook timestamp may be.
// Deliveries outside the window fail verification so a captured request
// cannot be replayed later.
const signatureTolerance = 5 * time.Minute

// StripeGateway creates Stripe Checkout sessions over the REST API and
// verifies webhook deliveries against the Stripe-Signature scheme.
type StripeGateway struct {
	secretKey     string
	webhookSecret string
	baseURL       string
	http          *http.Client
}

// NewStripeGateway creates a gateway. webhookSecret may be empty, in which
// case signature verification is skipped; set it in production. baseURL
// overrides are for tests; pass "" for the live API.
func NewStripeGateway(secretKey, webhookSecret, baseURL string) *StripeGateway {
	if baseURL == "" {
		baseURL = defaultStripeBaseURL
	}
	return &StripeGateway{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		baseURL:       baseURL,
		http:          &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateCheckoutSession creates a one-time-payment Checkout session with the
// purchase intent embedded as session metadata.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, params SessionParams) (*Session, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("payment_method_types[0]", "card")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(params.Currency))
	form.Set("line_items[0][price_data][product_data][name]", params.ProductName)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(params.AmountCents, 10))
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	if params.CustomerEmail != "" {
		form.Set("customer_email", params.CustomerEmail)
	}
	for k, v := range params.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build checkout request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read checkout response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(body, &apiErr)
		return nil, fmt.Errorf("stripe: checkout session failed (HTTP %d): %s", resp.StatusCode, apiErr.Error.Message)
	}

	var session Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	return &session, nil
}

// VerifyWebhookSignature checks a Stripe-Signature header
// ("t=<unix>,v1=<hex>,...") against HMAC-SHA256 of "<t>.<payload>", and
// rejects timestamps outside the replay tolerance window. Returns true when
// no webhook secret is configured.
func (g *StripeGateway) VerifyWebhookSignature(payload []byte, sigHeader string) bool {
	if g.webhookSecret == "" {
		return true
	}

	var timestamp string
	var candidates []string
	for _, part := range strings.Split(sigHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			candidates = append(candidates, kv[1])
		}
	}
	if timestamp == "" || len(candidates) == 0 {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	age := time.Since(time.Unix(ts, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return false
	}

	mac := hmac.New(sha256.New, []byte(g.webhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range candidates {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return true
		}
	}
	return false
}

// Event is the webhook envelope delivered by the payment provider.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object CheckoutSessionObject `json:"object"`
	} `json:"data"`
}

// CheckoutSessionObject is the completed-session payload inside an event.
type CheckoutSessionObject struct {
	ID          string            `json:"id"`
	AmountTotal int64             `json:"amount_total"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata"`
}

// EventCheckoutCompleted is the event type that triggers fulfillment.
const EventCheckoutCompleted = "checkout.session.completed"
