package psp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultStripeBaseURL = "https://api.stripe.com/v1"
	defaultStripeTimeout = 15 * time.Second

	// signatureTolerance bounds how old a signed webhook timestamp may be
	// before it is rejected as a possible replay.
	signatureTolerance = 5 * time.Minute
)

// StripeConfig holds the adapter's connection settings.
type StripeConfig struct {
	APIKey        string
	WebhookSecret string
	BaseURL       string
	Timeout       time.Duration
}

// StripeGateway talks to a Stripe-compatible HTTP API. Holds are payment
// intents created with manual capture; payouts are transfers to connected
// accounts.
type StripeGateway struct {
	apiKey        string
	webhookSecret string
	baseURL       string
	client        *http.Client
	logger        *slog.Logger
	now           func() time.Time
}

// NewStripeGateway builds a gateway against the configured endpoint.
func NewStripeGateway(cfg *StripeConfig, logger *slog.Logger) *StripeGateway {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultStripeBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultStripeTimeout
	}
	return &StripeGateway{
		apiKey:        cfg.APIKey,
		webhookSecret: cfg.WebhookSecret,
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		client:        &http.Client{Timeout: timeout},
		logger:        logger,
		now:           time.Now,
	}
}

// apiError is the provider's error envelope.
type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (g *StripeGateway) CreateHold(ctx context.Context, amount int64, currency string, metadata map[string]string) (HoldResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("currency", strings.ToLower(currency))
	form.Set("capture_method", "manual")
	for k, v := range metadata {
		form.Set("metadata["+k+"]", v)
	}

	var resp struct {
		ID           string `json:"id"`
		ClientSecret string `json:"client_secret"`
		Status       string `json:"status"`
	}
	if err := g.post(ctx, "/payment_intents", form, &resp); err != nil {
		return HoldResult{}, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return HoldResult{
		IntentID:     resp.ID,
		ClientSecret: resp.ClientSecret,
		Status:       resp.Status,
	}, nil
}

func (g *StripeGateway) Capture(ctx context.Context, intentID string, amount int64) (CaptureResult, error) {
	form := url.Values{}
	if amount > 0 {
		form.Set("amount_to_capture", strconv.FormatInt(amount, 10))
	}

	var resp struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		LatestCharge string `json:"latest_charge"`
	}
	if err := g.post(ctx, "/payment_intents/"+intentID+"/capture", form, &resp); err != nil {
		var provErr *providerError
		if errors.As(err, &provErr) {
			return CaptureResult{Success: false, ErrorMessage: provErr.message}, nil
		}
		return CaptureResult{}, fmt.Errorf("failed to capture payment intent %s: %w", intentID, err)
	}

	return CaptureResult{
		Success:  resp.Status == "succeeded",
		ChargeID: resp.LatestCharge,
		Status:   resp.Status,
	}, nil
}

func (g *StripeGateway) Refund(ctx context.Context, intentID, reason string) (RefundResult, error) {
	form := url.Values{}
	form.Set("payment_intent", intentID)
	if reason != "" {
		form.Set("metadata[reason]", reason)
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := g.post(ctx, "/refunds", form, &resp); err != nil {
		var provErr *providerError
		if errors.As(err, &provErr) {
			return RefundResult{Success: false, ErrorMessage: provErr.message}, nil
		}
		return RefundResult{}, fmt.Errorf("failed to refund payment intent %s: %w", intentID, err)
	}

	return RefundResult{
		Success:  resp.Status == "succeeded" || resp.Status == "pending",
		RefundID: resp.ID,
	}, nil
}

func (g *StripeGateway) Transfer(ctx context.Context, amount int64, destination string, metadata map[string]string) (TransferResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("destination", destination)
	for k, v := range metadata {
		form.Set("metadata["+k+"]", v)
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := g.post(ctx, "/transfers", form, &resp); err != nil {
		var provErr *providerError
		if errors.As(err, &provErr) {
			return TransferResult{Success: false, ErrorMessage: provErr.message}, nil
		}
		return TransferResult{}, fmt.Errorf("failed to create transfer: %w", err)
	}

	return TransferResult{
		Success:    true,
		TransferID: resp.ID,
		Status:     "pending",
	}, nil
}

// VerifyWebhook authenticates a signed webhook. The signature header has
// the form "t=<unix>,v1=<hex>", where v1 is HMAC-SHA256 over
// "<t>.<payload>" keyed by the endpoint secret. Timestamps outside the
// tolerance window are rejected.
func (g *StripeGateway) VerifyWebhook(payload []byte, signature string) (Event, error) {
	var timestamp string
	var candidates []string
	for _, part := range strings.Split(signature, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			candidates = append(candidates, value)
		}
	}
	if timestamp == "" || len(candidates) == 0 {
		return Event{}, ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return Event{}, ErrInvalidSignature
	}
	age := g.now().Sub(time.Unix(ts, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return Event{}, ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(g.webhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, candidate := range candidates {
		if hmac.Equal([]byte(expected), []byte(candidate)) {
			return parseEvent(payload)
		}
	}
	return Event{}, ErrInvalidSignature
}

// providerError marks a declined request, as opposed to a transport
// failure. Callers translate it into a non-success result.
type providerError struct {
	code    string
	message string
}

func (e *providerError) Error() string {
	return fmt.Sprintf("provider declined request: %s (%s)", e.message, e.code)
}

func (g *StripeGateway) post(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", path, err)
	}

	g.logger.Debug("psp request completed",
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode >= 400 {
		var envelope apiError
		if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
			if resp.StatusCode < 500 {
				return &providerError{code: envelope.Error.Code, message: envelope.Error.Message}
			}
			return fmt.Errorf("provider error on %s: %s", path, envelope.Error.Message)
		}
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}
