package metering

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/docuquery/llm-gateway/internal/config"
)

// UsageRecord is one metered call.
type UsageRecord struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	SessionID    string    `json:"session_id"`
	RequestID    string    `json:"request_id"`
	Endpoint     string    `json:"endpoint"`
	FileID       string    `json:"file_id"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Estimated    bool      `json:"estimated"`
	Cached       bool      `json:"cached"`
	CostUSD      float64   `json:"cost_usd"`
	CreatedAt    time.Time `json:"created_at"`
}

// BillingSink receives usage records downstream.
type BillingSink interface {
	ReportUsage(ctx context.Context, rec UsageRecord) error
}

// Cost prices a call in USD, rounded to 4 decimal places.
// Unknown models cost zero; the gap is logged so it shows up as a
// configuration problem instead of silent under-billing.
func Cost(model string, inputTokens, outputTokens int) float64 {
	p, ok := GetModelPricing(model)
	if !ok {
		if model != "" {
			log.Warn().Str("model", model).Msg("no price entry for model, costing call at zero")
		}
		return 0
	}
	cost := float64(inputTokens)/1e6*p.InputPerMTok + float64(outputTokens)/1e6*p.OutputPerMTok
	return math.Round(cost*10000) / 10000
}

// Meter writes the local usage ledger and forwards records to billing.
// The billing report is fire-and-forget: it never delays or fails a request.
type Meter struct {
	db      *sql.DB
	billing BillingSink
	timeout time.Duration
	now     func() time.Time
}

// NewMeter prepares the ledger table. billing may be nil.
func NewMeter(db *sql.DB, billing BillingSink) (*Meter, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS usage_ledger (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL,
			session_id    TEXT NOT NULL,
			request_id    TEXT NOT NULL,
			endpoint      TEXT NOT NULL DEFAULT '',
			file_id       TEXT NOT NULL DEFAULT '',
			provider      TEXT NOT NULL,
			model         TEXT NOT NULL,
			input_tokens  INTEGER NOT NULL,
			output_tokens INTEGER NOT NULL,
			estimated     INTEGER NOT NULL,
			cached        INTEGER NOT NULL,
			cost_usd      REAL NOT NULL,
			created_at    TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return nil, fmt.Errorf("creating usage ledger: %w", err)
	}
	return &Meter{
		db:      db,
		billing: billing,
		timeout: config.DefaultBillingTimeout,
		now:     time.Now,
	}, nil
}

// Record prices and persists one call, then reports it to billing in the
// background. The returned record carries the assigned ID and cost.
func (m *Meter) Record(ctx context.Context, rec UsageRecord) (UsageRecord, error) {
	rec.ID = uuid.NewString()
	rec.CostUSD = Cost(rec.Model, rec.InputTokens, rec.OutputTokens)
	rec.CreatedAt = m.now()

	_, err := m.db.ExecContext(ctx,
		`INSERT INTO usage_ledger
			(id, user_id, session_id, request_id, endpoint, file_id, provider, model,
			 input_tokens, output_tokens, estimated, cached, cost_usd, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.SessionID, rec.RequestID, rec.Endpoint, rec.FileID,
		rec.Provider, rec.Model, rec.InputTokens, rec.OutputTokens,
		rec.Estimated, rec.Cached, rec.CostUSD, rec.CreatedAt)
	if err != nil {
		return rec, fmt.Errorf("writing usage record: %w", err)
	}

	if m.billing != nil {
		go m.report(rec)
	}
	return rec, nil
}

func (m *Meter) report(rec UsageRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	if err := m.billing.ReportUsage(ctx, rec); err != nil {
		log.Warn().Err(err).Str("record_id", rec.ID).Msg("billing report failed")
	}
}

// UserSpend sums a user's ledger cost since a cutoff.
func (m *Meter) UserSpend(ctx context.Context, userID string, since time.Time) (float64, error) {
	var total sql.NullFloat64
	err := m.db.QueryRowContext(ctx,
		`SELECT SUM(cost_usd) FROM usage_ledger WHERE user_id = ? AND created_at >= ?`,
		userID, since).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("summing user spend: %w", err)
	}
	return total.Float64, nil
}

// HTTPBillingClient posts usage records to an external billing endpoint.
type HTTPBillingClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPBillingClient creates a client for the given endpoint.
func NewHTTPBillingClient(endpoint, apiKey string) *HTTPBillingClient {
	return &HTTPBillingClient{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: config.DefaultBillingTimeout},
	}
}

// ReportUsage implements BillingSink.
func (c *HTTPBillingClient) ReportUsage(ctx context.Context, rec UsageRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding usage record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building billing request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting usage record: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("billing endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
