// Package generator provides a client for the external query generation and rewrite service.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/config"
	"github.com/ekaya-inc/ekaya-insights/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-insights/pkg/logging"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/retry"
)

// DefaultTimeout is the maximum time to wait for a generator response.
const DefaultTimeout = 45 * time.Second

// maxErrorBody bounds how much of a failed response body is kept in errors.
const maxErrorBody = 2048

const (
	serviceGenerate = "query generator"
	serviceRewrite  = "query rewriter"
)

// Service is the generation service as seen by the rest of the application.
type Service interface {
	// Generate asks for analytical queries over a schema.
	Generate(ctx context.Context, req *GenerateRequest) ([]models.QueryCandidate, error)

	// Translate converts one natural-language question into SQL.
	Translate(ctx context.Context, req *NLQueryRequest) ([]models.QueryCandidate, error)

	// RewriteTimeBased rebinds the date predicates of the given queries.
	RewriteTimeBased(ctx context.Context, req *RewriteRequest) ([]RewriteOutcome, error)
}

// GenerateRequest is the body of POST /generate.
type GenerateRequest struct {
	Domain   string                `json:"domain"`
	DBSchema *models.SchemaProfile `json:"db_schema"`
	DBType   string                `json:"db_type"`
	MinDate  *time.Time            `json:"min_date"`
	MaxDate  *time.Time            `json:"max_date"`
}

// NLQueryRequest is the body of POST /nl-query.
type NLQueryRequest struct {
	NLQuery  string                `json:"nl_query"`
	DBSchema *models.SchemaProfile `json:"db_schema"`
	DBType   string                `json:"db_type"`
}

// QueryWithID identifies one query submitted for rewriting.
type QueryWithID struct {
	QueryID string `json:"query_id"`
	Query   string `json:"query"`
}

// RewriteRequest is the body of POST /update-time-based.
type RewriteRequest struct {
	Queries []QueryWithID `json:"queries"`
	MinDate time.Time     `json:"min_date"`
	MaxDate time.Time     `json:"max_date"`
	DBType  string        `json:"db_type"`
}

// RewriteOutcome is the rewriter's verdict on one submitted query.
type RewriteOutcome struct {
	QueryID       string
	OriginalQuery string
	UpdatedQuery  string
	Success       bool
	Error         string
}

type wireCandidate struct {
	Query       jsonutil.FlexibleString `json:"query"`
	Explanation jsonutil.FlexibleString `json:"explanation"`
	Relevance   jsonutil.FlexibleFloat  `json:"relevance"`
	IsTimeBased jsonutil.FlexibleBool   `json:"is_time_based"`
	ChartType   jsonutil.FlexibleString `json:"chart_type"`
}

type wireRewrite struct {
	QueryID       jsonutil.FlexibleString `json:"query_id"`
	OriginalQuery jsonutil.FlexibleString `json:"original_query"`
	UpdatedQuery  jsonutil.FlexibleString `json:"updated_query"`
	Success       jsonutil.FlexibleBool   `json:"success"`
	Error         jsonutil.FlexibleString `json:"error"`
}

// Client talks to the generation service over HTTP JSON.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	maxAttempts int
	logger      *zap.Logger
}

var _ Service = (*Client)(nil)

// NewClient creates a generator client from configuration.
func NewClient(cfg *config.GeneratorConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		maxAttempts: cfg.MaxAttempts,
		logger:      logger.Named("generator"),
	}
}

// Generate asks the service for analytical queries over a schema.
func (c *Client) Generate(ctx context.Context, req *GenerateRequest) ([]models.QueryCandidate, error) {
	var resp struct {
		Queries []wireCandidate `json:"queries"`
	}
	if err := c.post(ctx, serviceGenerate, "generate", req, &resp); err != nil {
		return nil, err
	}
	c.logger.Info("Received generated queries",
		zap.String("db_type", req.DBType),
		zap.Int("count", len(resp.Queries)))
	return toCandidates(resp.Queries), nil
}

// Translate turns a natural-language question into SQL candidates.
func (c *Client) Translate(ctx context.Context, req *NLQueryRequest) ([]models.QueryCandidate, error) {
	var resp struct {
		Queries []wireCandidate `json:"queries"`
	}
	if err := c.post(ctx, serviceGenerate, "nl-query", req, &resp); err != nil {
		return nil, err
	}
	return toCandidates(resp.Queries), nil
}

// RewriteTimeBased asks the service to rebind time-based queries to a new window.
func (c *Client) RewriteTimeBased(ctx context.Context, req *RewriteRequest) ([]RewriteOutcome, error) {
	var resp struct {
		UpdatedQueries []wireRewrite `json:"updated_queries"`
	}
	if err := c.post(ctx, serviceRewrite, "update-time-based", req, &resp); err != nil {
		return nil, err
	}

	out := make([]RewriteOutcome, len(resp.UpdatedQueries))
	for i, w := range resp.UpdatedQueries {
		out[i] = RewriteOutcome{
			QueryID:       string(w.QueryID),
			OriginalQuery: string(w.OriginalQuery),
			UpdatedQuery:  string(w.UpdatedQuery),
			Success:       bool(w.Success),
			Error:         string(w.Error),
		}
	}
	return out, nil
}

// post sends body to endpoint and decodes a 2xx response into out.
// Connection-level failures are retried up to maxAttempts; any HTTP status is final.
func (c *Client) post(ctx context.Context, service, endpoint string, body, out any) error {
	target, err := buildURL(c.baseURL, endpoint)
	if err != nil {
		return fmt.Errorf("failed to build URL: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	respBody, err := retry.DoIfRetryable(ctx, retry.WithAttempts(c.maxAttempts), func() ([]byte, error) {
		return c.do(ctx, service, target, payload)
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		c.logger.Error("Failed to decode generator response",
			zap.String("url", target),
			zap.String("body", logging.TruncateString(string(respBody), 200)),
			zap.Error(err))
		return &apperrors.UpstreamError{Service: service, StatusCode: http.StatusOK, Body: "malformed response", Err: err}
	}
	return nil
}

func (c *Client) do(ctx context.Context, service, target string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug("Calling generator", zap.String("url", target))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Generator unreachable",
			zap.String("url", target),
			zap.String("error", logging.SanitizeError(err)))
		return nil, &apperrors.UpstreamError{Service: service, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperrors.UpstreamError{Service: service, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("Generator returned error",
			zap.String("url", target),
			zap.Int("status", resp.StatusCode),
			zap.String("body", logging.TruncateString(string(body), 200)))
		return nil, &apperrors.UpstreamError{
			Service:    service,
			StatusCode: resp.StatusCode,
			Body:       logging.TruncateString(string(body), maxErrorBody),
		}
	}
	return body, nil
}

// toCandidates keeps every candidate. Relevance is clamped to [0,1].
func toCandidates(in []wireCandidate) []models.QueryCandidate {
	out := make([]models.QueryCandidate, len(in))
	for i, w := range in {
		out[i] = models.QueryCandidate{
			Query:       string(w.Query),
			Explanation: string(w.Explanation),
			Relevance:   min(max(float64(w.Relevance), 0), 1),
			IsTimeBased: bool(w.IsTimeBased),
			ChartType:   string(w.ChartType),
		}
	}
	return out
}

// buildURL constructs a URL by parsing the base and joining path segments.
func buildURL(baseURL string, pathSegments ...string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid base URL %q", baseURL)
	}

	segments := append([]string{u.Path}, pathSegments...)
	u.Path = path.Join(segments...)

	return u.String(), nil
}
