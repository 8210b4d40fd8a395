package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/config"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/model"
)

// apiVersion is sent with every request; the platform routes some accounts
// by this header.
const apiVersion = "2021-07-28"

// Client executes single page requests against the CRM platform. Pacing
// between pages is enforced here with a token bucket so that sequential
// pagination stays under the platform's rate limit even without 429s.
type Client struct {
	baseURL    string
	httpClient *http.Client
	pace       *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a CRM client from configuration.
func NewClient(cfg config.CRMConfig, logger *zap.Logger) *Client {
	pages := cfg.PagesPerSecond
	if pages <= 0 {
		pages = 1
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		pace:       rate.NewLimiter(rate.Limit(pages), 1),
		logger:     logger,
	}
}

// AttemptPage executes one page request for one variant. Failures are
// returned as classified RemoteErrors; retries are the fetcher's concern.
func (c *Client) AttemptPage(ctx context.Context, t model.Tenant, v *Variant, q SearchQuery, pr PageRequest, limit int) (*PageResult, error) {
	if err := c.pace.Wait(ctx); err != nil {
		return nil, err
	}

	query, bodyFields := v.Build(t, q, pr, limit)

	var bodyReader io.Reader
	if bodyFields != nil {
		encoded, err := json.Marshal(bodyFields)
		if err != nil {
			return nil, fmt.Errorf("crm: encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	reqURL := c.baseURL + v.Path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, v.Method, reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("crm: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.APIToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Version", apiVersion)
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, TransientError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, TransientError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		remoteErr := ClassifyStatus(resp.StatusCode, resp.Header, string(body))
		c.logger.Debug("CRM page request failed",
			zap.String("tenant_id", t.ID),
			zap.String("variant", v.Name),
			zap.Int("status", resp.StatusCode),
			zap.String("kind", string(remoteErr.Kind)))
		return nil, remoteErr
	}

	return v.Parse(t, body)
}
