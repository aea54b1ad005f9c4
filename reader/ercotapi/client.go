package ercotapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	appconfig "gridflow/config"
	"gridflow/logger"
	"gridflow/models"
)

// The public report API uses a fixed B2C application for the
// resource-owner-password token flow.
const (
	oauthClientID = "fec253ea-0d06-4272-a5e6-b478baeecd70"
	oauthScope    = "openid " + oauthClientID + " offline_access"
)

// Client queries the grid operator's paginated public report API. One page
// request is in flight at a time, paced by a shared limiter. Real-time
// price data is best-effort: a client without credentials answers every
// query with an empty table instead of failing the pipeline.
type Client struct {
	config  *appconfig.Config
	client  *http.Client
	limiter *rate.Limiter
	log     *logger.Log

	mu    sync.Mutex
	token string
}

func NewClient(cfg *appconfig.Config) *Client {
	return &Client{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.API.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.API.RequestsPerSecond), cfg.API.BurstSize),
		log:     logger.GetLogger(),
	}
}

// HasCredentials reports whether the full credential tuple was configured.
func (c *Client) HasCredentials() bool {
	return c.config.API.HasCredentials()
}

// Authenticate exchanges the credential tuple for a bearer token through
// the resource-owner-password flow.
func (c *Client) Authenticate(ctx context.Context) error {
	log := c.log.WithComponent("api_client")

	form := url.Values{}
	form.Set("username", c.config.API.Username)
	form.Set("password", c.config.API.Password)
	form.Set("grant_type", "password")
	form.Set("scope", oauthScope)
	form.Set("client_id", oauthClientID)
	form.Set("response_type", "id_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.API.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("token request: %v: %w", err, models.ErrTransfer)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token request: status %d: %w", resp.StatusCode, models.ErrAuthenticationFailed)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode token response: %v: %w", err, models.ErrAuthenticationFailed)
	}
	token, _ := payload["id_token"].(string)
	if token == "" {
		return fmt.Errorf("token response missing id_token: %w", models.ErrAuthenticationFailed)
	}

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()

	log.Info("api authentication succeeded")
	return nil
}

func (c *Client) bearer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// pageResponse is the report API page envelope. Fields carries the declared
// schema; data rows are either positional arrays matching that schema or
// plain objects.
type pageResponse struct {
	Fields []struct {
		Name string `json:"name"`
	} `json:"fields"`
	Data []json.RawMessage `json:"data"`
}

// QueryAllPages pulls every page of the endpoint and concatenates the rows
// in server order. Paging stops when a page returns fewer rows than
// pageSize. Without credentials no request is issued and an empty table
// comes back.
func (c *Client) QueryAllPages(ctx context.Context, endpoint string, filters url.Values, pageSize int) (*models.Table, error) {
	log := c.log.WithComponent("api_client").WithFields(logger.Fields{"endpoint": endpoint})

	if !c.HasCredentials() {
		if appconfig.IsProductionLike(appconfig.AppEnvironment()) {
			log.Error("api credentials missing, skipping query")
		} else {
			log.Info("api credentials missing, skipping query")
		}
		return models.NewTable(), nil
	}

	if c.bearer() == "" {
		if err := c.Authenticate(ctx); err != nil {
			return nil, err
		}
	}

	tbl := models.NewTable()
	var cols []string

	for page := 1; ; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		start := time.Now()
		resp, err := c.fetchPage(ctx, endpoint, filters, page, pageSize)
		if err != nil {
			return nil, err
		}
		logger.LogPerformanceEntry(log, "api_client", "fetch_page", time.Since(start), logger.Fields{
			"page": strconv.Itoa(page),
			"rows": strconv.Itoa(len(resp.Data)),
		})

		// Column names come from the first page's declared schema and
		// fix the table's column order before any row lands.
		if cols == nil && len(resp.Fields) > 0 {
			cols = make([]string, 0, len(resp.Fields))
			for _, f := range resp.Fields {
				cols = append(cols, f.Name)
				tbl.AddCol(f.Name)
			}
		}

		for _, raw := range resp.Data {
			row, err := decodeRow(raw, cols)
			if err != nil {
				return nil, err
			}
			tbl.Append(row)
		}

		if len(resp.Data) < pageSize {
			break
		}
	}

	logger.LogDataFlowEntry(log, endpoint, "pipeline", tbl.Len(), "api_rows")
	return tbl, nil
}

func (c *Client) fetchPage(ctx context.Context, endpoint string, filters url.Values, page, pageSize int) (*pageResponse, error) {
	u, err := url.Parse(strings.TrimSuffix(c.config.API.BaseURL, "/") + endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint %s: %w", endpoint, err)
	}
	q := u.Query()
	for k, vs := range filters {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(pageSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build page request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearer())
	req.Header.Set("Ocp-Apim-Subscription-Key", c.config.API.SubscriptionKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get page %d of %s: %v: %w", page, endpoint, err, models.ErrTransfer)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get page %d of %s: status %d: %w", page, endpoint, resp.StatusCode, models.ErrTransfer)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var pr pageResponse
	if err := dec.Decode(&pr); err != nil {
		return nil, fmt.Errorf("decode page %d of %s: %v: %w", page, endpoint, err, models.ErrMalformedResponse)
	}
	return &pr, nil
}

// decodeRow turns one data entry into a Row. Positional rows need the
// declared schema; object rows carry their own keys.
func decodeRow(raw json.RawMessage, cols []string) (models.Row, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var vals []any
		if err := unmarshalNumbers(raw, &vals); err != nil {
			return nil, fmt.Errorf("decode array row: %v: %w", err, models.ErrMalformedResponse)
		}
		if len(cols) == 0 {
			return nil, fmt.Errorf("positional row without declared schema: %w", models.ErrMalformedResponse)
		}
		if len(vals) != len(cols) {
			return nil, fmt.Errorf("row has %d values for %d declared fields: %w", len(vals), len(cols), models.ErrMalformedResponse)
		}
		row := make(models.Row, len(cols))
		for i, col := range cols {
			row[col] = vals[i]
		}
		return row, nil
	}

	var obj map[string]any
	if err := unmarshalNumbers(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode object row: %v: %w", err, models.ErrMalformedResponse)
	}
	return models.Row(obj), nil
}

func unmarshalNumbers(raw json.RawMessage, dst any) error {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	return dec.Decode(dst)
}
