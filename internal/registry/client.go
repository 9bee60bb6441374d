// Package registry is a warehouse driver backed by the public CMS NPI Registry
// API. Answers are reshaped into the same JSON-wrapped columns the warehouse
// table uses, so the normalization pipeline treats both sources alike.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"npisearch/internal"
	"npisearch/internal/config"
	"npisearch/internal/util"
)

const (
	driverName  = "registry"
	maxAttempts = 5

	ColumnLastUpdated = "LAST_UPDATED"
)

var tracer = otel.Tracer("npisearch/registry")

type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *RateLimiter
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.RegistryTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.RegistryRateLimitRPS),
	}
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Execute looks up one NPI and returns a row per taxonomy, primary first.
func (c *Client) Execute(ctx context.Context, npi string) (internal.RawTable, error) {
	ctx, span := tracer.Start(ctx, "registry.execute")
	defer span.End()
	span.SetAttributes(attribute.String("npi", npi))

	table, err := c.execute(ctx, npi)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return internal.RawTable{}, &internal.QueryError{Driver: driverName, NPI: npi, Err: err}
	}
	span.SetAttributes(attribute.Int("registry.rows", len(table.Rows)))
	return table, nil
}

func (c *Client) execute(ctx context.Context, npi string) (internal.RawTable, error) {
	body, err := c.fetchJSON(ctx, map[string]string{"version": "2.1", "number": npi})
	if err != nil {
		return internal.RawTable{}, err
	}

	if apiErr := gjson.GetBytes(body, "Errors.0.description"); apiErr.Exists() {
		return internal.RawTable{}, fmt.Errorf("registry api error: %s", apiErr.String())
	}

	results := gjson.GetBytes(body, "results").Array()
	if len(results) == 0 {
		return internal.RawTable{}, internal.ErrNoResults
	}

	table := internal.RawTable{Columns: []internal.Column{
		{Name: internal.ColumnNPI, DatabaseType: "VARIANT"},
		{Name: internal.ColumnFirstName, DatabaseType: "VARIANT"},
		{Name: internal.ColumnLastName, DatabaseType: "VARIANT"},
		{Name: internal.ColumnSpecialties, DatabaseType: "VARIANT"},
		{Name: ColumnLastUpdated, DatabaseType: "DATE"},
	}}
	for _, result := range results {
		table.Rows = append(table.Rows, toRows(result)...)
	}
	return table, nil
}

func toRows(result gjson.Result) [][]any {
	basic := result.Get("basic")
	npi := wrapValue(result.Get("number").String())
	first := wrapValue(basic.Get("first_name").String())
	last := wrapValue(util.FirstNonEmpty(basic.Get("last_name").String(), basic.Get("organization_name").String()))

	var updated any
	if ts, err := time.Parse("2006-01-02", basic.Get("last_updated").String()); err == nil {
		updated = ts
	}

	taxonomies := result.Get("taxonomies").Array()
	sort.SliceStable(taxonomies, func(i, j int) bool {
		return taxonomies[i].Get("primary").Bool() && !taxonomies[j].Get("primary").Bool()
	})

	if len(taxonomies) == 0 {
		return [][]any{{npi, first, last, nil, updated}}
	}

	rows := make([][]any, 0, len(taxonomies))
	for _, tax := range taxonomies {
		rows = append(rows, []any{npi, first, last, wrapSpecialty(tax), updated})
	}
	return rows
}

// wrapValue encodes s the way the warehouse stores scalar columns. Blank
// values become a JSON null member.
func wrapValue(s string) string {
	var value any
	if strings.TrimSpace(s) != "" {
		value = strings.TrimSpace(s)
	}
	blob, _ := json.Marshal(map[string]any{"value": value})
	return string(blob)
}

func wrapSpecialty(tax gjson.Result) any {
	code := strings.TrimSpace(tax.Get("code").String())
	if code == "" {
		return nil
	}
	blob, _ := json.Marshal([]map[string]any{{
		"value":   code,
		"desc":    tax.Get("desc").String(),
		"primary": tax.Get("primary").Bool(),
	}})
	return string(blob)
}

func (c *Client) fetchJSON(ctx context.Context, params map[string]string) ([]byte, error) {
	baseURL := strings.TrimRight(c.cfg.RegistryBaseURL, "/") + "/"
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	for k, v := range params {
		if strings.TrimSpace(v) != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < maxAttempts {
				backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				if err := sleepContext(ctx, backoff); err != nil {
					return nil, err
				}
				lastErr = fmt.Errorf("registry status %d", resp.StatusCode)
				continue
			}
			return nil, fmt.Errorf("registry api error: status=%d body=%s", resp.StatusCode, string(body))
		}

		if !gjson.ValidBytes(body) {
			return nil, errors.New("registry api returned invalid json")
		}
		return body, nil
	}

	if lastErr == nil {
		lastErr = errors.New("registry request failed")
	}
	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
