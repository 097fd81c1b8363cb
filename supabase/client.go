package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxBodySize caps response bodies at 10 MiB. Emergency reports can carry
// base64-embedded images that are far larger than typical API payloads.
const maxBodySize = 10 * 1024 * 1024

// ErrNotFound is returned when a filtered write matches zero rows: either the
// id is wrong or row-level security blocked the write.
var ErrNotFound = errors.New("not found or access denied")

// Row is a single record as returned by PostgREST. Records stay open
// string-keyed objects so columns unknown to this service pass through
// unharmed.
type Row map[string]any

// Int64 reads a numeric column as int64. JSON numbers decode as float64.
func (r Row) Int64(key string) int64 {
	switch v := r[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

// String reads a text column, returning "" for null or missing values.
func (r Row) String(key string) string {
	if s, ok := r[key].(string); ok {
		return s
	}
	return ""
}

// Client talks to a Supabase project's PostgREST endpoint. One long-lived
// instance is shared across all requests.
type Client struct {
	restURL        string
	anonKey        string
	serviceRoleKey string
	http           *http.Client
}

// New creates a Supabase client for the given project URL and keys. The
// service-role key, when set, is used as the bearer so that row-level
// security does not block server-side writes; otherwise the anon key is used.
func New(baseURL, anonKey, serviceRoleKey string, timeout time.Duration) *Client {
	return &Client{
		restURL:        strings.TrimRight(baseURL, "/") + "/rest/v1",
		anonKey:        anonKey,
		serviceRoleKey: serviceRoleKey,
		http:           &http.Client{Timeout: timeout},
	}
}

func (c *Client) bearer() string {
	if c.serviceRoleKey != "" {
		return c.serviceRoleKey
	}
	return c.anonKey
}

// do issues one PostgREST request and decodes the JSON-array response.
// prefer, when non-empty, is sent as the Prefer header.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, prefer string) ([]Row, error) {
	endpoint := c.restURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+c.bearer())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("supabase request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("supabase error (%d): %s", resp.StatusCode, string(data))
	}

	if len(data) == 0 || resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse supabase response: %w", err)
	}
	return rows, nil
}

// one runs a write that must return exactly one representation row.
func (c *Client) one(ctx context.Context, method, path string, query url.Values, body any) (Row, error) {
	rows, err := c.do(ctx, method, path, query, body, "return=representation")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		if method == http.MethodPatch {
			return nil, fmt.Errorf("supabase updated 0 rows: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("supabase %s %s returned 0 rows", method, path)
	}
	return rows[0], nil
}

// ---------- Complaints ----------

func (c *Client) GetComplaints(ctx context.Context) ([]Row, error) {
	q := url.Values{"select": {"*"}}
	return c.do(ctx, http.MethodGet, "/complaints", q, nil, "")
}

// GetComplaintsSummary excludes image_url to keep the payload small.
func (c *Client) GetComplaintsSummary(ctx context.Context) ([]Row, error) {
	q := url.Values{"select": {"id,status,priority,category,description,thana,route,latitude,longitude,created_at,bus_name,bus_number,reporter_type,accuracy"}}
	return c.do(ctx, http.MethodGet, "/complaints", q, nil, "")
}

// OpenComplaintsByBus returns complaints for the given vehicle that are still
// open (new or working). Resolved and fake rows are never candidates for
// duplicate clustering.
func (c *Client) OpenComplaintsByBus(ctx context.Context, busName, busNumber string) ([]Row, error) {
	q := url.Values{
		"bus_name":   {"eq." + busName},
		"bus_number": {"eq." + busNumber},
		"status":     {"in.(new,working)"},
		"select":     {"*"},
	}
	return c.do(ctx, http.MethodGet, "/complaints", q, nil, "")
}

func (c *Client) HistoryByBus(ctx context.Context, busNumber string) ([]Row, error) {
	q := url.Values{
		"bus_number": {"eq." + busNumber},
		"select":     {"*"},
	}
	return c.do(ctx, http.MethodGet, "/complaints", q, nil, "")
}

func (c *Client) CreateComplaint(ctx context.Context, payload map[string]any) (Row, error) {
	return c.one(ctx, http.MethodPost, "/complaints", nil, payload)
}

func (c *Client) UpdateComplaint(ctx context.Context, id int64, payload map[string]any) (Row, error) {
	q := url.Values{"id": {fmt.Sprintf("eq.%d", id)}}
	return c.one(ctx, http.MethodPatch, "/complaints", q, payload)
}

func (c *Client) DeleteComplaint(ctx context.Context, id int64) error {
	q := url.Values{"id": {fmt.Sprintf("eq.%d", id)}}
	_, err := c.do(ctx, http.MethodDelete, "/complaints", q, nil, "")
	return err
}

// ---------- Emergency reports ----------

func (c *Client) GetEmergencies(ctx context.Context) ([]Row, error) {
	q := url.Values{"select": {"*"}}
	return c.do(ctx, http.MethodGet, "/emergency_reports", q, nil, "")
}

// GetEmergenciesSummary excludes the audio payload to keep the response
// small.
func (c *Client) GetEmergenciesSummary(ctx context.Context) ([]Row, error) {
	q := url.Values{"select": {"id,latitude,longitude,created_at,user_id,accuracy,image_url,description"}}
	return c.do(ctx, http.MethodGet, "/emergency_reports", q, nil, "")
}

func (c *Client) CreateEmergency(ctx context.Context, payload map[string]any) (Row, error) {
	return c.one(ctx, http.MethodPost, "/emergency_reports", nil, payload)
}
