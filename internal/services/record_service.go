package services

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
)

// HTTPClient is the outbound HTTP port, injectable for tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ErrDuplicateRecord signals that a duplicate-guarded insert found an
// existing record and performed no write.
var ErrDuplicateRecord = errors.New("duplicate record")

// RecordWriter is what the flow controller needs from the record store.
type RecordWriter interface {
	Create(ctx context.Context, table string, fields map[string]any) error
	CreateUnique(ctx context.Context, table, keyField, keyValue string, fields map[string]any) error
}

// RecordClient writes page responses to an Airtable-style record store:
// POST {records:[{fields:{...}}]} per table, with an optional
// filterByFormula lookup for duplicate-guarded inserts. One attempt per
// write, no retry.
type RecordClient struct {
	client  HTTPClient
	baseURL string
	baseID  string
	apiKey  string
}

func NewRecordClient(client HTTPClient, baseURL, baseID, apiKey string) *RecordClient {
	if client == nil {
		client = http.DefaultClient
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://api.airtable.com/v0"
	}
	return &RecordClient{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		baseID:  baseID,
		apiKey:  apiKey,
	}
}

func (c *RecordClient) configured() error {
	if strings.TrimSpace(c.apiKey) == "" || strings.TrimSpace(c.baseID) == "" {
		return NewInvalidError("record store not configured: missing API key or base ID")
	}
	return nil
}

func (c *RecordClient) tableURL(table string) string {
	return c.baseURL + "/" + url.PathEscape(c.baseID) + "/" + url.PathEscape(table)
}

// ScalarizeFields JSON-stringifies nested values so every field fits a
// scalar-typed record-store column.
func ScalarizeFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch v.(type) {
		case nil:
			out[k] = ""
		case string, bool, int, int64, float32, float64, json.Number:
			out[k] = v
		default:
			b, err := json.Marshal(v)
			if err != nil {
				out[k] = fmt.Sprintf("%v", v)
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}

// Create issues a single record-creation write.
func (c *RecordClient) Create(ctx context.Context, table string, fields map[string]any) error {
	if err := c.configured(); err != nil {
		return err
	}
	if strings.TrimSpace(table) == "" {
		return NewInvalidError("table required")
	}
	payload := map[string]any{
		"records": []map[string]any{{"fields": ScalarizeFields(fields)}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return NewInvalidError(err.Error())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tableURL(table), bytes.NewReader(body))
	if err != nil {
		return NewInvalidError(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return NewBadGatewayError("record store unreachable: " + err.Error())
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return NewBadGatewayError(fmt.Sprintf("record store status %d: %s", resp.StatusCode, strings.TrimSpace(string(b))))
	}
	return nil
}

// CreateUnique performs a duplicate-guarded insert: a filtered lookup on
// keyField first, then Create only when no match exists. A match returns
// ErrDuplicateRecord without inserting.
func (c *RecordClient) CreateUnique(ctx context.Context, table, keyField, keyValue string, fields map[string]any) error {
	if err := c.configured(); err != nil {
		return err
	}
	if strings.TrimSpace(keyField) == "" || strings.TrimSpace(keyValue) == "" {
		return NewInvalidError("key field and value required for duplicate-guarded insert")
	}
	exists, err := c.lookup(ctx, table, keyField, keyValue)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicateRecord
	}
	return c.Create(ctx, table, fields)
}

func (c *RecordClient) lookup(ctx context.Context, table, keyField, keyValue string) (bool, error) {
	formula := fmt.Sprintf("{%s}=%q", keyField, keyValue)
	q := url.Values{}
	q.Set("filterByFormula", formula)
	q.Set("maxRecords", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.tableURL(table)+"?"+q.Encode(), nil)
	if err != nil {
		return false, NewInvalidError(err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return false, NewBadGatewayError("record store unreachable: " + err.Error())
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return false, NewBadGatewayError(fmt.Sprintf("record store lookup status %d: %s", resp.StatusCode, strings.TrimSpace(string(b))))
	}
	var out struct {
		Records []struct {
			ID string `json:"id"`
		} `json:"records"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, NewBadGatewayError("malformed record store response: " + err.Error())
	}
	return len(out.Records) > 0, nil
}

var _ RecordWriter = (*RecordClient)(nil)
