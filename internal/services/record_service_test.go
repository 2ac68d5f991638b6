package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

type scriptedHTTPClient struct {
	responses []*http.Response
	errs      []error
	requests  []*http.Request
}

func (c *scriptedHTTPClient) Do(req *http.Request) (*http.Response, error) {
	idx := len(c.requests)
	c.requests = append(c.requests, req)
	var resp *http.Response
	var err error
	if idx < len(c.responses) {
		resp = c.responses[idx]
	}
	if idx < len(c.errs) {
		err = c.errs[idx]
	}
	return resp, err
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewBufferString(body))}
}

func TestRecordCreateBuildsAirtableShape(t *testing.T) {
	client := &scriptedHTTPClient{responses: []*http.Response{jsonResponse(200, `{"records":[{"id":"rec1"}]}`)}}
	rc := NewRecordClient(client, "", "baseX", "keyY")

	err := rc.Create(context.Background(), "pre_survey", map[string]any{
		"participant_id":         "P1",
		"Task_type":              "GMO",
		"familiarity_responses":  map[string]any{"q1": 3},
		"self_efficacy_responses": map[string]any{"q2": 5},
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	req := client.requests[0]
	if req.Method != http.MethodPost {
		t.Fatalf("expected POST, got %s", req.Method)
	}
	if !strings.Contains(req.URL.String(), "/baseX/pre_survey") {
		t.Fatalf("unexpected URL: %s", req.URL)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer keyY" {
		t.Fatalf("missing auth header, got %q", got)
	}
	body, _ := io.ReadAll(req.Body)
	var payload struct {
		Records []struct {
			Fields map[string]any `json:"fields"`
		} `json:"records"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if len(payload.Records) != 1 {
		t.Fatalf("expected one record, got %d", len(payload.Records))
	}
	fields := payload.Records[0].Fields
	if fields["participant_id"] != "P1" {
		t.Fatalf("scalar field lost: %+v", fields)
	}
	// Nested maps are stringified for scalar-typed columns.
	if _, ok := fields["familiarity_responses"].(string); !ok {
		t.Fatalf("nested value not stringified: %T", fields["familiarity_responses"])
	}
}

func TestRecordCreateSingleAttemptOnFailure(t *testing.T) {
	client := &scriptedHTTPClient{responses: []*http.Response{jsonResponse(422, `{"error":{"message":"bad field"}}`)}}
	rc := NewRecordClient(client, "", "baseX", "keyY")
	err := rc.Create(context.Background(), "consent", map[string]any{"participant_id": "P1"})
	if err == nil {
		t.Fatalf("expected error for non-2xx response")
	}
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorBadGateway {
		t.Fatalf("expected bad_gateway error, got %v", err)
	}
	if !strings.Contains(se.Message, "422") || !strings.Contains(se.Message, "bad field") {
		t.Fatalf("error should carry status and body: %s", se.Message)
	}
	if len(client.requests) != 1 {
		t.Fatalf("no retry allowed, saw %d requests", len(client.requests))
	}
}

func TestRecordCreateNetworkFailure(t *testing.T) {
	client := &scriptedHTTPClient{errs: []error{errors.New("dial timeout")}}
	rc := NewRecordClient(client, "", "baseX", "keyY")
	err := rc.Create(context.Background(), "consent", nil)
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorBadGateway {
		t.Fatalf("expected bad_gateway for network failure, got %v", err)
	}
}

func TestRecordCreateUniqueShortCircuitsOnDuplicate(t *testing.T) {
	client := &scriptedHTTPClient{responses: []*http.Response{
		jsonResponse(200, `{"records":[{"id":"recExisting"}]}`),
	}}
	rc := NewRecordClient(client, "", "baseX", "keyY")
	err := rc.CreateUnique(context.Background(), "consent", "participant_id", "P1", map[string]any{"consent": "yes"})
	if !errors.Is(err, ErrDuplicateRecord) {
		t.Fatalf("expected ErrDuplicateRecord, got %v", err)
	}
	if len(client.requests) != 1 {
		t.Fatalf("duplicate must short-circuit before the insert, saw %d requests", len(client.requests))
	}
	lookup := client.requests[0]
	if lookup.Method != http.MethodGet {
		t.Fatalf("lookup must be a GET, got %s", lookup.Method)
	}
	if !strings.Contains(lookup.URL.RawQuery, "filterByFormula") {
		t.Fatalf("lookup must filter by formula: %s", lookup.URL.RawQuery)
	}
}

func TestRecordCreateUniqueInsertsWhenNoMatch(t *testing.T) {
	client := &scriptedHTTPClient{responses: []*http.Response{
		jsonResponse(200, `{"records":[]}`),
		jsonResponse(200, `{"records":[{"id":"recNew"}]}`),
	}}
	rc := NewRecordClient(client, "", "baseX", "keyY")
	err := rc.CreateUnique(context.Background(), "consent", "participant_id", "P1", map[string]any{"consent": "yes"})
	if err != nil {
		t.Fatalf("CreateUnique error: %v", err)
	}
	if len(client.requests) != 2 {
		t.Fatalf("expected lookup then insert, saw %d requests", len(client.requests))
	}
	if client.requests[1].Method != http.MethodPost {
		t.Fatalf("second request must be the insert")
	}
}

func TestRecordClientMisconfigured(t *testing.T) {
	rc := NewRecordClient(&scriptedHTTPClient{}, "", "", "")
	err := rc.Create(context.Background(), "consent", nil)
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorInvalid {
		t.Fatalf("expected invalid-config error before any request, got %v", err)
	}
}

func TestRecordLookupMalformedResponse(t *testing.T) {
	client := &scriptedHTTPClient{responses: []*http.Response{jsonResponse(200, `{"records":`)}}
	rc := NewRecordClient(client, "", "baseX", "keyY")
	err := rc.CreateUnique(context.Background(), "consent", "participant_id", "P1", nil)
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorBadGateway {
		t.Fatalf("expected bad_gateway for malformed response, got %v", err)
	}
}
