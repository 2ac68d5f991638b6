package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const searchPageSize = 5

// CSEClient queries the Google Custom Search JSON API. Five results per
// page, safe search on, paginated with the 1-based start index.
type CSEClient struct {
	client  HTTPClient
	baseURL string
	apiKey  string
	cx      string
}

func NewCSEClient(client HTTPClient, baseURL, apiKey, cx string) *CSEClient {
	if client == nil {
		client = http.DefaultClient
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://www.googleapis.com/customsearch/v1"
	}
	return &CSEClient{client: client, baseURL: baseURL, apiKey: apiKey, cx: cx}
}

func (c *CSEClient) Search(ctx context.Context, query string, start int) ([]SearchResult, string, error) {
	if strings.TrimSpace(c.apiKey) == "" || strings.TrimSpace(c.cx) == "" {
		return nil, "", NewInvalidError("search not configured: missing API key or engine ID")
	}
	if start < 1 {
		start = 1
	}
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("cx", c.cx)
	q.Set("q", query)
	q.Set("start", strconv.Itoa(start))
	q.Set("num", strconv.Itoa(searchPageSize))
	q.Set("safe", "active")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, "", NewInvalidError(err.Error())
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", NewBadGatewayError("search unreachable: " + err.Error())
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, "", NewBadGatewayError(fmt.Sprintf("search status %d: %s", resp.StatusCode, strings.TrimSpace(string(b))))
	}

	var out struct {
		Items []struct {
			Title       string `json:"title"`
			Link        string `json:"link"`
			Snippet     string `json:"snippet"`
			DisplayLink string `json:"displayLink"`
		} `json:"items"`
		SearchInformation struct {
			TotalResults string `json:"totalResults"`
		} `json:"searchInformation"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, "", NewBadGatewayError("malformed search response: " + err.Error())
	}

	results := make([]SearchResult, 0, len(out.Items))
	for _, it := range out.Items {
		results = append(results, SearchResult{
			Title:       it.Title,
			Snippet:     it.Snippet,
			Link:        it.Link,
			DisplayLink: it.DisplayLink,
		})
	}
	return results, out.SearchInformation.TotalResults, nil
}

var _ SearchClient = (*CSEClient)(nil)
