package srsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// srClient pulls historical sales from the SR cloud API. SR enforces strict
// request quotas, so every call waits on the shared ticker.
type srClient struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
	limiter   <-chan time.Time
}

func newSRClient(apiKey string) (*srClient, error) {
	baseURL := strings.TrimSpace(os.Getenv("SR_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.softrestaurant.com"
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("SR_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("sr api key is empty")
	}
	rateLimitPerMin := int64(10)
	if v := strings.TrimSpace(os.Getenv("SR_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &srClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiKeyHdr: apiKeyHeader,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   time.Tick(interval),
	}, nil
}

type srListResponse struct {
	Data       []json.RawMessage `json:"data"`
	Items      []json.RawMessage `json:"items"`
	NextCursor string            `json:"next_cursor"`
	HasMore    *bool             `json:"has_more"`
}

func (r srListResponse) records() []json.RawMessage {
	if len(r.Data) > 0 {
		return r.Data
	}
	return r.Items
}

func (c *srClient) getList(ctx context.Context, path string, params url.Values) (srListResponse, error) {
	<-c.limiter
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return srListResponse{}, err
	}
	req.Header.Set(c.apiKeyHdr, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return srListResponse{}, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return srListResponse{}, fmt.Errorf("sr api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed srListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return srListResponse{}, err
	}
	return parsed, nil
}

// listSales fetches one page of finalized sales for the company.
func (c *srClient) listSales(ctx context.Context, companyId string, updatedSince string, cursor string, pageSize int) (srListResponse, error) {
	params := url.Values{}
	params.Set("company", companyId)
	params.Set("limit", strconv.Itoa(pageSize))
	if updatedSince != "" {
		params.Set("updated_since", updatedSince)
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	return c.getList(ctx, "/v1/sales", params)
}
