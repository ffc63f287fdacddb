package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPLookup resolves division names against the external geographic
// reference service: GET {base}/divisions/{kind}/{id} returning
// {"id": "...", "name": "..."}.
type HTTPLookup struct {
	baseURL string
	client  *http.Client
}

// NewHTTPLookup creates a lookup against the given base URL.
func NewHTTPLookup(baseURL string) *HTTPLookup {
	return &HTTPLookup{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type divisionResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ResolveName returns the display name of a division. A 404 from the
// reference service maps to ErrNameNotFound; other failures are reported
// as-is so callers can distinguish a missing entry from a broken service.
func (l *HTTPLookup) ResolveName(ctx context.Context, kind DivisionKind, id string) (string, error) {
	endpoint := fmt.Sprintf("%s/divisions/%s/%s", l.baseURL, url.PathEscape(string(kind)), url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build lookup request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("division lookup: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrNameNotFound
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("division lookup: unexpected status %d", resp.StatusCode)
	}

	var body divisionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("division lookup: decode response: %w", err)
	}
	if body.Name == "" {
		return "", ErrNameNotFound
	}
	return body.Name, nil
}
