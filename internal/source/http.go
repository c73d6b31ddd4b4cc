package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxBodyBytes = 4 << 20

// HTTPStrategy requests the fragment endpoint the page itself loads into its
// content container.
type HTTPStrategy struct {
	endpoint string
	client   *http.Client
	now      func() time.Time
}

// NewHTTPStrategy creates the lightweight strategy. timeout bounds the whole
// request including reading the body.
func NewHTTPStrategy(endpoint string, timeout time.Duration) *HTTPStrategy {
	return &HTTPStrategy{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		now:      time.Now,
	}
}

// Name implements Strategy.
func (s *HTTPStrategy) Name() string { return "http" }

// Fetch implements Strategy.
func (s *HTTPStrategy) Fetch(ctx context.Context) (*Document, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	// Cache-busting timestamp, as the page does.
	q := u.Query()
	q.Set("ts", strconv.FormatInt(s.now().UnixMilli(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	// The source mislabels its charset; the body is always UTF-8.
	text := strings.ToValidUTF8(string(body), "�")
	if err := Validate(text); err != nil {
		return nil, err
	}

	return &Document{HTML: text, Strategy: s.Name(), FetchedAt: s.now()}, nil
}
