// Package source retrieves the published replacement page.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/user/replacementbot/pkg/logger"
)

// Document is the raw markup of the replacement container.
type Document struct {
	HTML      string
	Strategy  string
	FetchedAt time.Time
}

// Strategy is one way of acquiring the document.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context) (*Document, error)
}

// FetchError reports that every strategy failed.
type FetchError struct {
	Attempts []error
}

func (e *FetchError) Error() string {
	if len(e.Attempts) == 0 {
		return "fetch failed: no strategies configured"
	}
	parts := make([]string, len(e.Attempts))
	for i, err := range e.Attempts {
		parts[i] = err.Error()
	}
	return "fetch failed: " + strings.Join(parts, "; ")
}

func (e *FetchError) Unwrap() []error {
	return e.Attempts
}

// Fetcher tries its strategies in order; the first success wins.
type Fetcher struct {
	strategies []Strategy
}

// NewFetcher creates a fetcher over the given strategies.
func NewFetcher(strategies ...Strategy) *Fetcher {
	return &Fetcher{strategies: strategies}
}

// Fetch returns the first document any strategy produces.
func (f *Fetcher) Fetch(ctx context.Context) (*Document, error) {
	var attempts []error
	for _, s := range f.strategies {
		if err := ctx.Err(); err != nil {
			attempts = append(attempts, err)
			break
		}

		start := time.Now()
		doc, err := s.Fetch(ctx)
		if err != nil {
			logger.Warn().
				Err(err).
				Str("strategy", s.Name()).
				Dur("took", time.Since(start)).
				Msg("Fetch strategy failed")
			attempts = append(attempts, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}

		if doc.Strategy == "" {
			doc.Strategy = s.Name()
		}
		if doc.FetchedAt.IsZero() {
			doc.FetchedAt = time.Now()
		}
		logger.Debug().
			Str("strategy", s.Name()).
			Int("bytes", len(doc.HTML)).
			Dur("took", time.Since(start)).
			Msg("Fetched replacement page")
		return doc, nil
	}
	return nil, &FetchError{Attempts: attempts}
}

// ErrInvalidBody is returned when a response does not look like the replacement table.
var ErrInvalidBody = errors.New("response is not a replacement table")

// Validate checks that a body is non-empty, does not report an error itself and
// carries at least one table marker.
func Validate(body string) error {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return fmt.Errorf("%w: empty body", ErrInvalidBody)
	}
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "error") {
		return fmt.Errorf("%w: %s", ErrInvalidBody, firstLine(trimmed))
	}
	if !strings.Contains(lower, "<table") && !strings.Contains(lower, "</table>") {
		return fmt.Errorf("%w: no table markup", ErrInvalidBody)
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}
