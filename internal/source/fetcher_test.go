package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type stubStrategy struct {
	name  string
	doc   *Document
	err   error
	calls int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Fetch(context.Context) (*Document, error) {
	s.calls++
	return s.doc, s.err
}

func TestFetcherFallsBack(t *testing.T) {
	t.Parallel()
	fast := &stubStrategy{name: "fast", err: errors.New("timeout")}
	slow := &stubStrategy{name: "slow", doc: &Document{HTML: "<table></table>"}}

	doc, err := NewFetcher(fast, slow).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if doc.Strategy != "slow" || doc.FetchedAt.IsZero() {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if fast.calls != 1 || slow.calls != 1 {
		t.Fatalf("calls = %d/%d, want 1/1", fast.calls, slow.calls)
	}
}

func TestFetcherStopsAtFirstSuccess(t *testing.T) {
	t.Parallel()
	fast := &stubStrategy{name: "fast", doc: &Document{HTML: "<table></table>"}}
	slow := &stubStrategy{name: "slow", doc: &Document{HTML: "<table></table>"}}

	if _, err := NewFetcher(fast, slow).Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if slow.calls != 0 {
		t.Fatal("fallback ran after a successful fast path")
	}
}

func TestFetcherExhausted(t *testing.T) {
	t.Parallel()
	cause := errors.New("browser crashed")
	_, err := NewFetcher(
		&stubStrategy{name: "fast", err: ErrInvalidBody},
		&stubStrategy{name: "slow", err: cause},
	).Fetch(context.Background())

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error %T is not a FetchError", err)
	}
	if len(fe.Attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(fe.Attempts))
	}
	if !errors.Is(err, cause) || !errors.Is(err, ErrInvalidBody) {
		t.Fatalf("causes not reachable through %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		body string
		ok   bool
	}{
		{body: "", ok: false},
		{body: "   \n ", ok: false},
		{body: "error: 500 - backend down <table>", ok: false},
		{body: "<div>Замены на 14.03.24</div>", ok: false},
		{body: "<div>Замены</div><TABLE><tr><td>1</td></tr></TABLE>", ok: true},
		{body: "<tr><td>1</td></tr></table>", ok: true},
	}
	for _, tt := range tests {
		err := Validate(tt.body)
		if (err == nil) != tt.ok {
			t.Fatalf("Validate(%q) = %v, want ok=%v", tt.body, err, tt.ok)
		}
	}
}

func TestHTTPStrategy(t *testing.T) {
	t.Parallel()
	var gotTS string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTS = r.URL.Query().Get("ts")
		// Declared charset is wrong on purpose; the body is UTF-8.
		w.Header().Set("Content-Type", "text/html; charset=windows-1251")
		_, _ = w.Write([]byte("<div>Замены на 14.03.24</div><table><tr><td>101</td></tr></table>"))
	}))
	defer srv.Close()

	s := NewHTTPStrategy(srv.URL+"/replacements/api/fetch-rep", time.Second)
	s.now = func() time.Time { return time.UnixMilli(1710400000000) }

	doc, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if gotTS != "1710400000000" {
		t.Fatalf("ts = %q", gotTS)
	}
	if !strings.Contains(doc.HTML, "Замены") || doc.Strategy != "http" {
		t.Fatalf("unexpected document: %+v", doc)
	}
}

func TestHTTPStrategyRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "<table></table>"},
		{name: "body error", status: http.StatusOK, body: "error: 0 - connection failed"},
		{name: "no table", status: http.StatusOK, body: "<p>maintenance</p>"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			if _, err := NewHTTPStrategy(srv.URL, time.Second).Fetch(context.Background()); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestHTTPStrategyTimeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	if _, err := NewHTTPStrategy(srv.URL, 50*time.Millisecond).Fetch(context.Background()); err == nil {
		t.Fatal("expected a timeout error")
	}
}

func TestBrowserStrategyDefaults(t *testing.T) {
	t.Parallel()
	s := NewBrowserStrategy(BrowserOptions{PageURL: "http://example.invalid/view.html"})
	if s.opts.Container != "#content" || s.opts.WaitTimeout != 20*time.Second {
		t.Fatalf("unexpected defaults: %+v", s.opts)
	}
	if !strings.Contains(s.nonEmptyExpr(), `"#content"`) {
		t.Fatalf("poll expression does not target the container: %s", s.nonEmptyExpr())
	}
	withPath := NewBrowserStrategy(BrowserOptions{ExecPath: "/usr/bin/chromium"})
	if len(withPath.allocatorOptions()) != len(s.allocatorOptions())+1 {
		t.Fatal("exec path option not applied")
	}
}
