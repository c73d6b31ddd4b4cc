// Package extract turns the replacement page markup into a schedule snapshot.
package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/user/replacementbot/internal/schedule"
	"github.com/user/replacementbot/internal/source"
	"github.com/user/replacementbot/pkg/logger"
)

var (
	// ErrNoTables is returned when the document carries no table at all.
	ErrNoTables = errors.New("document has no replacement tables")
	// ErrMalformed is returned when the markup cannot be parsed.
	ErrMalformed = errors.New("malformed document")
)

// Options tunes what the extractor treats as structure and as noise.
type Options struct {
	Container    string   // CSS selector of the content container
	HeaderLabel  string   // first-cell text of the column header row
	AdminMarkers []string // first-cell substrings of signature rows
	NoiseMarkers []string // substrings that disqualify a row or a field
	DateKeywords []string // tokens identifying the date header line
	DateLines    int      // how many leading text lines may hold the date
}

// DefaultOptions returns the markers used by the published page.
func DefaultOptions() Options {
	return Options{
		Container:    "#content",
		HeaderLabel:  "№ пары",
		AdminMarkers: []string{"директор"},
		NoiseMarkers: []string{"венедиктова"},
		DateKeywords: []string{"замены", "понедельник", "вторник", "среда", "четверг", "пятница", "суббота"},
		DateLines:    3,
	}
}

// Extractor walks replacement tables.
type Extractor struct {
	opts Options
}

// New creates an extractor. Empty option fields fall back to DefaultOptions.
func New(opts Options) *Extractor {
	def := DefaultOptions()
	if opts.Container == "" {
		opts.Container = def.Container
	}
	if opts.HeaderLabel == "" {
		opts.HeaderLabel = def.HeaderLabel
	}
	if opts.DateKeywords == nil {
		opts.DateKeywords = def.DateKeywords
	}
	if opts.DateLines <= 0 {
		opts.DateLines = def.DateLines
	}
	opts.AdminMarkers = lowerAll(opts.AdminMarkers)
	opts.NoiseMarkers = lowerAll(opts.NoiseMarkers)
	opts.DateKeywords = lowerAll(opts.DateKeywords)
	return &Extractor{opts: opts}
}

// Extract parses a fetched document into a snapshot with empty groups removed.
func (e *Extractor) Extract(doc *source.Document) (*schedule.Snapshot, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", ErrMalformed)
	}
	gq, err := goquery.NewDocumentFromReader(strings.NewReader(doc.HTML))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	container := gq.Find(e.opts.Container).First()
	if container.Length() == 0 {
		// The fast path returns the container's inner markup only.
		container = gq.Selection
	}

	snap := schedule.NewSnapshot()
	if raw, ok := FindDateLine(TextLines(container), e.opts.DateKeywords, e.opts.DateLines); ok {
		snap.RawDate = &raw
		if date, ok := ParseDate(raw); ok {
			snap.Date = &date
		}
		logger.Debug().Str("raw_date", raw).Str("date", snap.DateValue()).Msg("Found date header")
	}

	tables := container.Find("table")
	if tables.Length() == 0 {
		return nil, ErrNoTables
	}

	current := ""
	tables.Each(func(_ int, table *goquery.Selection) {
		owner := table.Get(0)
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			// Nested tables are walked on their own.
			if row.Closest("table").Get(0) != owner {
				return
			}
			current = e.handleRow(snap, current, cellTexts(row))
		})
	})

	snap.Prune()
	logger.Info().
		Int("groups", len(snap.Groups)).
		Str("date", snap.DateValue()).
		Str("strategy", doc.Strategy).
		Msg("Extracted replacements")
	return snap, nil
}

// handleRow applies one row and returns the group context for the next one.
func (e *Extractor) handleRow(snap *schedule.Snapshot, current string, cells []string) string {
	if len(cells) == 0 || e.skipRow(cells) {
		return current
	}

	if countNonEmpty(cells) == 1 && len(cells) < 4 {
		if isDigits(cells[0]) {
			snap.Groups[cells[0]] = []schedule.Record{}
			logger.Debug().Str("group", cells[0]).Msg("Processing group")
			return cells[0]
		}
		return current
	}

	if len(cells) < 4 || current == "" {
		return current
	}

	classroom := ""
	if len(cells) > 4 {
		classroom = cells[4]
	}
	fields := []string{cells[0], cells[1], cells[2], cells[3], classroom}
	if !e.hasContent(fields) {
		return current
	}

	status, teacher := schedule.ParseTeacher(cells[2])
	snap.Groups[current] = append(snap.Groups[current], schedule.Record{
		Slot:            cells[0],
		OriginalSubject: cells[1],
		Status:          status,
		Teacher:         teacher,
		NewSubject:      cells[3],
		Classroom:       classroom,
	})
	return current
}

func (e *Extractor) skipRow(cells []string) bool {
	first := cells[0]
	if first == "" || first == e.opts.HeaderLabel {
		return true
	}
	if containsAny(strings.ToLower(first), e.opts.AdminMarkers) {
		return true
	}
	for _, c := range cells {
		if containsAny(strings.ToLower(c), e.opts.NoiseMarkers) {
			return true
		}
	}
	return false
}

// hasContent reports whether any field carries text other than noise.
func (e *Extractor) hasContent(fields []string) bool {
	for _, f := range fields {
		if f != "" && !containsAny(strings.ToLower(f), e.opts.NoiseMarkers) {
			return true
		}
	}
	return false
}

func cellTexts(row *goquery.Selection) []string {
	cells := row.ChildrenFiltered("td")
	out := make([]string, 0, cells.Length())
	cells.Each(func(_ int, cell *goquery.Selection) {
		out = append(out, collapse(cell.Text()))
	})
	return out
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func countNonEmpty(cells []string) int {
	n := 0
	for _, c := range cells {
		if c != "" {
			n++
		}
	}
	return n
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
