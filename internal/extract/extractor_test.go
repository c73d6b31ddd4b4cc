package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/user/replacementbot/internal/schedule"
	"github.com/user/replacementbot/internal/source"
)

const pageFixture = `<html><body><div id="content">
<h3>Замены на четверг 14.03.24</h3>
<table>
  <tr><td>№ пары</td><td>Предмет</td><td>Преподаватель</td><td>Замена</td><td>Ауд.</td></tr>
  <tr><td colspan="5">101</td></tr>
  <tr><td>1</td><td>Физика</td><td>Петров П.П.</td><td>Химия</td><td>204</td></tr>
  <tr><td>2</td><td>Физика</td><td>Петров П.П.</td><td>Химия</td><td>204</td></tr>
  <tr><td>5</td><td>История</td><td>Отмена пары</td><td></td></tr>
  <tr><td colspan="5">205</td></tr>
  <tr><td>3</td><td>Право</td><td>Перенос пары</td><td>Право</td><td>ДО</td></tr>
  <tr><td colspan="5">310</td></tr>
  <tr><td>Директор колледжа</td><td></td><td>Венедиктова Е.А.</td><td></td></tr>
  <tr><td>1</td><td></td><td>Венедиктова Е.А.</td><td></td></tr>
</table>
</div></body></html>`

// Same content, different formatting.
const pageFixtureReformatted = `<html><body><div id="content"><h3>Замены   на четверг
14.03.24</h3><table><tbody>
<tr><td>№ пары</td><td>Предмет</td><td>Преподаватель</td><td>Замена</td><td>Ауд.</td></tr>
<tr><td colspan="5"> 101 </td></tr>
<tr><td> 1</td><td><b>Физика</b></td><td>Петров   П.П.</td><td>Химия</td><td>204 </td></tr>
<tr><td>2</td><td>Физика</td><td>Петров П.П.</td><td>Химия</td><td>204</td></tr>
<tr><td>5</td><td>История</td><td> Отмена пары </td><td></td></tr>
<tr><td colspan="5">205</td></tr>
<tr><td>3</td><td>Право</td><td>Перенос пары</td><td>Право</td><td>ДО</td></tr>
<tr><td colspan="5">310</td></tr>
<tr><td>Директор колледжа</td><td></td><td>Венедиктова Е.А.</td><td></td></tr>
<tr><td>1</td><td></td><td>Венедиктова Е.А.</td><td></td></tr>
</tbody></table></div></body></html>`

func extract(t *testing.T, html string) *schedule.Snapshot {
	t.Helper()
	snap, err := New(DefaultOptions()).Extract(&source.Document{HTML: html, Strategy: "test"})
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	return snap
}

func TestExtractPage(t *testing.T) {
	t.Parallel()
	snap := extract(t, pageFixture)

	if snap.DateValue() != "2024-03-14" {
		t.Fatalf("date = %q", snap.DateValue())
	}
	if snap.RawDateValue() != "Замены на четверг 14.03.24" {
		t.Fatalf("raw date = %q", snap.RawDateValue())
	}
	if _, ok := snap.Groups["310"]; ok {
		t.Fatal("group with only administrative rows was kept")
	}
	if len(snap.Groups) != 2 {
		t.Fatalf("groups = %v", schedule.GroupIDs(snap))
	}

	g101 := snap.Groups["101"]
	if len(g101) != 3 {
		t.Fatalf("group 101 has %d records", len(g101))
	}
	if g101[0].Teacher != "Петров П.П." || g101[0].Classroom != "204" || g101[0].Status != schedule.StatusNormal {
		t.Fatalf("unexpected first record: %+v", g101[0])
	}
	if g101[2].Status != schedule.StatusCancelled || g101[2].Classroom != "" {
		t.Fatalf("four-cell row parsed as %+v", g101[2])
	}

	moved := snap.Groups["205"][0]
	if moved.Status != schedule.StatusMoved || !moved.Remote() {
		t.Fatalf("unexpected moved record: %+v", moved)
	}
}

func TestExtractIgnoresFormatting(t *testing.T) {
	t.Parallel()
	a := extract(t, pageFixture)
	b := extract(t, pageFixtureReformatted)
	if !a.Equal(b) {
		t.Fatalf("reformatted page differs:\n%+v\n%+v", a, b)
	}
}

func TestExtractFragment(t *testing.T) {
	t.Parallel()
	// The fast path returns the container's inner markup only.
	snap := extract(t, `Замены на понедельник 18.03.24<table><tr><td>42</td></tr><tr><td>7</td><td>Алгебра</td><td>Смирнова О.В.</td><td>Геометрия</td></tr></table>`)
	if snap.DateValue() != "2024-03-18" {
		t.Fatalf("date = %q", snap.DateValue())
	}
	if got := snap.Groups["42"]; len(got) != 1 || got[0].Slot != "7" {
		t.Fatalf("group 42 = %+v", got)
	}
}

func TestExtractWithoutDate(t *testing.T) {
	t.Parallel()
	snap := extract(t, `<div id="content"><p>Расписание</p><table><tr><td>1</td></tr></table></div>`)
	if snap.Date != nil || snap.RawDate != nil {
		t.Fatalf("expected no date, got %v %v", snap.Date, snap.RawDate)
	}
	if len(snap.Groups) != 0 {
		t.Fatalf("expected no groups, got %v", snap.Groups)
	}
}

func TestExtractNoTables(t *testing.T) {
	t.Parallel()
	_, err := New(DefaultOptions()).Extract(&source.Document{HTML: `<div id="content">Замены на 14.03.24</div>`})
	if !errors.Is(err, ErrNoTables) {
		t.Fatalf("error = %v, want ErrNoTables", err)
	}
}

func TestExtractRowsBeforeGroupIgnored(t *testing.T) {
	t.Parallel()
	snap := extract(t, `<table><tr><td>1</td><td>a</td><td>b</td><td>c</td></tr><tr><td>15</td></tr><tr><td>2</td><td>a</td><td>b</td><td>c</td></tr></table>`)
	if len(snap.Groups) != 1 || len(snap.Groups["15"]) != 1 {
		t.Fatalf("groups = %+v", snap.Groups)
	}
}

func TestExtractConfiguredMarkers(t *testing.T) {
	t.Parallel()
	opts := DefaultOptions()
	opts.NoiseMarkers = []string{"Кузнецова"}
	snap, err := New(opts).Extract(&source.Document{HTML: `<table><tr><td>15</td></tr>
		<tr><td>1</td><td>a</td><td>Кузнецова Т.Т.</td><td>c</td></tr>
		<tr><td>2</td><td>a</td><td>Венедиктова Е.А.</td><td>c</td></tr></table>`})
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	got := snap.Groups["15"]
	if len(got) != 1 || got[0].Slot != "2" {
		t.Fatalf("group 15 = %+v", got)
	}
}

func TestParseDate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "Замены на 14.03.24", want: "2024-03-14", ok: true},
		{in: "Замены на пятницу 01.09.2023", want: "2023-09-01", ok: true},
		{in: "Замены на вторник", ok: false},
		{in: "Замены на 31.02.24", ok: false},
		{in: "14/03/24", ok: false},
	}
	for _, tt := range tests {
		got, ok := ParseDate(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("ParseDate(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFindDateLineOnlyLeadingLines(t *testing.T) {
	t.Parallel()
	lines := []string{"Колледж", "Объявление", "Информация", "Замены на 14.03.24"}
	if _, ok := FindDateLine(lines, DefaultOptions().DateKeywords, 3); ok {
		t.Fatal("date line beyond the leading lines was accepted")
	}
	if line, ok := FindDateLine(lines, DefaultOptions().DateKeywords, 4); !ok || line != lines[3] {
		t.Fatalf("FindDateLine = %q, %v", line, ok)
	}
}

func TestTextLines(t *testing.T) {
	t.Parallel()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<div><b>Замены</b> на<br>четверг<script>x()</script><p>  второй   абзац </p></div>`))
	if err != nil {
		t.Fatal(err)
	}
	got := TextLines(doc.Selection)
	want := []string{"Замены на", "четверг", "второй абзац"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("TextLines() = %q, want %q", got, want)
	}
}
