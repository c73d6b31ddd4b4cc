package telegram

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/user/replacementbot/internal/schedule"
)

// Reply keyboard labels and fixed replies.
const (
	ButtonGroups   = "Замена по группам"
	ButtonTeachers = "Замена по преподавателям"
	ButtonClear    = "Очистить"

	textWelcome       = "Добро пожаловать! Выберите тип поиска замен:"
	textChooseKind    = "Выберите тип поиска замен:"
	textCleared       = "Диалог очищен! Выберите тип поиска замен:"
	textChooseGroup   = "Выберите группу:"
	textChooseTeacher = "Выберите преподавателя:"
	textNoData        = "Данные о заменах отсутствуют"
	textNoGroups      = "Замен нет"
	textNoTeachers    = "Преподаватели в заменах не указаны"
	textExpired       = "Кнопка устарела, запросите список заново"
)

// maxMessageLen is Telegram's limit on a text message, in characters.
const maxMessageLen = 4096

// FormatPair renders one aggregated pair.
func FormatPair(p schedule.Pair) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🕐 Пара: %d\n", p.Number)

	r := p.Source
	switch r.Status {
	case schedule.StatusCancelled:
		b.WriteString("❌ Статус: Пара отменена\n")
	case schedule.StatusMoved:
		b.WriteString("🔄 Статус: Пара перенесена\n")
	default:
		if r.NewSubject != "" {
			fmt.Fprintf(&b, "📗 Предмет: %s\n", r.NewSubject)
		}
		if r.Teacher != "" {
			fmt.Fprintf(&b, "👨‍🏫 Преподаватель: %s\n", r.Teacher)
		}
	}

	if r.Classroom != "" {
		if r.Remote() {
			b.WriteString("🏠 Форма обучения: Дистанционно\n")
		} else {
			fmt.Fprintf(&b, "🏛 Аудитория: %s\n", r.Classroom)
		}
	}
	return b.String()
}

// GroupReport renders every pair of one group.
func GroupReport(snap *schedule.Snapshot, group string) string {
	pairs, ok := schedule.GroupPairs(snap, group)
	if !ok || len(pairs) == 0 {
		return fmt.Sprintf("Для группы %s замен нет", group)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📅 Замены для группы %s\n", group)
	writeDate(&b, snap)
	for _, p := range pairs.Ordered() {
		b.WriteString(FormatPair(p))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// TeacherReport renders a teacher's pairs across groups, each tagged with its group.
func TeacherReport(snap *schedule.Snapshot, teacher string) string {
	pairs := schedule.TeacherView(snap, teacher)
	if len(pairs) == 0 {
		return fmt.Sprintf("Для преподавателя %s замен нет", teacher)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "👨‍🏫 Замены для преподавателя %s\n", teacher)
	writeDate(&b, snap)
	for _, p := range pairs.Ordered() {
		fmt.Fprintf(&b, "👥 Группа: %s\n", p.Group)
		b.WriteString(FormatPair(p))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeDate(b *strings.Builder, snap *schedule.Snapshot) {
	if raw := snap.RawDateValue(); raw != "" {
		fmt.Fprintf(b, "📆 %s\n", raw)
	}
	b.WriteString("\n")
}

// splitMessage cuts text into chunks of at most limit characters, preferring
// blank-line boundaries between pairs.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, strings.TrimRight(cur.String(), "\n"))
			cur.Reset()
			curLen = 0
		}
	}

	for _, block := range strings.SplitAfter(text, "\n\n") {
		n := utf8.RuneCountInString(block)
		if curLen+n > limit {
			flush()
		}
		for n > limit {
			head, tail := cutRunes(block, limit)
			chunks = append(chunks, head)
			block, n = tail, utf8.RuneCountInString(tail)
		}
		cur.WriteString(block)
		curLen += n
	}
	flush()
	return chunks
}

func cutRunes(s string, n int) (string, string) {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], s[pos:]
		}
		i++
	}
	return s, ""
}
