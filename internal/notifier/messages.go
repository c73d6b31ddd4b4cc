package notifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/user/replacementbot/internal/schedule"
)

// BuildSummary composes the change announcement: date and affected groups.
func BuildSummary(snap *schedule.Snapshot) string {
	var b strings.Builder
	b.WriteString("📢 Опубликованы новые замены\n")

	switch {
	case snap.RawDateValue() != "":
		fmt.Fprintf(&b, "📆 %s\n", snap.RawDateValue())
	case snap.DateValue() != "":
		fmt.Fprintf(&b, "📆 %s\n", snap.DateValue())
	}
	if day, ok := snap.Day(); ok {
		fmt.Fprintf(&b, "🗓 %s, %s\n", day.Format("02.01.2006"), weekday(day))
	}

	groups := schedule.GroupIDs(snap)
	if len(groups) == 0 {
		b.WriteString("\nЗамен нет.")
		return b.String()
	}

	fmt.Fprintf(&b, "\n👥 Группы с заменами (%d):\n%s\n", len(groups), strings.Join(groups, ", "))
	b.WriteString("\nНажмите «Замена по группам», чтобы посмотреть подробности.")
	return b.String()
}

var weekdays = [...]string{"воскресенье", "понедельник", "вторник", "среда", "четверг", "пятница", "суббота"}

func weekday(t time.Time) string {
	return weekdays[t.Weekday()]
}
