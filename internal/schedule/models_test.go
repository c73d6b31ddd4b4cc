package schedule

import (
	"encoding/json"
	"reflect"
	"testing"
)

func strPtr(s string) *string { return &s }

func sampleSnapshot() *Snapshot {
	return &Snapshot{
		Date:    strPtr("2024-03-14"),
		RawDate: strPtr("Замены на четверг 14.03.24"),
		Groups: map[string][]Record{
			"101": {
				{Slot: "1", OriginalSubject: "Физика", Teacher: "Петров П.П.", NewSubject: "Химия", Classroom: "204"},
				{Slot: "3", OriginalSubject: "История", Status: StatusCancelled},
			},
			"12": {
				{Slot: "5", OriginalSubject: "Право", Status: StatusMoved, Classroom: "ДО"},
			},
		},
	}
}

func TestSnapshotJSONLayout(t *testing.T) {
	t.Parallel()
	data, err := json.Marshal(sampleSnapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	groups := raw["groups"].(map[string]any)
	first := groups["101"].([]any)[1].(map[string]any)
	if first["teacher"] != CancelledText || first["pair"] != "3" {
		t.Fatalf("unexpected persisted record: %v", first)
	}

	var back Snapshot
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(sampleSnapshot()) {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}

func TestSnapshotNullDates(t *testing.T) {
	t.Parallel()
	var s Snapshot
	if err := json.Unmarshal([]byte(`{"date":null,"raw_date":null,"groups":{}}`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s.Date != nil || s.RawDate != nil {
		t.Fatalf("expected nil dates, got %v %v", s.Date, s.RawDate)
	}
	if _, ok := s.Day(); ok {
		t.Fatal("Day() reported a date for an unknown date")
	}
}

func TestSnapshotEqual(t *testing.T) {
	t.Parallel()
	a, b := sampleSnapshot(), sampleSnapshot()
	if !a.Equal(b) || !b.Equal(a) {
		t.Fatal("identical snapshots compare unequal")
	}

	b.Groups["101"][0], b.Groups["101"][1] = b.Groups["101"][1], b.Groups["101"][0]
	if a.Equal(b) || b.Equal(a) {
		t.Fatal("reordered records compare equal")
	}

	c := sampleSnapshot()
	c.Date = nil
	if a.Equal(c) || c.Equal(a) {
		t.Fatal("missing date compares equal")
	}
	var nilSnap *Snapshot
	if a.Equal(nilSnap) || !nilSnap.Equal(nil) {
		t.Fatal("nil handling is wrong")
	}
}

func TestParseTeacher(t *testing.T) {
	t.Parallel()
	if st, name := ParseTeacher(" Отмена пары "); st != StatusCancelled || name != "" {
		t.Fatalf("got %v %q", st, name)
	}
	if st, _ := ParseTeacher("Перенос пары"); st != StatusMoved {
		t.Fatalf("got %v", st)
	}
	if st, name := ParseTeacher("Сидорова А.В."); st != StatusNormal || name != "Сидорова А.В." {
		t.Fatalf("got %v %q", st, name)
	}
	if st, name := ParseTeacher("отмена пары"); st != StatusCancelled || name != "отмена пары" {
		t.Fatalf("got %v %q", st, name)
	}
}

func TestStatusSpellingPersisted(t *testing.T) {
	t.Parallel()
	tests := []struct {
		cell   string
		status Status
	}{
		{"отмена пары", StatusCancelled},
		{"ПЕРЕНОС ПАРЫ", StatusMoved},
		{"Отмена пары", StatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.cell, func(t *testing.T) {
			status, teacher := ParseTeacher(tt.cell)
			rec := Record{Slot: "1", Status: status, Teacher: teacher}

			data, err := json.Marshal(rec)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var raw map[string]string
			if err := json.Unmarshal(data, &raw); err != nil {
				t.Fatalf("unmarshal raw: %v", err)
			}
			if raw["teacher"] != tt.cell {
				t.Fatalf("persisted teacher = %q, want %q", raw["teacher"], tt.cell)
			}

			var back Record
			if err := json.Unmarshal(data, &back); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if back != rec || back.Status != tt.status {
				t.Fatalf("round trip = %+v, want %+v", back, rec)
			}
		})
	}
}

func TestViews(t *testing.T) {
	t.Parallel()
	s := sampleSnapshot()
	s.Groups["9"] = []Record{{Slot: "2", Teacher: "Петров П.П.", NewSubject: "Химия"}}

	if got, want := GroupIDs(s), []string{"9", "12", "101"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("GroupIDs() = %v, want %v", got, want)
	}
	if got, want := Teachers(s), []string{"Петров П.П."}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Teachers() = %v, want %v", got, want)
	}

	view := TeacherView(s, "Петров П.П.")
	if got := view.Numbers(); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("TeacherView numbers = %v", got)
	}
	if view[1].Group != "101" {
		t.Fatalf("TeacherView kept group %q, want the slot-1 record from 101", view[1].Group)
	}

	if _, ok := GroupPairs(s, "404"); ok {
		t.Fatal("unknown group reported as present")
	}
	if !s.Groups["12"][0].Remote() {
		t.Fatal("ДО classroom not reported as remote")
	}
}
