// Package schedule holds the normalized replacement data model shared by the
// extraction pipeline, the stores and the presentation layer.
package schedule

import (
	"encoding/json"
	"strings"
	"time"
)

// DateLayout is the ISO calendar form used for Snapshot.Date.
const DateLayout = "2006-01-02"

// Status tells whether a record names a teacher or reports a lesson change.
type Status int

const (
	StatusNormal Status = iota
	StatusCancelled
	StatusMoved
)

// Text values published in the teacher column instead of a name.
const (
	CancelledText = "Отмена пары"
	MovedText     = "Перенос пары"
	RemoteRoom    = "ДО"
)

func (s Status) String() string {
	switch s {
	case StatusCancelled:
		return "cancelled"
	case StatusMoved:
		return "moved"
	default:
		return "normal"
	}
}

// ParseTeacher splits a raw teacher cell into a status and a text. For
// StatusNormal the text is the name. For the status values it is the cell as
// published when its spelling differs from CancelledText or MovedText, and
// empty otherwise.
func ParseTeacher(raw string) (Status, string) {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.EqualFold(raw, CancelledText):
		return StatusCancelled, variant(raw, CancelledText)
	case strings.EqualFold(raw, MovedText):
		return StatusMoved, variant(raw, MovedText)
	default:
		return StatusNormal, raw
	}
}

func variant(raw, canonical string) string {
	if raw == canonical {
		return ""
	}
	return raw
}

// Record is one raw timetable-slot entry for one group.
type Record struct {
	Slot            string
	OriginalSubject string
	Status          Status
	Teacher         string // name, or the published status spelling when non-canonical
	NewSubject      string
	Classroom       string
}

// Remote reports whether the classroom marks a lesson without a physical room.
func (r Record) Remote() bool {
	return strings.EqualFold(strings.TrimSpace(r.Classroom), RemoteRoom)
}

// TeacherText returns the teacher column as published.
func (r Record) TeacherText() string {
	if r.Teacher != "" {
		return r.Teacher
	}
	switch r.Status {
	case StatusCancelled:
		return CancelledText
	case StatusMoved:
		return MovedText
	default:
		return r.Teacher
	}
}

type recordJSON struct {
	Pair            string `json:"pair"`
	OriginalSubject string `json:"original_subject"`
	Teacher         string `json:"teacher"`
	NewSubject      string `json:"new_subject"`
	Classroom       string `json:"classroom"`
}

// MarshalJSON keeps the persisted layout: status is folded back into "teacher".
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		Pair:            r.Slot,
		OriginalSubject: r.OriginalSubject,
		Teacher:         r.TeacherText(),
		NewSubject:      r.NewSubject,
		Classroom:       r.Classroom,
	})
}

// UnmarshalJSON decodes the persisted layout.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	status, teacher := ParseTeacher(raw.Teacher)
	*r = Record{
		Slot:            raw.Pair,
		OriginalSubject: raw.OriginalSubject,
		Status:          status,
		Teacher:         teacher,
		NewSubject:      raw.NewSubject,
		Classroom:       raw.Classroom,
	}
	return nil
}

// Snapshot is the complete normalized replacement state for the published day.
type Snapshot struct {
	Date    *string             `json:"date"`
	RawDate *string             `json:"raw_date"`
	Groups  map[string][]Record `json:"groups"`
}

// NewSnapshot returns an empty snapshot with an initialized groups map.
func NewSnapshot() *Snapshot {
	return &Snapshot{Groups: make(map[string][]Record)}
}

// DateValue returns the ISO date or "" when unknown.
func (s *Snapshot) DateValue() string {
	if s == nil || s.Date == nil {
		return ""
	}
	return *s.Date
}

// RawDateValue returns the header line or "" when unknown.
func (s *Snapshot) RawDateValue() string {
	if s == nil || s.RawDate == nil {
		return ""
	}
	return *s.RawDate
}

// Day parses Date. ok is false when the date is unknown.
func (s *Snapshot) Day() (t time.Time, ok bool) {
	v := s.DateValue()
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Prune drops every group with no records.
func (s *Snapshot) Prune() {
	for id, records := range s.Groups {
		if len(records) == 0 {
			delete(s.Groups, id)
		}
	}
}

// Equal reports whole-structure equality: date, raw date line and every group's
// record list in order.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if s == nil || o == nil {
		return s == o
	}
	if !equalPtr(s.Date, o.Date) || !equalPtr(s.RawDate, o.RawDate) {
		return false
	}
	if len(s.Groups) != len(o.Groups) {
		return false
	}
	for id, records := range s.Groups {
		other, ok := o.Groups[id]
		if !ok || len(other) != len(records) {
			return false
		}
		for i := range records {
			if records[i] != other[i] {
				return false
			}
		}
	}
	return true
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
