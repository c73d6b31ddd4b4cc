package schedule

import (
	"sort"
	"strconv"
)

// GroupIDs returns the group identifiers sorted numerically.
func GroupIDs(s *Snapshot) []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.Groups))
	for id := range s.Groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		if errA != nil || errB != nil || a == b {
			return ids[i] < ids[j]
		}
		return a < b
	})
	return ids
}

// GroupPairs aggregates one group's records. ok is false for an unknown group.
func GroupPairs(s *Snapshot, group string) (Pairs, bool) {
	if s == nil {
		return nil, false
	}
	records, ok := s.Groups[group]
	if !ok || len(records) == 0 {
		return nil, false
	}
	entries := make([]Entry, len(records))
	for i, r := range records {
		entries[i] = Entry{Group: group, Record: r}
	}
	return AggregateEntries(entries), true
}

// Teachers returns the distinct teacher names sorted, leaving out status rows.
func Teachers(s *Snapshot) []string {
	if s == nil {
		return nil
	}
	seen := make(map[string]struct{})
	for _, records := range s.Groups {
		for _, r := range records {
			if r.Status != StatusNormal || r.Teacher == "" {
				continue
			}
			seen[r.Teacher] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TeacherView collects a teacher's records across all groups and aggregates
// them into pairs tagged with the originating group. It is never stored.
func TeacherView(s *Snapshot, teacher string) Pairs {
	if s == nil || teacher == "" {
		return Pairs{}
	}
	var entries []Entry
	for _, group := range GroupIDs(s) {
		for _, r := range s.Groups[group] {
			if r.Status == StatusNormal && r.Teacher == teacher {
				entries = append(entries, Entry{Group: group, Record: r})
			}
		}
	}
	return AggregateEntries(entries)
}
