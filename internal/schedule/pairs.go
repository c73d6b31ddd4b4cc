package schedule

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Pair is one aggregated teaching unit: two consecutive lesson slots taught together.
type Pair struct {
	Number int
	Group  string
	Source Record
}

// Pairs maps a pair number to its representative record.
type Pairs map[int]Pair

// Numbers returns the pair numbers in ascending order.
func (p Pairs) Numbers() []int {
	nums := make([]int, 0, len(p))
	for n := range p {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// Ordered returns the pairs in ascending pair-number order.
func (p Pairs) Ordered() []Pair {
	out := make([]Pair, 0, len(p))
	for _, n := range p.Numbers() {
		out = append(out, p[n])
	}
	return out
}

// Entry is a record tagged with the group it was published for.
type Entry struct {
	Group  string
	Record Record
}

// SlotNumber parses a lesson slot. Only positive all-digit slots are valid.
func SlotNumber(slot string) (int, bool) {
	slot = strings.TrimSpace(slot)
	if slot == "" {
		return 0, false
	}
	for _, r := range slot {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(slot)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// PairNumber maps a lesson slot to the pair it belongs to.
func PairNumber(slot int) int {
	return (slot + 1) / 2
}

// Aggregate collapses one group's records into pairs.
func Aggregate(records []Record) Pairs {
	entries := make([]Entry, len(records))
	for i, r := range records {
		entries[i] = Entry{Record: r}
	}
	return AggregateEntries(entries)
}

// AggregateEntries collapses tagged records into pairs. Records are ordered by
// slot with invalid slots last; an odd slot directly followed by its even
// successor forms one pair represented by the odd half, every other valid slot
// stands alone. When two records land on the same pair the first one wins.
// Records with invalid slots are dropped.
func AggregateEntries(entries []Entry) Pairs {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return slotKey(sorted[i].Record.Slot) < slotKey(sorted[j].Record.Slot)
	})

	pairs := make(Pairs)
	put := func(num int, e Entry) {
		if _, ok := pairs[num]; ok {
			return
		}
		pairs[num] = Pair{Number: num, Group: e.Group, Source: e.Record}
	}

	for i := 0; i < len(sorted); {
		cur := sorted[i]
		n, ok := SlotNumber(cur.Record.Slot)
		if !ok {
			i++
			continue
		}
		if i+1 < len(sorted) && n%2 == 1 {
			if m, ok := SlotNumber(sorted[i+1].Record.Slot); ok && m == n+1 {
				put(PairNumber(n), cur)
				i += 2
				continue
			}
		}
		put(PairNumber(n), cur)
		i++
	}
	return pairs
}

func slotKey(slot string) float64 {
	if n, ok := SlotNumber(slot); ok {
		return float64(n)
	}
	return math.Inf(1)
}
