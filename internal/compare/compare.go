// Package compare checks two field sets for consistency.
package compare

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/maloquacious/telesync/internal/fields"
)

// Status is the outcome of comparing one field across two sets.
type Status int

const (
	Consistent Status = iota
	InconsistentValue
	TimeConsistentFormatDifferent // same instant, different encoding
	OnlyInFirst
	OnlyInSecond
)

func (s Status) String() string {
	switch s {
	case Consistent:
		return "consistent"
	case InconsistentValue:
		return "inconsistent"
	case TimeConsistentFormatDifferent:
		return "consistent (format differs)"
	case OnlyInFirst:
		return "only in first"
	case OnlyInSecond:
		return "only in second"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Agrees reports whether s means both sides hold the same value.
func (s Status) Agrees() bool {
	return s == Consistent || s == TimeConsistentFormatDifferent
}

// Entry is the comparison of a single field.
type Entry struct {
	Name   fields.Name
	Status Status
	First  fields.Value
	Second fields.Value
}

// Result holds one Entry for every field present on either side.
type Result struct {
	Entries []Entry
}

// Get returns the entry for n.
func (r Result) Get(n fields.Name) (Entry, bool) {
	return lo.Find(r.Entries, func(e Entry) bool { return e.Name == n })
}

// Consistent reports whether every entry agrees.
func (r Result) Consistent() bool {
	return lo.EveryBy(r.Entries, func(e Entry) bool { return e.Status.Agrees() })
}

// Count returns the number of entries with status s.
func (r Result) Count(s Status) int {
	return lo.CountBy(r.Entries, func(e Entry) bool { return e.Status == s })
}

// Changed lists the fields a write of the first set into the second would
// alter: disagreeing values and fields the second side lacks.
func (r Result) Changed() []fields.Name {
	return lo.FilterMap(r.Entries, func(e Entry, _ int) (fields.Name, bool) {
		return e.Name, e.Status == InconsistentValue || e.Status == OnlyInFirst
	})
}

// Compare checks first against second for every name in names. Names absent
// from both sets are left out of the result.
func Compare(first, second fields.Set, names []fields.Name) Result {
	var res Result
	for _, n := range lo.Uniq(names) {
		a, inFirst := first.Get(n)
		b, inSecond := second.Get(n)

		e := Entry{Name: n, First: a, Second: b}
		switch {
		case inFirst && inSecond:
			e.Status = compareValues(n, a, b)
		case inFirst:
			e.Status = OnlyInFirst
		case inSecond:
			e.Status = OnlyInSecond
		default:
			continue
		}
		res.Entries = append(res.Entries, e)
	}
	return res
}

func compareValues(n fields.Name, a, b fields.Value) Status {
	if a.String() == b.String() {
		return Consistent
	}
	if !fields.IsSessionDate(n) {
		return InconsistentValue
	}
	if timeEquivalent(a, b) || timeEquivalent(b, a) {
		return TimeConsistentFormatDifferent
	}
	return InconsistentValue
}

// timeEquivalent applies the rule one way: gmt must be a GMT string and ms a
// base-10 integer of Unix epoch milliseconds rendering to the same text.
func timeEquivalent(gmt, ms fields.Value) bool {
	if !fields.IsGMT(gmt.String()) {
		return false
	}
	n, ok := ms.Int()
	if !ok {
		return false
	}
	return fields.FormatGMT(n) == gmt.String()
}

// Labels names the two sides when rendering a result, e.g. "config" and "database".
type Labels struct {
	First  string
	Second string
}

// Describe renders the status of e using l for the one-sided cases.
func (l Labels) Describe(e Entry) string {
	switch e.Status {
	case OnlyInFirst:
		return l.First + " only"
	case OnlyInSecond:
		return l.Second + " only"
	}
	return e.Status.String()
}
