// Package fields defines the telemetry identity fields shared by every
// VS Code-family configuration store, and the immutable Set that carries them.
package fields

import (
	"sort"
	"strconv"
)

// Name identifies one synchronised field independent of the store key it lives under.
type Name string

const (
	MachineID          Name = "machineId"
	DeviceID           Name = "deviceId"
	SqmID              Name = "sqmId"
	ServiceMachineID   Name = "serviceMachineId"
	FirstSessionDate   Name = "firstSessionDate"
	LastSessionDate    Name = "lastSessionDate"
	CurrentSessionDate Name = "currentSessionDate"
)

// All lists every known field in canonical order.
var All = []Name{
	MachineID,
	DeviceID,
	SqmID,
	ServiceMachineID,
	FirstSessionDate,
	LastSessionDate,
	CurrentSessionDate,
}

var keys = map[Name]string{
	MachineID:          "telemetry.machineId",
	DeviceID:           "telemetry.devDeviceId",
	SqmID:              "telemetry.sqmId",
	ServiceMachineID:   "storage.serviceMachineId",
	FirstSessionDate:   "telemetry.firstSessionDate",
	LastSessionDate:    "telemetry.lastSessionDate",
	CurrentSessionDate: "telemetry.currentSessionDate",
}

var order = func() map[Name]int {
	m := make(map[Name]int, len(All))
	for i, n := range All {
		m[n] = i
	}
	return m
}()

// Key returns the store key for n, or "" if n is unknown.
func (n Name) Key() string {
	return keys[n]
}

// Valid reports whether n is one of the known fields.
func (n Name) Valid() bool {
	_, ok := keys[n]
	return ok
}

// Keys returns the store keys for names, in the same order.
func Keys(names []Name) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if k := n.Key(); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// IsSessionDate reports whether n holds a session timestamp and is subject to
// the time-equivalence rule.
func IsSessionDate(n Name) bool {
	switch n {
	case FirstSessionDate, LastSessionDate, CurrentSessionDate:
		return true
	}
	return false
}

// Value is a field value as stored: either text or an integer.
type Value struct {
	text    string
	numeric bool
}

// String builds a text value.
func String(s string) Value {
	return Value{text: s}
}

// Int builds an integer value.
func Int(n int64) Value {
	return Value{text: strconv.FormatInt(n, 10), numeric: true}
}

// String returns the canonical text of v.
func (v Value) String() string {
	return v.text
}

// IsNumeric reports whether v was stored as a number.
func (v Value) IsNumeric() bool {
	return v.numeric
}

// Int returns v as an integer if it is numeric or its text is a base-10 integer.
func (v Value) Int() (int64, bool) {
	n, err := strconv.ParseInt(v.text, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Set is an immutable mapping of field names to values read from, or destined
// for, a single store.
type Set struct {
	m map[Name]Value
}

// NewSet copies m into a new Set. Unknown names are dropped.
func NewSet(m map[Name]Value) Set {
	s := Set{m: make(map[Name]Value, len(m))}
	for n, v := range m {
		if n.Valid() {
			s.m[n] = v
		}
	}
	return s
}

// Get returns the value for n.
func (s Set) Get(n Name) (Value, bool) {
	v, ok := s.m[n]
	return v, ok
}

// Has reports whether n is present.
func (s Set) Has(n Name) bool {
	_, ok := s.m[n]
	return ok
}

// Len returns the number of fields present.
func (s Set) Len() int {
	return len(s.m)
}

// Names returns the present field names in canonical order.
func (s Set) Names() []Name {
	out := make([]Name, 0, len(s.m))
	for n := range s.m {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return order[out[i]] < order[out[j]] })
	return out
}

// With returns a copy of s with n set to v.
func (s Set) With(n Name, v Value) Set {
	m := make(map[Name]Value, len(s.m)+1)
	for k, val := range s.m {
		m[k] = val
	}
	m[n] = v
	return NewSet(m)
}

// Only returns a copy of s restricted to names.
func (s Set) Only(names []Name) Set {
	m := make(map[Name]Value, len(names))
	for _, n := range names {
		if v, ok := s.m[n]; ok {
			m[n] = v
		}
	}
	return NewSet(m)
}
