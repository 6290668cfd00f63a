package fec

import (
	"fmt"
	"strconv"
	"strings"
)

// Group is one contiguous chunk range [Start,End] paired with a parity type.
// Type is "0"/"1"/"2" for primary/secondary/tertiary parity, or "O{i}" for a
// group produced by the overlap walk.
type Group struct {
	Start int
	End   int
	Type  string
}

// ID returns the canonical parity identifier for the group.
func (g Group) ID() string {
	return fmt.Sprintf("%d-%d-%s", g.Start, g.End, g.Type)
}

// Overlapping reports whether the group came from the overlap walk.
func (g Group) Overlapping() bool {
	return strings.HasPrefix(g.Type, "O")
}

// NormaliseID canonicalises a parity identifier: a bare "{start}-{end}" is
// primary parity "{start}-{end}-0".
func NormaliseID(id string) string {
	if strings.Count(id, "-") == 1 {
		return id + "-0"
	}
	return id
}

// ParseID decodes a canonical parity identifier back into its group.
func ParseID(id string) (Group, bool) {
	parts := strings.SplitN(NormaliseID(id), "-", 3)
	if len(parts) != 3 {
		return Group{}, false
	}
	start, err := strconv.Atoi(parts[0])
	if err != nil || start < 1 {
		return Group{}, false
	}
	end, err := strconv.Atoi(parts[1])
	if err != nil || end < start {
		return Group{}, false
	}
	if !validType(parts[2]) {
		return Group{}, false
	}
	return Group{Start: start, End: end, Type: parts[2]}, true
}

func validType(t string) bool {
	switch t {
	case "0", "1", "2":
		return true
	}
	if len(t) < 2 || t[0] != 'O' {
		return false
	}
	_, err := strconv.Atoi(t[1:])
	return err == nil
}

// Plan enumerates the parity groups for (total, scheme) in transmission
// order. The enumeration is a pure function of its inputs; the receiver runs
// the same walk to infer the identifiers the sender used.
func Plan(total int, scheme Scheme) []Group {
	if total <= 0 || !scheme.Enabled() {
		return nil
	}
	if scheme.Overlap {
		return overlapPlan(total, scheme)
	}
	return stridePlan(total, scheme)
}

func stridePlan(total int, scheme Scheme) []Group {
	var groups []Group
	for i := 0; i < total; i += scheme.GroupSize {
		start := i + 1
		end := i + scheme.GroupSize
		if end > total {
			end = total
		}
		for p := 0; p < scheme.ParityCount; p++ {
			groups = append(groups, Group{Start: start, End: end, Type: strconv.Itoa(p)})
		}
	}
	return groups
}

// overlapPlan walks two phases: main groups on a stride of three, then the
// overlap walk from seq 2 upward. The overlap index advances on every
// candidate whether or not it is emitted; both sides depend on that exact
// enumeration to agree on O-identifiers.
func overlapPlan(total int, scheme Scheme) []Group {
	var groups []Group
	seen := make(map[[2]int]struct{})

	for start := 1; start <= total; start += 3 {
		end := start + 2
		if end > total {
			end = total
		}
		groups = append(groups, Group{Start: start, End: end, Type: "0"})
		if scheme.ParityCount >= 3 {
			groups = append(groups,
				Group{Start: start, End: end, Type: "1"},
				Group{Start: start, End: end, Type: "2"},
			)
		}
		seen[[2]int{start, end}] = struct{}{}
	}

	oIndex := 0
	for i := 2; i+2 <= total; i++ {
		key := [2]int{i, i + 2}
		if _, ok := seen[key]; !ok {
			groups = append(groups, Group{Start: i, End: i + 2, Type: "O" + strconv.Itoa(oIndex)})
		}
		oIndex++
	}
	return groups
}
