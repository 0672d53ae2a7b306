package models

import (
	"fmt"
	"strings"
)

// RoomCount is the categorical bedroom/bathroom count. The numeric value of
// the constants is the sort order: studio < 1 < 2 < 3 < 4 < 5+.
type RoomCount int

const (
	Studio RoomCount = iota
	One
	Two
	Three
	Four
	FivePlus
)

// RoomCounts lists every category in order.
var RoomCounts = []RoomCount{Studio, One, Two, Three, Four, FivePlus}

var roomLabels = [...]string{"studio", "1", "2", "3", "4", "5+"}

func (r RoomCount) String() string {
	if r < Studio || r > FivePlus {
		return fmt.Sprintf("RoomCount(%d)", int(r))
	}
	return roomLabels[r]
}

// Less reports whether r sorts before o.
func (r RoomCount) Less(o RoomCount) bool { return r < o }

// RoomCountFromInt maps a count to its category; anything at or above the
// largest tracked count collapses into FivePlus.
func RoomCountFromInt(n int) RoomCount {
	switch {
	case n <= 0:
		return Studio
	case n >= int(FivePlus):
		return FivePlus
	default:
		return RoomCount(n)
	}
}

// ParseRoomLabel parses a canonical label as produced by String.
func ParseRoomLabel(s string) (RoomCount, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, l := range roomLabels {
		if s == l {
			return RoomCount(i), nil
		}
	}
	return 0, fmt.Errorf("unknown room category %q", s)
}

// MarshalText lets RoomCount serialise as its label, including as a map key.
func (r RoomCount) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *RoomCount) UnmarshalText(b []byte) error {
	v, err := ParseRoomLabel(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}
