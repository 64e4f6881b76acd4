// Package settings holds the immutable values produced by one successful
// parse of the remote configuration document.
package settings

import (
	"strconv"
	"strings"
)

// Percentage draws are made over [1, PercentRange].
const PercentRange = 1000

// MaxBands is the number of slots in the cumulative band table.
const MaxBands = 5

// Defaults applied by the typed accessors when a raw value is empty or not
// an integer.
const (
	DefaultKeyCycle  = 1
	DefaultDwellDown = 3
	DefaultDwellUp   = 10
	DefaultCycleDown = 5
	DefaultCycleUp   = 15
	DefaultThreshold = PercentRange
)

// Band is an inclusive sub-range of [1, PercentRange].
type Band struct {
	Lower int
	Upper int
}

// Contains reports whether draw falls inside the band.
func (b Band) Contains(draw int) bool {
	return draw >= b.Lower && draw <= b.Upper
}

// ClickRange is a (percentage, gap percentage) pair. Only pairs with both
// values strictly positive are ever stored.
type ClickRange struct {
	Per    int
	GapPer int
}

// Settings is the scalar part of the configuration. String fields are the
// attribute values verbatim; use the accessors to read them as integers.
// A Settings value is never mutated after construction.
type Settings struct {
	RefDom     string
	OnOff      string
	Bwc        string
	CTime      string
	CTimeDown  string
	CTimeUp    string
	STimeDown  string
	STimeUp    string
	MUserAgent string
	KeyCycleB  string
	SubCycleB  string
	NeoBack3   string

	// Weights holds the numeric weighting knobs keyed by logical name.
	Weights map[string]string

	Bands       []Band
	ClickRanges []ClickRange
}

// Enabled reports whether the on/off flag is set. An empty flag counts as on.
func (s *Settings) Enabled() bool {
	v := strings.TrimSpace(s.OnOff)
	return v == "" || ParseInt(v, 1) != 0
}

// KeyCycle is the number of KeySelect ticks spent on each site, at least 1.
func (s *Settings) KeyCycle() int {
	n := ParseInt(s.KeyCycleB, DefaultKeyCycle)
	if n < 1 {
		return 1
	}
	return n
}

// DwellBounds returns the dwell-time bounds in seconds.
func (s *Settings) DwellBounds() (down, up int) {
	return ParseInt(s.STimeDown, DefaultDwellDown), ParseInt(s.STimeUp, DefaultDwellUp)
}

// CycleBounds returns the cycle-gap bounds in seconds.
func (s *Settings) CycleBounds() (down, up int) {
	return ParseInt(s.CTimeDown, DefaultCycleDown), ParseInt(s.CTimeUp, DefaultCycleUp)
}

// Weight returns a weighting knob as an integer.
func (s *Settings) Weight(name string, def int) int {
	return ParseInt(s.Weights[name], def)
}

// SelectBand returns the index of the band containing draw, or -1.
func (s *Settings) SelectBand(draw int) int {
	for i, b := range s.Bands {
		if b.Contains(draw) {
			return i
		}
	}
	return -1
}

// BuildBands turns up to MaxBands percentages into contiguous ranges starting
// at 1. An empty percentage leaves its slot out without moving the lower
// bound; an unparsable or negative one counts as zero and yields an empty band.
func BuildBands(percents []string) []Band {
	if len(percents) > MaxBands {
		percents = percents[:MaxBands]
	}
	bands := make([]Band, 0, len(percents))
	lower := 1
	for _, p := range percents {
		if strings.TrimSpace(p) == "" {
			continue
		}
		upper := lower + max(ParseInt(p, 0), 0) - 1
		bands = append(bands, Band{Lower: lower, Upper: upper})
		lower = upper + 1
	}
	return bands
}

// ParseInt parses s as a base-10 integer, returning def when s is empty or
// malformed.
func ParseInt(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
