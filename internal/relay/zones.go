package relay

import (
	"fmt"
	"time"
)

// Zones maps venue names to their civil time zones. Hour-bucket statistics
// and the predictor's pre-window check run in venue-local time, not UTC.
type Zones struct {
	def   *time.Location
	byLoc map[string]*time.Location
}

// NewZones loads the default IANA zone plus per-venue overrides.
// The monitored venues are Canadian consulates, hence the default.
func NewZones(defaultTZ string, byLocation map[string]string) (*Zones, error) {
	if defaultTZ == "" {
		defaultTZ = "America/Toronto"
	}
	def, err := time.LoadLocation(defaultTZ)
	if err != nil {
		return nil, fmt.Errorf("default timezone %q: %w", defaultTZ, err)
	}

	z := &Zones{def: def, byLoc: make(map[string]*time.Location, len(byLocation))}
	for loc, tz := range byLocation {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("timezone %q for %q: %w", tz, loc, err)
		}
		z.byLoc[loc] = l
	}
	return z, nil
}

func (z *Zones) For(location string) *time.Location {
	if l, ok := z.byLoc[location]; ok {
		return l
	}
	return z.def
}

// Default returns the fallback zone (also used by the predictor when no
// explicit predictor timezone is configured).
func (z *Zones) Default() *time.Location { return z.def }
