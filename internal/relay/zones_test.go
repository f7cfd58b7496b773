package relay

import "testing"

func TestZones(t *testing.T) {
	z, err := NewZones("", map[string]string{"Едмонтон": "America/Edmonton"})
	if err != nil {
		t.Fatalf("NewZones: %v", err)
	}
	if got := z.Default().String(); got != "America/Toronto" {
		t.Errorf("default zone = %q", got)
	}
	if got := z.For("Едмонтон").String(); got != "America/Edmonton" {
		t.Errorf("override zone = %q", got)
	}
	if got := z.For("Торонто").String(); got != "America/Toronto" {
		t.Errorf("fallback zone = %q", got)
	}
}

func TestZonesBadZone(t *testing.T) {
	if _, err := NewZones("Mars/Olympus", nil); err == nil {
		t.Error("bad default zone accepted")
	}
	if _, err := NewZones("", map[string]string{"Торонто": "Mars/Olympus"}); err == nil {
		t.Error("bad override zone accepted")
	}
}
