package relay

import "testing"

func TestFingerprintOrderInvariance(t *testing.T) {
	a := Fingerprint("Торонто", "Паспортні дії", []DateBlock{
		{Date: "15.09.2026", Times: []string{"09:00", "09:10"}},
		{Date: "16.09.2026", Times: []string{"11:00"}},
	})
	b := Fingerprint("Торонто", "Паспортні дії", []DateBlock{
		{Date: "16.09.2026", Times: []string{"11:00"}},
		{Date: "15.09.2026", Times: []string{"09:10", "09:00"}},
	})
	if a != b {
		t.Errorf("reordered dates/times changed the fingerprint:\n%s\n%s", a, b)
	}
}

func TestFingerprintSensitivity(t *testing.T) {
	base := Fingerprint("Торонто", "Паспортні дії", []DateBlock{
		{Date: "15.09.2026", Times: []string{"09:00"}},
	})
	cases := []struct {
		name     string
		location string
		service  string
		dates    []DateBlock
	}{
		{"different location", "Едмонтон", "Паспортні дії",
			[]DateBlock{{Date: "15.09.2026", Times: []string{"09:00"}}}},
		{"different service", "Торонто", "Нотаріальні дії",
			[]DateBlock{{Date: "15.09.2026", Times: []string{"09:00"}}}},
		{"different date", "Торонто", "Паспортні дії",
			[]DateBlock{{Date: "16.09.2026", Times: []string{"09:00"}}}},
		{"extra time", "Торонто", "Паспортні дії",
			[]DateBlock{{Date: "15.09.2026", Times: []string{"09:00", "09:10"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Fingerprint(tc.location, tc.service, tc.dates); got == base {
				t.Errorf("fingerprint collided with base")
			}
		})
	}
}

func TestFingerprintIgnoresChildTimes(t *testing.T) {
	// ChildTimes are derived from Times; they must not affect identity.
	a := Fingerprint("Торонто", "Паспортні дії", []DateBlock{
		{Date: "15.09.2026", Times: []string{"09:00"}, ChildTimes: []string{"09:00"}},
	})
	b := Fingerprint("Торонто", "Паспортні дії", []DateBlock{
		{Date: "15.09.2026", Times: []string{"09:00"}},
	})
	if a != b {
		t.Errorf("ChildTimes leaked into the fingerprint")
	}
}
