package relay

import (
	"time"

	"slotrelay/internal/transport"
)

// State of an announcement's lifecycle. A newer admission for the same
// location supersedes the older record as correlation target; exhausted is
// terminal for that instance.
type State string

const (
	StateAdmitted   State = "admitted"
	StateSuperseded State = "superseded"
	StateExhausted  State = "exhausted"
)

// Appointment tier durations as published by the consulate booking system:
// adult and teen passports occupy one 10-minute slot, a child under 12
// needs 15 minutes, so it can only use times with enough gap after them.
const (
	slotStep     = 10 * time.Minute
	childSlotLen = 15 * time.Minute
)

// DateBlock is one published date with its times sorted ascending.
// ChildTimes is the greedy minimum-gap subset bookable for the 15-minute tier.
type DateBlock struct {
	Date       string   // DD.MM.YYYY as published
	Times      []string // HH:MM, ascending
	ChildTimes []string
}

type Announcement struct {
	ID          int64
	Location    string // bare venue name, correlation key
	Service     string
	Dates       []DateBlock
	Fingerprint string
	FirstSeenAt time.Time // UTC admission timestamp
	LocalTime   time.Time // admission timestamp in the venue's civil zone
	State       State
	MessageRef  transport.MessageRef // set only once posted
}

// SlotCount is the total number of published times across all dates.
func (a *Announcement) SlotCount() int {
	n := 0
	for _, d := range a.Dates {
		n += len(d.Times)
	}
	return n
}

// Exhaustion signals that previously announced slots are gone.
// It is ephemeral; only its effect (a state transition) is persisted.
type Exhaustion struct {
	Location   string
	Alive      time.Duration // how long the slots were available
	ObservedAt time.Time
}

// Kind tags the extraction result so the dispatcher can switch exhaustively.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindNewSlots
	KindExhausted
)

type Result struct {
	Kind         Kind
	Announcement *Announcement // set when Kind == KindNewSlots
	Exhaustion   *Exhaustion   // set when Kind == KindExhausted
}
