package cpcl

import (
	"errors"
	"strings"
)

// Status is the byte a CPCL printer returns for StatusEnquiry.
type Status byte

const (
	StatusBusy       Status = 1 << 0
	StatusPaperOut   Status = 1 << 1
	StatusLatchOpen  Status = 1 << 2
	StatusBatteryLow Status = 1 << 3
)

var (
	ErrPaperOut  = errors.New("printer is out of paper")
	ErrLatchOpen = errors.New("printer head latch is open")
)

func (s Status) Busy() bool       { return s&StatusBusy != 0 }
func (s Status) PaperOut() bool   { return s&StatusPaperOut != 0 }
func (s Status) LatchOpen() bool  { return s&StatusLatchOpen != 0 }
func (s Status) BatteryLow() bool { return s&StatusBatteryLow != 0 }

// Err returns the condition preventing a print, if any. A busy printer or a
// low battery does not prevent printing.
func (s Status) Err() error {
	var errs []error
	if s.PaperOut() {
		errs = append(errs, ErrPaperOut)
	}
	if s.LatchOpen() {
		errs = append(errs, ErrLatchOpen)
	}
	return errors.Join(errs...)
}

func (s Status) String() string {
	var flags []string
	if s.Busy() {
		flags = append(flags, "busy")
	}
	if s.PaperOut() {
		flags = append(flags, "paper out")
	}
	if s.LatchOpen() {
		flags = append(flags, "latch open")
	}
	if s.BatteryLow() {
		flags = append(flags, "battery low")
	}
	if len(flags) == 0 {
		return "ready"
	}
	return strings.Join(flags, ", ")
}
