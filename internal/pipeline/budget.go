package pipeline

import (
	"time"
)

// Budget is the wall-clock allowance of one job. TerminalReserve is kept
// back from the stages so the final state write always has time to land.
type Budget struct {
	Total           time.Duration
	TerminalReserve time.Duration
}

func (b Budget) WorkDeadline(start time.Time) time.Time {
	return start.Add(b.Total - b.TerminalReserve)
}

func (b Budget) Valid() bool {
	return b.Total > 0 && b.TerminalReserve >= 0 && b.TerminalReserve < b.Total
}
