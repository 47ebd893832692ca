package clock

import "time"

// Clock is the source of "now" for due checks and month boundaries.
type Clock interface {
	Now() time.Time
}

type System struct{}

func (System) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always reports the same instant.
type Fixed time.Time

func (f Fixed) Now() time.Time {
	return time.Time(f)
}

type Func func() time.Time

func (f Func) Now() time.Time {
	return f()
}
