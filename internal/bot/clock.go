package bot

import "time"

// Clock supplies the wall time recorded on trading tasks
type Clock interface {
	Now() time.Time
}

// SystemClock reads the current UTC time
type SystemClock struct{}

// Now returns the current UTC time
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock always returns the same instant. Simulated ticks use it so
// their records are dated on the simulated day.
type FixedClock time.Time

// Now returns the fixed instant
func (c FixedClock) Now() time.Time {
	return time.Time(c)
}
