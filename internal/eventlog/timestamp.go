package eventlog

import "time"

// Time quality flags carried in Timestamp.Quality. The low five bits hold the
// number of significant fraction bits (time accuracy).
const (
	QualityLeapSecondKnown      uint8 = 0x80
	QualityClockFailure         uint8 = 0x40
	QualityClockNotSynchronized uint8 = 0x20
	QualityAccuracyMask         uint8 = 0x1f
)

const fractionBits = 24

// Timestamp is the point in time an event occurred, in UtcTime layout:
// whole seconds since the Unix epoch, a 24-bit binary fraction of a second,
// and a time-quality octet.
type Timestamp struct {
	Seconds  uint32
	Fraction uint32
	Quality  uint8
}

// NewTimestamp converts t, truncating to the 24-bit fraction resolution.
func NewTimestamp(t time.Time, quality uint8) Timestamp {
	ns := uint64(t.Nanosecond())
	return Timestamp{
		Seconds:  uint32(t.Unix()),
		Fraction: uint32((ns << fractionBits) / uint64(time.Second)),
		Quality:  quality,
	}
}

// Time returns the timestamp as a time.Time in UTC.
func (ts Timestamp) Time() time.Time {
	frac := uint64(ts.Fraction & (1<<fractionBits - 1))
	ns := (frac * uint64(time.Second)) >> fractionBits
	return time.Unix(int64(ts.Seconds), int64(ns)).UTC()
}

// UnixMilli returns the timestamp in milliseconds since the Unix epoch.
func (ts Timestamp) UnixMilli() int64 { return ts.Time().UnixMilli() }

// Before reports whether ts is earlier than t.
func (ts Timestamp) Before(t time.Time) bool { return ts.Time().Before(t) }
