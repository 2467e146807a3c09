package mapi

import (
	"math"
	"time"
)

const (
	ticksPerSecond = 10_000_000
	// seconds from 1601-01-01 to 1970-01-01
	filetimeUnixOffset = 11_644_473_600
	maxYear            = 9999
)

// FiletimeToTime converts 100ns ticks since 1601-01-01 UTC to a UTC time.
// Zero ticks mean "not set" and yield the zero time with a nil error.
// Values past year 9999 return ErrTimestampOutOfRange.
func FiletimeToTime(ticks uint64) (time.Time, error) {
	if ticks == 0 {
		return time.Time{}, nil
	}
	// Split before converting so the tick count never has to fit a Duration.
	secs := int64(ticks / ticksPerSecond)
	nsec := int64(ticks%ticksPerSecond) * 100
	t := time.Unix(secs-filetimeUnixOffset, nsec).UTC()
	if t.Year() > maxYear {
		return time.Time{}, ErrTimestampOutOfRange
	}
	return t, nil
}

// TimeToFiletime is the inverse of FiletimeToTime. The zero time maps to 0.
func TimeToFiletime(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	secs := t.Unix() + filetimeUnixOffset
	if secs < 0 {
		return 0
	}
	return uint64(secs)*ticksPerSecond + uint64(t.Nanosecond()/100)
}

var oleEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// OLE automation dates cover years 100 through 9999.
const (
	minOLEDate = -657434.0
	maxOLEDate = 2958466.0
)

// OLEDateToTime converts an OLE automation date (fractional days since
// 1899-12-30) to UTC.
func OLEDateToTime(days float64) (time.Time, error) {
	if math.IsNaN(days) || days < minOLEDate || days >= maxOLEDate {
		return time.Time{}, ErrTimestampOutOfRange
	}
	whole, frac := math.Modf(days)
	t := oleEpoch.AddDate(0, 0, int(whole))
	// The fraction is the time of day independent of the sign of whole.
	return t.Add(time.Duration(math.Abs(frac) * float64(24*time.Hour))), nil
}
