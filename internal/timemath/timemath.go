// Package timemath converts wall-clock durations into approximate business
// hours. It is not calendar aware: no holidays, no time zones.
package timemath

import (
	"errors"
	"time"
)

// BusinessFraction is the share of calendar time counted as business time:
// 8 of 24 hours, 5 of 7 days.
const BusinessFraction = (8.0 / 24.0) * (5.0 / 7.0)

// ErrInvalidTimestamp reports an interval whose end precedes its start.
var ErrInvalidTimestamp = errors.New("end timestamp precedes start")

// BusinessHoursBetween returns the approximate business hours between start
// and end. A reversed interval yields 0.
func BusinessHoursBetween(start, end time.Time) float64 {
	h, _ := Between(start, end)
	return h
}

// Between is BusinessHoursBetween but also returns ErrInvalidTimestamp when
// end < start, so callers can flag the clamp. The value is still 0 in that case.
func Between(start, end time.Time) (float64, error) {
	if end.Before(start) {
		return 0, ErrInvalidTimestamp
	}
	return end.Sub(start).Hours() * BusinessFraction, nil
}

// CalendarHours converts business hours back into wall-clock hours.
func CalendarHours(businessHours float64) float64 {
	if businessHours <= 0 {
		return 0
	}
	return businessHours / BusinessFraction
}
