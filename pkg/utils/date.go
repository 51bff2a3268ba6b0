package utils

import (
	"log"
	"time"
)

// TimeNowSaoPaulo returns the current time in the B3 exchange timezone.
func TimeNowSaoPaulo() time.Time {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		log.Fatal("Failed to load location", err)
	}
	return time.Now().In(loc)
}

// DateOnly truncates a time to midnight, keeping its location.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// FormatB3Date formats a date the way the B3 portfolio endpoint expects (dd/mm/yy).
func FormatB3Date(t time.Time) string {
	return t.Format("02/01/06")
}

// IsWeekend reports whether the given date falls on a Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
