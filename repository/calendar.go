package repository

import (
	"time"

	"ridecast.dev/transit/model"
)

// ActiveOn reports whether serviceID runs on the given date, combining
// calendar.txt's weekday/date-range rule with calendar_dates.txt's
// per-date additions and removals. An unknown serviceID is never
// active.
func (r *Repository) ActiveOn(serviceID string, date time.Time) bool {
	active := false

	if cal, ok := r.Calendars[serviceID]; ok {
		start, sErr := time.ParseInLocation("20060102", cal.StartDate, time.UTC)
		end, eErr := time.ParseInLocation("20060102", cal.EndDate, time.UTC)
		if sErr == nil && eErr == nil {
			d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
			if !d.Before(start) && !d.After(end) {
				active = cal.ActiveOnWeekday(int(date.Weekday()))
			}
		}
	}

	dateStr := date.Format("20060102")
	for _, cd := range r.CalendarDates[serviceID] {
		if cd.Date != dateStr {
			continue
		}
		switch cd.ExceptionType {
		case model.ExceptionServiceAdded:
			active = true
		case model.ExceptionServiceRemoved:
			active = false
		}
	}

	return active
}
