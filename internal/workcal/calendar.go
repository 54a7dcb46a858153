/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package workcal implements the working calendar: conversion between
// absolute (UTC) timestamps and local business time, working-day
// classification, and clamping into a stage's working-hours window.
// All slot arithmetic happens in local time; timestamps cross back to
// UTC only at the storage boundary, through this package.
package workcal

import (
	"fmt"
	"time"
)

// Window is a stage's daily working-hours window, expressed in minutes
// since local midnight. EndMinute must be greater than StartMinute.
type Window struct {
	StartMinute int
	EndMinute   int
}

// Valid reports whether the window is well formed.
func (w Window) Valid() bool {
	return w.StartMinute >= 0 && w.EndMinute <= 24*60 && w.EndMinute > w.StartMinute
}

// Minutes returns the window length in minutes.
func (w Window) Minutes() int {
	return w.EndMinute - w.StartMinute
}

// Calendar converts between absolute and local business time and knows
// which days are working days. Saturday and Sunday are always
// non-working; additional holidays come from configuration.
type Calendar struct {
	loc      *time.Location
	holidays map[string]struct{}
}

// New builds a calendar for the named IANA timezone. Holiday entries
// are ISO dates (2006-01-02) in the business timezone.
func New(timezone string, holidays []string) (*Calendar, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	set := make(map[string]struct{}, len(holidays))
	for _, h := range holidays {
		if _, err := time.ParseInLocation("2006-01-02", h, loc); err != nil {
			return nil, fmt.Errorf("invalid holiday date %q: %w", h, err)
		}
		set[h] = struct{}{}
	}
	return &Calendar{loc: loc, holidays: set}, nil
}

// Location returns the business timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// ToLocal converts an absolute instant to local business time.
func (c *Calendar) ToLocal(t time.Time) time.Time {
	return t.In(c.loc)
}

// ToAbsolute reinterprets a wall-clock local time in the business
// timezone and returns the corresponding UTC instant.
func (c *Calendar) ToAbsolute(local time.Time) time.Time {
	y, m, d := local.Date()
	return time.Date(y, m, d, local.Hour(), local.Minute(), local.Second(), local.Nanosecond(), c.loc).UTC()
}

// IsWorkingDay reports whether the local date is a working day.
func (c *Calendar) IsWorkingDay(local time.Time) bool {
	local = c.ToLocal(local)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.holidays[local.Format("2006-01-02")]
	return !holiday
}

// DayStart returns local midnight of the given local time.
func (c *Calendar) DayStart(local time.Time) time.Time {
	local = c.ToLocal(local)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc)
}

// AtMinute returns the local time at the given minute offset from
// midnight on the same local date as day.
func (c *Calendar) AtMinute(day time.Time, minute int) time.Time {
	return c.DayStart(day).Add(time.Duration(minute) * time.Minute)
}

// NextWorkingDay returns local midnight of the first working day
// strictly after the given local date.
func (c *Calendar) NextWorkingDay(local time.Time) time.Time {
	day := c.DayStart(local).AddDate(0, 0, 1)
	for !c.IsWorkingDay(day) {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

// ClampToWindow moves a local time into the working window. Before the
// window it snaps to the same-day window start; at or past the window
// end, or on a non-working day, it snaps to the window start of the
// next working day. Sub-minute precision is dropped.
func (c *Calendar) ClampToWindow(local time.Time, win Window) time.Time {
	local = c.ToLocal(local).Truncate(time.Minute)
	if !c.IsWorkingDay(local) {
		return c.AtMinute(c.NextWorkingDay(local), win.StartMinute)
	}
	minute := local.Hour()*60 + local.Minute()
	switch {
	case minute < win.StartMinute:
		return c.AtMinute(local, win.StartMinute)
	case minute >= win.EndMinute:
		return c.AtMinute(c.NextWorkingDay(local), win.StartMinute)
	}
	return local
}

// AddWorkingDays advances n working days from the given local date,
// preserving the time of day. n must be non-negative.
func (c *Calendar) AddWorkingDays(local time.Time, n int) time.Time {
	local = c.ToLocal(local)
	for i := 0; i < n; i++ {
		next := c.NextWorkingDay(local)
		local = next.Add(time.Duration(local.Hour()*60+local.Minute()) * time.Minute)
	}
	return local
}

// WorkingDaysBetween counts working days in [from, to), by local date.
func (c *Calendar) WorkingDaysBetween(from, to time.Time) int {
	day := c.DayStart(from)
	end := c.DayStart(to)
	count := 0
	for day.Before(end) {
		if c.IsWorkingDay(day) {
			count++
		}
		day = day.AddDate(0, 0, 1)
	}
	return count
}
