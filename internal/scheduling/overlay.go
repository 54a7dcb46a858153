/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduling

import (
	"sort"
	"time"
)

// Interval is a provisional [Start, End) reservation in local business time.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Minutes returns the interval length in whole minutes.
func (iv Interval) Minutes() int {
	return int(iv.End.Sub(iv.Start) / time.Minute)
}

// Overlay holds the in-memory reservations of one batch-scheduling
// call, keyed by stage and local calendar date, so a slot chosen for an
// earlier request is visible to later requests before anything is
// persisted. An Overlay is owned by a single ScheduleBatch invocation
// and is not safe for concurrent use.
type Overlay struct {
	intervals map[string][]Interval
}

// NewOverlay creates an empty overlay.
func NewOverlay() *Overlay {
	return &Overlay{intervals: make(map[string][]Interval)}
}

func overlayKey(stageID string, day time.Time) string {
	return stageID + "|" + day.Format("2006-01-02")
}

// Add records a provisional reservation, keeping the day's intervals
// ordered by start time.
func (o *Overlay) Add(stageID string, day time.Time, iv Interval) {
	key := overlayKey(stageID, day)
	list := o.intervals[key]
	i := sort.Search(len(list), func(i int) bool { return !list[i].Start.Before(iv.Start) })
	list = append(list, Interval{})
	copy(list[i+1:], list[i:])
	list[i] = iv
	o.intervals[key] = list
}

// Intervals returns a copy of the reservations for a stage/date key.
func (o *Overlay) Intervals(stageID string, day time.Time) []Interval {
	list := o.intervals[overlayKey(stageID, day)]
	if len(list) == 0 {
		return nil
	}
	out := make([]Interval, len(list))
	copy(out, list)
	return out
}

// Minutes returns the total reserved minutes for a stage/date key.
func (o *Overlay) Minutes(stageID string, day time.Time) int {
	total := 0
	for _, iv := range o.intervals[overlayKey(stageID, day)] {
		total += iv.Minutes()
	}
	return total
}
