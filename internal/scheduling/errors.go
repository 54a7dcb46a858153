/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduling

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCapacity indicates the horizon was exhausted without a
	// feasible slot for the requested duration.
	ErrNoCapacity = errors.New("no capacity within horizon")

	// ErrInvalidStageConfig indicates a stage whose capacity or working
	// window makes scheduling impossible.
	ErrInvalidStageConfig = errors.New("invalid stage configuration")
)

// NoCapacityError reports which stage and duration could not be placed
// and within what horizon, so an operator can extend capacity or split
// the job.
type NoCapacityError struct {
	StageID         string
	StageName       string
	DurationMinutes int
	HorizonDays     int
}

func (e *NoCapacityError) Error() string {
	name := e.StageName
	if name == "" {
		name = e.StageID
	}
	return fmt.Sprintf("no capacity on stage %s for %d minutes within %d working days", name, e.DurationMinutes, e.HorizonDays)
}

func (e *NoCapacityError) Unwrap() error {
	return ErrNoCapacity
}

// InvalidStageError reports a stage whose configuration prevents any
// scheduling on it.
type InvalidStageError struct {
	StageID string
	Reason  string
}

func (e *InvalidStageError) Error() string {
	return fmt.Sprintf("stage %s: %s", e.StageID, e.Reason)
}

func (e *InvalidStageError) Unwrap() error {
	return ErrInvalidStageConfig
}
