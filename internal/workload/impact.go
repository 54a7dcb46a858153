/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package workload

import (
	"context"
)

// StageLoad is prospective new work for one stage.
type StageLoad struct {
	StageID        string  `json:"stage_id"`
	EstimatedHours float64 `json:"estimated_hours"`
}

// Impact projects the effect of adding new workload to a stage,
// computed before a batch is committed so callers can warn about
// stages that would become bottlenecks.
type Impact struct {
	StageID             string  `json:"stage_id"`
	StageName           string  `json:"stage_name"`
	CurrentQueueDays    int     `json:"current_queue_days"`
	AdditionalDays      float64 `json:"additional_days"`
	NewQueueDays        float64 `json:"new_queue_days"`
	UtilizationIncrease float64 `json:"utilization_increase"` // fraction of one effective day
}

// EstimateImpact aggregates the prospective hours per stage and
// projects each stage's new queue depth. Stages keep the order of
// their first appearance in newWork.
func (a *Analyzer) EstimateImpact(ctx context.Context, newWork []StageLoad) ([]Impact, error) {
	hoursByStage := make(map[string]float64)
	var order []string
	for _, load := range newWork {
		if _, seen := hoursByStage[load.StageID]; !seen {
			order = append(order, load.StageID)
		}
		hoursByStage[load.StageID] += load.EstimatedHours
	}

	impacts := make([]Impact, 0, len(order))
	for _, stageID := range order {
		snap, err := a.StageWorkload(ctx, stageID)
		if err != nil {
			return nil, err
		}

		hours := hoursByStage[stageID]
		additional := 0.0
		if snap.DailyCapacityHours > 0 {
			additional = hours / snap.DailyCapacityHours
		}

		impacts = append(impacts, Impact{
			StageID:             snap.StageID,
			StageName:           snap.StageName,
			CurrentQueueDays:    snap.QueueDays,
			AdditionalDays:      additional,
			NewQueueDays:        float64(snap.QueueDays) + additional,
			UtilizationIncrease: additional,
		})
	}
	return impacts, nil
}
