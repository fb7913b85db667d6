package agent

import (
	"context"
	"fmt"
	"time"

	"datasteward/internal/logging"
)

// RunSimulation executes one daily cycle per simulated day, invoking onDay
// after each completed cycle (nil is allowed). A failed day is logged and
// skipped; the remaining days still run.
func (a *Agent) RunSimulation(ctx context.Context, startDate string, days int, onDay func(CycleResult)) ([]CycleResult, error) {
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return nil, fmt.Errorf("parsing start date %q: %w", startDate, err)
	}

	results := make([]CycleResult, 0, days)
	for day := 1; day <= days; day++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		date := start.AddDate(0, 0, day-1).Format("2006-01-02")
		result, err := a.RunDailyCycle(ctx, date, day)
		if err != nil {
			logging.CycleError("day %d (%s) failed: %v", day, date, err)
			continue
		}
		results = append(results, result)
		if onDay != nil {
			onDay(result)
		}
	}
	return results, nil
}
