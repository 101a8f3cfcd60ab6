package specialist

import (
	"context"
	"fmt"
	"sync"

	"github.com/MendeTr/BatterySim/pkg/planner"
	"github.com/MendeTr/BatterySim/pkg/types"
)

// ScheduleName identifies the schedule specialist in decisions.
const ScheduleName = "schedule"

// Schedule replays a day-ahead plan built by the planner. It carries
// the lowest priority so any reactive specialist wins a conflict, and
// its confidence reflects that plans are built on forecasts.
type Schedule struct {
	mu   sync.Mutex
	plan *planner.Plan
}

// NewSchedule returns a schedule specialist with no plan loaded.
func NewSchedule() *Schedule {
	return &Schedule{}
}

func (s *Schedule) Name() string { return ScheduleName }

// SetPlan swaps in a new day's plan. A nil plan disables the
// specialist until the next plan arrives.
func (s *Schedule) SetPlan(plan *planner.Plan) {
	s.mu.Lock()
	s.plan = plan
	s.mu.Unlock()
}

func (s *Schedule) Evaluate(ctx context.Context, hc types.HourlyContext) *types.Recommendation {
	s.mu.Lock()
	plan := s.plan
	s.mu.Unlock()
	if plan.Empty() {
		return nil
	}
	if hc.Hour < 0 || hc.Hour >= len(plan.Slots) {
		return nil
	}
	slot := plan.Slots[hc.Hour]
	if slot.Action != types.ActionCharge && slot.Action != types.ActionDischarge {
		return nil
	}
	if slot.KWH < minActionKWH {
		return nil
	}

	return &types.Recommendation{
		Specialist: s.Name(),
		Action:     slot.Action,
		KWH:        slot.KWH,
		ValueSEK:   slot.ValueSEK,
		Priority:   types.PriorityLow,
		Confidence: 0.6,
		Timestamp:  hc.Timestamp,
		Rationale:  fmt.Sprintf("planned %s of %.1f kWh (%s)", slot.Action, slot.KWH, slot.Reason),
	}
}
