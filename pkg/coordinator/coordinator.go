// Package coordinator turns a set of specialist recommendations into a
// single dispatch decision for the hour. Vetoes win outright,
// compatible recommendations are combined, and conflicts are resolved
// by priority, then value, then confidence. Whatever comes out is
// clamped to what the battery can physically do.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/MendeTr/BatterySim/pkg/log"
	"github.com/MendeTr/BatterySim/pkg/specialist"
	"github.com/MendeTr/BatterySim/pkg/types"
)

// Coordinator runs the specialists and arbitrates their output.
type Coordinator struct {
	specialists []specialist.Specialist

	decisions         int
	vetoes            int
	conflictsResolved int
	metrics           map[string]*types.SpecialistMetrics
}

// New returns a coordinator over the given specialists. Order matters
// only for logging; arbitration is purely by the recommendation fields.
func New(specialists ...specialist.Specialist) *Coordinator {
	c := &Coordinator{
		specialists: specialists,
		metrics:     make(map[string]*types.SpecialistMetrics),
	}
	for _, s := range specialists {
		c.metrics[s.Name()] = &types.SpecialistMetrics{}
	}
	return c
}

// Decide evaluates every specialist against the hour and arbitrates.
// It always returns a decision; with no recommendations the battery
// holds.
func (c *Coordinator) Decide(ctx context.Context, hc types.HourlyContext) types.Decision {
	c.decisions++

	var recs []types.Recommendation
	for _, s := range c.specialists {
		m := c.metrics[s.Name()]
		m.Calls++
		rec := s.Evaluate(ctx, hc)
		if rec == nil {
			continue
		}
		if err := rec.Validate(); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "dropping invalid recommendation",
				slog.String("specialist", s.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		m.Recommendations++
		recs = append(recs, *rec)
	}

	if len(recs) == 0 {
		return types.Decision{
			Timestamp: hc.Timestamp,
			Action:    types.ActionHold,
			Rationale: "no specialist recommendations",
		}
	}

	decision := c.arbitrate(ctx, hc, recs)
	c.clamp(ctx, hc, &decision)
	for _, name := range decision.Specialists {
		if m, ok := c.metrics[name]; ok {
			m.TotalValueSEK += decision.ValueSEK / float64(len(decision.Specialists))
		}
	}
	return decision
}

func (c *Coordinator) arbitrate(ctx context.Context, hc types.HourlyContext, recs []types.Recommendation) types.Decision {
	// A veto short-circuits everything else.
	for _, rec := range recs {
		if !rec.Veto {
			continue
		}
		c.vetoes++
		overridden := make([]string, 0, len(recs)-1)
		for _, other := range recs {
			if other.Specialist != rec.Specialist {
				overridden = append(overridden, other.Specialist)
			}
		}
		if len(overridden) > 0 {
			log.Ctx(ctx).InfoContext(ctx, "veto overrides recommendations",
				slog.String("specialist", rec.Specialist),
				slog.String("overridden", strings.Join(overridden, ",")),
			)
		}
		return decisionFrom(rec, true)
	}

	if len(recs) == 1 {
		return decisionFrom(recs[0], false)
	}

	// Combine compatible recommendations: same action and the summed
	// quantity still fits the hour's power budget.
	if combined, ok := c.combine(hc, recs); ok {
		return combined
	}

	// Conflict: priority ascending (1 is most urgent), then value
	// descending, then confidence descending.
	c.conflictsResolved++
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Priority != recs[j].Priority {
			return recs[i].Priority < recs[j].Priority
		}
		if recs[i].ValueSEK != recs[j].ValueSEK {
			return recs[i].ValueSEK > recs[j].ValueSEK
		}
		return recs[i].Confidence > recs[j].Confidence
	})
	winner := recs[0]
	log.Ctx(ctx).DebugContext(ctx, "conflict resolved",
		slog.String("winner", winner.Specialist),
		slog.Int("candidates", len(recs)),
		slog.Float64("valueSEK", winner.ValueSEK),
	)
	return decisionFrom(winner, false)
}

// combine merges same-action recommendations when their summed
// quantity fits the battery's hourly budget. Quantities and values are
// summed, confidence is averaged, and the most urgent priority sets
// the combined priority.
func (c *Coordinator) combine(hc types.HourlyContext, recs []types.Recommendation) (types.Decision, bool) {
	action := recs[0].Action
	var totalKWH, totalValue, totalConfidence float64
	names := make([]string, 0, len(recs))
	rationales := make([]string, 0, len(recs))
	for _, rec := range recs {
		if rec.Action != action {
			return types.Decision{}, false
		}
		totalKWH += rec.KWH
		totalValue += rec.ValueSEK
		totalConfidence += rec.Confidence
		names = append(names, rec.Specialist)
		rationales = append(rationales, rec.Rationale)
	}

	budget := hc.MaxDischargeKWH()
	if action == types.ActionCharge {
		budget = hc.MaxChargeKWH()
	}
	if totalKWH > budget {
		return types.Decision{}, false
	}

	return types.Decision{
		Timestamp:   hc.Timestamp,
		Action:      action,
		KWH:         totalKWH,
		ValueSEK:    totalValue,
		Confidence:  totalConfidence / float64(len(recs)),
		Specialists: names,
		Rationale:   strings.Join(rationales, "; "),
	}, true
}

// clamp forces the decision inside the battery's physical limits. A
// clipped decision keeps its action but loses quantity, and is flagged
// so the simulation ledger can account for it.
func (c *Coordinator) clamp(ctx context.Context, hc types.HourlyContext, d *types.Decision) {
	var limit float64
	switch d.Action {
	case types.ActionDischarge, types.ActionExport:
		limit = hc.MaxDischargeKWH()
	case types.ActionCharge:
		limit = hc.MaxChargeKWH()
	default:
		d.KWH = 0
		return
	}
	if d.KWH <= limit {
		return
	}
	log.Ctx(ctx).WarnContext(ctx, "clamping decision to battery limits",
		slog.String("action", string(d.Action)),
		slog.Float64("requestedKWH", d.KWH),
		slog.Float64("limitKWH", limit),
	)
	if d.KWH > 0 {
		d.ValueSEK *= limit / d.KWH
	}
	d.KWH = math.Max(0, limit)
	d.Clipped = true
	if d.KWH == 0 {
		d.Action = types.ActionHold
		d.ValueSEK = 0
		d.Rationale = fmt.Sprintf("%s (clamped to hold: battery cannot deliver)", d.Rationale)
	}
}

// Decisions returns how many hours the coordinator has arbitrated.
func (c *Coordinator) Decisions() int { return c.decisions }

// Vetoes returns how many decisions were settled by a veto.
func (c *Coordinator) Vetoes() int { return c.vetoes }

// ConflictsResolved returns how many decisions required tie-breaking.
func (c *Coordinator) ConflictsResolved() int { return c.conflictsResolved }

// Metrics returns a copy of the per-specialist counters.
func (c *Coordinator) Metrics() map[string]types.SpecialistMetrics {
	out := make(map[string]types.SpecialistMetrics, len(c.metrics))
	for name, m := range c.metrics {
		out[name] = *m
	}
	return out
}

func decisionFrom(rec types.Recommendation, veto bool) types.Decision {
	return types.Decision{
		Timestamp:   rec.Timestamp,
		Action:      rec.Action,
		KWH:         rec.KWH,
		ValueSEK:    rec.ValueSEK,
		Confidence:  rec.Confidence,
		Specialists: []string{rec.Specialist},
		Veto:        veto,
		Rationale:   rec.Rationale,
	}
}
