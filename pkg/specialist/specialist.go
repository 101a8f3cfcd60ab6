// Package specialist holds the per-strategy evaluators of the dispatch
// engine. Each specialist looks at one hour of context and proposes at
// most one action with a priority, a confidence, and a SEK value; the
// coordinator arbitrates between them.
package specialist

import (
	"context"

	"github.com/MendeTr/BatterySim/pkg/types"
)

// minActionKWH is the smallest quantity worth acting on. Anything
// below it is noise against inverter losses.
const minActionKWH = 0.5

// Specialist evaluates one hour of context and proposes at most one
// recommendation. Returning nil means "nothing to do from my angle".
type Specialist interface {
	Name() string
	Evaluate(ctx context.Context, hc types.HourlyContext) *types.Recommendation
}
