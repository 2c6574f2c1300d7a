// Package scorer computes explainable [0,1] confidence scores for candidate team pairings.
package scorer

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/teamresolve/internal/config"
)

// DefaultScorerConfig returns a config.ScorerConfig with the reference
// weights. Weights sum to 1.
func DefaultScorerConfig() config.ScorerConfig {
	return config.ScorerConfig{
		NameWeight:        0.55,
		GenderWeight:      0.15,
		AgeWeight:         0.25,
		PriorWeight:       0.05,
		AdjacentAgeCredit: 0.5,
	}
}

// WeightSum returns the sum of all component weights.
func WeightSum(c config.ScorerConfig) float64 {
	return c.NameWeight + c.GenderWeight + c.AgeWeight + c.PriorWeight
}

// ValidateConfig checks that c is usable with the given auto-accept
// threshold. The gender share of the normalized weights must exceed
// 1-autoAccept so a gender disagreement can never auto-accept.
func ValidateConfig(c config.ScorerConfig, autoAccept float64) error {
	var errs []string

	weights := map[string]float64{
		"name_weight":   c.NameWeight,
		"gender_weight": c.GenderWeight,
		"age_weight":    c.AgeWeight,
		"prior_weight":  c.PriorWeight,
	}
	for name, w := range weights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}
	if c.AdjacentAgeCredit < 0 || c.AdjacentAgeCredit > 1 {
		errs = append(errs, "adjacent_age_credit must be within [0,1]")
	}

	sum := WeightSum(c)
	if sum <= 0 {
		errs = append(errs, "weights must sum to a positive number")
	} else if share := c.GenderWeight / sum; share <= 1-autoAccept+1e-9 {
		errs = append(errs, fmt.Sprintf("gender weight share %.3f must exceed 1-auto_accept (%.3f)", share, 1-autoAccept))
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// round4 keeps totals stable against float drift at threshold boundaries.
func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
