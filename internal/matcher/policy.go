package matcher

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/teamresolve/internal/config"
)

// Action is what the matcher does with a top candidate.
type Action string

// Policy actions.
const (
	ActionAccept     Action = "accept"
	ActionReview     Action = "review"
	ActionQuarantine Action = "quarantine"
	ActionCreate     Action = "create"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionAccept, ActionReview, ActionQuarantine, ActionCreate:
		return true
	}
	return false
}

// Band is one row of the policy table. A score matches the first band
// whose MinScore it reaches and, when RequireAgreement is set, whose
// exact-agreement flag holds.
type Band struct {
	Name             string  `yaml:"name"`
	MinScore         float64 `yaml:"min_score"`
	RequireAgreement bool    `yaml:"require_agreement"`
	Action           Action  `yaml:"action"`
	// Detail is recorded on quarantined resolutions.
	Detail string `yaml:"detail,omitempty"`
}

// Policy maps a top score to an action. Default applies when no band
// matches, including when there are no candidates.
type Policy struct {
	Bands   []Band `yaml:"bands"`
	Default Action `yaml:"default"`
}

// DetailLowConfidence is the quarantine detail of the default low band.
const DetailLowConfidence = "low_confidence_match"

// DefaultPolicy builds the standard table from the configured thresholds.
func DefaultPolicy(c config.MatcherConfig) Policy {
	def := ActionCreate
	if !c.CreateOnNoMatch {
		def = ActionQuarantine
	}
	return Policy{
		Bands: []Band{
			{Name: "auto_accept", MinScore: c.AutoAccept, RequireAgreement: true, Action: ActionAccept},
			{Name: "review", MinScore: c.ReviewAgreement, RequireAgreement: true, Action: ActionReview},
			{Name: "review_partial", MinScore: c.ReviewPartial, Action: ActionReview},
			{Name: "low_confidence", MinScore: c.QuarantineFloor, Action: ActionQuarantine, Detail: DetailLowConfidence},
		},
		Default: def,
	}
}

// LoadPolicy reads a policy table from a YAML file with a top-level
// "policy" key.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, eris.Wrapf(err, "matcher: read policy %s", path)
	}

	var wrapper struct {
		Policy Policy `yaml:"policy"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Policy{}, eris.Wrap(err, "matcher: parse policy")
	}

	p := wrapper.Policy
	if p.Default == "" {
		p.Default = ActionCreate
	}
	for i := range p.Bands {
		if p.Bands[i].Name == "" {
			p.Bands[i].Name = fmt.Sprintf("band_%d", i+1)
		}
		if p.Bands[i].Action == ActionQuarantine && p.Bands[i].Detail == "" {
			p.Bands[i].Detail = DetailLowConfidence
		}
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// PolicyFromConfig returns the table named by c.PolicyFile, or the
// default table built from c's thresholds.
func PolicyFromConfig(c config.MatcherConfig) (Policy, error) {
	if c.PolicyFile != "" {
		p, err := LoadPolicy(c.PolicyFile)
		if err != nil {
			return Policy{}, err
		}
		if !c.CreateOnNoMatch && p.Default == ActionCreate {
			p.Default = ActionQuarantine
		}
		return p, nil
	}
	p := DefaultPolicy(c)
	return p, p.Validate()
}

// Validate checks action names, score bounds and band order. Accept bands
// must require agreement so a gender or age disagreement never auto-accepts.
func (p Policy) Validate() error {
	var errs []string
	if !p.Default.Valid() {
		errs = append(errs, fmt.Sprintf("default action %q is unknown", p.Default))
	}
	if p.Default == ActionAccept {
		errs = append(errs, "default action cannot be accept")
	}
	for i, b := range p.Bands {
		if !b.Action.Valid() {
			errs = append(errs, fmt.Sprintf("band %s: action %q is unknown", b.Name, b.Action))
		}
		if b.MinScore < 0 || b.MinScore > 1 {
			errs = append(errs, fmt.Sprintf("band %s: min_score must be within [0,1]", b.Name))
		}
		if b.Action == ActionAccept && !b.RequireAgreement {
			errs = append(errs, fmt.Sprintf("band %s: accept requires require_agreement", b.Name))
		}
		if i > 0 && b.MinScore > p.Bands[i-1].MinScore {
			errs = append(errs, fmt.Sprintf("band %s: min_score %.2f exceeds previous band", b.Name, b.MinScore))
		}
	}
	if len(errs) > 0 {
		return eris.Errorf("matcher: invalid policy: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Decide returns the band for score. Unmatched scores get a synthetic
// "default" band carrying p.Default.
func (p Policy) Decide(score float64, exactAgreement bool) Band {
	for _, b := range p.Bands {
		if score < b.MinScore {
			continue
		}
		if b.RequireAgreement && !exactAgreement {
			continue
		}
		return b
	}
	return p.NoMatch()
}

// NoMatch is the band applied when no candidate clears any band.
func (p Policy) NoMatch() Band {
	b := Band{Name: "default", Action: p.Default}
	if b.Action == ActionQuarantine {
		b.Detail = "no_match"
	}
	return b
}
