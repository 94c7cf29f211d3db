package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// PolicyKind selects how the decision engine resolves ranked matches.
type PolicyKind string

// Resolution policies.
const (
	PolicyBest      PolicyKind = "best"
	PolicyThreshold PolicyKind = "threshold"
	PolicyAll       PolicyKind = "all"
)

// DefaultThreshold is used when a threshold policy is requested without a value.
const DefaultThreshold = 0.7

// Policy is a resolution policy with its parameter.
type Policy struct {
	Kind      PolicyKind `json:"kind"`
	Threshold float64    `json:"threshold,omitempty"`
}

// Best returns the Best policy.
func Best() Policy { return Policy{Kind: PolicyBest} }

// Threshold returns the Threshold(t) policy.
func Threshold(t float64) Policy { return Policy{Kind: PolicyThreshold, Threshold: t} }

// All returns the All policy.
func All() Policy { return Policy{Kind: PolicyAll} }

// ParsePolicy parses "best", "all", "threshold" or "threshold:0.8". A bare
// "threshold" uses fallbackThreshold, or DefaultThreshold when that is zero.
func ParsePolicy(s string, fallbackThreshold float64) (Policy, error) {
	name, arg, hasArg := strings.Cut(strings.ToLower(strings.TrimSpace(s)), ":")
	switch PolicyKind(name) {
	case PolicyBest:
		return Best(), nil
	case PolicyAll:
		return All(), nil
	case PolicyThreshold:
		t := fallbackThreshold
		if t == 0 {
			t = DefaultThreshold
		}
		if hasArg {
			v, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				return Policy{}, fmt.Errorf("invalid threshold %q: %w", arg, err)
			}
			t = v
		}
		p := Threshold(t)
		return p, p.Validate()
	default:
		return Policy{}, fmt.Errorf("unknown policy %q (must be best, threshold or all)", s)
	}
}

// Validate checks the policy parameters.
func (p Policy) Validate() error {
	switch p.Kind {
	case PolicyBest, PolicyAll:
		return nil
	case PolicyThreshold:
		if p.Threshold < 0 || p.Threshold > 1 {
			return fmt.Errorf("threshold %.3f out of range [0,1]", p.Threshold)
		}
		return nil
	default:
		return fmt.Errorf("unknown policy %q", p.Kind)
	}
}

// String renders the policy as accepted by ParsePolicy.
func (p Policy) String() string {
	if p.Kind == PolicyThreshold {
		return string(p.Kind) + ":" + strconv.FormatFloat(p.Threshold, 'f', -1, 64)
	}
	return string(p.Kind)
}
