// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dynamics

import "fmt"

// Rule selects the explicit, single-step, zero-order-hold integration
// scheme used to turn a continuous Model into discrete_dynamics. It must be
// chosen at problem construction; an unknown name is a construction-time
// error (InvalidInput), never a silent default.
type Rule int

const (
	// Midpoint uses the implicit-midpoint-style explicit rule
	// x' = x + dt*f(x + dt/2*f(x,u), u).
	Midpoint Rule = iota
	// RK3 is the third-order Runge-Kutta rule.
	RK3
	// RK4 is the standard four-stage zero-order-hold Runge-Kutta rule.
	RK4
	// RawStep treats Model.Dynamics as the discrete step function x'=f(x,u)
	// directly, applying no integrator composition. It exists for models
	// that are natively discrete-time (e.g. the infeasible-start wrapper's
	// slack-augmented model, which must add its slack exactly once per
	// knot rather than have it integrated through RK sub-stages). It is
	// not resolvable by name through ParseRule — a caller must select it
	// by constructing the Rule value directly, which keeps "unknown rule
	// name is a construction-time error" true for every string a problem
	// description can name.
	RawStep
)

func (r Rule) String() string {
	switch r {
	case Midpoint:
		return "midpoint"
	case RK3:
		return "rk3"
	case RK4:
		return "rk4"
	case RawStep:
		return "rawstep"
	default:
		return fmt.Sprintf("rule(%d)", int(r))
	}
}

// ParseRule resolves a rule by name, matching the construction-time
// validation pattern used throughout this module's New() constructors.
func ParseRule(name string) (Rule, error) {
	switch name {
	case "midpoint":
		return Midpoint, nil
	case "rk3":
		return RK3, nil
	case "rk4":
		return RK4, nil
	default:
		return 0, fmt.Errorf("dynamics: unknown integrator rule %q", name)
	}
}
