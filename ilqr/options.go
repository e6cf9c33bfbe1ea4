// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ilqr implements the inner Gauss-Newton DDP (iterative LQR) loop:
// a Riccati backward sweep under Levenberg-Marquardt-style regularization,
// followed by a line-searched closed-loop forward rollout. It operates on
// the already-augmented cost expansion a trajectory.Data carries, so it has
// no opinion of its own about constraints — that is the outer augmented
// Lagrangian's job.
package ilqr

import "math"

// Options configures one Fit call. Every field has a documented default
// applied by DefaultOptions; a caller only needs to override what matters.
type Options struct {
	MaxIterations int
	// CostTolerance stops the loop once the relative cost decrease between
	// consecutive accepted iterations falls below this value.
	CostTolerance float64
	// GradientTolerance stops the loop once the feedforward term's norm
	// falls below this value, independent of cost decrease.
	GradientTolerance float64

	// RegInit/RegMin/RegMax bound the Levenberg-Marquardt regularization ρ
	// added to Q_uu's diagonal. RegScaleUp/RegScaleDown are the
	// multiplicative factors ρ is scaled by after a failed/accepted step.
	RegInit, RegMin, RegMax float64
	RegScaleUp, RegScaleDown float64

	// LineSearchIterations bounds the backtracking bisection: the forward
	// pass tries alpha = 1, 1/2, 1/4, ..., 2^-LineSearchIterations. If none
	// is accepted, ρ is scaled by RegScaleUp and the iteration is retried;
	// Fit ends with LineSearchFailure once ρ exceeds RegMax.
	LineSearchIterations int
	// LineSearchSufficientDecrease is the Armijo-style coefficient c1 a
	// trial step's actual/expected cost decrease ratio must exceed.
	LineSearchSufficientDecrease float64

	// Parallel expands the per-knot Jacobian/cost at each stage knot
	// concurrently via golang.org/x/sync/errgroup. Only worth enabling for
	// long horizons or expensive dynamics models.
	Parallel bool

	// SquareRoot selects the square-root backward pass, which propagates
	// the value function through its Cholesky factor via QR rather than
	// forming S_k = AᵀSA+... as an explicit sum. It costs more flops per
	// knot than backwardPass and only pays for itself on long, ill-
	// conditioned horizons; it never changes K_k/d_k beyond line-search
	// tolerance, so leave it off unless backwardPass is failing its
	// Cholesky test before ρ saturates.
	SquareRoot bool
}

// DefaultOptions returns the options used when a zero Options is supplied.
func DefaultOptions() Options {
	return Options{
		MaxIterations:                100,
		CostTolerance:                1e-5,
		GradientTolerance:            1e-8,
		RegInit:                      1e-6,
		RegMin:                       1e-9,
		RegMax:                       1e10,
		RegScaleUp:                   10,
		RegScaleDown:                 0.1,
		LineSearchIterations:         25,
		LineSearchSufficientDecrease: 1e-4,
	}
}

func (o *Options) fillDefaults() {
	d := DefaultOptions()
	if o.MaxIterations == 0 {
		o.MaxIterations = d.MaxIterations
	}
	if o.CostTolerance == 0 {
		o.CostTolerance = d.CostTolerance
	}
	if o.GradientTolerance == 0 {
		o.GradientTolerance = d.GradientTolerance
	}
	if o.RegInit == 0 {
		o.RegInit = d.RegInit
	}
	if o.RegMin == 0 {
		o.RegMin = d.RegMin
	}
	if o.RegMax == 0 {
		o.RegMax = d.RegMax
	}
	if o.RegScaleUp == 0 {
		o.RegScaleUp = d.RegScaleUp
	}
	if o.RegScaleDown == 0 {
		o.RegScaleDown = d.RegScaleDown
	}
	if o.LineSearchIterations == 0 {
		o.LineSearchIterations = d.LineSearchIterations
	}
	if o.LineSearchSufficientDecrease == 0 {
		o.LineSearchSufficientDecrease = d.LineSearchSufficientDecrease
	}
}

// Status is the final task status after a Fit call.
type Status int

const (
	Converged Status = iota
	MaxIterationsReached
	LineSearchFailure
	RegularizationMax
	Cancelled
	InvalidInput
)

func (s Status) String() string {
	switch s {
	case Converged:
		return "converged"
	case MaxIterationsReached:
		return "max iterations reached"
	case LineSearchFailure:
		return "line search failure"
	case RegularizationMax:
		return "regularization max"
	case Cancelled:
		return "cancelled"
	case InvalidInput:
		return "invalid input"
	default:
		return "unknown"
	}
}

// Summary reports how a Fit call ended.
type Summary struct {
	Status   Status
	NumIter  int
	Cost     float64
	GradNorm float64
}

// Result is the outcome of a Fit call.
type Result struct {
	OK bool
	Summary
}

func norm2(xs ...[]float64) float64 {
	sum := 0.0
	for _, x := range xs {
		for _, v := range x {
			sum += v * v
		}
	}
	return math.Sqrt(sum)
}
