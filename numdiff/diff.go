// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package numdiff estimates Jacobians by finite differences. It is the
// fallback path used whenever a dynamics.Model does not implement
// dynamics.JacobianModel with an analytic derivative: central-difference
// rather than dual-number/autodiff, following scipy's numerical-
// differentiation routine.
//
// Reference: https://github.com/scipy/scipy/blob/main/scipy/optimize/_numdiff.py
package numdiff

import "math"

var sqrtEps = math.Sqrt(math.Nextafter(1, 2) - 1)
var cubeEps = math.Pow(math.Nextafter(1, 2)-1, 1.0/3)

// Method selects the finite-difference stencil.
type Method int

const (
	// Forward uses the first-order-accurate forward difference.
	Forward Method = iota
	// Central uses the second-order-accurate central difference, falling
	// back to one-sided differences near a bound.
	Central
)

// Bound is an inclusive [lower, upper] range; use ±Inf for no bound.
type Bound [2]float64

// Estimator estimates the Jacobian of Fn: R^N -> R^M by finite differences,
// reusing its scratch buffers across calls so that repeated estimation
// (once per knot, every outer iteration) does not allocate.
type Estimator struct {
	N, M int
	// Fn evaluates y = f(x); y has length M.
	Fn func(x, y []float64)
	// Method selects the stencil; Central is recommended for the accuracy
	// iLQR's Gauss-Newton approximation needs.
	Method Method
	// Bounds optionally limits function evaluations to a feasible range
	// (used when a Model's state is itself box-constrained).
	Bounds []Bound
	// RelStep/AbsStep override the automatically selected step size.
	RelStep, AbsStep float64

	f0, f1, f2 []float64
	step       []float64
	oneSided   []bool
}

func (e *Estimator) init() {
	if len(e.f0) != e.M {
		e.f0 = make([]float64, e.M)
		e.f1 = make([]float64, e.M)
		e.f2 = make([]float64, e.M)
	}
	if len(e.step) != e.N {
		e.step = make([]float64, e.N)
		e.oneSided = make([]bool, e.N)
	}
}

// Jacobian writes the estimated Jacobian into out, row-major by output
// index: out[i*N+j] = ∂f_i/∂x_j (matching gonum's mat.Dense row-major
// backing so callers can wrap out directly with mat.NewDense).
func (e *Estimator) Jacobian(x0 []float64, out []float64) {
	e.init()
	bounded := false
	for _, b := range e.Bounds {
		if !math.IsInf(b[0], 0) || !math.IsInf(b[1], 0) {
			bounded = true
			break
		}
	}
	e.chooseStep(x0)
	if bounded {
		e.clampToBounds(x0)
	} else {
		for i := range e.oneSided {
			e.oneSided[i] = false
		}
	}
	if e.Method == Central {
		e.central(x0, out)
	} else {
		e.forward(x0, out)
	}
}

func (e *Estimator) chooseStep(x0 []float64) {
	eps := sqrtEps
	if e.Method == Central {
		eps = cubeEps
	}
	for i, v := range x0 {
		s := e.AbsStep
		if s == 0 {
			rel := e.RelStep
			if rel == 0 {
				s = math.Copysign(eps, v) * math.Max(1, math.Abs(v))
			} else {
				s = math.Copysign(rel, v) * math.Abs(v)
				if (v+s)-v == 0 {
					s = math.Copysign(eps, v) * math.Max(1, math.Abs(v))
				}
			}
		}
		e.step[i] = s
	}
	if e.Method == Central {
		for i, s := range e.step {
			e.step[i] = math.Abs(s)
		}
	}
}

func (e *Estimator) clampToBounds(x0 []float64) {
	for i, v := range x0 {
		lb, ub := e.Bounds[i][0], e.Bounds[i][1]
		lowerGap, upperGap := v-lb, ub-v
		s := e.step[i]
		if e.Method == Forward {
			fits := math.Abs(s) < math.Max(lowerGap, upperGap)
			outside := v+s < lb || v+s > ub
			switch {
			case outside && fits:
				e.step[i] = -s
			case !fits:
				if upperGap >= lowerGap {
					e.step[i] = upperGap
				} else {
					e.step[i] = -lowerGap
				}
			}
		} else {
			central := lowerGap >= s && upperGap >= s
			if !central {
				if upperGap >= lowerGap {
					e.step[i] = math.Min(s, 0.5*upperGap)
					e.oneSided[i] = true
				} else {
					e.step[i] = -math.Min(s, 0.5*lowerGap)
					e.oneSided[i] = true
				}
			}
			minGap := math.Min(upperGap, lowerGap)
			if !central && math.Abs(e.step[i]) <= minGap {
				e.step[i] = minGap
				e.oneSided[i] = false
			}
		}
	}
}

func (e *Estimator) forward(x0, out []float64) {
	n, m := e.N, e.M
	e.Fn(x0, e.f0)
	for i, s := range e.step {
		v := x0[i]
		x0[i] = v + s
		e.Fn(x0, e.f1)
		x0[i] = v
		inv := 1 / s
		for j := 0; j < m; j++ {
			out[j*n+i] = (e.f1[j] - e.f0[j]) * inv
		}
	}
}

func (e *Estimator) central(x0, out []float64) {
	n, m := e.N, e.M
	e.Fn(x0, e.f0)
	for i, s := range e.step {
		v := x0[i]
		if e.oneSided[i] {
			x0[i] = v + s
			e.Fn(x0, e.f1)
			x0[i] = v + 2*s
			e.Fn(x0, e.f2)
			inv := 1 / (2 * s)
			for j := 0; j < m; j++ {
				out[j*n+i] = (4*e.f1[j] - 3*e.f0[j] - e.f2[j]) * inv
			}
		} else {
			x0[i] = v - s
			e.Fn(x0, e.f1)
			x0[i] = v + s
			e.Fn(x0, e.f2)
			inv := 1 / (2 * s)
			for j := 0; j < m; j++ {
				out[j*n+i] = (e.f2[j] - e.f1[j]) * inv
			}
		}
		x0[i] = v
	}
}
