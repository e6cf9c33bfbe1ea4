// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dynamics provides the continuous/discrete dynamics abstraction:
// a capability record carried by the problem, plus the explicit single-step
// integrators used to turn it into f_d.
package dynamics

import "gonum.org/v1/gonum/mat"

// Model evaluates the continuous dynamics ẋ = f(x,u) for a fixed state and
// control dimension. Implementations must be safe for concurrent read-only
// use across knots (see Options.Parallel in package ilqr).
type Model interface {
	StateDim() int
	ControlDim() int
	// Dynamics writes ẋ into xdot. xdot has length StateDim().
	Dynamics(x, u, xdot []float64)
}

// JacobianModel is the optional capability a Model may implement to supply
// an analytic continuous Jacobian. When absent, callers fall back to the
// numdiff-based estimator (see package numdiff).
type JacobianModel interface {
	Model
	// Jacobian writes ∂f/∂x into A (n×n) and ∂f/∂u into B (n×m).
	Jacobian(x, u []float64, A, B *mat.Dense)
}

// HasAnalyticJacobian reports whether m implements JacobianModel.
// DiscreteJacobian and JacobianWorkspace.Continuous call it on every
// evaluation, so the type assertion is repeated per knot.
func HasAnalyticJacobian(m Model) (JacobianModel, bool) {
	jm, ok := m.(JacobianModel)
	return jm, ok
}
