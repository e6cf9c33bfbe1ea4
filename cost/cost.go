// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cost provides the stage/terminal cost and constraint oracles
// plus the augmented-Lagrangian assembly formula that turns a plain
// quadratic expansion into the one the backward pass actually consumes.
package cost

import "gonum.org/v1/gonum/mat"

// StageCost is a per-knot cost oracle ℓ_k(x,u). Expand writes the gradient
// into lx,lu (length n,m) and the Hessian blocks into lxx (n×n), luu (m×m),
// lux (m×n), and returns the cost value.
type StageCost interface {
	Expand(x, u []float64, lx, lu []float64, lxx, luu, lux *mat.Dense) (l float64)
}

// TerminalCost is the terminal cost oracle ℓ_f(x_N).
type TerminalCost interface {
	Expand(x []float64, lx []float64, lxx *mat.Dense) (l float64)
}

// Kind tags a constraint as inequality (g(x,u) ≤ 0) or equality (h(x,u) = 0).
type Kind int

const (
	Inequality Kind = iota
	Equality
)

// Constraint is a per-knot constraint oracle. Expand writes the constraint
// value into c (length Dim()) and the Jacobians into Cx (Dim()×n) and Cu
// (Dim()×m).
type Constraint interface {
	Dim() int
	Kind() Kind
	Expand(x, u []float64, c []float64, Cx, Cu *mat.Dense)
}

// TerminalConstraint is a constraint evaluated only at the final knot.
type TerminalConstraint interface {
	Dim() int
	Kind() Kind
	Expand(x []float64, c []float64, Cx *mat.Dense)
}
