// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cost

import "gonum.org/v1/gonum/mat"

// LQRCost is the prebuilt quadratic tracking cost
//
//	ℓ_k(x,u) = ½(x-xref)ᵀQ(x-xref) + ½(u-uref)ᵀR(u-uref)
//	ℓ_f(x)   = ½(x-xf)ᵀQf(x-xf)
//
// Q, R, Qf must be symmetric; Q and Qf need only be positive semidefinite
// (R must be positive definite, since Q̃_uu = R + ... must stay invertible
// even with zero constraint weight).
type LQRCost struct {
	Q, R, Qf   *mat.SymDense
	XRef, URef []float64
	XRefFinal  []float64
}

// Stage returns the per-knot StageCost view of c. The returned value carries
// no per-call mutable state of its own — every knot's Expand reads only x/u
// and c's (read-only, shared) Q/R/XRef/URef — so a single *lqrStage is safe
// to call concurrently from every goroutine expand() fans a Parallel solve
// out across, the same way c itself is shared read-only.
func (c *LQRCost) Stage() StageCost {
	return &lqrStage{c: c}
}

// Terminal returns the terminal-knot TerminalCost view of c, likewise
// stateless and safe for concurrent use.
func (c *LQRCost) Terminal() TerminalCost {
	return &lqrTerminal{c: c}
}

type lqrStage struct {
	c *LQRCost
}

// Expand writes Q(x-xref) and R(u-uref) into lx/lu directly, recomputing
// each dx_j/du_j term from x/u/XRef/URef inline rather than caching a
// scratch vector on s — that scratch would otherwise be shared mutable
// state across every knot's call, unsafe when expand() runs knots
// concurrently.
func (s *lqrStage) Expand(x, u []float64, lx, lu []float64, lxx, luu, lux *mat.Dense) float64 {
	c := s.c
	n, m := len(x), len(u)
	l := 0.0
	for i := 0; i < n; i++ {
		acc := 0.0
		for j := 0; j < n; j++ {
			acc += c.Q.At(i, j) * (x[j] - valueOr(c.XRef, j, 0))
		}
		lx[i] = acc
		l += 0.5 * (x[i] - valueOr(c.XRef, i, 0)) * acc
	}
	for i := 0; i < m; i++ {
		acc := 0.0
		for j := 0; j < m; j++ {
			acc += c.R.At(i, j) * (u[j] - valueOr(c.URef, j, 0))
		}
		lu[i] = acc
		l += 0.5 * (u[i] - valueOr(c.URef, i, 0)) * acc
	}
	lxx.CloneFrom(c.Q)
	luu.CloneFrom(c.R)
	lux.Zero()
	return l
}

type lqrTerminal struct {
	c *LQRCost
}

// Expand mirrors lqrStage.Expand's inline-recompute approach for the same
// concurrency reason: no scratch is cached on t.
func (t *lqrTerminal) Expand(x []float64, lx []float64, lxx *mat.Dense) float64 {
	c := t.c
	n := len(x)
	l := 0.0
	for i := 0; i < n; i++ {
		acc := 0.0
		for j := 0; j < n; j++ {
			acc += c.Qf.At(i, j) * (x[j] - valueOr(c.XRefFinal, j, 0))
		}
		lx[i] = acc
		l += 0.5 * (x[i] - valueOr(c.XRefFinal, i, 0)) * acc
	}
	lxx.CloneFrom(c.Qf)
	return l
}

func valueOr(s []float64, i int, def float64) float64 {
	if i < len(s) {
		return s[i]
	}
	return def
}
