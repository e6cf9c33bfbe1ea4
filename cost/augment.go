// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cost

import "gonum.org/v1/gonum/mat"

// Scratch holds the working matrices the augmented-Lagrangian assembly
// needs, sized once for a stacked constraint dimension p (the sum of every
// Constraint.Dim() at a knot) and reused on every call.
type Scratch struct {
	p, n, m  int
	cxw      *mat.Dense // p×n, rows of Cx scaled by the active penalty
	cuw      *mat.Dense // p×m
	tmpNN    *mat.Dense
	tmpMM    *mat.Dense
	tmpMN    *mat.Dense
	gx, gu   *mat.VecDense
	weighted []float64
}

// NewScratch allocates assembly scratch for stacked constraint dimension p,
// state dimension n and control dimension m. Pass m=0 for a terminal-knot
// scratch used with AugmentTerminal, which has no control block.
func NewScratch(p, n, m int) *Scratch {
	s := &Scratch{p: p, n: n, m: m, tmpNN: mat.NewDense(n, n, nil), gx: mat.NewVecDense(n, nil)}
	if m > 0 {
		s.tmpMM = mat.NewDense(m, m, nil)
		s.tmpMN = mat.NewDense(m, n, nil)
		s.gu = mat.NewVecDense(m, nil)
	}
	if p > 0 {
		s.cxw = mat.NewDense(p, n, nil)
		s.weighted = make([]float64, p)
		if m > 0 {
			s.cuw = mat.NewDense(p, m, nil)
		}
	}
	return s
}

// Active reports, for each stacked constraint row, whether it contributes to
// the penalty this iteration: equality rows are always active; inequality
// rows are active when violated (c_i > 0) or already under a positive
// multiplier (λ_i > 0), the standard AL active-set rule.
func Active(c []float64, lambda, mu []float64, equality []bool, out []bool) {
	for i := range c {
		if equality[i] {
			out[i] = true
			continue
		}
		out[i] = c[i] > 0 || lambda[i] > 0
	}
}

// Augment folds the constraint term
//
//	λᵀc + ½cᵀ(Iμ)c
//
// into the plain quadratic cost expansion (l, lx, lu, lxx, luu, lux),
// mutating them in place, and returns the augmented cost value. Iμ is
// diagonal with Iμ_i = μ_i where active[i] is true and 0 otherwise. The
// Hessian contribution uses only Cxᵀ(Iμ)Cx-style Gauss-Newton terms — the
// constraints' own curvature ∂²c is dropped.
func Augment(l float64, lx, lu []float64, lxx, luu, lux *mat.Dense,
	c []float64, Cx, Cu *mat.Dense, lambda, mu []float64, active []bool, s *Scratch) float64 {

	p := len(c)
	if p == 0 {
		return l
	}
	L := l
	for i := 0; i < p; i++ {
		L += lambda[i] * c[i]
		if active[i] {
			L += 0.5 * mu[i] * c[i] * c[i]
		}
	}

	// lx += Cxᵀ(λ + Iμc), lu += Cuᵀ(λ + Iμc)
	for i := 0; i < p; i++ {
		s.weighted[i] = lambda[i]
		if active[i] {
			s.weighted[i] += mu[i] * c[i]
		}
	}
	wv := mat.NewVecDense(p, s.weighted)
	s.gx.MulVec(Cx.T(), wv)
	for i := range lx {
		lx[i] += s.gx.AtVec(i)
	}
	s.gu.MulVec(Cu.T(), wv)
	for i := range lu {
		lu[i] += s.gu.AtVec(i)
	}

	// Hessian: scale each row of Cx,Cu by Iμ_i, then accumulate CxᵀCxw etc.
	s.cxw.Zero()
	s.cuw.Zero()
	for i := 0; i < p; i++ {
		if !active[i] {
			continue
		}
		for j := 0; j < s.n; j++ {
			s.cxw.Set(i, j, mu[i]*Cx.At(i, j))
		}
		for j := 0; j < s.m; j++ {
			s.cuw.Set(i, j, mu[i]*Cu.At(i, j))
		}
	}
	s.tmpNN.Mul(Cx.T(), s.cxw)
	lxx.Add(lxx, s.tmpNN)
	s.tmpMM.Mul(Cu.T(), s.cuw)
	luu.Add(luu, s.tmpMM)
	s.tmpMN.Mul(Cu.T(), s.cxw)
	lux.Add(lux, s.tmpMN)

	return L
}

// LagrangianTerm returns λᵀc + ½cᵀ(Iμ)c alone, without touching any
// gradient/Hessian — used to rank line-search candidates by the same
// augmented cost the backward pass optimized, without the expansion's
// derivative bookkeeping.
func LagrangianTerm(c []float64, lambda, mu []float64, active []bool) float64 {
	total := 0.0
	for i := range c {
		total += lambda[i] * c[i]
		if active[i] {
			total += 0.5 * mu[i] * c[i] * c[i]
		}
	}
	return total
}

// AugmentTerminal is Augment specialized to the terminal knot, which has no
// control block. s must have been built with NewScratch(p, n, 0).
func AugmentTerminal(l float64, lx []float64, lxx *mat.Dense,
	c []float64, Cx *mat.Dense, lambda, mu []float64, active []bool, s *Scratch) float64 {

	p := len(c)
	if p == 0 {
		return l
	}
	L := l
	for i := 0; i < p; i++ {
		L += lambda[i] * c[i]
		if active[i] {
			L += 0.5 * mu[i] * c[i] * c[i]
		}
	}

	for i := 0; i < p; i++ {
		s.weighted[i] = lambda[i]
		if active[i] {
			s.weighted[i] += mu[i] * c[i]
		}
	}
	wv := mat.NewVecDense(p, s.weighted)
	s.gx.MulVec(Cx.T(), wv)
	for i := range lx {
		lx[i] += s.gx.AtVec(i)
	}

	s.cxw.Zero()
	for i := 0; i < p; i++ {
		if !active[i] {
			continue
		}
		for j := 0; j < s.n; j++ {
			s.cxw.Set(i, j, mu[i]*Cx.At(i, j))
		}
	}
	s.tmpNN.Mul(Cx.T(), s.cxw)
	lxx.Add(lxx, s.tmpNN)

	return L
}
