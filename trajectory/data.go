// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trajectory

import (
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"github.com/trajopt/ilqr/cost"
)

// Data is the per-knot working set for one solve: the nominal and shadow
// trajectories, the linearization at each knot, the backward-pass outputs,
// and the constraint state the augmented Lagrangian accumulates across
// outer iterations. Init allocates every buffer once; Fit only mutates it.
type Data struct {
	N      int
	Dt     float64
	n, m   int
	pStage int
	pTerm  int

	X, U   [][]float64 // nominal trajectory, length N+1 and N
	Xb, Ub [][]float64 // shadow trajectory used during the forward pass

	A, B []*mat.Dense // discrete Jacobians at each of the N stage knots

	K []*mat.Dense // feedback gains, m×n, one per stage knot
	D [][]float64  // feedforward terms, length m, one per stage knot

	S  []*mat.Dense // value function Hessian, n×n, one per knot (N+1)
	Sv [][]float64  // value function gradient, length n, one per knot (N+1)

	// Augmented cost expansion at each stage knot.
	Lx, Lu    [][]float64
	Lxx       []*mat.Dense
	Luu       []*mat.Dense
	Lux       []*mat.Dense
	Lxf       []float64 // terminal gradient
	Lxxf      *mat.Dense
	StageCost []float64 // ℓ_k value at each stage knot, for cost bookkeeping
	Cost      float64   // total augmented trajectory cost, set by ilqr's expand

	// Stage constraint state, one stacked row-set per stage knot (0..N-1).
	C        [][]float64
	Cx, Cu   []*mat.Dense
	Lambda   [][]float64
	Mu       [][]float64
	Active   [][]bool
	Equality []bool // which stacked rows are equalities, shared across knots

	// Terminal constraint state, evaluated only at knot N.
	Cf        []float64
	Cxf       *mat.Dense
	LambdaF   []float64
	MuF       []float64
	ActiveF   []bool
	EqualityF []bool

	// StageScratch/TermScratch hold the augmented-Lagrangian assembly
	// scratch (see cost.Augment), sized once for pStage/pTerm.
	StageScratch *cost.Scratch
	TermScratch  *cost.Scratch
}

// Init allocates a Data workspace for s, sized once and safe to reuse
// across repeated Fit calls (successive AL outer iterations reuse the same
// Data; only the AL state — Lambda/Mu — persists across a Fit, everything
// else is overwritten each pass).
func (s *Spec) Init() *Data {
	n, m, N := s.n, s.m, s.N
	d := &Data{
		N: N, n: n, m: m,
		pStage: s.pStage, pTerm: s.pTerm,
		StageScratch: cost.NewScratch(s.pStage, n, m),
		TermScratch:  cost.NewScratch(s.pTerm, n, 0),
	}
	d.Dt = s.Dt

	d.X = make([][]float64, N+1)
	d.Xb = make([][]float64, N+1)
	for k := range d.X {
		d.X[k] = make([]float64, n)
		d.Xb[k] = make([]float64, n)
	}
	d.U = make([][]float64, N)
	d.Ub = make([][]float64, N)
	for k := range d.U {
		d.U[k] = make([]float64, m)
		d.Ub[k] = make([]float64, m)
	}

	d.A = make([]*mat.Dense, N)
	d.B = make([]*mat.Dense, N)
	d.K = make([]*mat.Dense, N)
	d.D = make([][]float64, N)
	for k := 0; k < N; k++ {
		d.A[k] = mat.NewDense(n, n, nil)
		d.B[k] = mat.NewDense(n, m, nil)
		d.K[k] = mat.NewDense(m, n, nil)
		d.D[k] = make([]float64, m)
	}

	d.S = make([]*mat.Dense, N+1)
	d.Sv = make([][]float64, N+1)
	for k := 0; k <= N; k++ {
		d.S[k] = mat.NewDense(n, n, nil)
		d.Sv[k] = make([]float64, n)
	}

	d.Lx = make([][]float64, N)
	d.Lu = make([][]float64, N)
	d.Lxx = make([]*mat.Dense, N)
	d.Luu = make([]*mat.Dense, N)
	d.Lux = make([]*mat.Dense, N)
	d.StageCost = make([]float64, N)
	for k := 0; k < N; k++ {
		d.Lx[k] = make([]float64, n)
		d.Lu[k] = make([]float64, m)
		d.Lxx[k] = mat.NewDense(n, n, nil)
		d.Luu[k] = mat.NewDense(m, m, nil)
		d.Lux[k] = mat.NewDense(m, n, nil)
	}
	d.Lxf = make([]float64, n)
	d.Lxxf = mat.NewDense(n, n, nil)

	if s.pStage > 0 {
		d.C = make([][]float64, N)
		d.Cx = make([]*mat.Dense, N)
		d.Cu = make([]*mat.Dense, N)
		d.Lambda = make([][]float64, N)
		d.Mu = make([][]float64, N)
		d.Active = make([][]bool, N)
		for k := 0; k < N; k++ {
			d.C[k] = make([]float64, s.pStage)
			d.Cx[k] = mat.NewDense(s.pStage, n, nil)
			d.Cu[k] = mat.NewDense(s.pStage, m, nil)
			d.Lambda[k] = make([]float64, s.pStage)
			d.Mu[k] = make([]float64, s.pStage)
			d.Active[k] = make([]bool, s.pStage)
		}
		d.Equality = make([]bool, s.pStage)
		row := 0
		for _, c := range s.Constraints {
			eq := c.Kind() == cost.Equality
			for j := 0; j < c.Dim(); j++ {
				d.Equality[row] = eq
				row++
			}
		}
	}

	if s.pTerm > 0 {
		d.Cf = make([]float64, s.pTerm)
		d.Cxf = mat.NewDense(s.pTerm, n, nil)
		d.LambdaF = make([]float64, s.pTerm)
		d.MuF = make([]float64, s.pTerm)
		d.ActiveF = make([]bool, s.pTerm)
		d.EqualityF = make([]bool, s.pTerm)
		row := 0
		for _, c := range s.TerminalConstraints {
			eq := c.Kind() == cost.Equality
			for j := 0; j < c.Dim(); j++ {
				d.EqualityF[row] = eq
				row++
			}
		}
	}

	if len(s.U0) > N {
		slog.Warn("trajectory: U0 longer than N, dropping trailing columns",
			"len", len(s.U0), "N", N)
	}

	copy(d.X[0], s.XInit)
	for k := 0; k < N; k++ {
		if k < len(s.U0) {
			copy(d.U[k], s.U0[k])
		}
	}

	return d
}

// Swap exchanges the nominal and shadow trajectories by pointer, avoiding a
// copy when the forward pass accepts a line-search step.
func (d *Data) Swap() {
	d.X, d.Xb = d.Xb, d.X
	d.U, d.Ub = d.Ub, d.U
}
