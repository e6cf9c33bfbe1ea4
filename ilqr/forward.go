// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ilqr

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/trajopt/ilqr/cost"
	"github.com/trajopt/ilqr/dynamics"
	"github.com/trajopt/ilqr/trajectory"
)

// forwardWorkspace holds the scratch evaluateShadowCost needs to re-expand
// the plain+augmented cost of a candidate line-search trajectory, sized
// once for (n,m,p,pf) and reused on every trial alpha.
type forwardWorkspace struct {
	dx     []float64
	lx, lu []float64
	lxx, luu, lux *mat.Dense

	c       []float64
	active  []bool
	cx, cu  *mat.Dense

	lxf  []float64
	lxxf *mat.Dense

	cf      []float64
	activeF []bool
	cxf     *mat.Dense
}

func newForwardWorkspace(n, m, p, pf int) *forwardWorkspace {
	w := &forwardWorkspace{
		dx: make([]float64, n),
		lx: make([]float64, n), lu: make([]float64, m),
		lxx: mat.NewDense(n, n, nil), luu: mat.NewDense(m, m, nil), lux: mat.NewDense(m, n, nil),
		lxf:  make([]float64, n),
		lxxf: mat.NewDense(n, n, nil),
	}
	if p > 0 {
		w.c = make([]float64, p)
		w.active = make([]bool, p)
		w.cx, w.cu = mat.NewDense(p, n, nil), mat.NewDense(p, m, nil)
	}
	if pf > 0 {
		w.cf = make([]float64, pf)
		w.activeF = make([]bool, pf)
		w.cxf = mat.NewDense(pf, n, nil)
	}
	return w
}

// forwardPass rolls the closed-loop policy ub_k = u_k + alpha*d_k +
// K_k*(xb_k - x_k), where x/u is the nominal trajectory d.X/d.U, out from
// x_0 into the shadow d.Xb/d.Ub for a line-search step alpha, and reports the
// resulting cost and whether every knot stayed finite.
func forwardPass(spec *trajectory.Spec, d *trajectory.Data, ws *dynamics.Workspace, fw *forwardWorkspace, alpha float64) (shadowCost float64, finite bool) {
	n := spec.StateDim()
	dx := fw.dx
	copy(d.Xb[0], d.X[0])

	for k := 0; k < spec.N; k++ {
		for i := 0; i < n; i++ {
			dx[i] = d.Xb[k][i] - d.X[k][i]
		}
		m := spec.ControlDim()
		for i := 0; i < m; i++ {
			u := d.U[k][i] + alpha*d.D[k][i]
			for j := 0; j < n; j++ {
				u += d.K[k].At(i, j) * dx[j]
			}
			d.Ub[k][i] = u
			if math.IsNaN(u) || math.IsInf(u, 0) {
				return math.Inf(1), false
			}
		}
		dynamics.Discrete(spec.Rule, spec.Model, d.Xb[k], d.Ub[k], spec.Dt, ws, d.Xb[k+1])
		for i := 0; i < n; i++ {
			if v := d.Xb[k+1][i]; math.IsNaN(v) || math.IsInf(v, 0) {
				return math.Inf(1), false
			}
		}
	}

	return evaluateShadowCost(spec, d, fw), true
}

// evaluateShadowCost computes the augmented stage+terminal cost (plain cost
// plus the λᵀc + ½cᵀIμc terms) of the shadow trajectory Xb/Ub — used only
// to rank line-search candidates by the same cost the backward pass
// optimized.
func evaluateShadowCost(spec *trajectory.Spec, d *trajectory.Data, fw *forwardWorkspace) float64 {
	p := spec.StageConstraintDim()

	total := 0.0
	for k := 0; k < spec.N; k++ {
		l := spec.Stage.Expand(d.Xb[k], d.Ub[k], fw.lx, fw.lu, fw.lxx, fw.luu, fw.lux)
		if p > 0 {
			stackConstraints(spec.Constraints, d.Xb[k], d.Ub[k], fw.c, fw.cx, fw.cu)
			cost.Active(fw.c, d.Lambda[k], d.Mu[k], d.Equality, fw.active)
			l += cost.LagrangianTerm(fw.c, d.Lambda[k], d.Mu[k], fw.active)
		}
		total += l
	}

	lf := spec.Terminal.Expand(d.Xb[spec.N], fw.lxf, fw.lxxf)
	pf := spec.TerminalConstraintDim()
	if pf > 0 {
		stackTerminalConstraints(spec.TerminalConstraints, d.Xb[spec.N], fw.cf, fw.cxf)
		cost.Active(fw.cf, d.LambdaF, d.MuF, d.EqualityF, fw.activeF)
		lf += cost.LagrangianTerm(fw.cf, d.LambdaF, d.MuF, fw.activeF)
	}
	return total + lf
}
