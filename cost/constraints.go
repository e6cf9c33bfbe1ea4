// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cost

import "gonum.org/v1/gonum/mat"

// BoundConstraint enforces elementwise box bounds on state and/or control,
// expanded as one inequality row per finite bound: xMin[i]-x[i] ≤ 0,
// x[i]-xMax[i] ≤ 0, and likewise for u. Pass math.Inf(±1) (or a nil slice)
// for an unbounded component.
type BoundConstraint struct {
	XMin, XMax []float64
	UMin, UMax []float64

	rows []boundRow
}

type boundRow struct {
	isState bool // state row vs control row
	idx     int
	lower   bool // xMin-x ≤ 0 vs x-xMax ≤ 0
}

func finite(v float64) bool {
	return v == v && v < 1e300 && v > -1e300
}

func (b *BoundConstraint) build() {
	if b.rows != nil {
		return
	}
	for i, v := range b.XMin {
		if finite(v) {
			b.rows = append(b.rows, boundRow{true, i, true})
		}
	}
	for i, v := range b.XMax {
		if finite(v) {
			b.rows = append(b.rows, boundRow{true, i, false})
		}
	}
	for i, v := range b.UMin {
		if finite(v) {
			b.rows = append(b.rows, boundRow{false, i, true})
		}
	}
	for i, v := range b.UMax {
		if finite(v) {
			b.rows = append(b.rows, boundRow{false, i, false})
		}
	}
}

func (b *BoundConstraint) Dim() int {
	b.build()
	return len(b.rows)
}

func (b *BoundConstraint) Kind() Kind { return Inequality }

func (b *BoundConstraint) Expand(x, u []float64, c []float64, Cx, Cu *mat.Dense) {
	b.build()
	Cx.Zero()
	Cu.Zero()
	for r, row := range b.rows {
		if row.isState {
			if row.lower {
				c[r] = b.XMin[row.idx] - x[row.idx]
				Cx.Set(r, row.idx, -1)
			} else {
				c[r] = x[row.idx] - b.XMax[row.idx]
				Cx.Set(r, row.idx, 1)
			}
		} else {
			if row.lower {
				c[r] = b.UMin[row.idx] - u[row.idx]
				Cu.Set(r, row.idx, -1)
			} else {
				c[r] = u[row.idx] - b.UMax[row.idx]
				Cu.Set(r, row.idx, 1)
			}
		}
	}
}

// GoalConstraint pins the final state to xf via the equality x_N - xf = 0.
// Any index with NaN in xf is left unconstrained.
type GoalConstraint struct {
	XF []float64

	rows []int
}

func (g *GoalConstraint) build() {
	if g.rows != nil || len(g.XF) == 0 {
		return
	}
	for i, v := range g.XF {
		if v == v { // not NaN
			g.rows = append(g.rows, i)
		}
	}
}

func (g *GoalConstraint) Dim() int {
	g.build()
	return len(g.rows)
}

func (g *GoalConstraint) Kind() Kind { return Equality }

func (g *GoalConstraint) Expand(x []float64, c []float64, Cx *mat.Dense) {
	g.build()
	Cx.Zero()
	for r, idx := range g.rows {
		c[r] = x[idx] - g.XF[idx]
		Cx.Set(r, idx, 1)
	}
}
