// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cost

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestLQRStageCost(t *testing.T) {
	c := &LQRCost{
		Q:    mat.NewSymDense(2, []float64{1, 0, 0, 2}),
		R:    mat.NewSymDense(1, []float64{0.5}),
		Qf:   mat.NewSymDense(2, []float64{1, 0, 0, 2}),
		XRef: []float64{1, 0},
	}
	x := []float64{2, 1}
	u := []float64{3}
	lx, lu := make([]float64, 2), make([]float64, 1)
	lxx, luu, lux := mat.NewDense(2, 2, nil), mat.NewDense(1, 1, nil), mat.NewDense(1, 2, nil)

	l := c.Stage().Expand(x, u, lx, lu, lxx, luu, lux)

	dx := []float64{1, 1} // x - xref
	want := 0.5*(1*1+2*1*1) + 0.5*0.5*3*3
	if math.Abs(l-want) > 1e-12 {
		t.Fatalf("l = %v, want %v", l, want)
	}
	if lx[0] != dx[0]*1 || lx[1] != dx[1]*2 {
		t.Fatalf("lx = %v", lx)
	}
	if lu[0] != 0.5*3 {
		t.Fatalf("lu = %v", lu)
	}
	if lxx.At(0, 0) != 1 || lxx.At(1, 1) != 2 {
		t.Fatalf("lxx = %v", mat.Formatted(lxx))
	}
	if luu.At(0, 0) != 0.5 {
		t.Fatalf("luu = %v", mat.Formatted(luu))
	}
}

func TestLQRTerminalCost(t *testing.T) {
	c := &LQRCost{Qf: mat.NewSymDense(1, []float64{4}), XRefFinal: []float64{1}}
	lx := make([]float64, 1)
	lxx := mat.NewDense(1, 1, nil)
	l := c.Terminal().Expand([]float64{3}, lx, lxx)
	if math.Abs(l-0.5*4*2*2) > 1e-12 {
		t.Fatalf("l = %v", l)
	}
	if lx[0] != 4*2 {
		t.Fatalf("lx = %v", lx)
	}
}

func TestBoundConstraintRows(t *testing.T) {
	b := &BoundConstraint{
		XMin: []float64{-1, math.Inf(-1)},
		XMax: []float64{1, math.Inf(1)},
		UMin: []float64{-2},
		UMax: []float64{2},
	}
	if got, want := b.Dim(), 4; got != want {
		t.Fatalf("Dim() = %d, want %d", got, want)
	}
	c := make([]float64, 4)
	Cx := mat.NewDense(4, 2, nil)
	Cu := mat.NewDense(4, 1, nil)
	b.Expand([]float64{2, 5}, []float64{3}, c, Cx, Cu)
	// rows: xMin[0]-x[0], x[0]-xMax[0], uMin[0]-u[0], u[0]-uMax[0]
	want := []float64{-1 - 2, 2 - 1, -2 - 3, 3 - 2}
	for i, w := range want {
		if c[i] != w {
			t.Fatalf("c[%d] = %v, want %v", i, c[i], w)
		}
	}
	if b.Kind() != Inequality {
		t.Fatalf("Kind() = %v", b.Kind())
	}
}

func TestGoalConstraint(t *testing.T) {
	g := &GoalConstraint{XF: []float64{1, math.NaN(), 3}}
	if got, want := g.Dim(), 2; got != want {
		t.Fatalf("Dim() = %d, want %d", got, want)
	}
	c := make([]float64, 2)
	Cx := mat.NewDense(2, 3, nil)
	g.Expand([]float64{2, 9, 1}, c, Cx)
	if c[0] != 1 || c[1] != -2 {
		t.Fatalf("c = %v", c)
	}
	if Cx.At(0, 0) != 1 || Cx.At(1, 2) != 1 {
		t.Fatalf("Cx = %v", mat.Formatted(Cx))
	}
	if g.Kind() != Equality {
		t.Fatalf("Kind() = %v", g.Kind())
	}
}

func TestAugmentAddsConstraintTerms(t *testing.T) {
	n, m, p := 2, 1, 1
	lx, lu := []float64{1, 1}, []float64{1}
	lxx := mat.NewDense(n, n, []float64{1, 0, 0, 1})
	luu := mat.NewDense(m, m, []float64{1})
	lux := mat.NewDense(m, n, []float64{0, 0})

	c := []float64{0.5} // violated inequality
	Cx := mat.NewDense(p, n, []float64{1, 0})
	Cu := mat.NewDense(p, m, []float64{0})
	lambda := []float64{0.2}
	mu := []float64{10}
	equality := []bool{false}
	active := make([]bool, p)
	Active(c, lambda, mu, equality, active)
	if !active[0] {
		t.Fatalf("expected row to be active")
	}

	s := NewScratch(p, n, m)
	L := Augment(3, lx, lu, lxx, luu, lux, c, Cx, Cu, lambda, mu, active, s)

	wantL := 3 + lambda[0]*c[0] + 0.5*mu[0]*c[0]*c[0]
	if math.Abs(L-wantL) > 1e-12 {
		t.Fatalf("L = %v, want %v", L, wantL)
	}
	wantLx0 := 1 + (lambda[0] + mu[0]*c[0])
	if math.Abs(lx[0]-wantLx0) > 1e-12 {
		t.Fatalf("lx[0] = %v, want %v", lx[0], wantLx0)
	}
	wantLxx0 := 1 + mu[0]*1*1
	if math.Abs(lxx.At(0, 0)-wantLxx0) > 1e-12 {
		t.Fatalf("lxx[0,0] = %v, want %v", lxx.At(0, 0), wantLxx0)
	}
}

func TestAugmentInactiveInequalityLeavesHessianUnchanged(t *testing.T) {
	n, m, p := 1, 1, 1
	lx, lu := []float64{0}, []float64{0}
	lxx := mat.NewDense(n, n, []float64{2})
	luu := mat.NewDense(m, m, []float64{2})
	lux := mat.NewDense(m, n, []float64{0})

	c := []float64{-5} // deep in the feasible region
	Cx := mat.NewDense(p, n, []float64{1})
	Cu := mat.NewDense(p, m, []float64{0})
	lambda := []float64{0}
	mu := []float64{10}
	equality := []bool{false}
	active := make([]bool, p)
	Active(c, lambda, mu, equality, active)
	if active[0] {
		t.Fatalf("expected row to be inactive")
	}

	s := NewScratch(p, n, m)
	Augment(1, lx, lu, lxx, luu, lux, c, Cx, Cu, lambda, mu, active, s)
	if lxx.At(0, 0) != 2 {
		t.Fatalf("lxx[0,0] changed for an inactive row: %v", lxx.At(0, 0))
	}
}
