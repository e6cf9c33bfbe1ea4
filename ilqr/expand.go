// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ilqr

import (
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/trajopt/ilqr/cost"
	"github.com/trajopt/ilqr/dynamics"
	"github.com/trajopt/ilqr/trajectory"
)

// knotChunks splits [0,n) into at most workers contiguous ranges, dropping
// empty ranges when n is smaller than workers.
func knotChunks(n, workers int) [][2]int {
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}
	size := (n + workers - 1) / workers
	var chunks [][2]int
	for lo := 0; lo < n; lo += size {
		hi := lo + size
		if hi > n {
			hi = n
		}
		chunks = append(chunks, [2]int{lo, hi})
	}
	return chunks
}

// linearize fills A[k],B[k] with the discrete dynamics Jacobian at every
// stage knot of the current nominal trajectory. jws holds one
// JacobianWorkspace per potential worker; with parallel set, knots are
// split across them concurrently via errgroup, each worker using its own
// scratch so no knot's Jacobian evaluation races another knot's.
func linearize(spec *trajectory.Spec, d *trajectory.Data, jws []*dynamics.JacobianWorkspace, parallel bool) {
	if !parallel || len(jws) <= 1 {
		linearizeRange(spec, d, jws[0], 0, spec.N)
		return
	}
	chunks := knotChunks(spec.N, len(jws))
	var g errgroup.Group
	for i, c := range chunks {
		i, c := i, c
		g.Go(func() error {
			linearizeRange(spec, d, jws[i], c[0], c[1])
			return nil
		})
	}
	g.Wait()
}

func linearizeRange(spec *trajectory.Spec, d *trajectory.Data, jw *dynamics.JacobianWorkspace, lo, hi int) {
	for k := lo; k < hi; k++ {
		dynamics.DiscreteJacobian(spec.Rule, spec.Model, d.X[k], d.U[k], spec.Dt, jw, d.A[k], d.B[k])
	}
}

// expand evaluates the augmented-Lagrangian cost expansion at every knot of
// the current nominal trajectory, writing Lx/Lu/Lxx/Luu/Lux and the
// terminal equivalents, and accumulates d.Cost. Per-knot work is
// independent of every other knot's, so with parallel set the stage loop is
// split across goroutines and the partial sums combined after Wait.
func expand(spec *trajectory.Spec, d *trajectory.Data, parallel bool) {
	d.Cost = 0

	workers := 1
	if parallel {
		workers = runtime.GOMAXPROCS(0)
	}
	chunks := knotChunks(spec.N, workers)
	partial := make([]float64, len(chunks))

	if len(chunks) <= 1 {
		partial[0] = expandRange(spec, d, d.StageScratch, 0, spec.N)
	} else {
		// Each chunk runs on its own goroutine, so each needs its own
		// cost.Scratch — d.StageScratch is shared mutable assembly space
		// and cannot be used concurrently by cost.Augment.
		n, m := spec.StateDim(), spec.ControlDim()
		var g errgroup.Group
		for i, c := range chunks {
			i, c := i, c
			scratch := cost.NewScratch(spec.StageConstraintDim(), n, m)
			g.Go(func() error {
				partial[i] = expandRange(spec, d, scratch, c[0], c[1])
				return nil
			})
		}
		g.Wait()
	}
	for _, p := range partial {
		d.Cost += p
	}

	lf := spec.Terminal.Expand(d.X[spec.N], d.Lxf, d.Lxxf)
	if spec.TerminalConstraintDim() > 0 {
		stackTerminalConstraints(spec.TerminalConstraints, d.X[spec.N], d.Cf, d.Cxf)
		cost.Active(d.Cf, d.LambdaF, d.MuF, d.EqualityF, d.ActiveF)
		lf = cost.AugmentTerminal(lf, d.Lxf, d.Lxxf, d.Cf, d.Cxf, d.LambdaF, d.MuF, d.ActiveF, d.TermScratch)
	}
	d.Cost += lf
}

func expandRange(spec *trajectory.Spec, d *trajectory.Data, scratch *cost.Scratch, lo, hi int) float64 {
	sum := 0.0
	for k := lo; k < hi; k++ {
		l := spec.Stage.Expand(d.X[k], d.U[k], d.Lx[k], d.Lu[k], d.Lxx[k], d.Luu[k], d.Lux[k])
		d.StageCost[k] = l

		if spec.StageConstraintDim() > 0 {
			stackConstraints(spec.Constraints, d.X[k], d.U[k], d.C[k], d.Cx[k], d.Cu[k])
			cost.Active(d.C[k], d.Lambda[k], d.Mu[k], d.Equality, d.Active[k])
			l = cost.Augment(l, d.Lx[k], d.Lu[k], d.Lxx[k], d.Luu[k], d.Lux[k],
				d.C[k], d.Cx[k], d.Cu[k], d.Lambda[k], d.Mu[k], d.Active[k], scratch)
		}
		sum += l
	}
	return sum
}

// stackConstraints evaluates every Constraint at (x,u) and stacks the
// results into the pre-sized c/Cx/Cu buffers in declaration order. Each
// constraint writes directly into its row-range view of Cx/Cu — Dense.Slice
// shares the backing array, so no per-constraint matrix is allocated.
func stackConstraints(cs []cost.Constraint, x, u []float64, c []float64, Cx, Cu *mat.Dense) {
	row := 0
	_, n := Cx.Dims()
	_, m := Cu.Dims()
	for _, con := range cs {
		p := con.Dim()
		subCx := Cx.Slice(row, row+p, 0, n).(*mat.Dense)
		subCu := Cu.Slice(row, row+p, 0, m).(*mat.Dense)
		con.Expand(x, u, c[row:row+p], subCx, subCu)
		row += p
	}
}

func stackTerminalConstraints(cs []cost.TerminalConstraint, x []float64, c []float64, Cx *mat.Dense) {
	row := 0
	_, n := Cx.Dims()
	for _, con := range cs {
		p := con.Dim()
		subCx := Cx.Slice(row, row+p, 0, n).(*mat.Dense)
		con.Expand(x, c[row:row+p], subCx)
		row += p
	}
}
