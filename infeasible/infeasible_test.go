// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package infeasible

import (
	"context"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/trajopt/ilqr/al"
	"github.com/trajopt/ilqr/cost"
	"github.com/trajopt/ilqr/dynamics"
	"github.com/trajopt/ilqr/ilqr"
	"github.com/trajopt/ilqr/models"
	"github.com/trajopt/ilqr/trajectory"
)

// buildPendulumGuess linearly interpolates between x0 and xf to produce an
// initial state trajectory that is not, in general, dynamically consistent
// with a zero control guess.
func buildPendulumGuess(n int, x0, xf []float64) [][]float64 {
	out := make([][]float64, n+1)
	for k := 0; k <= n; k++ {
		t := float64(k) / float64(n)
		out[k] = []float64{
			x0[0] + t*(xf[0]-x0[0]),
			x0[1] + t*(xf[1]-x0[1]),
		}
	}
	return out
}

func TestSolveReconcilesInfeasibleGuessAndReachesGoal(t *testing.T) {
	const N = 51
	x0 := []float64{0, 0}
	xf := []float64{math.Pi, 0}
	dt := 0.1

	Q := mat.NewSymDense(2, []float64{0.1, 0, 0, 0.1})
	R := mat.NewSymDense(1, []float64{0.1})
	Qf := mat.NewSymDense(2, []float64{1000, 0, 0, 1000})
	lqr := &cost.LQRCost{Q: Q, R: R, Qf: Qf, XRefFinal: xf}

	base := trajectory.Problem{
		N: N, Dt: dt, XInit: x0,
		Model: models.NewPendulum(), Rule: dynamics.RK4,
		Stage: lqr.Stage(), Terminal: lqr.Terminal(),
		Constraints: []cost.Constraint{&cost.BoundConstraint{
			XMin: []float64{-10, -10}, XMax: []float64{10, 10},
			UMin: []float64{-3}, UMax: []float64{3},
		}},
	}

	x0Traj := buildPendulumGuess(N, x0, xf)
	u0Traj := make([][]float64, N)
	for k := range u0Traj {
		u0Traj[k] = []float64{0}
	}

	p, err := Wrap(base, x0Traj, u0Traj)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}

	res, data, err := Solve(context.Background(),
		p,
		ilqr.Options{MaxIterations: 200},
		al.Options{MaxOuterIterations: 30, InitialPenalty: 1e3},
		ilqr.Options{MaxIterations: 50},
	)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if res.MaxSlack > 1e-2 {
		t.Fatalf("MaxSlack = %v, want driven toward 0", res.MaxSlack)
	}

	final := data.X[N]
	dx, dy := final[0]-xf[0], final[1]-xf[1]
	if mag := math.Sqrt(dx*dx + dy*dy); mag > 1e-1 {
		t.Fatalf("final state %v did not reach goal %v (dist %v)", final, xf, mag)
	}
}

func TestWrapRejectsMismatchedGuessLength(t *testing.T) {
	base := trajectory.Problem{
		N: 5, Dt: 0.1, XInit: []float64{0, 0},
		Model: models.NewPendulum(), Rule: dynamics.RK4,
		Stage:    (&cost.LQRCost{Q: mat.NewSymDense(2, nil), R: mat.NewSymDense(1, []float64{1}), Qf: mat.NewSymDense(2, nil)}).Stage(),
		Terminal: (&cost.LQRCost{Q: mat.NewSymDense(2, nil), R: mat.NewSymDense(1, []float64{1}), Qf: mat.NewSymDense(2, nil)}).Terminal(),
	}
	x0Traj := make([][]float64, 3) // wrong: want N+1 = 6
	for i := range x0Traj {
		x0Traj[i] = []float64{0, 0}
	}
	u0Traj := make([][]float64, 5)
	for i := range u0Traj {
		u0Traj[i] = []float64{0}
	}
	if _, err := Wrap(base, x0Traj, u0Traj); err == nil {
		t.Fatal("expected an error for a mismatched guess length")
	}
}

