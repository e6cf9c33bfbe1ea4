// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/trajopt/ilqr/cost"
	"github.com/trajopt/ilqr/dynamics"
	"github.com/trajopt/ilqr/models"
	"github.com/trajopt/ilqr/trajectory"
)

// fixture bundles a demo dynamics.Model with the goal state its swing-up/
// balance cost drives toward, so buildProblem can stay model-agnostic.
type fixture struct {
	model dynamics.Model
	xInit []float64
	xGoal []float64
	uMax  float64
}

func lookupFixture(name string) (fixture, error) {
	switch name {
	case "pendulum":
		return fixture{
			model: models.NewPendulum(),
			xInit: []float64{0, 0},
			xGoal: []float64{math.Pi, 0},
			uMax:  6,
		}, nil
	case "cartpole":
		return fixture{
			model: models.NewCartPole(),
			xInit: []float64{0, 0, 0, 0},
			xGoal: []float64{0, 0, math.Pi, 0},
			uMax:  15,
		}, nil
	default:
		return fixture{}, fmt.Errorf("trajopt: unknown model %q (want pendulum or cartpole)", name)
	}
}

// buildProblem assembles a trajectory.Problem for fx: quadratic tracking
// cost to xGoal plus a control-bound constraint (control-bounded
// swing-up).
func buildProblem(fx fixture, rule dynamics.Rule, N int, dt float64) trajectory.Problem {
	n, m := fx.model.StateDim(), fx.model.ControlDim()

	Q := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		Q.SetSym(i, i, 1e-2)
	}
	R := mat.NewSymDense(m, nil)
	for i := 0; i < m; i++ {
		R.SetSym(i, i, 1e-3)
	}
	Qf := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		Qf.SetSym(i, i, 50)
	}
	lqr := &cost.LQRCost{Q: Q, R: R, Qf: Qf, XRefFinal: fx.xGoal}

	uMax := make([]float64, m)
	uMin := make([]float64, m)
	for i := range uMax {
		uMax[i] = fx.uMax
		uMin[i] = -fx.uMax
	}
	bound := &cost.BoundConstraint{UMin: uMin, UMax: uMax}

	return trajectory.Problem{
		N: N, Dt: dt, XInit: fx.xInit,
		Model: fx.model, Rule: rule,
		Stage: lqr.Stage(), Terminal: lqr.Terminal(),
		Constraints: []cost.Constraint{bound},
	}
}
