// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ilqr

import (
	"gonum.org/v1/gonum/mat"

	"github.com/trajopt/ilqr/trajectory"
)

// backwardWorkspace holds the scratch the Riccati recursion needs, sized
// once for (n,m) and reused at every outer/inner iteration.
type backwardWorkspace struct {
	n, m int

	qx, qu        []float64  // n, m : Q_x, Q_u
	qxx           *mat.Dense // n×n
	quu           *mat.Dense // m×m
	qux           *mat.Dense // m×n
	quuReg        *mat.SymDense
	chol          mat.Cholesky

	atS, btS       *mat.Dense // n×n, m×n : AᵀS, BᵀS
	tmpNN, tmpNN2  *mat.Dense
	tmpMN1, tmpMN2 *mat.Dense
	tmpMM          *mat.Dense
	kQuu           []float64
	quVec, dVec    *mat.VecDense
}

func newBackwardWorkspace(n, m int) *backwardWorkspace {
	w := &backwardWorkspace{
		n: n, m: m,
		qx: make([]float64, n), qu: make([]float64, m),
		qxx:    mat.NewDense(n, n, nil),
		quu:    mat.NewDense(m, m, nil),
		qux:    mat.NewDense(m, n, nil),
		quuReg: mat.NewSymDense(m, nil),
		atS:    mat.NewDense(n, n, nil),
		btS:    mat.NewDense(m, n, nil),
		tmpNN:  mat.NewDense(n, n, nil),
		tmpNN2: mat.NewDense(n, n, nil),
		tmpMN1: mat.NewDense(m, n, nil),
		tmpMN2: mat.NewDense(m, n, nil),
		tmpMM:  mat.NewDense(m, m, nil),
		kQuu:   make([]float64, m),
	}
	w.quVec = mat.NewVecDense(m, w.qu) // backed by w.qu: mutating w.qu in place keeps this valid
	w.dVec = mat.NewVecDense(m, nil)
	return w
}

// backwardPass runs the Gauss-Newton DDP backward sweep from knot N down to
// 0 with regularization rho added to Q_uu's diagonal. It returns ok=false
// the first time Q_uu+ρI fails the Cholesky positive-definiteness test, in
// which case the caller should raise rho and retry.
func backwardPass(spec *trajectory.Spec, d *trajectory.Data, w *backwardWorkspace, rho float64) (dV1, dV2 float64, ok bool) {
	n, m := spec.StateDim(), spec.ControlDim()

	d.S[spec.N].CloneFrom(d.Lxxf)
	copy(d.Sv[spec.N], d.Lxf)

	for k := spec.N - 1; k >= 0; k-- {
		A, B := d.A[k], d.B[k]
		S, s := d.S[k+1], d.Sv[k+1]
		Sk, sk := d.S[k], d.Sv[k]

		for i := 0; i < n; i++ {
			acc := d.Lx[k][i]
			for j := 0; j < n; j++ {
				acc += A.At(j, i) * s[j]
			}
			w.qx[i] = acc
		}
		for i := 0; i < m; i++ {
			acc := d.Lu[k][i]
			for j := 0; j < n; j++ {
				acc += B.At(j, i) * s[j]
			}
			w.qu[i] = acc
		}

		w.atS.Mul(A.T(), S)
		w.btS.Mul(B.T(), S)
		w.tmpNN.Mul(w.atS, A)
		w.qxx.Add(d.Lxx[k], w.tmpNN)
		w.tmpMM.Mul(w.btS, B)
		w.quu.Add(d.Luu[k], w.tmpMM)
		w.tmpMN1.Mul(w.btS, A)
		w.qux.Add(d.Lux[k], w.tmpMN1)

		for i := 0; i < m; i++ {
			for j := i; j < m; j++ {
				v := w.quu.At(i, j)
				if i == j {
					v += rho
				}
				w.quuReg.SetSym(i, j, v)
			}
		}
		if !w.chol.Factorize(w.quuReg) {
			return 0, 0, false
		}

		if err := w.chol.SolveTo(w.tmpMN1, w.qux); err != nil {
			return 0, 0, false
		}
		d.K[k].Scale(-1, w.tmpMN1)

		if err := w.chol.SolveVecTo(w.dVec, w.quVec); err != nil {
			return 0, 0, false
		}
		for i := 0; i < m; i++ {
			d.D[k][i] = -w.dVec.AtVec(i)
		}

		// S_k = Q_xx + KᵀQ_uuK + KᵀQ_ux + Q_uxᵀK, then symmetrized as ½(S_k+S_kᵀ)
		w.tmpMN2.Mul(w.quu, d.K[k])
		w.tmpNN.Mul(d.K[k].T(), w.tmpMN2)
		Sk.CloneFrom(w.qxx)
		Sk.Add(Sk, w.tmpNN)
		w.tmpNN.Mul(d.K[k].T(), w.qux)
		Sk.Add(Sk, w.tmpNN)
		w.tmpNN2.CloneFrom(w.tmpNN.T())
		Sk.Add(Sk, w.tmpNN2)
		w.tmpNN2.CloneFrom(Sk.T())
		Sk.Add(Sk, w.tmpNN2)
		Sk.Scale(0.5, Sk)

		// s_k = Q_x + KᵀQ_uu d + KᵀQ_u + Q_uxᵀ d
		for i := 0; i < m; i++ {
			acc := 0.0
			for j := 0; j < m; j++ {
				acc += w.quu.At(i, j) * d.D[k][j]
			}
			w.kQuu[i] = acc
		}
		for i := 0; i < n; i++ {
			acc := w.qx[i]
			for j := 0; j < m; j++ {
				acc += d.K[k].At(j, i) * (w.kQuu[j] + w.qu[j])
				acc += w.qux.At(j, i) * d.D[k][j]
			}
			sk[i] = acc
		}

		dV1 += dotProduct(w.qu, d.D[k])
		dV2 += 0.5 * quadForm(w.quu, d.D[k])
	}

	return dV1, dV2, true
}

func dotProduct(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func quadForm(Q *mat.Dense, v []float64) float64 {
	n := len(v)
	s := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			s += v[i] * Q.At(i, j) * v[j]
		}
	}
	return s
}
