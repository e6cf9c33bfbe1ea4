// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ilqr

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/trajopt/ilqr/trajectory"
)

var errSingular = errors.New("ilqr: singular triangular factor")

// sqrtBackwardWorkspace holds the scratch the square-root Riccati
// recursion needs. It maintains the value-function Hessian only through its
// upper-triangular square root Sr_k (S_k = Sr_kᵀSr_k), propagated by QR
// factorization of a stacked block matrix rather than by forming SᵀS
// products directly, for better numerical conditioning near the
// regularization boundary. Adapted from the QR-based covariance-square-root
// update in package ChristopherRabotin-gokalman's SquareRoot filter: that
// filter stacks a prior-covariance-root/process-noise-root block and reads
// the new root off the R factor of its QR factorization; this recursion
// stacks a value-root/stage-Hessian-root/regularization block the same way.
type sqrtBackwardWorkspace struct {
	n, m int

	sr []*mat.Dense // n×n upper-triangular square root of S, one per knot N..0

	sa, sb *mat.Dense // n×n, n×m: Sr_{k+1}*A_k, Sr_{k+1}*B_k
	stage  *mat.SymDense
	chol   mat.Cholesky
	stageTri *mat.TriDense
	rStage   *mat.Dense // (m+n)×(m+n) Cholesky factor of [[Luu,Lux],[Luxᵀ,Lxx]]

	stacked *mat.Dense // (n+m+n+m)×(m+n) QR input, rows [SB SA; R_L; sqrt(rho)I 0]
	qr      mat.QR
	rTotal  *mat.Dense // (n+m+n+m)×(m+n) upper-trapezoidal R; its top m+n rows hold r11 m×m, r12 m×n, r22 n×n

	qx, qu []float64
	quu    *mat.Dense // materialized m×m, R11ᵀR11, only for gradient bookkeeping
	tmpMN  *mat.Dense
	y      []float64
}

func newSqrtBackwardWorkspace(n, m, N int) *sqrtBackwardWorkspace {
	w := &sqrtBackwardWorkspace{n: n, m: m}
	w.sr = make([]*mat.Dense, N+1) // reused per sweep, indexed like d.S (0..N)
	w.sa = mat.NewDense(n, n, nil)
	w.sb = mat.NewDense(n, m, nil)
	w.stage = mat.NewSymDense(m+n, nil)
	w.stacked = mat.NewDense(n+(m+n)+m, m+n, nil)
	w.qx, w.qu = make([]float64, n), make([]float64, m)
	w.quu = mat.NewDense(m, m, nil)
	w.tmpMN = mat.NewDense(m, n, nil)
	w.y = make([]float64, m)
	return w
}

// backwardPassSqrt is backwardPass's square-root-stabilized counterpart: it
// produces the same K_k, d_k, ΔV as backwardPass to line-search tolerance,
// but never forms S_k = AᵀSA+... as an explicit sum of possibly
// ill-conditioned products — S_k is read off a QR factorization's R block
// instead, which is what keeps it numerically stable for long horizons.
func backwardPassSqrt(spec *trajectory.Spec, d *trajectory.Data, w *sqrtBackwardWorkspace, rho float64) (dV1, dV2 float64, ok bool) {
	n, m := spec.StateDim(), spec.ControlDim()

	srN := mat.NewDense(n, n, nil)
	if !cholUpper(d.Lxxf, srN) {
		return 0, 0, false
	}
	w.sr[spec.N] = srN
	copy(d.Sv[spec.N], d.Lxf)

	for k := spec.N - 1; k >= 0; k-- {
		A, B := d.A[k], d.B[k]
		srNext := w.sr[k+1]
		s := d.Sv[k+1]

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

		w.sa.Mul(srNext, A)
		w.sb.Mul(srNext, B)

		// Stage Hessian block [[Luu,Lux],[Luxᵀ,Lxx]], columns/rows ordered
		// [u,x] so the QR below reads Quu's root off the top-left corner.
		for i := 0; i < m; i++ {
			for j := i; j < m; j++ {
				w.stage.SetSym(i, j, d.Luu[k].At(i, j))
			}
			for j := 0; j < n; j++ {
				w.stage.SetSym(i, m+j, d.Lux[k].At(i, j))
			}
		}
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				w.stage.SetSym(m+i, m+j, d.Lxx[k].At(i, j))
			}
		}
		if !w.chol.Factorize(w.stage) {
			return 0, 0, false
		}
		if w.stageTri == nil {
			w.stageTri = mat.NewTriDense(m+n, mat.Upper, nil)
			w.rStage = mat.NewDense(m+n, m+n, nil)
		}
		w.chol.UTo(w.stageTri)
		w.rStage.CloneFrom(w.stageTri)

		w.stacked.Zero()
		for i := 0; i < n; i++ {
			for j := 0; j < m; j++ {
				w.stacked.Set(i, j, w.sb.At(i, j))
			}
			for j := 0; j < n; j++ {
				w.stacked.Set(i, m+j, w.sa.At(i, j))
			}
		}
		for i := 0; i < m+n; i++ {
			for j := 0; j < m+n; j++ {
				w.stacked.Set(n+i, j, w.rStage.At(i, j))
			}
		}
		sqrtRho := sqrtNonNeg(rho)
		for i := 0; i < m; i++ {
			w.stacked.Set(n+(m+n)+i, i, sqrtRho)
		}

		w.qr.Factorize(w.stacked)
		if w.rTotal == nil {
			rows, _ := w.stacked.Dims()
			w.rTotal = mat.NewDense(rows, m+n, nil)
		}
		w.qr.RTo(w.rTotal)
		// gonum's R factor may carry a sign per row; normalize so the
		// diagonal is non-negative, keeping r11/r22 genuine Cholesky-style
		// upper-triangular roots (S_k = r22ᵀr22 requires this).
		normalizeDiagSign(w.rTotal.Slice(0, m+n, 0, m+n).(*mat.Dense))

		r11 := w.rTotal.Slice(0, m, 0, m).(*mat.Dense)
		r12 := w.rTotal.Slice(0, m, m, m+n).(*mat.Dense)
		r22 := w.rTotal.Slice(m, m+n, m, m+n).(*mat.Dense)

		for i := 0; i < m; i++ {
			if abs(r11.At(i, i)) < 1e-12 {
				return 0, 0, false
			}
		}

		// K = -R11⁻¹R12 ; solved by back-substitution since R11 is upper
		// triangular, avoiding a general (and here unnecessary) LU solve.
		if err := triSolveMat(r11, r12, d.K[k]); err != nil {
			return 0, 0, false
		}
		d.K[k].Scale(-1, d.K[k])

		// Quu = R11ᵀR11 ; d = -Quu⁻¹qu via two triangular solves.
		w.quu.Mul(r11.T(), r11)
		copy(w.y, w.qu)
		if err := triSolveVecLowerT(r11, w.y); err != nil {
			return 0, 0, false
		}
		if err := triSolveVec(r11, w.y); err != nil {
			return 0, 0, false
		}
		for i := 0; i < m; i++ {
			d.D[k][i] = -w.y[i]
		}

		// s_k = Qx + KᵀQuu·d + Kᵀqu + Quxᵀd, Qux = R11ᵀR12.
		w.tmpMN.Mul(r11.T(), r12)
		for i := 0; i < m; i++ {
			acc := 0.0
			for j := 0; j < m; j++ {
				acc += w.quu.At(i, j) * d.D[k][j]
			}
			w.y[i] = acc
		}
		for i := 0; i < n; i++ {
			acc := w.qx[i]
			for j := 0; j < m; j++ {
				acc += d.K[k].At(j, i) * (w.y[j] + w.qu[j])
				acc += w.tmpMN.At(j, i) * d.D[k][j]
			}
			d.Sv[k][i] = acc
		}

		if w.sr[k] == nil {
			w.sr[k] = mat.NewDense(n, n, nil)
		}
		w.sr[k].CloneFrom(r22)

		dV1 += dotProduct(w.qu, d.D[k])
		dV2 += 0.5 * quadForm(w.quu, d.D[k])
	}

	return dV1, dV2, true
}

func cholUpper(sym *mat.Dense, out *mat.Dense) bool {
	n, _ := sym.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, sym.At(i, j))
		}
	}
	var chol mat.Cholesky
	if !chol.Factorize(s) {
		return false
	}
	tri := mat.NewTriDense(n, mat.Upper, nil)
	chol.UTo(tri)
	out.CloneFrom(tri)
	return true
}

func sqrtNonNeg(v float64) float64 {
	if v < 0 {
		return 0
	}
	return math.Sqrt(v)
}

// triSolveMat solves RX = C for X where R is m×m upper triangular, writing
// X into out (m×n).
func triSolveMat(R, C *mat.Dense, out *mat.Dense) error {
	m, n := out.Dims()
	for col := 0; col < n; col++ {
		for i := m - 1; i >= 0; i-- {
			acc := C.At(i, col)
			for j := i + 1; j < m; j++ {
				acc -= R.At(i, j) * out.At(j, col)
			}
			d := R.At(i, i)
			if abs(d) < 1e-14 {
				return errSingular
			}
			out.Set(i, col, acc/d)
		}
	}
	return nil
}

// triSolveVec solves Rx = b for x in place, R upper triangular m×m.
func triSolveVec(R *mat.Dense, b []float64) error {
	m := len(b)
	x := make([]float64, m)
	for i := m - 1; i >= 0; i-- {
		acc := b[i]
		for j := i + 1; j < m; j++ {
			acc -= R.At(i, j) * x[j]
		}
		d := R.At(i, i)
		if abs(d) < 1e-14 {
			return errSingular
		}
		x[i] = acc / d
	}
	copy(b, x)
	return nil
}

// triSolveVecLowerT solves Rᵀx = b for x in place, R upper triangular m×m
// (so Rᵀ is lower triangular).
func triSolveVecLowerT(R *mat.Dense, b []float64) error {
	m := len(b)
	x := make([]float64, m)
	for i := 0; i < m; i++ {
		acc := b[i]
		for j := 0; j < i; j++ {
			acc -= R.At(j, i) * x[j]
		}
		d := R.At(i, i)
		if abs(d) < 1e-14 {
			return errSingular
		}
		x[i] = acc / d
	}
	copy(b, x)
	return nil
}

func normalizeDiagSign(R *mat.Dense) {
	n, _ := R.Dims()
	for i := 0; i < n; i++ {
		if R.At(i, i) < 0 {
			for j := i; j < n; j++ {
				R.Set(i, j, -R.At(i, j))
			}
		}
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
