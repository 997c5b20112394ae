// Package interpolation resamples 2D cross-sections so that planes cut
// across the stacking axis can be shown next to the axial plane.
package interpolation

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Rotate90 returns m rotated 90 degrees counter-clockwise. An r x c input
// gives a c x r output whose first row is the last column of m.
func Rotate90(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(c, r, nil)
	for i := 0; i < c; i++ {
		for j := 0; j < r; j++ {
			out.Set(i, j, m.At(j, c-1-i))
		}
	}
	return out
}

// LinearWeights returns the out x in matrix that maps in samples onto out
// samples by linear interpolation between pixel centres. Positions outside
// the input are clamped to the edge samples, so every row sums to one and
// the value range of the input is preserved.
func LinearWeights(in, out int) *mat.Dense {
	w := mat.NewDense(out, in, nil)
	scale := float64(in) / float64(out)

	for i := 0; i < out; i++ {
		src := (float64(i)+0.5)*scale - 0.5
		if src < 0 {
			src = 0
		}
		if last := float64(in - 1); src > last {
			src = last
		}

		i0 := int(math.Floor(src))
		i1 := i0 + 1
		if i1 > in-1 {
			i1 = in - 1
		}
		frac := src - float64(i0)

		w.Set(i, i0, w.At(i, i0)+1-frac)
		w.Set(i, i1, w.At(i, i1)+frac)
	}

	return w
}

// ResizeBilinear resamples m to rows x cols with separable linear
// interpolation: out = Wr * m * Wcᵀ. Axes already at the target size are
// copied untouched.
func ResizeBilinear(m mat.Matrix, rows, cols int) *mat.Dense {
	r, c := m.Dims()
	res := mat.DenseCopyOf(m)

	if rows != r {
		var tmp mat.Dense
		tmp.Mul(LinearWeights(r, rows), res)
		res = &tmp
	}

	if cols != c {
		var tmp mat.Dense
		tmp.Mul(res, LinearWeights(c, cols).T())
		res = &tmp
	}

	return res
}
