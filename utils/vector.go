package utils

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func VecGetF64(v mat.Vector) (r []float64) {
	if vd, ok := v.(*mat.VecDense); ok && vd.RawVector().Inc == 1 {
		return vd.RawVector().Data
	}
	r = make([]float64, v.Len())
	for i := 0; i < v.Len(); i++ {
		r[i] = v.AtVec(i)
	}
	return
}

// ElMulTo stores the elementwise product a⊙b into dst.
func ElMulTo(dst, a, b []float64) {
	checkLen("ElMulTo", dst, a, b)
	floats.MulTo(dst, a, b)
}

// AddElMul accumulates dst += a⊙b.
func AddElMul(dst, a, b []float64) {
	checkLen("AddElMul", dst, a, b)
	for i, val := range a {
		dst[i] += val * b[i]
	}
}

// Zero clears v in place.
func Zero(v []float64) {
	for i := range v {
		v[i] = 0
	}
}

// Reuse returns v resized to n, allocating only when the capacity is too small.
func Reuse(v []float64, n int) []float64 {
	if cap(v) < n {
		return make([]float64, n)
	}
	return v[:n]
}

func checkLen(op string, dst []float64, srcs ...[]float64) {
	for _, s := range srcs {
		if len(s) != len(dst) {
			err := fmt.Errorf("%s: length mismatch: len(dst) = %v, len(src) = %v", op, len(dst), len(s))
			panic(err)
		}
	}
}
