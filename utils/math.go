package utils

const (
	// DLAMCHE is the relative machine precision (unit roundoff).
	DLAMCHE = 1.0 / (1 << 53)
)

func ConstArray(N int, val float64) (v []float64) {
	v = make([]float64, N)
	for i := range v {
		v[i] = val
	}
	return
}
