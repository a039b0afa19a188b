package TwoGroup

import (
	"fmt"

	"github.com/james-bowman/sparse"

	"github.com/notargets/shelleig/readfiles"
	"github.com/notargets/shelleig/shell"
	"github.com/notargets/shelleig/utils"
)

// Material holds two-group diffusion constants, units of cm and 1/cm.
type Material struct {
	D1, D2       float64 // Diffusion coefficients
	SigA1, SigA2 float64 // Absorption
	Sig12        float64 // Down scatter from group one to group two
	NuSigF1      float64
	NuSigF2      float64
	Width        float64 // Slab width
}

// DefaultMaterial is a light water moderated slab with k-infinity of one.
func DefaultMaterial() Material {
	return Material{
		D1: 1.5, D2: 0.4,
		SigA1: 0.01, SigA2: 0.08,
		Sig12:   0.02,
		NuSigF1: 0.005, NuSigF2: 0.1,
		Width: 100,
	}
}

// KInfinity is the multiplication factor of the slab without leakage.
func (m Material) KInfinity() float64 {
	return (m.NuSigF1 + m.NuSigF2*m.Sig12/m.SigA2) / (m.SigA1 + m.Sig12)
}

// NewDiffusion discretizes the two-group diffusion equations on a slab of
// K cells with zero flux at both faces:
//
//	L11 phi1 = (1/k) (M11 phi1 + M12 phi2)
//	L22 phi2 = L21 phi1
//
// The dominant eigenvalue of L11⁻¹ (M11 + M12 L22⁻¹ L21) is k-effective.
func NewDiffusion(K int, m Material) (p *readfiles.Problem, err error) {
	if K < 1 {
		return nil, fmt.Errorf("number of cells must be positive, have %d", K)
	}
	if m.Width <= 0 || m.D1 <= 0 || m.D2 <= 0 {
		return nil, fmt.Errorf("width and diffusion coefficients must be positive: %+v", m)
	}
	var (
		h        = m.Width / float64(K)
		L11, L22 = laplacian(K, m.D1/(h*h), m.SigA1+m.Sig12), laplacian(K, m.D2/(h*h), m.SigA2)
	)
	p = &readfiles.Problem{
		L11: L11.SetName("L11"),
		L22: L22.SetName("L22"),
		L21: shell.DiagonalCoupling(utils.ConstArray(K, m.Sig12)),
		M11: utils.ConstArray(K, m.NuSigF1),
		M12: utils.ConstArray(K, m.NuSigF2),
	}
	return
}

// laplacian assembles c*tridiag(-1, 2, -1) + sig*I.
func laplacian(K int, c, sig float64) (R utils.CSR) {
	d := sparse.NewDOK(K, K)
	for i := 0; i < K; i++ {
		d.Set(i, i, 2*c+sig)
		if i > 0 {
			d.Set(i, i-1, -c)
		}
		if i < K-1 {
			d.Set(i, i+1, -c)
		}
	}
	return utils.NewCSRFromDOK(d)
}
