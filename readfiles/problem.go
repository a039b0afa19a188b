package readfiles

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/notargets/shelleig/shell"
	"github.com/notargets/shelleig/utils"
)

// Problem holds the blocks of a two-group system as stored on disk, in file
// order: L11, L22, L21, M11, M12.
type Problem struct {
	L11, L22 utils.CSR
	// L21 is a shell.DiagonalCoupling when stored as a vector, a utils.CSR
	// when stored as a matrix
	L21      shell.Coupling
	M11, M12 []float64
}

// LoadProblem reads the five blocks of a problem from pr.
func LoadProblem(pr *PETScReader) (p *Problem, err error) {
	p = &Problem{}
	if p.L11, err = pr.ReadMat(); err != nil {
		return nil, fmt.Errorf("L11: %w", err)
	}
	p.L11.SetName("L11")
	if p.L22, err = pr.ReadMat(); err != nil {
		return nil, fmt.Errorf("L22: %w", err)
	}
	p.L22.SetName("L22")
	var id int32
	if id, err = pr.Next(); err == io.EOF {
		err = pr.formatErr("class id", err)
	}
	if err != nil {
		return nil, fmt.Errorf("L21: %w", err)
	}
	switch id {
	case MatClassID:
		var L21 utils.CSR
		if L21, err = pr.ReadMat(); err != nil {
			return nil, fmt.Errorf("L21: %w", err)
		}
		p.L21 = L21.SetName("L21")
	default:
		var L21 []float64
		if L21, err = pr.ReadVec(); err != nil {
			return nil, fmt.Errorf("L21: %w", err)
		}
		p.L21 = shell.DiagonalCoupling(L21)
	}
	if p.M11, err = pr.ReadVec(); err != nil {
		return nil, fmt.Errorf("M11: %w", err)
	}
	if p.M12, err = pr.ReadVec(); err != nil {
		return nil, fmt.Errorf("M12: %w", err)
	}
	return
}

// ReadProblem opens filename and loads a problem from it.
func ReadProblem(filename string, logger *zap.Logger) (p *Problem, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("reading PETSc binary file", zap.String("file", filename))
	var pr *PETScReader
	if pr, err = OpenPETSc(filename); err != nil {
		return
	}
	defer pr.Close()
	if p, err = LoadProblem(pr); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	if _, err = pr.Next(); err == nil {
		logger.Warn("trailing objects after the problem blocks ignored", zap.String("file", filename))
	}
	err = nil
	gr, gc := p.L11.Dims()
	logger.Debug("problem loaded", zap.Int("rows", gr), zap.Int("cols", gc),
		zap.Int("nnz_L11", p.L11.NNZ()), zap.Int("nnz_L22", p.L22.NNZ()))
	return
}

// WriteProblem writes the blocks of p in the order LoadProblem reads them.
func WriteProblem(pw *PETScWriter, p *Problem) (err error) {
	for _, A := range []utils.CSR{p.L11, p.L22} {
		if err = pw.WriteMat(A); err != nil {
			return
		}
	}
	switch L21 := p.L21.(type) {
	case shell.DiagonalCoupling:
		err = pw.WriteVec(L21)
	case utils.CSR:
		err = pw.WriteMat(L21)
	default:
		err = fmt.Errorf("readfiles: cannot store coupling of type %T", p.L21)
	}
	if err != nil {
		return
	}
	for _, v := range [][]float64{p.M11, p.M12} {
		if err = pw.WriteVec(v); err != nil {
			return
		}
	}
	return
}
