package readfiles

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/notargets/shelleig/utils"
)

// PETScWriter writes objects in PETSc binary format. Flush or Close must be
// called to complete the file.
type PETScWriter struct {
	writer *bufio.Writer
	closer io.Closer
}

func NewPETScWriter(w io.Writer) *PETScWriter {
	return &PETScWriter{writer: bufio.NewWriter(w)}
}

func CreatePETSc(filename string) (pw *PETScWriter, err error) {
	var file *os.File
	if file, err = os.Create(filename); err != nil {
		return nil, fmt.Errorf("unable to create file %s: %w", filename, err)
	}
	pw = NewPETScWriter(file)
	pw.closer = file
	return
}

func (pw *PETScWriter) Flush() error { return pw.writer.Flush() }

func (pw *PETScWriter) Close() (err error) {
	err = pw.writer.Flush()
	if pw.closer != nil {
		if cerr := pw.closer.Close(); err == nil {
			err = cerr
		}
	}
	return
}

func checkInt32(what string, v int) error {
	if v > math.MaxInt32 {
		return fmt.Errorf("readfiles: %s count %d does not fit the binary format", what, v)
	}
	return nil
}

func (pw *PETScWriter) WriteMat(A utils.CSR) (err error) {
	var (
		nr, nc = A.Dims()
		raw    = A.RawMatrix()
		nnz    = raw.Indptr[nr]
	)
	if err = checkInt32("matrix", max(nr, nc, nnz)); err != nil {
		return
	}
	header := []int32{MatClassID, int32(nr), int32(nc), int32(nnz)}
	rowLens := make([]int32, nr)
	for i := range rowLens {
		rowLens[i] = int32(raw.Indptr[i+1] - raw.Indptr[i])
	}
	colInd := make([]int32, nnz)
	for k := range colInd {
		colInd[k] = int32(raw.Ind[k])
	}
	for _, v := range []any{header, rowLens, colInd, raw.Data[:nnz]} {
		if err = binary.Write(pw.writer, byteOrder, v); err != nil {
			return
		}
	}
	return
}

func (pw *PETScWriter) WriteVec(v []float64) (err error) {
	if err = checkInt32("vector", len(v)); err != nil {
		return
	}
	if err = binary.Write(pw.writer, byteOrder, []int32{VecClassID, int32(len(v))}); err != nil {
		return
	}
	return binary.Write(pw.writer, byteOrder, v)
}
