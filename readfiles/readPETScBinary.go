package readfiles

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/notargets/shelleig/utils"
)

// Class ids heading each object in a PETSc binary file
const (
	MatClassID int32 = 1211216
	VecClassID int32 = 1211214
)

var ErrFormat = errors.New("readfiles: malformed PETSc binary file")

// PETSc binary files are always big endian
var byteOrder = binary.BigEndian

// PETScReader reads the objects of a PETSc binary file in order.
type PETScReader struct {
	reader *bufio.Reader
	closer io.Closer
	count  int // Objects read so far
}

func NewPETScReader(r io.Reader) *PETScReader {
	return &PETScReader{reader: bufio.NewReader(r)}
}

func OpenPETSc(filename string) (pr *PETScReader, err error) {
	var file *os.File
	if file, err = os.Open(filename); err != nil {
		return nil, fmt.Errorf("unable to open file %s: %w", filename, err)
	}
	pr = NewPETScReader(file)
	pr.closer = file
	return
}

func (pr *PETScReader) Close() error {
	if pr.closer == nil {
		return nil
	}
	return pr.closer.Close()
}

// Next returns the class id of the next object without consuming it, io.EOF
// at the end of the file.
func (pr *PETScReader) Next() (classID int32, err error) {
	var b []byte
	if b, err = pr.reader.Peek(4); err != nil {
		if err == io.EOF && len(b) == 0 {
			return 0, io.EOF
		}
		return 0, pr.formatErr("class id", err)
	}
	classID = int32(byteOrder.Uint32(b))
	return
}

func (pr *PETScReader) formatErr(what string, err error) error {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: object %d: reading %s: %w", ErrFormat, pr.count, what, err)
}

// readChunk bounds the elements read per call, so the memory held for an
// array never runs ahead of the bytes actually present in the file.
const readChunk = 1 << 16

func readArray[T int32 | float64](pr *PETScReader, what string, n int) (v []T, err error) {
	buf := make([]T, min(n, readChunk))
	v = make([]T, 0, len(buf))
	for len(v) < n {
		chunk := buf[:min(n-len(v), readChunk)]
		if err = binary.Read(pr.reader, byteOrder, chunk); err != nil {
			return nil, pr.formatErr(what, err)
		}
		v = append(v, chunk...)
	}
	return
}

func (pr *PETScReader) readInt32s(what string, n int) ([]int32, error) {
	return readArray[int32](pr, what, n)
}

func (pr *PETScReader) readFloat64s(what string, n int) ([]float64, error) {
	return readArray[float64](pr, what, n)
}

func (pr *PETScReader) expect(classID int32) error {
	id, err := pr.Next()
	if err == io.EOF {
		return pr.formatErr("class id", io.ErrUnexpectedEOF)
	}
	if err != nil {
		return err
	}
	if id != classID {
		return fmt.Errorf("%w: object %d: class id %d, want %d", ErrFormat, pr.count, id, classID)
	}
	return nil
}

// ReadMat reads a sparse matrix stored as
//
//	int32 classid, rows, cols, nnz
//	int32 row lengths[rows]
//	int32 column indices[nnz]
//	float64 values[nnz]
func (pr *PETScReader) ReadMat() (A utils.CSR, err error) {
	if err = pr.expect(MatClassID); err != nil {
		return
	}
	var header []int32
	if header, err = pr.readInt32s("matrix header", 4); err != nil {
		return
	}
	nr, nc, nnz := int(header[1]), int(header[2]), int(header[3])
	switch {
	case nr <= 0 || nc <= 0:
		err = fmt.Errorf("%w: object %d: matrix dimensions %dx%d", ErrFormat, pr.count, nr, nc)
		return
	case nnz < 0:
		// PETSc marks dense storage with a negative count
		err = fmt.Errorf("%w: object %d: dense matrix storage is not supported", ErrFormat, pr.count)
		return
	case int64(nnz) > int64(nr)*int64(nc):
		err = fmt.Errorf("%w: object %d: %d nonzeros in a %dx%d matrix", ErrFormat, pr.count, nnz, nr, nc)
		return
	}
	var rowLens, colInd []int32
	if rowLens, err = pr.readInt32s("row lengths", nr); err != nil {
		return
	}
	indptr := make([]int, nr+1)
	for i, l := range rowLens {
		if l < 0 || int(l) > nc {
			err = fmt.Errorf("%w: object %d: row %d has length %d", ErrFormat, pr.count, i, l)
			return
		}
		indptr[i+1] = indptr[i] + int(l)
	}
	if indptr[nr] != nnz {
		err = fmt.Errorf("%w: object %d: row lengths sum to %d, header has %d nonzeros",
			ErrFormat, pr.count, indptr[nr], nnz)
		return
	}
	if colInd, err = pr.readInt32s("column indices", nnz); err != nil {
		return
	}
	ind := make([]int, nnz)
	for k, j := range colInd {
		ind[k] = int(j)
	}
	var data []float64
	if data, err = pr.readFloat64s("matrix values", nnz); err != nil {
		return
	}
	if A, err = utils.NewCSR(nr, nc, indptr, ind, data); err != nil {
		err = fmt.Errorf("%w: object %d: %w", ErrFormat, pr.count, err)
		return
	}
	pr.count++
	return
}

// ReadVec reads a vector stored as int32 classid, n, then float64 values[n].
func (pr *PETScReader) ReadVec() (v []float64, err error) {
	if err = pr.expect(VecClassID); err != nil {
		return
	}
	var header []int32
	if header, err = pr.readInt32s("vector header", 2); err != nil {
		return
	}
	n := int(header[1])
	if n < 0 {
		return nil, fmt.Errorf("%w: object %d: vector length %d", ErrFormat, pr.count, n)
	}
	if v, err = pr.readFloat64s("vector values", n); err != nil {
		return
	}
	pr.count++
	return
}
