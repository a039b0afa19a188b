package readfiles

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/shelleig/shell"
	"github.com/notargets/shelleig/utils"
)

func testMatrix(t *testing.T) utils.CSR {
	t.Helper()
	// [ 4 -1  0 ]
	// [-1  4 -1 ]
	// [ 0  0  4 ]
	A, err := utils.NewCSR(3, 3,
		[]int{0, 2, 5, 6},
		[]int{0, 1, 0, 1, 2, 2},
		[]float64{4, -1, -1, 4, -1, 4})
	require.NoError(t, err)
	return A
}

func testProblem(t *testing.T, matrixCoupling bool) *Problem {
	p := &Problem{
		L11: testMatrix(t),
		L22: utils.NewIdentityCSR(3),
		L21: shell.DiagonalCoupling{0.1, 0.2, 0.3},
		M11: []float64{1, 2, 3},
		M12: []float64{-1, 0.5, 1.e-300},
	}
	if matrixCoupling {
		p.L21 = testMatrix(t)
	}
	return p
}

func TestPETScHeaderBytes(t *testing.T) {
	var buf bytes.Buffer
	pw := NewPETScWriter(&buf)
	require.NoError(t, pw.WriteVec([]float64{1}))
	require.NoError(t, pw.Flush())
	assert.Equal(t, []byte{
		0x00, 0x12, 0x7B, 0x4E, // 1211214
		0x00, 0x00, 0x00, 0x01,
		0x3F, 0xF0, 0, 0, 0, 0, 0, 0, // 1.0
	}, buf.Bytes())

	buf.Reset()
	pw = NewPETScWriter(&buf)
	require.NoError(t, pw.WriteMat(testMatrix(t)))
	require.NoError(t, pw.Flush())
	// 4 header ints, 3 row lengths, 6 column indices, 6 values
	assert.Equal(t, 4*4+3*4+6*4+6*8, buf.Len())
	assert.Equal(t, []byte{0x00, 0x12, 0x7B, 0x50}, buf.Bytes()[:4])
}

func TestProblemRoundTrip(t *testing.T) {
	for _, matrixCoupling := range []bool{false, true} {
		var (
			buf bytes.Buffer
			p   = testProblem(t, matrixCoupling)
			pw  = NewPETScWriter(&buf)
		)
		require.NoError(t, WriteProblem(pw, p))
		require.NoError(t, pw.Close())

		got, err := LoadProblem(NewPETScReader(&buf))
		require.NoError(t, err)
		assert.Equal(t, p.L11.ToDense(), got.L11.ToDense())
		assert.Equal(t, p.L22.ToDense(), got.L22.ToDense())
		assert.Equal(t, p.M11, got.M11)
		assert.Equal(t, p.M12, got.M12)
		assert.Equal(t, "L11", got.L11.Name())
		if matrixCoupling {
			L21, ok := got.L21.(utils.CSR)
			require.True(t, ok)
			assert.Equal(t, p.L21.(utils.CSR).ToDense(), L21.ToDense())
		} else {
			assert.Equal(t, p.L21, got.L21)
		}
	}
}

func TestReadProblemFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "problem.petsc")
	pw, err := CreatePETSc(filename)
	require.NoError(t, err)
	require.NoError(t, WriteProblem(pw, testProblem(t, false)))
	require.NoError(t, pw.Close())

	p, err := ReadProblem(filename, nil)
	require.NoError(t, err)
	nr, nc := p.L11.Dims()
	assert.Equal(t, 3, nr)
	assert.Equal(t, 3, nc)

	_, err = ReadProblem(filepath.Join(t.TempDir(), "missing.petsc"), nil)
	assert.Error(t, err)
}

func TestPETScReaderNext(t *testing.T) {
	var buf bytes.Buffer
	pw := NewPETScWriter(&buf)
	require.NoError(t, pw.WriteVec([]float64{1, 2}))
	require.NoError(t, pw.WriteMat(testMatrix(t)))
	require.NoError(t, pw.Flush())

	pr := NewPETScReader(&buf)
	id, err := pr.Next()
	require.NoError(t, err)
	assert.Equal(t, VecClassID, id)
	// Peeking does not consume
	id, err = pr.Next()
	require.NoError(t, err)
	assert.Equal(t, VecClassID, id)
	_, err = pr.ReadMat()
	assert.ErrorIs(t, err, ErrFormat)

	v, err := pr.ReadVec()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, v)
	id, err = pr.Next()
	require.NoError(t, err)
	assert.Equal(t, MatClassID, id)
	_, err = pr.ReadMat()
	require.NoError(t, err)
	_, err = pr.Next()
	assert.Equal(t, io.EOF, err)
}

// encode writes raw big endian values.
func encode(t *testing.T, vals ...any) []byte {
	var buf bytes.Buffer
	for _, v := range vals {
		require.NoError(t, binary.Write(&buf, binary.BigEndian, v))
	}
	return buf.Bytes()
}

func TestPETScMalformed(t *testing.T) {
	var full bytes.Buffer
	pw := NewPETScWriter(&full)
	require.NoError(t, WriteProblem(pw, testProblem(t, false)))
	require.NoError(t, pw.Flush())

	for name, data := range map[string][]byte{
		"empty":          nil,
		"truncated":      full.Bytes()[:full.Len()-3],
		"header only":    full.Bytes()[:10],
		"wrong class":    encode(t, []int32{42, 3, 3, 0}),
		"dense storage":  encode(t, []int32{MatClassID, 2, 2, -1}),
		"zero rows":      encode(t, []int32{MatClassID, 0, 2, 0}),
		"too many nnz":   encode(t, []int32{MatClassID, 1, 1, 2}),
		"row length sum": encode(t, []int32{MatClassID, 2, 2, 2, 1, 0, 0}, []float64{1}),
		"negative row":   encode(t, []int32{MatClassID, 2, 2, 1, -1, 2}),
		"column index":   encode(t, []int32{MatClassID, 1, 2, 1, 1, 5}, []float64{1}),
		"missing vectors": encode(t, []int32{MatClassID, 1, 1, 1, 1, 0}, []float64{1},
			[]int32{MatClassID, 1, 1, 1, 1, 0}, []float64{1}),
		"negative vector": encode(t, []int32{MatClassID, 1, 1, 1, 1, 0}, []float64{1},
			[]int32{MatClassID, 1, 1, 1, 1, 0}, []float64{1}, []int32{VecClassID, -3}),
	} {
		_, err := LoadProblem(NewPETScReader(bytes.NewReader(data)))
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, ErrFormat), "%s: %v", name, err)
	}
}

func TestPETScOversizedCounts(t *testing.T) {
	const limit = 16 << 20
	for name, data := range map[string][]byte{
		"vector": encode(t, []int32{VecClassID, 1 << 28}, []float64{1, 2}),
		"matrix": encode(t, []int32{MatClassID, 1 << 30, 1 << 30, 1 << 30}, []int32{1}),
	} {
		var before, after runtime.MemStats
		runtime.ReadMemStats(&before)
		pr := NewPETScReader(bytes.NewReader(data))
		var err error
		if name == "vector" {
			_, err = pr.ReadVec()
		} else {
			_, err = pr.ReadMat()
		}
		runtime.ReadMemStats(&after)
		require.Error(t, err, name)
		assert.ErrorIs(t, err, ErrFormat, name)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF, name)
		assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(limit), name)
	}
}
