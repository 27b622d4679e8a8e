// Package mat provides the dense matrix substrate for the deepmat training
// engine.
//
// A Matrix is a 2-D float32 buffer in column-major storage, the layout the
// layer math assumes throughout (samples as rows of activation matrices,
// weights as [(din+1) x (dout+1)] blocks with the bias row last). Bulk
// numeric work is delegated to a Backend implementation; the CPU backend
// computes in place on the host, the WebGPU backend uploads, dispatches a
// compute shader and reads the result back.
//
// Matrices are value-semantics containers: layers exclusively own their
// weight and gradient matrices and deep-copy via Clone.
package mat

import (
	"fmt"
	"math/rand"
	"strings"
)

// Device identifies where a Backend runs its kernels.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// Matrix is a dense 2-D float32 buffer in column-major order:
// element (r, c) lives at data[c*rows+r].
type Matrix struct {
	rows, cols int
	data       []float32
}

// New creates a zero-filled rows x cols matrix.
// Panics if either dimension is not positive.
func New(rows, cols int) *Matrix {
	if rows <= 0 || cols <= 0 {
		panic(fmt.Sprintf("mat: invalid dimensions %dx%d", rows, cols))
	}
	return &Matrix{rows: rows, cols: cols, data: make([]float32, rows*cols)}
}

// FromSlice creates a matrix that adopts data as its column-major backing
// slice. Returns an error if len(data) != rows*cols.
func FromSlice(data []float32, rows, cols int) (*Matrix, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("mat: invalid dimensions %dx%d", rows, cols)
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("mat: data length %d does not match %dx%d", len(data), rows, cols)
	}
	return &Matrix{rows: rows, cols: cols, data: data}, nil
}

// FromRows builds a matrix from row-major rows. All rows must have the same
// length. Mainly a convenience for tests and file parsing.
func FromRows(rows [][]float32) *Matrix {
	if len(rows) == 0 || len(rows[0]) == 0 {
		panic("mat: FromRows requires a non-empty row set")
	}
	m := New(len(rows), len(rows[0]))
	for r, row := range rows {
		if len(row) != m.cols {
			panic(fmt.Sprintf("mat: ragged rows: row %d has %d values, want %d", r, len(row), m.cols))
		}
		for c, v := range row {
			m.Set(r, c, v)
		}
	}
	return m
}

// Randn creates a rows x cols matrix with entries drawn from N(0, stddev^2).
func Randn(rows, cols int, stddev float32) *Matrix {
	m := New(rows, cols)
	for i := range m.data {
		m.data[i] = float32(rand.NormFloat64()) * stddev
	}
	return m
}

// Rows returns the number of rows.
func (m *Matrix) Rows() int { return m.rows }

// Cols returns the number of columns.
func (m *Matrix) Cols() int { return m.cols }

// Size returns rows*cols.
func (m *Matrix) Size() int { return m.rows * m.cols }

// Data exposes the column-major backing slice.
func (m *Matrix) Data() []float32 { return m.data }

// At returns element (r, c).
func (m *Matrix) At(r, c int) float32 { return m.data[c*m.rows+r] }

// Set assigns element (r, c).
func (m *Matrix) Set(r, c int, v float32) { m.data[c*m.rows+r] = v }

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	out := New(m.rows, m.cols)
	copy(out.data, m.data)
	return out
}

// Transpose returns a new transposed matrix. Host-side; backends offer the
// same through Geam for bulk device work.
func (m *Matrix) Transpose() *Matrix {
	out := New(m.cols, m.rows)
	for c := 0; c < m.cols; c++ {
		for r := 0; r < m.rows; r++ {
			out.Set(c, r, m.At(r, c))
		}
	}
	return out
}

// FillLastCol overwrites the last column with v. This carries the bias
// convention: activation matrices keep a trailing constant-1 column.
func (m *Matrix) FillLastCol(v float32) {
	off := (m.cols - 1) * m.rows
	for r := 0; r < m.rows; r++ {
		m.data[off+r] = v
	}
}

// FillLastRow overwrites the last row with v (bias row of a column-per-sample
// dataset matrix).
func (m *Matrix) FillLastRow(v float32) {
	for c := 0; c < m.cols; c++ {
		m.data[c*m.rows+m.rows-1] = v
	}
}

// AddBiasCol returns a copy of m widened by one constant-1 column.
func (m *Matrix) AddBiasCol() *Matrix {
	out := New(m.rows, m.cols+1)
	copy(out.data, m.data)
	out.FillLastCol(1)
	return out
}

// DropLastCol returns a copy of m without its last column.
func (m *Matrix) DropLastCol() *Matrix {
	if m.cols < 2 {
		panic(fmt.Sprintf("mat: cannot drop last column of %dx%d matrix", m.rows, m.cols))
	}
	out := New(m.rows, m.cols-1)
	copy(out.data, m.data[:m.rows*(m.cols-1)])
	return out
}

// CopyBlock copies a rows x cols block from src at (srcRow, srcCol) into dst
// at (dstRow, dstCol). Panics if either region is out of range.
func CopyBlock(dst, src *Matrix, srcRow, srcCol, rows, cols, dstRow, dstCol int) {
	if srcRow+rows > src.rows || srcCol+cols > src.cols {
		panic(fmt.Sprintf("mat: source block %dx%d at (%d,%d) exceeds %dx%d",
			rows, cols, srcRow, srcCol, src.rows, src.cols))
	}
	if dstRow+rows > dst.rows || dstCol+cols > dst.cols {
		panic(fmt.Sprintf("mat: destination block %dx%d at (%d,%d) exceeds %dx%d",
			rows, cols, dstRow, dstCol, dst.rows, dst.cols))
	}
	for c := 0; c < cols; c++ {
		srcOff := (srcCol+c)*src.rows + srcRow
		dstOff := (dstCol+c)*dst.rows + dstRow
		copy(dst.data[dstOff:dstOff+rows], src.data[srcOff:srcOff+rows])
	}
}

// ConcatCols concatenates matrices with equal row counts side by side.
// This is the feature-map concatenation used at the CNN/DNN boundary.
func ConcatCols(ms ...*Matrix) *Matrix {
	if len(ms) == 0 {
		panic("mat: ConcatCols requires at least one matrix")
	}
	rows := ms[0].rows
	cols := 0
	for _, m := range ms {
		if m.rows != rows {
			panic(fmt.Sprintf("mat: ConcatCols row mismatch: %d vs %d", m.rows, rows))
		}
		cols += m.cols
	}
	out := New(rows, cols)
	off := 0
	for _, m := range ms {
		copy(out.data[off*rows:], m.data)
		off += m.cols
	}
	return out
}

// SplitCols splits m into parts equal-width matrices. The de-concatenation
// inverse of ConcatCols. Panics if parts does not divide the column count.
func SplitCols(m *Matrix, parts int) []*Matrix {
	if parts <= 0 || m.cols%parts != 0 {
		panic(fmt.Sprintf("mat: cannot split %d columns into %d parts", m.cols, parts))
	}
	width := m.cols / parts
	out := make([]*Matrix, parts)
	for i := 0; i < parts; i++ {
		p := New(m.rows, width)
		copy(p.data, m.data[i*width*m.rows:(i+1)*width*m.rows])
		out[i] = p
	}
	return out
}

// String renders the matrix row by row for debugging.
func (m *Matrix) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%dx%d [\n", m.rows, m.cols)
	for r := 0; r < m.rows; r++ {
		for c := 0; c < m.cols; c++ {
			fmt.Fprintf(&sb, " %g", m.At(r, c))
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("]")
	return sb.String()
}
