// Package dataset loads labeled feature-vector corpora for training and
// evaluation.
//
// Two plaintext formats are accepted and auto-detected from the first data
// line: dense ("label f1 f2 ...") and sparse LIBSVM-style
// ("label idx:val ...", 1-based indices). Labels are remapped to 0-based
// contiguous class ids in sorted order of first appearance value.
//
// Samples are stored column-per-sample in a [(dim+1) x n] matrix with a
// constant-1 bias row last; Batch slices a contiguous range out as the
// bias-augmented row-per-sample batch the network layers consume.
package dataset

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/deepmat-ml/deepmat/internal/mat"
)

// DataSet is a labeled corpus of fixed-dimension feature vectors.
type DataSet struct {
	x       *mat.Matrix // [(dim+1) x n], bias row last
	labels  []int       // remapped, 0-based contiguous
	classes int
}

// Dim returns the feature dimension without the bias term.
func (d *DataSet) Dim() int { return d.x.Rows() - 1 }

// Len returns the number of samples.
func (d *DataSet) Len() int { return d.x.Cols() }

// Classes returns the number of distinct labels.
func (d *DataSet) Classes() int { return d.classes }

// Labels returns the remapped label of every sample.
func (d *DataSet) Labels() []int { return d.labels }

// X exposes the column-per-sample feature matrix, bias row included.
func (d *DataSet) X() *mat.Matrix { return d.x }

// Batch slices samples [offset, offset+count) into a bias-augmented
// row-per-sample [count x (dim+1)] matrix plus the matching labels.
// Panics if the range exceeds the corpus.
func (d *DataSet) Batch(offset, count int) (*mat.Matrix, []int) {
	if offset < 0 || count <= 0 || offset+count > d.Len() {
		panic(fmt.Sprintf("dataset: batch [%d, %d) out of range [0, %d)", offset, offset+count, d.Len()))
	}
	dim := d.x.Rows()
	batch := mat.New(count, dim)
	for i := 0; i < count; i++ {
		for f := 0; f < dim; f++ {
			batch.Set(i, f, d.x.At(f, offset+i))
		}
	}
	return batch, d.labels[offset : offset+count]
}

// Shuffle permutes the samples deterministically for the given seed.
func (d *DataSet) Shuffle(seed int64) {
	rng := rand.New(rand.NewSource(seed))
	n := d.Len()
	rows := d.x.Rows()
	data := d.x.Data()
	tmp := make([]float32, rows)
	rng.Shuffle(n, func(i, j int) {
		ci, cj := data[i*rows:(i+1)*rows], data[j*rows:(j+1)*rows]
		copy(tmp, ci)
		copy(ci, cj)
		copy(cj, tmp)
		d.labels[i], d.labels[j] = d.labels[j], d.labels[i]
	})
}

// Split partitions the corpus into a leading part of ratio*n samples and
// the remainder. Both parts share class metadata with the original.
// Panics unless 0 < ratio < 1 leaves both parts non-empty.
func (d *DataSet) Split(ratio float64) (*DataSet, *DataSet) {
	n := d.Len()
	head := int(float64(n) * ratio)
	if head <= 0 || head >= n {
		panic(fmt.Sprintf("dataset: split ratio %g leaves an empty part of %d samples", ratio, n))
	}
	rows := d.x.Rows()

	slice := func(from, to int) *DataSet {
		x := mat.New(rows, to-from)
		mat.CopyBlock(x, d.x, 0, from, rows, to-from, 0, 0)
		labels := make([]int, to-from)
		copy(labels, d.labels[from:to])
		return &DataSet{x: x, labels: labels, classes: d.classes}
	}
	return slice(0, head), slice(head, n)
}

// Standardize rescales every feature row to zero mean and unit variance in
// place, skipping the bias row and constant features. Returns the per-row
// means and standard deviations so a held-out set can apply the same
// transform via Apply.
func (d *DataSet) Standardize() (means, stddevs []float64) {
	dim := d.Dim()
	n := d.Len()
	means = make([]float64, dim)
	stddevs = make([]float64, dim)
	row := make([]float64, n)
	for f := 0; f < dim; f++ {
		for c := 0; c < n; c++ {
			row[c] = float64(d.x.At(f, c))
		}
		m, s := stat.MeanStdDev(row, nil)
		means[f], stddevs[f] = m, s
		if s == 0 {
			continue
		}
		for c := 0; c < n; c++ {
			d.x.Set(f, c, float32((float64(d.x.At(f, c))-m)/s))
		}
	}
	return means, stddevs
}

// Apply rescales the corpus with externally computed feature statistics,
// typically the training set's, so evaluation sees the same transform.
func (d *DataSet) Apply(means, stddevs []float64) {
	dim := d.Dim()
	if len(means) != dim || len(stddevs) != dim {
		panic(fmt.Sprintf("dataset: %d feature statistics for dimension %d", len(means), dim))
	}
	for f := 0; f < dim; f++ {
		if stddevs[f] == 0 {
			continue
		}
		for c := 0; c < d.Len(); c++ {
			d.x.Set(f, c, float32((float64(d.x.At(f, c))-means[f])/stddevs[f]))
		}
	}
}

// sample is the parse-time representation before dimensions are known.
type sample struct {
	label    int
	dense    []float32
	sparse   map[int]float32 // 0-based index -> value
	maxIndex int
}

// Load reads a corpus from the named file.
func Load(path string) (*DataSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loading dataset from %s: %w", path, err)
	}
	defer f.Close()
	d, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("loading dataset from %s: %w", path, err)
	}
	return d, nil
}

// Read parses a corpus from r, auto-detecting the dense or sparse format
// from the first data line.
func Read(r io.Reader) (*DataSet, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	var samples []sample
	sparse := false
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if len(samples) == 0 {
			sparse = strings.Contains(line, ":")
		}
		s, err := parseLine(line, sparse)
		if err != nil {
			return nil, fmt.Errorf("dataset: line %d: %w", lineNo, err)
		}
		samples = append(samples, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("dataset: no samples")
	}
	return build(samples, sparse)
}

func parseLine(line string, sparse bool) (sample, error) {
	fields := strings.Fields(line)
	label, err := strconv.Atoi(fields[0])
	if err != nil {
		return sample{}, fmt.Errorf("bad label %q: %w", fields[0], err)
	}
	s := sample{label: label}

	if sparse {
		s.sparse = make(map[int]float32, len(fields)-1)
		for _, f := range fields[1:] {
			idxStr, valStr, ok := strings.Cut(f, ":")
			if !ok {
				return sample{}, fmt.Errorf("bad sparse feature %q", f)
			}
			idx, err := strconv.Atoi(idxStr)
			if err != nil || idx < 1 {
				return sample{}, fmt.Errorf("bad sparse index %q", idxStr)
			}
			val, err := strconv.ParseFloat(valStr, 32)
			if err != nil {
				return sample{}, fmt.Errorf("bad sparse value %q: %w", valStr, err)
			}
			s.sparse[idx-1] = float32(val)
			if idx > s.maxIndex {
				s.maxIndex = idx
			}
		}
		return s, nil
	}

	s.dense = make([]float32, len(fields)-1)
	for i, f := range fields[1:] {
		val, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return sample{}, fmt.Errorf("bad feature %q: %w", f, err)
		}
		s.dense[i] = float32(val)
	}
	return s, nil
}

func build(samples []sample, sparse bool) (*DataSet, error) {
	dim := 0
	for i, s := range samples {
		if sparse {
			if s.maxIndex > dim {
				dim = s.maxIndex
			}
		} else {
			if i == 0 {
				dim = len(s.dense)
			} else if len(s.dense) != dim {
				return nil, fmt.Errorf("dataset: sample %d has %d features, want %d", i, len(s.dense), dim)
			}
		}
	}
	if dim == 0 {
		return nil, fmt.Errorf("dataset: samples carry no features")
	}

	// Remap raw labels to 0-based contiguous ids in ascending order.
	seen := make(map[int]bool)
	for _, s := range samples {
		seen[s.label] = true
	}
	raw := make([]int, 0, len(seen))
	for l := range seen {
		raw = append(raw, l)
	}
	sort.Ints(raw)
	remap := make(map[int]int, len(raw))
	for id, l := range raw {
		remap[l] = id
	}

	n := len(samples)
	x := mat.New(dim+1, n)
	labels := make([]int, n)
	for c, s := range samples {
		labels[c] = remap[s.label]
		if sparse {
			for idx, v := range s.sparse {
				x.Set(idx, c, v)
			}
		} else {
			for f, v := range s.dense {
				x.Set(f, c, v)
			}
		}
	}
	x.FillLastRow(1)

	return &DataSet{x: x, labels: labels, classes: len(raw)}, nil
}
