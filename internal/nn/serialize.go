package nn

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/deepmat-ml/deepmat/internal/mat"
)

// Model file format: one block per layer, whitespace-delimited plaintext.
//
//	<sigmoid> rows cols
//	w(0,0) ... w(0,cols-1)
//	...                          (rows-1 weight rows)
//	<bias>
//	b(0) ... b(cols-1)
//
// rows and cols are the full augmented weight shape [(din+1) x (dout+1)];
// the bias row is split out after the <bias> tag. Values round-trip through
// %g, which preserves float32 exactly.

// Save writes every layer of the network to w in the model file format.
func (d *DNN) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, l := range d.layers {
		wm := weightsOf(l)
		if wm == nil {
			return fmt.Errorf("nn: cannot serialize layer of kind %q", l.Kind())
		}
		if err := writeLayer(bw, l.Kind(), wm); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// SaveFile writes the network to the named model file.
func (d *DNN) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("saving model to %s: %w", path, err)
	}
	defer f.Close()
	if err := d.Save(f); err != nil {
		return fmt.Errorf("saving model to %s: %w", path, err)
	}
	return nil
}

// ReadDNN reconstructs a network from the model file format. The last layer
// read is marked as the output layer.
func ReadDNN(r io.Reader, cfg Config, be mat.Backend) (*DNN, error) {
	br := bufio.NewReader(r)
	var layers []FeatureTransform
	for {
		kind, w, err := readLayer(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch kind {
		case KindSigmoid:
			layers = append(layers, NewAffineFromWeights(w, be))
		case KindSoftmax:
			layers = append(layers, NewSoftmaxFromWeights(w, be))
		default:
			return nil, fmt.Errorf("nn: unknown layer kind %q in model file", kind)
		}
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("nn: model file contains no layers")
	}
	if out, ok := layers[len(layers)-1].(interface{ SetOutputLayer(bool) }); ok {
		out.SetOutputLayer(true)
	}
	return NewDNNFromLayers(layers, cfg, be)
}

// ReadDNNFile reads a network from the named model file.
func ReadDNNFile(path string, cfg Config, be mat.Backend) (*DNN, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading model from %s: %w", path, err)
	}
	defer f.Close()
	d, err := ReadDNN(f, cfg, be)
	if err != nil {
		return nil, fmt.Errorf("reading model from %s: %w", path, err)
	}
	return d, nil
}

func weightsOf(l FeatureTransform) *mat.Matrix {
	switch t := l.(type) {
	case *Softmax:
		return t.W()
	case *Affine:
		return t.W()
	default:
		return nil
	}
}

func writeLayer(w *bufio.Writer, kind string, wm *mat.Matrix) error {
	if _, err := fmt.Fprintf(w, "<%s> %d %d\n", kind, wm.Rows(), wm.Cols()); err != nil {
		return err
	}
	for r := 0; r < wm.Rows()-1; r++ {
		for c := 0; c < wm.Cols(); c++ {
			if c > 0 {
				if err := w.WriteByte(' '); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprintf(w, "%g", wm.At(r, c)); err != nil {
				return err
			}
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w, "<bias>"); err != nil {
		return err
	}
	bias := wm.Rows() - 1
	for c := 0; c < wm.Cols(); c++ {
		if c > 0 {
			if err := w.WriteByte(' '); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%g", wm.At(bias, c)); err != nil {
			return err
		}
	}
	return w.WriteByte('\n')
}

// readLayer parses one layer block. Returns io.EOF only when the stream is
// cleanly exhausted before a new block starts.
func readLayer(r *bufio.Reader) (string, *mat.Matrix, error) {
	var tag string
	if _, err := fmt.Fscan(r, &tag); err != nil {
		if err == io.EOF {
			return "", nil, io.EOF
		}
		return "", nil, fmt.Errorf("nn: reading layer tag: %w", err)
	}
	if len(tag) < 3 || tag[0] != '<' || tag[len(tag)-1] != '>' {
		return "", nil, fmt.Errorf("nn: malformed layer tag %q", tag)
	}
	kind := tag[1 : len(tag)-1]

	var rows, cols int
	if _, err := fmt.Fscan(r, &rows, &cols); err != nil {
		return "", nil, fmt.Errorf("nn: reading %s layer shape: %w", kind, err)
	}
	if rows < 2 || cols < 2 {
		return "", nil, fmt.Errorf("nn: %s layer has degenerate shape %dx%d", kind, rows, cols)
	}

	w := mat.New(rows, cols)
	for row := 0; row < rows-1; row++ {
		for c := 0; c < cols; c++ {
			var v float32
			if _, err := fmt.Fscan(r, &v); err != nil {
				return "", nil, fmt.Errorf("nn: reading %s weights at (%d,%d): %w", kind, row, c, err)
			}
			w.Set(row, c, v)
		}
	}

	var biasTag string
	if _, err := fmt.Fscan(r, &biasTag); err != nil {
		return "", nil, fmt.Errorf("nn: reading %s bias tag: %w", kind, err)
	}
	if biasTag != "<bias>" {
		return "", nil, fmt.Errorf("nn: expected <bias> tag in %s layer, got %q", kind, biasTag)
	}
	for c := 0; c < cols; c++ {
		var v float32
		if _, err := fmt.Fscan(r, &v); err != nil {
			return "", nil, fmt.Errorf("nn: reading %s bias at %d: %w", kind, c, err)
		}
		w.Set(rows-1, c, v)
	}
	return kind, w, nil
}
