// Package main provides the deepmat CLI: GPU-accelerated training and
// evaluation of dense and convolutional classification networks.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/deepmat-ml/deepmat/internal/backend/cpu"
	"github.com/deepmat-ml/deepmat/internal/backend/webgpu"
	"github.com/deepmat-ml/deepmat/internal/dataset"
	"github.com/deepmat-ml/deepmat/internal/mat"
	"github.com/deepmat-ml/deepmat/internal/nn"
)

const version = "v0.1.0-dev"

func usage() {
	fmt.Println("deepmat - dense-matrix neural network trainer")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  train      Train a network on a labeled dataset")
	fmt.Println("  predict    Evaluate a saved model on a dataset")
	fmt.Println("  version    Show version")
	fmt.Println("")
	fmt.Println("Run 'deepmat <command> -h' for command flags.")
}

func main() {
	log.SetFlags(log.LstdFlags)
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "version":
		fmt.Printf("deepmat %s\n", version)
	case "train":
		runTrain(os.Args[2:])
	case "predict":
		runPredict(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "deepmat: unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

// pickBackend returns the WebGPU backend when requested and available,
// falling back to the CPU with a notice.
func pickBackend(gpu bool) mat.Backend {
	if gpu {
		be, err := webgpu.New()
		if err == nil {
			log.Printf("using %s backend", be.Device())
			return be
		}
		log.Printf("WebGPU unavailable (%v), falling back to CPU", err)
	}
	return cpu.New()
}

func parseDims(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	dims := make([]int, len(parts))
	for i, p := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("bad layer dimension %q", p)
		}
		dims[i] = d
	}
	return dims, nil
}

func runTrain(args []string) {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	dataPath := fs.String("data", "", "training dataset file (dense or sparse format)")
	valPath := fs.String("val", "", "validation dataset file (default: 20% holdout)")
	convStruct := fs.String("struct", "", `convolutional front-end descriptor, e.g. "16x5x5-2s"`)
	imgRows := fs.Int("rows", 0, "input image rows (required with -struct)")
	imgCols := fs.Int("cols", 0, "input image cols (required with -struct)")
	inMaps := fs.Int("maps", 1, "input feature maps (with -struct)")
	hidden := fs.String("hidden", "", "comma-separated hidden layer dims, e.g. 256,128")
	lr := fs.Float64("lr", 0.1, "initial learning rate")
	variance := fs.Float64("variance", 0.1, "weight init standard deviation")
	epochs := fs.Int("epochs", 10, "training epochs")
	batch := fs.Int("batch", 64, "mini-batch size")
	measure := fs.String("measure", "cross-entropy", "error measure: l2 or cross-entropy")
	outPath := fs.String("out", "model.dnn", "model output path")
	gpu := fs.Bool("gpu", false, "use the WebGPU backend if available")
	seed := fs.Int64("seed", 42, "shuffle seed")
	standardize := fs.Bool("standardize", false, "standardize features to zero mean, unit variance")
	fs.Parse(args)

	if *dataPath == "" {
		log.Fatal("train: -data is required")
	}
	var m nn.ErrorMeasure
	switch *measure {
	case "l2":
		m = nn.MeasureL2
	case "cross-entropy":
		m = nn.MeasureCrossEntropy
	default:
		log.Fatalf("train: unknown error measure %q", *measure)
	}

	train, err := dataset.Load(*dataPath)
	if err != nil {
		log.Fatal(err)
	}
	train.Shuffle(*seed)

	var val *dataset.DataSet
	if *valPath != "" {
		val, err = dataset.Load(*valPath)
		if err != nil {
			log.Fatal(err)
		}
	} else {
		train, val = train.Split(0.8)
	}
	if *standardize {
		means, stddevs := train.Standardize()
		val.Apply(means, stddevs)
	}
	log.Printf("loaded %d training / %d validation samples, %d features, %d classes",
		train.Len(), val.Len(), train.Dim(), train.Classes())

	be := pickBackend(*gpu)
	cfg := nn.Config{
		LearningRate: float32(*lr),
		Variance:     float32(*variance),
		Measure:      m,
	}

	var cnn *nn.CNN
	denseIn := train.Dim()
	if *convStruct != "" {
		if *imgRows <= 0 || *imgCols <= 0 {
			log.Fatal("train: -struct requires -rows and -cols")
		}
		if *imgRows**imgCols**inMaps != train.Dim() {
			log.Fatalf("train: %d maps of %dx%d do not cover %d features",
				*inMaps, *imgRows, *imgCols, train.Dim())
		}
		cnn, err = nn.NewCNN(nn.Size{Rows: *imgRows, Cols: *imgCols}, *inMaps, *convStruct, cfg.Variance, be)
		if err != nil {
			log.Fatal(err)
		}
		denseIn = cnn.OutputDim()
		log.Printf("%s", cnn)
	}

	dims := append(append([]int{denseIn}, mustDims(*hidden)...), train.Classes())
	dnn, err := nn.NewDNN(dims, cfg, be)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("dense network dims: %v", dims)

	rate := cfg.LearningRate
	schedule := nn.NewLearnRateSchedule()
	for epoch := 1; epoch <= *epochs; epoch++ {
		for off := 0; off < train.Len(); off += *batch {
			count := *batch
			if off+count > train.Len() {
				count = train.Len() - off
			}
			fin, labels := train.Batch(off, count)
			target := nn.OneHot(labels, train.Classes())

			var cnnCtx *nn.CNNForwardContext
			if cnn != nil {
				fin, cnnCtx = cnn.FeedForward(fin)
			}
			fout, ctx := dnn.FeedForward(fin)
			errSig := dnn.GetError(fout, target)
			errIn := dnn.BackPropagate(errSig, ctx)
			dnn.Update(rate)
			if cnn != nil {
				cnn.BackPropagate(errIn, cnnCtx, rate)
			}
		}

		acc := evaluate(dnn, cnn, val, *batch)
		rate = schedule.Adjust(rate, acc)
		log.Printf("epoch %d: validation accuracy %.4f, learning rate %.5f", epoch, acc, rate)
	}

	if err := dnn.SaveFile(*outPath); err != nil {
		log.Fatal(err)
	}
	if cnn != nil {
		log.Printf("note: only the densely connected part was saved to %s", *outPath)
	} else {
		log.Printf("model saved to %s", *outPath)
	}
}

func runPredict(args []string) {
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	modelPath := fs.String("model", "", "model file written by 'deepmat train'")
	dataPath := fs.String("data", "", "evaluation dataset file")
	batch := fs.Int("batch", 64, "evaluation batch size")
	gpu := fs.Bool("gpu", false, "use the WebGPU backend if available")
	fs.Parse(args)

	if *modelPath == "" || *dataPath == "" {
		log.Fatal("predict: -model and -data are required")
	}
	be := pickBackend(*gpu)
	dnn, err := nn.ReadDNNFile(*modelPath, nn.Config{Measure: nn.MeasureCrossEntropy}, be)
	if err != nil {
		log.Fatal(err)
	}
	ds, err := dataset.Load(*dataPath)
	if err != nil {
		log.Fatal(err)
	}
	if ds.Dim() != dnn.InputDim() {
		log.Fatalf("predict: dataset has %d features but model expects %d", ds.Dim(), dnn.InputDim())
	}

	acc := evaluate(dnn, nil, ds, *batch)
	fmt.Printf("accuracy: %.4f (%d samples)\n", acc, ds.Len())
}

func evaluate(dnn *nn.DNN, cnn *nn.CNN, ds *dataset.DataSet, batch int) float32 {
	correct := 0
	for off := 0; off < ds.Len(); off += batch {
		count := batch
		if off+count > ds.Len() {
			count = ds.Len() - off
		}
		fin, labels := ds.Batch(off, count)
		if cnn != nil {
			fin, _ = cnn.FeedForward(fin)
		}
		correct += nn.CountCorrect(dnn.Predict(fin), labels)
	}
	return float32(correct) / float32(ds.Len())
}

func mustDims(s string) []int {
	dims, err := parseDims(s)
	if err != nil {
		log.Fatalf("train: %v", err)
	}
	return dims
}
