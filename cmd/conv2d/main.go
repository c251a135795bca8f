// Package main provides the conv2d CLI: it convolves an image with a filter
// on an accelerator, saves the result and checks it against a reference answer.
//
// Usage:
//
//	conv2d [flags] <image_file> <filter_file> <answer_file> <output_file>
//
// The stride is read from stride.raw next to the image file. Each image
// channel is convolved independently with the same filter.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"

	"github.com/born-ml/accelconv/internal/conv"
	"github.com/born-ml/accelconv/internal/device"
	"github.com/born-ml/accelconv/internal/device/cpu"
	"github.com/born-ml/accelconv/internal/device/webgpu"
	"github.com/born-ml/accelconv/internal/imageio"
	"github.com/born-ml/accelconv/internal/tensor"
	"github.com/born-ml/accelconv/internal/verify"
)

const version = "v0.1.0"

// Exit codes.
const (
	exitOK       = 0
	exitFailure  = 1
	exitMismatch = 2
)

func main() {
	code := run(os.Args[1:], os.Stdout, os.Stderr)
	klog.Flush()
	os.Exit(code)
}

// config holds the parsed command line.
type config struct {
	opts      conv.Options
	device    string
	workers   int
	tol       verify.Tolerance
	imagePath string
	filter    string
	answer    string
	output    string
}

func parseArgs(args []string, stderr io.Writer) (*config, error) {
	fs := flag.NewFlagSet("conv2d", flag.ContinueOnError)
	fs.SetOutput(stderr)
	klog.InitFlags(fs)

	def := conv.DefaultOptions()
	tol := verify.DefaultTolerance()
	cfg := &config{}

	strategy := fs.String("strategy", def.Strategy.String(), "convolution strategy: auto, unroll or direct")
	fs.IntVar(&cfg.opts.TileWidth, "tile", def.TileWidth, "work-group tile width")
	fs.BoolVar(&cfg.opts.InitAtCreate, "init-at-create", def.InitAtCreate, "initialize input buffers at allocation instead of uploading")
	fs.BoolVar(&cfg.opts.PerBatchGemm, "per-batch-gemm", false, "issue one GEMM per batch element")
	fs.IntVar(&cfg.opts.UnrollLimitBytes, "unroll-limit", def.UnrollLimitBytes, "largest unrolled buffer the auto strategy accepts, in bytes")
	fs.StringVar(&cfg.device, "device", "cpu", "compute device: cpu, webgpu or auto")
	fs.IntVar(&cfg.workers, "workers", 0, "cpu device worker goroutines (0 = all CPUs)")
	fs.Float64Var(&tol.Rel, "tol", tol.Rel, "relative tolerance of the answer check")
	fs.Float64Var(&tol.Abs, "abs-tol", tol.Abs, "absolute tolerance of the answer check")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: conv2d [flags] <image_file> <filter_file> <answer_file> <output_file>\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 4 {
		fs.Usage()
		return nil, fmt.Errorf("expected 4 arguments, got %d", fs.NArg())
	}

	s, err := conv.ParseStrategy(*strategy)
	if err != nil {
		return nil, err
	}
	cfg.opts.Strategy = s
	cfg.tol = tol
	cfg.imagePath, cfg.filter, cfg.answer, cfg.output = fs.Arg(0), fs.Arg(1), fs.Arg(2), fs.Arg(3)
	return cfg, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 1 && args[0] == "version" {
		fmt.Fprintf(stdout, "conv2d %s\n", version)
		return exitOK
	}

	cfg, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		klog.Errorf("conv2d: %v", err)
		return exitFailure
	}

	res, err := convolve(cfg)
	if err != nil {
		klog.Errorf("conv2d: %v", err)
		return exitFailure
	}
	if err := res.Err(); err != nil {
		klog.Errorf("conv2d: %v", err)
		return exitMismatch
	}
	fmt.Fprintf(stdout, "conv2d: %d values match the reference\n", res.Compared)
	return exitOK
}

// convolve runs the load, compute, save and compare pipeline.
func convolve(cfg *config) (verify.Result, error) {
	img, err := imageio.LoadImage(cfg.imagePath)
	if err != nil {
		return verify.Result{}, fmt.Errorf("load image: %w", err)
	}
	filter, err := imageio.LoadMatrix(cfg.filter)
	if err != nil {
		return verify.Result{}, fmt.Errorf("load filter: %w", err)
	}
	answer, err := imageio.LoadImage(cfg.answer)
	if err != nil {
		return verify.Result{}, fmt.Errorf("load answer: %w", err)
	}
	stride, err := imageio.LoadStride(filepath.Dir(cfg.imagePath))
	if err != nil {
		return verify.Result{}, fmt.Errorf("load stride: %w", err)
	}
	klog.V(1).Infof("conv2d: image %v, %dx%d filter, stride %d", img.Shape(), filter.KernelSize(), filter.KernelSize(), stride)

	weights, err := filter.Weights()
	if err != nil {
		return verify.Result{}, err
	}
	// Channels become batch elements of a single-channel convolution.
	input, err := img.Planar().Reshape(tensor.Shape{img.Channels, 1, img.Rows, img.Cols})
	if err != nil {
		return verify.Result{}, err
	}

	dc, release, err := openDevice(cfg)
	if err != nil {
		return verify.Result{}, err
	}
	defer release()

	out, err := conv.New(cfg.opts).Forward(dc, input, weights, stride)
	if err != nil {
		return verify.Result{}, err
	}
	result, err := tensor.ImageFromPlanar(out)
	if err != nil {
		return verify.Result{}, err
	}

	if err := imageio.SaveImage(cfg.output, result); err != nil {
		return verify.Result{}, err
	}
	klog.V(1).Infof("conv2d: saved %v to %s (sha256 %s)", result.Shape(), cfg.output, verify.Hex(verify.Checksum(result)))

	return verify.Compare(answer, result, cfg.tol), nil
}

// openDevice returns the selected compute context and its release function.
func openDevice(cfg *config) (device.Context, func(), error) {
	newCPU := func() (device.Context, func(), error) {
		c := cpu.DefaultConfig()
		if cfg.workers > 0 {
			c.Parallel.NumWorkers = cfg.workers
		}
		return cpu.New(c), func() {}, nil
	}

	switch cfg.device {
	case "cpu":
		return newCPU()
	case "webgpu":
		return webgpu.Open()
	case "auto":
		dc, release, err := webgpu.Open()
		if err == nil {
			return dc, release, nil
		}
		klog.V(1).Infof("conv2d: %v, falling back to cpu", err)
		return newCPU()
	default:
		return nil, nil, fmt.Errorf("unknown device %q (want cpu, webgpu or auto)", cfg.device)
	}
}
