// Package webgpu implements the mat.Backend interface on the GPU using
// WGSL compute shaders via go-webgpu (zero-CGO WebGPU bindings).
//
// Every operation uploads its operands, dispatches a cached compute
// pipeline and reads the result back before returning, so calls are
// synchronous from the host's point of view. GPU-side failures are fatal:
// they panic, matching the engine's abort-on-failure error model.
package webgpu

import (
	"fmt"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/deepmat-ml/deepmat/internal/mat"
)

// Backend computes matrix operations with WebGPU compute shaders.
type Backend struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	// Shader and pipeline cache, keyed by shader name.
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex
}

// New creates a WebGPU backend.
// Returns an error if WebGPU is not available or initialization fails.
func New() (backend *Backend, err error) {
	// Recover from panic if the wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			backend = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance, instanceErr := wgpu.CreateInstance(nil)
	if instanceErr != nil {
		return nil, fmt.Errorf("webgpu: failed to create instance: %w", instanceErr)
	}

	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		return nil, fmt.Errorf("webgpu: no adapter available: %w", adapterErr)
	}

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		return nil, fmt.Errorf("webgpu: failed to create device: %w", deviceErr)
	}

	return &Backend{
		instance:  instance,
		adapter:   adapter,
		device:    device,
		queue:     device.GetQueue(),
		shaders:   make(map[string]*wgpu.ShaderModule),
		pipelines: make(map[string]*wgpu.ComputePipeline),
	}, nil
}

// Device reports mat.WebGPU.
func (b *Backend) Device() mat.Device { return mat.WebGPU }

// Gemm computes C = alpha*op(A)*op(B) + beta*C.
func (b *Backend) Gemm(transA, transB bool, alpha float32, a, bm *mat.Matrix, beta float32, c *mat.Matrix) {
	m, k := opDims(transA, a)
	k2, n := opDims(transB, bm)
	if k != k2 {
		panic(fmt.Sprintf("webgpu: gemm: inner dimension mismatch: op(A) is %dx%d, op(B) is %dx%d", m, k, k2, n))
	}
	if c.Rows() != m || c.Cols() != n {
		panic(fmt.Sprintf("webgpu: gemm: C is %dx%d, want %dx%d", c.Rows(), c.Cols(), m, n))
	}

	params := newParamBlock()
	params.putU32(uint32(m), uint32(k), uint32(n), boolU32(transA), boolU32(transB))
	params.putF32(alpha, beta)

	b.run("gemm", gemmShader, []*mat.Matrix{a, bm, c}, c, params.bytes(), grid2D(n, m))
}

// Geam computes C = alpha*op(A) + beta*op(B).
func (b *Backend) Geam(transA, transB bool, alpha float32, a *mat.Matrix, beta float32, bm *mat.Matrix, c *mat.Matrix) {
	m, n := opDims(transA, a)
	if bm == nil {
		// op(B) unused when beta == 0; bind A twice to satisfy the layout.
		bm = a
		transB = transA
		beta = 0
	}
	bmR, bmC := opDims(transB, bm)
	if bmR != m || bmC != n {
		panic(fmt.Sprintf("webgpu: geam: op(A) is %dx%d, op(B) is %dx%d", m, n, bmR, bmC))
	}
	if c.Rows() != m || c.Cols() != n {
		panic(fmt.Sprintf("webgpu: geam: C is %dx%d, want %dx%d", c.Rows(), c.Cols(), m, n))
	}

	params := newParamBlock()
	params.putU32(uint32(m), uint32(n), boolU32(transA), boolU32(transB))
	params.putF32(alpha, beta)

	b.run("geam", geamShader, []*mat.Matrix{a, bm}, c, params.bytes(), grid2D(n, m))
}

// Mul computes the elementwise product C = A .* B.
func (b *Backend) Mul(a, bm, c *mat.Matrix) {
	mat.CheckSameShape("mul", a, bm)
	mat.CheckSameShape("mul", a, c)
	params := newParamBlock()
	params.putU32(uint32(a.Size()))
	b.run("mul", mulShader, []*mat.Matrix{a, bm}, c, params.bytes(), grid1D(a.Size()))
}

// Scale multiplies A by alpha in place.
func (b *Backend) Scale(alpha float32, a *mat.Matrix) {
	params := newParamBlock()
	params.putU32(uint32(a.Size()))
	params.putF32(alpha)
	b.run("scale", scaleShader, []*mat.Matrix{a}, a, params.bytes(), grid1D(a.Size()))
}

// Fill sets every element of A to v.
func (b *Backend) Fill(a *mat.Matrix, v float32) {
	params := newParamBlock()
	params.putU32(uint32(a.Size()))
	params.putF32(v)
	b.run("fill", fillShader, nil, a, params.bytes(), grid1D(a.Size()))
}

// Sigmoid computes B = 1/(1+exp(-A)) elementwise.
func (b *Backend) Sigmoid(a, bm *mat.Matrix) {
	mat.CheckSameShape("sigmoid", a, bm)
	params := newParamBlock()
	params.putU32(uint32(a.Size()))
	b.run("sigmoid", sigmoidShader, []*mat.Matrix{a}, bm, params.bytes(), grid1D(a.Size()))
}

// SigmoidGrad computes delta = err .* fout .* (1 - fout).
func (b *Backend) SigmoidGrad(fout, err, delta *mat.Matrix) {
	mat.CheckSameShape("sigmoidGrad", fout, err)
	mat.CheckSameShape("sigmoidGrad", fout, delta)
	params := newParamBlock()
	params.putU32(uint32(fout.Size()))
	b.run("sigmoid_grad", sigmoidGradShader, []*mat.Matrix{fout, err}, delta, params.bytes(), grid1D(fout.Size()))
}

// SoftmaxRows computes a max-shifted softmax over each row of A.
// One invocation handles one full row.
func (b *Backend) SoftmaxRows(a, bm *mat.Matrix) {
	mat.CheckSameShape("softmaxRows", a, bm)
	params := newParamBlock()
	params.putU32(uint32(a.Rows()), uint32(a.Cols()))
	b.run("softmax_rows", softmaxRowsShader, []*mat.Matrix{a}, bm, params.bytes(), grid1D(a.Rows()))
}

func opDims(trans bool, m *mat.Matrix) (rows, cols int) {
	if trans {
		return m.Cols(), m.Rows()
	}
	return m.Rows(), m.Cols()
}

func boolU32(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}
