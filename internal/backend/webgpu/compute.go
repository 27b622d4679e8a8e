package webgpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/deepmat-ml/deepmat/internal/mat"
)

// workgroupSize is the number of threads per workgroup for 1-D kernels.
const workgroupSize = 256

// tileSize is the workgroup edge for 2-D kernels.
const tileSize = 16

// paramBlock accumulates uniform parameters with 16-byte aligned size.
type paramBlock struct {
	data []byte
}

func newParamBlock() *paramBlock { return &paramBlock{} }

func (p *paramBlock) putU32(vs ...uint32) {
	for _, v := range vs {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], v)
		p.data = append(p.data, buf[:]...)
	}
}

func (p *paramBlock) putF32(vs ...float32) {
	for _, v := range vs {
		p.putU32(math.Float32bits(v))
	}
}

// bytes returns the parameter block rounded up to a 16-byte boundary.
func (p *paramBlock) bytes() []byte {
	for len(p.data)%16 != 0 {
		p.data = append(p.data, 0)
	}
	return p.data
}

// grid1D computes the dispatch size for a 1-D kernel over n elements.
func grid1D(n int) [3]uint32 {
	return [3]uint32{uint32((n + workgroupSize - 1) / workgroupSize), 1, 1}
}

// grid2D computes the dispatch size for a 2-D kernel over cols x rows.
func grid2D(cols, rows int) [3]uint32 {
	return [3]uint32{
		uint32((cols + tileSize - 1) / tileSize),
		uint32((rows + tileSize - 1) / tileSize),
		1,
	}
}

// compileShader compiles WGSL shader code into a ShaderModule.
// Results are cached in the Backend's shaders map.
func (b *Backend) compileShader(name, code string) *wgpu.ShaderModule {
	b.mu.RLock()
	if shader, exists := b.shaders[name]; exists {
		b.mu.RUnlock()
		return shader
	}
	b.mu.RUnlock()

	shader := b.device.CreateShaderModuleWGSL(code)

	b.mu.Lock()
	b.shaders[name] = shader
	b.mu.Unlock()

	return shader
}

// getOrCreatePipeline returns a cached ComputePipeline or creates a new one.
func (b *Backend) getOrCreatePipeline(name string, shader *wgpu.ShaderModule) *wgpu.ComputePipeline {
	b.mu.RLock()
	if pipeline, exists := b.pipelines[name]; exists {
		b.mu.RUnlock()
		return pipeline
	}
	b.mu.RUnlock()

	pipeline := b.device.CreateComputePipelineSimple(nil, shader, "main")

	b.mu.Lock()
	b.pipelines[name] = pipeline
	b.mu.Unlock()

	return pipeline
}

// createStorageBuffer creates a storage buffer initialized with data.
func (b *Backend) createStorageBuffer(data []byte) *wgpu.Buffer {
	size := uint64(len(data))
	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mappedPtr := buffer.GetMappedRange(0, size)
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	buffer.Unmap()
	return buffer
}

// createUniformBuffer creates a uniform buffer. The caller guarantees data
// is already 16-byte aligned (paramBlock.bytes does this).
func (b *Backend) createUniformBuffer(data []byte) *wgpu.Buffer {
	size := uint64(len(data))
	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mappedPtr := buffer.GetMappedRange(0, size)
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	buffer.Unmap()
	return buffer
}

// readBuffer reads data back from a GPU buffer to host memory.
// Uses a staging buffer since storage buffers cannot be mapped directly.
func (b *Backend) readBuffer(srcBuffer *wgpu.Buffer, size uint64) ([]byte, error) {
	stagingBuffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer stagingBuffer.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(srcBuffer, 0, stagingBuffer, 0, size)
	cmdBuffer := encoder.Finish(nil)
	b.queue.Submit(cmdBuffer)

	err := stagingBuffer.MapAsync(b.device, wgpu.MapModeRead, 0, size)
	if err != nil {
		return nil, fmt.Errorf("failed to map staging buffer: %w", err)
	}

	mappedPtr := stagingBuffer.GetMappedRange(0, size)
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	result := make([]byte, size)
	copy(result, mappedSlice)
	stagingBuffer.Unmap()

	return result, nil
}

// matrixBytes views a matrix's float32 data as raw bytes.
func matrixBytes(m *mat.Matrix) []byte {
	d := m.Data()
	return unsafe.Slice((*byte)(unsafe.Pointer(&d[0])), len(d)*4)
}

// run uploads the inputs, dispatches the named shader and reads the result
// back into out's backing slice.
//
// Binding layout, matched by every shader in shaders.go:
//
//	0..len(inputs)-1  read-only storage, one per input matrix
//	len(inputs)       read_write storage, the result
//	len(inputs)+1     uniform parameter block
//
// out may alias one of the inputs: the result is computed into a separate
// device buffer and copied back only after the dispatch completes.
func (b *Backend) run(name, code string, inputs []*mat.Matrix, out *mat.Matrix, params []byte, grid [3]uint32) {
	shader := b.compileShader(name, code)
	pipeline := b.getOrCreatePipeline(name, shader)

	entries := make([]wgpu.BindGroupEntry, 0, len(inputs)+2)
	buffers := make([]*wgpu.Buffer, 0, len(inputs))
	for i, in := range inputs {
		buf := b.createStorageBuffer(matrixBytes(in))
		buffers = append(buffers, buf)
		entries = append(entries, wgpu.BufferBindingEntry(uint32(i), buf, 0, uint64(in.Size()*4)))
	}
	defer func() {
		for _, buf := range buffers {
			buf.Release()
		}
	}()

	resultSize := uint64(out.Size() * 4)
	bufferResult := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  resultSize,
	})
	defer bufferResult.Release()
	entries = append(entries, wgpu.BufferBindingEntry(uint32(len(inputs)), bufferResult, 0, resultSize))

	bufferParams := b.createUniformBuffer(params)
	defer bufferParams.Release()
	entries = append(entries, wgpu.BufferBindingEntry(uint32(len(inputs)+1), bufferParams, 0, uint64(len(params))))

	bindGroupLayout := pipeline.GetBindGroupLayout(0)
	bindGroup := b.device.CreateBindGroupSimple(bindGroupLayout, entries)
	defer bindGroup.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	computePass := encoder.BeginComputePass(nil)
	computePass.SetPipeline(pipeline)
	computePass.SetBindGroup(0, bindGroup, nil)
	computePass.DispatchWorkgroups(grid[0], grid[1], grid[2])
	computePass.End()
	cmdBuffer := encoder.Finish(nil)
	b.queue.Submit(cmdBuffer)

	resultData, err := b.readBuffer(bufferResult, resultSize)
	if err != nil {
		panic(fmt.Sprintf("webgpu: %s: readback failed: %v", name, err))
	}
	copy(matrixBytes(out), resultData)
}
