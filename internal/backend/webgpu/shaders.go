package webgpu

// WGSL compute shaders for the matrix backend. All matrices are column-major:
// element (r, c) of an R x C matrix lives at index c*R + r.

// gemmShader computes C = alpha*op(A)*op(B) + beta*C.
const gemmShader = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read> cin: array<f32>;
@group(0) @binding(3) var<storage, read_write> result: array<f32>;

struct Params {
    m: u32,
    k: u32,
    n: u32,
    ta: u32,
    tb: u32,
    alpha: f32,
    beta: f32,
}
@group(0) @binding(4) var<uniform> params: Params;

@compute @workgroup_size(16, 16)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let col = global_id.x;
    let row = global_id.y;

    if (row >= params.m || col >= params.n) {
        return;
    }

    var sum: f32 = 0.0;
    for (var l: u32 = 0u; l < params.k; l = l + 1u) {
        var av: f32;
        if (params.ta == 0u) {
            av = a[l * params.m + row];
        } else {
            av = a[row * params.k + l];
        }
        var bv: f32;
        if (params.tb == 0u) {
            bv = b[col * params.k + l];
        } else {
            bv = b[l * params.n + col];
        }
        sum = sum + av * bv;
    }

    let idx = col * params.m + row;
    result[idx] = params.alpha * sum + params.beta * cin[idx];
}
`

// geamShader computes C = alpha*op(A) + beta*op(B).
const geamShader = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    m: u32,
    n: u32,
    ta: u32,
    tb: u32,
    alpha: f32,
    beta: f32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(16, 16)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let col = global_id.x;
    let row = global_id.y;

    if (row >= params.m || col >= params.n) {
        return;
    }

    var av: f32;
    if (params.ta == 0u) {
        av = a[col * params.m + row];
    } else {
        av = a[row * params.n + col];
    }
    var bv: f32;
    if (params.tb == 0u) {
        bv = b[col * params.m + row];
    } else {
        bv = b[row * params.n + col];
    }

    result[col * params.m + row] = params.alpha * av + params.beta * bv;
}
`

// mulShader computes the elementwise product result = a * b.
const mulShader = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx < params.size) {
        result[idx] = a[idx] * b[idx];
    }
}
`

// scaleShader computes result = alpha * a.
const scaleShader = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
    alpha: f32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx < params.size) {
        result[idx] = params.alpha * a[idx];
    }
}
`

// fillShader sets every element to a constant.
const fillShader = `
@group(0) @binding(0) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
    value: f32,
}
@group(0) @binding(1) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx < params.size) {
        result[idx] = params.value;
    }
}
`

// sigmoidShader computes result = 1 / (1 + exp(-a)).
const sigmoidShader = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx < params.size) {
        result[idx] = 1.0 / (1.0 + exp(-a[idx]));
    }
}
`

// sigmoidGradShader computes the fused local delta
// result = err * fout * (1 - fout).
const sigmoidGradShader = `
@group(0) @binding(0) var<storage, read> fout: array<f32>;
@group(0) @binding(1) var<storage, read> err: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx < params.size) {
        let f = fout[idx];
        result[idx] = err[idx] * f * (1.0 - f);
    }
}
`

// softmaxRowsShader computes a max-shifted softmax over one row per thread.
const softmaxRowsShader = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read_write> result: array<f32>;

struct Params {
    rows: u32,
    cols: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let row = global_id.x;
    if (row >= params.rows) {
        return;
    }

    var maxv: f32 = a[row];
    for (var c: u32 = 1u; c < params.cols; c = c + 1u) {
        let v = a[c * params.rows + row];
        if (v > maxv) {
            maxv = v;
        }
    }

    var sum: f32 = 0.0;
    for (var c: u32 = 0u; c < params.cols; c = c + 1u) {
        let e = exp(a[c * params.rows + row] - maxv);
        result[c * params.rows + row] = e;
        sum = sum + e;
    }

    for (var c: u32 = 0u; c < params.cols; c = c + 1u) {
        result[c * params.rows + row] = result[c * params.rows + row] / sum;
    }
}
`
