package tensor

import (
	"math"
	"math/bits"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"tinyserve/pkg/types"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	for _, dtype := range SupportedDTypes {
		for _, shape := range [][]int{{200, 300}, {200, 300, 3}} {
			mat := Zeros(dtype, shape...)
			wire, err := Encode(mat)
			require.NoError(t, err)

			assert.Equal(t, string(dtype), wire.DType)
			wireShape := []int{wire.Height, wire.Width}
			if wire.Channels > 1 {
				wireShape = append(wireShape, wire.Channels)
			}
			assert.Equal(t, shape, wireShape)

			back, err := Decode(wire)
			require.NoError(t, err)
			assert.True(t, mat.Equal(back), "%v %s did not survive the round trip", shape, dtype)
		}
	}
}

func TestEncodeDecode_RoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		dtype := rapid.SampledFrom(SupportedDTypes).Draw(t, "dtype")
		h := rapid.IntRange(0, 12).Draw(t, "h")
		w := rapid.IntRange(0, 12).Draw(t, "w")
		shape := []int{h, w}
		if rapid.Bool().Draw(t, "3d") {
			shape = append(shape, rapid.IntRange(2, 4).Draw(t, "c"))
		}
		size, _ := dtype.Size()
		n := numElements(shape) * size
		data := rapid.SliceOfN(rapid.Byte(), n, n).Draw(t, "data")
		mat := &Array{Shape: shape, DType: dtype, Data: data}

		wire, err := Encode(mat)
		if err != nil {
			t.Fatalf("encode %v: %v", mat, err)
		}
		back, err := Decode(wire)
		if err != nil {
			t.Fatalf("decode %v: %v", mat, err)
		}
		if !mat.Equal(back) {
			t.Fatalf("round trip changed %v into %v", mat, back)
		}
	})
}

func TestEncode_InvalidDtype(t *testing.T) {
	mat := &Array{Shape: []int{300, 400, 3}, DType: "int32", Data: make([]byte, 300*400*3*4)}
	_, err := Encode(mat)
	require.Error(t, err)
	assert.True(t, IsUnsupportedDtype(err))
}

func TestDecode_InvalidDtype(t *testing.T) {
	wire := &types.Tensor{Height: 300, Width: 400, Channels: 3, DType: "int32", Data: make([]byte, 300*400*3*4)}
	_, err := Decode(wire)
	require.Error(t, err)
	assert.True(t, IsUnsupportedDtype(err))
}

func TestBatch_RoundTrip(t *testing.T) {
	for _, dtype := range SupportedDTypes {
		for _, shape := range [][]int{{20, 30}, {20, 30, 3}} {
			mats := make([]*Array, 6)
			for i := range mats {
				mats[i] = Zeros(dtype, shape...)
			}
			wire, err := EncodeBatch(mats)
			require.NoError(t, err)
			require.Len(t, wire, 6)
			back, err := DecodeBatch(wire)
			require.NoError(t, err)
			for i := range back {
				assert.True(t, mats[0].Equal(back[i]))
			}
		}
	}
}

func TestEncodeBatch_InvalidDtype(t *testing.T) {
	good := Zeros(Float32, 3, 4, 3)
	bad := &Array{Shape: []int{3, 4, 3}, DType: "int32", Data: make([]byte, 3*4*3*4)}
	out, err := EncodeBatch([]*Array{good, bad, good})
	require.Error(t, err)
	assert.True(t, IsUnsupportedDtype(err))
	assert.Nil(t, out, "no partial results")
}

func TestDecodeBatch_InvalidDtype(t *testing.T) {
	wire, err := EncodeBatch([]*Array{Zeros(Float32, 3, 4, 3), Zeros(Float32, 3, 4, 3), Zeros(Float32, 3, 4, 3)})
	require.NoError(t, err)
	for _, w := range wire {
		w.DType = "int32"
	}
	out, err := DecodeBatch(wire)
	require.Error(t, err)
	assert.True(t, IsUnsupportedDtype(err))
	assert.Nil(t, out)
}

func TestDecode_LengthMismatch(t *testing.T) {
	wire := &types.Tensor{Height: 2, Width: 2, Channels: 3, DType: "float32", Data: make([]byte, 5)}
	_, err := Decode(wire)
	require.Error(t, err)
	assert.True(t, IsShapeError(err))
	assert.False(t, IsUnsupportedDtype(err))
}

func TestDecode_RejectsOverflowingShape(t *testing.T) {
	// half*half wraps to exactly zero, which would match an empty payload.
	const half = 1 << (bits.UintSize / 2)
	wire := &types.Tensor{Height: half, Width: half, Channels: 1, DType: "uint8"}
	_, err := Decode(wire)
	require.Error(t, err)
	assert.True(t, IsShapeError(err))

	wire = &types.Tensor{Height: math.MaxInt / 2, Width: 1, Channels: 1, DType: "float64", Data: make([]byte, 8)}
	_, err = Decode(wire)
	require.Error(t, err)
	assert.True(t, IsShapeError(err))
}

func TestEncode_RejectsOverflowingShape(t *testing.T) {
	const half = 1 << (bits.UintSize / 2)
	_, err := Encode(&Array{Shape: []int{half, half, 1}, DType: Uint8})
	require.Error(t, err)
	assert.True(t, IsShapeError(err))
}

func TestCheckedProduct(t *testing.T) {
	n, ok := checkedProduct(2, 3, 4)
	assert.True(t, ok)
	assert.Equal(t, 24, n)

	n, ok = checkedProduct(math.MaxInt, 2, 0)
	assert.True(t, ok)
	assert.Equal(t, 0, n)

	_, ok = checkedProduct(math.MaxInt, 2)
	assert.False(t, ok)
	_, ok = checkedProduct(3, -1)
	assert.False(t, ok)
}

func TestEncode_RejectsBadShapes(t *testing.T) {
	_, err := Encode(&Array{Shape: []int{4}, DType: Uint8, Data: make([]byte, 4)})
	assert.True(t, IsShapeError(err))
	_, err = Encode(&Array{Shape: []int{2, 2}, DType: Uint8, Data: make([]byte, 3)})
	assert.True(t, IsShapeError(err))
	_, err = Encode(nil)
	assert.True(t, IsShapeError(err))
}

func TestFloatAccessors(t *testing.T) {
	f32 := FromFloat32([]int{1, 3}, []float32{1.5, -2, 3.25})
	got32, err := f32.Float32s()
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, -2, 3.25}, got32)

	f64 := FromFloat64([]int{3, 1}, []float64{0.1, 0.2, 0.3})
	got64, err := f64.Float64s()
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, got64)

	_, err = f64.Uint8s()
	assert.Error(t, err)
}
