// Package tensor holds the numeric array type moved across the RPC boundary and
// the codec converting it to and from its wire message.
//
// Arrays are 2-D (height, width) or 3-D (height, width, channels), row-major,
// with elements stored little-endian in Data. Only uint8, float32 and float64
// elements cross the wire; no implicit conversion is ever performed.
package tensor

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// DType is an element type tag.
type DType string

const (
	Uint8   DType = "uint8"
	Float32 DType = "float32"
	Float64 DType = "float64"
)

// SupportedDTypes lists the element types accepted by the codec.
var SupportedDTypes = []DType{Uint8, Float32, Float64}

// Size returns the byte size of one element, and false for unsupported tags.
func (d DType) Size() (int, bool) {
	switch d {
	case Uint8:
		return 1, true
	case Float32:
		return 4, true
	case Float64:
		return 8, true
	}
	return 0, false
}

// Array is a dense numeric array.
type Array struct {
	Shape []int
	DType DType
	Data  []byte
}

// Zeros returns a zero-filled array. It panics on an unsupported dtype, like make
// panics on a negative length.
func Zeros(dtype DType, shape ...int) *Array {
	size, ok := dtype.Size()
	if !ok {
		panic(fmt.Sprintf("tensor: unsupported dtype %q", dtype))
	}
	return &Array{Shape: append([]int(nil), shape...), DType: dtype, Data: make([]byte, numElements(shape)*size)}
}

// FromUint8 wraps data without copying.
func FromUint8(shape []int, data []uint8) *Array {
	return &Array{Shape: append([]int(nil), shape...), DType: Uint8, Data: data}
}

// FromFloat32 packs data into a float32 array.
func FromFloat32(shape []int, data []float32) *Array {
	b := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return &Array{Shape: append([]int(nil), shape...), DType: Float32, Data: b}
}

// FromFloat64 packs data into a float64 array.
func FromFloat64(shape []int, data []float64) *Array {
	b := make([]byte, 8*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return &Array{Shape: append([]int(nil), shape...), DType: Float64, Data: b}
}

// Uint8s returns the elements of a uint8 array (sharing Data).
func (a *Array) Uint8s() ([]uint8, error) {
	if a.DType != Uint8 {
		return nil, fmt.Errorf("array is %s, not uint8", a.DType)
	}
	return a.Data, nil
}

// Float32s unpacks the elements of a float32 array.
func (a *Array) Float32s() ([]float32, error) {
	if a.DType != Float32 {
		return nil, fmt.Errorf("array is %s, not float32", a.DType)
	}
	out := make([]float32, len(a.Data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(a.Data[4*i:]))
	}
	return out, nil
}

// Float64s unpacks the elements of a float64 array.
func (a *Array) Float64s() ([]float64, error) {
	if a.DType != Float64 {
		return nil, fmt.Errorf("array is %s, not float64", a.DType)
	}
	out := make([]float64, len(a.Data)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(a.Data[8*i:]))
	}
	return out, nil
}

// Height is the row count.
func (a *Array) Height() int { return dim(a.Shape, 0) }

// Width is the column count.
func (a *Array) Width() int { return dim(a.Shape, 1) }

// Channels is the third dimension, or 1 for 2-D arrays.
func (a *Array) Channels() int {
	if len(a.Shape) < 3 {
		return 1
	}
	return a.Shape[2]
}

// Len is the number of elements.
func (a *Array) Len() int { return numElements(a.Shape) }

// Empty reports whether any dimension is zero.
func (a *Array) Empty() bool {
	for _, d := range a.Shape {
		if d == 0 {
			return true
		}
	}
	return len(a.Shape) == 0
}

// Equal reports bit-exact equality of shape, dtype and bytes.
func (a *Array) Equal(b *Array) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.DType != b.DType || len(a.Shape) != len(b.Shape) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	return bytes.Equal(a.Data, b.Data)
}

func (a *Array) String() string {
	return fmt.Sprintf("Array(%v, %s)", a.Shape, a.DType)
}

func dim(shape []int, i int) int {
	if i >= len(shape) {
		return 0
	}
	return shape[i]
}

// checkedProduct multiplies dims, reporting false when a dim is negative or the
// product overflows int.
func checkedProduct(dims ...int) (int, bool) {
	for _, d := range dims {
		if d < 0 {
			return 0, false
		}
		if d == 0 {
			return 0, true
		}
	}
	n := 1
	for _, d := range dims {
		if n > math.MaxInt/d {
			return 0, false
		}
		n *= d
	}
	return n, true
}

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
