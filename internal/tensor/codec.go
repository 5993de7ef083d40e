package tensor

import (
	"fmt"

	"tinyserve/pkg/types"
)

// Encode converts a 2-D or 3-D array into its wire message. The message shares
// a's backing bytes.
func Encode(a *Array) (*types.Tensor, error) {
	if a == nil {
		return nil, shapeError{msg: "nil array"}
	}
	size, ok := a.DType.Size()
	if !ok {
		return nil, ErrUnsupportedDtype(string(a.DType))
	}
	if len(a.Shape) != 2 && len(a.Shape) != 3 {
		return nil, shapeError{msg: fmt.Sprintf("expected 2 or 3 dimensions, got %d", len(a.Shape))}
	}
	for _, d := range a.Shape {
		if d < 0 {
			return nil, shapeError{msg: fmt.Sprintf("negative dimension in %v", a.Shape)}
		}
	}
	want, ok := checkedProduct(append(append([]int(nil), a.Shape...), size)...)
	if !ok {
		return nil, shapeError{msg: fmt.Sprintf("%v %s is too large", a.Shape, a.DType)}
	}
	if len(a.Data) != want {
		return nil, shapeError{msg: fmt.Sprintf("%v %s needs %d bytes, have %d", a.Shape, a.DType, want, len(a.Data))}
	}
	return &types.Tensor{
		Height:   a.Height(),
		Width:    a.Width(),
		Channels: a.Channels(),
		DType:    string(a.DType),
		Data:     a.Data,
	}, nil
}

// Decode rebuilds an array from its wire message. Channels == 1 yields a 2-D
// shape; anything larger yields a 3-D shape.
func Decode(t *types.Tensor) (*Array, error) {
	if t == nil {
		return nil, shapeError{msg: "nil tensor"}
	}
	dtype := DType(t.DType)
	size, ok := dtype.Size()
	if !ok {
		return nil, ErrUnsupportedDtype(t.DType)
	}
	if t.Height < 0 || t.Width < 0 || t.Channels < 1 {
		return nil, shapeError{msg: fmt.Sprintf("height=%d width=%d channels=%d", t.Height, t.Width, t.Channels)}
	}
	shape := []int{t.Height, t.Width}
	if t.Channels > 1 {
		shape = append(shape, t.Channels)
	}
	want, ok := checkedProduct(t.Height, t.Width, t.Channels, size)
	if !ok {
		return nil, shapeError{msg: fmt.Sprintf("%v %s is too large", shape, dtype)}
	}
	if len(t.Data) != want {
		return nil, shapeError{msg: fmt.Sprintf("%v %s needs %d bytes, have %d", shape, dtype, want, len(t.Data))}
	}
	return &Array{Shape: shape, DType: dtype, Data: t.Data}, nil
}

// EncodeBatch encodes every array, failing on the first one that cannot be encoded.
func EncodeBatch(arrays []*Array) ([]*types.Tensor, error) {
	out := make([]*types.Tensor, len(arrays))
	for i, a := range arrays {
		t, err := Encode(a)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		out[i] = t
	}
	return out, nil
}

// DecodeBatch decodes every message, failing on the first one that cannot be decoded.
func DecodeBatch(ts []*types.Tensor) ([]*Array, error) {
	out := make([]*Array, len(ts))
	for i, t := range ts {
		a, err := Decode(t)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		out[i] = a
	}
	return out, nil
}
