package tensor

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// ToImage views a uint8 array as an image: 1 channel becomes *image.Gray,
// 3 channels *image.RGBA (opaque), 4 channels *image.NRGBA.
func ToImage(a *Array) (image.Image, error) {
	if a.DType != Uint8 {
		return nil, fmt.Errorf("image conversion needs uint8, got %s", a.DType)
	}
	h, w := a.Height(), a.Width()
	rect := image.Rect(0, 0, w, h)
	switch a.Channels() {
	case 1:
		img := image.NewGray(rect)
		copy(img.Pix, a.Data)
		return img, nil
	case 3:
		img := image.NewRGBA(rect)
		for i, j := 0, 0; i < len(a.Data); i, j = i+3, j+4 {
			img.Pix[j] = a.Data[i]
			img.Pix[j+1] = a.Data[i+1]
			img.Pix[j+2] = a.Data[i+2]
			img.Pix[j+3] = 0xff
		}
		return img, nil
	case 4:
		img := image.NewNRGBA(rect)
		copy(img.Pix, a.Data)
		return img, nil
	}
	return nil, fmt.Errorf("image conversion supports 1, 3 or 4 channels, got %d", a.Channels())
}

// FromImage converts img into a uint8 array with the given channel count (1, 3 or 4).
// 1 channel yields a 2-D shape.
func FromImage(img image.Image, channels int) (*Array, error) {
	b := img.Bounds()
	h, w := b.Dy(), b.Dx()
	rect := image.Rect(0, 0, w, h)
	switch channels {
	case 1:
		g := image.NewGray(rect)
		draw.Draw(g, rect, img, b.Min, draw.Src)
		return FromUint8([]int{h, w}, g.Pix), nil
	case 3, 4:
		n := image.NewNRGBA(rect)
		draw.Draw(n, rect, img, b.Min, draw.Src)
		if channels == 4 {
			return FromUint8([]int{h, w, 4}, n.Pix), nil
		}
		out := Zeros(Uint8, h, w, 3)
		for i, j := 0, 0; j < len(n.Pix); i, j = i+3, j+4 {
			copy(out.Data[i:i+3], n.Pix[j:j+3])
		}
		return out, nil
	}
	return nil, fmt.Errorf("image conversion supports 1, 3 or 4 channels, got %d", channels)
}

// Resize resamples a uint8 array to rows x cols with a bicubic kernel, keeping
// its rank and channel count. Width is resampled first, then height; a pass
// whose size is unchanged is skipped. 4-channel arrays are resampled with
// premultiplied alpha.
func Resize(a *Array, rows, cols int) (*Array, error) {
	if a.DType != Uint8 {
		return nil, fmt.Errorf("resize needs uint8, got %s", a.DType)
	}
	c := a.Channels()
	if c != 1 && c != 3 && c != 4 {
		return nil, fmt.Errorf("resize supports 1, 3 or 4 channels, got %d", c)
	}
	h, w := a.Height(), a.Width()
	if rows <= 0 || cols <= 0 || h <= 0 || w <= 0 {
		return nil, shapeError{msg: fmt.Sprintf("cannot resize %v to %dx%d", a.Shape, rows, cols)}
	}
	if want, ok := checkedProduct(h, w, c); !ok || len(a.Data) != want {
		return nil, shapeError{msg: fmt.Sprintf("%v uint8 needs %d bytes, have %d", a.Shape, want, len(a.Data))}
	}

	shape := []int{rows, cols}
	if len(a.Shape) > 2 {
		shape = append(shape, c)
	}
	if rows == h && cols == w {
		return FromUint8(shape, append([]uint8(nil), a.Data...)), nil
	}

	data := a.Data
	if c == 4 {
		data = premultiply(data)
	}
	if cols != w {
		data = resampleRows(data, h, w, c, cols)
	}
	if rows != h {
		data = resampleCols(data, h, cols, c, rows)
	}
	if c == 4 {
		unpremultiply(data)
	}
	return FromUint8(shape, data), nil
}

// Grayscale converts a 3- or 4-channel uint8 array to a 2-D array using
// ITU-R 601-2 luma in 16-bit fixed point; alpha is ignored. 2-D arrays are
// returned unchanged.
func Grayscale(a *Array) (*Array, error) {
	if len(a.Shape) < 3 {
		return a, nil
	}
	if a.DType != Uint8 {
		return nil, fmt.Errorf("grayscale needs uint8, got %s", a.DType)
	}
	c := a.Channels()
	switch c {
	case 1:
		return FromUint8(a.Shape[:2], a.Data), nil
	case 3, 4:
	default:
		return nil, fmt.Errorf("grayscale supports 1, 3 or 4 channels, got %d", c)
	}
	out := make([]uint8, len(a.Data)/c)
	for i := range out {
		p := a.Data[i*c:]
		out[i] = uint8((uint32(p[0])*19595 + uint32(p[1])*38470 + uint32(p[2])*7471 + 0x8000) >> 16)
	}
	return FromUint8(a.Shape[:2], out), nil
}
