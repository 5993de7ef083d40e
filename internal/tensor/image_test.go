package tensor

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResize_KeepsChannels(t *testing.T) {
	src := Zeros(Uint8, 40, 30, 3)
	for i := range src.Data {
		src.Data[i] = 200
	}
	out, err := Resize(src, 20, 15)
	require.NoError(t, err)
	assert.Equal(t, []int{20, 15, 3}, out.Shape)
	// A constant image stays constant under any interpolating kernel.
	for _, v := range out.Data {
		assert.Equal(t, uint8(200), v)
	}

	gray := Zeros(Uint8, 40, 30)
	out, err = Resize(gray, 10, 8)
	require.NoError(t, err)
	assert.Equal(t, []int{10, 8}, out.Shape)
}

// pattern fills an h x w x c array with a non-separable, non-monotonic ramp.
func pattern(h, w, c int) []uint8 {
	out := make([]uint8, 0, h*w*c)
	for y := range h {
		for x := range w {
			for ch := range c {
				out = append(out, uint8((x*37+y*23+ch*61+(x*y)%11*9)%256))
			}
		}
	}
	return out
}

// Expected pixels were produced with Pillow-equivalent BICUBIC fixed-point
// arithmetic (22-bit weights, horizontal pass then vertical pass).
func TestResize_MatchesPillowBicubic(t *testing.T) {
	cases := []struct {
		name       string
		h, w, c    int
		rows, cols int
		shape      []int
		want       []uint8
	}{
		{
			name: "gray both axes", h: 8, w: 6, c: 1, rows: 3, cols: 4, shape: []int{3, 4},
			want: []uint8{33, 103, 148, 165, 106, 173, 111, 78, 146, 117, 67, 99},
		},
		{
			name: "gray height only", h: 8, w: 6, c: 1, rows: 4, cols: 6, shape: []int{4, 6},
			want: []uint8{
				13, 54, 96, 149, 157, 209,
				57, 116, 185, 130, 119, 72,
				104, 191, 152, 87, 74, 85,
				148, 125, 97, 68, 79, 119,
			},
		},
		{
			name: "rgb", h: 6, w: 5, c: 3, rows: 3, cols: 2, shape: []int{3, 2, 3},
			want: []uint8{49, 116, 171, 141, 155, 118, 113, 145, 167, 140, 65, 90, 144, 117, 131, 101, 67, 128},
		},
		{
			name: "rgba premultiplied", h: 4, w: 4, c: 4, rows: 2, cols: 2, shape: []int{2, 2, 4},
			want: []uint8{34, 97, 158, 191, 133, 171, 133, 61, 74, 127, 182, 144, 132, 74, 85, 117},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			shape := []int{tc.h, tc.w}
			if tc.c > 1 {
				shape = append(shape, tc.c)
			}
			src := FromUint8(shape, pattern(tc.h, tc.w, tc.c))
			before := append([]uint8(nil), src.Data...)

			out, err := Resize(src, tc.rows, tc.cols)
			require.NoError(t, err)
			assert.Equal(t, tc.shape, out.Shape)
			assert.Equal(t, tc.want, out.Data)
			assert.Equal(t, before, src.Data, "input must not be modified")
		})
	}
}

func TestResize_SameSizeCopies(t *testing.T) {
	src := FromUint8([]int{2, 2}, []uint8{1, 2, 3, 4})
	out, err := Resize(src, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, src.Data, out.Data)
	out.Data[0] = 9
	assert.Equal(t, uint8(1), src.Data[0])
}

func TestResize_RejectsBadShapes(t *testing.T) {
	_, err := Resize(Zeros(Uint8, 4, 4, 2), 2, 2)
	assert.Error(t, err)

	_, err = Resize(Zeros(Uint8, 4, 4), 0, 2)
	require.Error(t, err)
	assert.True(t, IsShapeError(err))

	_, err = Resize(FromUint8([]int{4, 4}, make([]uint8, 3)), 2, 2)
	require.Error(t, err)
	assert.True(t, IsShapeError(err))
}

func TestResize_RejectsFloat(t *testing.T) {
	_, err := Resize(Zeros(Float32, 4, 4, 3), 2, 2)
	assert.Error(t, err)
}

func TestGrayscale(t *testing.T) {
	rgb := FromUint8([]int{1, 3, 3}, []uint8{
		255, 0, 0,
		0, 255, 0,
		255, 255, 255,
	})
	g, err := Grayscale(rgb)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, g.Shape)
	assert.Equal(t, []uint8{76, 150, 255}, g.Data)

	rgb = FromUint8([]int{6, 5, 3}, pattern(6, 5, 3))
	g, err = Grayscale(rgb)
	require.NoError(t, err)
	assert.Equal(t, []int{6, 5}, g.Shape)
	assert.Equal(t, []uint8{
		50, 87, 124, 161, 169,
		73, 119, 165, 182, 77,
		96, 151, 177, 81, 60,
		119, 183, 67, 55, 96,
		142, 186, 108, 82, 79,
		165, 67, 73, 56, 138,
	}, g.Data)

	rgba := FromUint8([]int{1, 1, 4}, []uint8{255, 0, 0, 0})
	g, err = Grayscale(rgba)
	require.NoError(t, err)
	assert.Equal(t, []uint8{76}, g.Data, "alpha is ignored")

	flat := Zeros(Uint8, 2, 2)
	same, err := Grayscale(flat)
	require.NoError(t, err)
	assert.Same(t, flat, same)
}

func TestToImage_FromImage_RoundTrip(t *testing.T) {
	src := FromUint8([]int{2, 2, 3}, []uint8{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})
	img, err := ToImage(src)
	require.NoError(t, err)
	back, err := FromImage(img, 3)
	require.NoError(t, err)
	assert.True(t, src.Equal(back))
}

func TestFromImage_NormalizesColorModels(t *testing.T) {
	ycc := image.NewYCbCr(image.Rect(0, 0, 2, 1), image.YCbCrSubsampleRatio444)
	for i := range ycc.Y {
		ycc.Y[i], ycc.Cb[i], ycc.Cr[i] = 128, 128, 128
	}
	out, err := FromImage(ycc, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, out.Shape)
	assert.Equal(t, []uint8{128, 128, 128, 128, 128, 128}, out.Data)

	// A sub-image keeps its own origin.
	g := image.NewGray(image.Rect(0, 0, 3, 3))
	g.SetGray(2, 2, color.Gray{Y: 7})
	out, err = FromImage(g.SubImage(image.Rect(1, 1, 3, 3)), 1)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, out.Shape)
	assert.Equal(t, []uint8{0, 0, 0, 7}, out.Data)
}
