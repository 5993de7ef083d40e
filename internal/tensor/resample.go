package tensor

// Fixed-point separable bicubic resampling on uint8 pixels. The coefficient
// layout, rounding and clipping follow Pillow's BICUBIC resize, so a client
// that shrinks an image here sends the same bytes a Pillow client would.

const (
	precisionBits = 32 - 8 - 2
	bicubicA      = -0.5
)

func bicubic(x float64) float64 {
	if x < 0 {
		x = -x
	}
	if x < 1 {
		return ((bicubicA+2)*x-(bicubicA+3))*x*x + 1
	}
	if x < 2 {
		return (((x-5)*x+8)*x - 4) * bicubicA
	}
	return 0
}

// kernel holds, per output position, the first contributing input index and
// the fixed-point weights of the inputs from there on.
type kernel struct {
	start   []int
	weights [][]int32
}

func newKernel(inSize, outSize int) kernel {
	scale := float64(inSize) / float64(outSize)
	filterscale := max(scale, 1)
	support := 2 * filterscale
	ss := 1 / filterscale

	k := kernel{start: make([]int, outSize), weights: make([][]int32, outSize)}
	for xx := range outSize {
		center := (float64(xx) + 0.5) * scale
		xmin := max(int(center-support+0.5), 0)
		xmax := min(int(center+support+0.5), inSize)

		w := make([]float64, max(xmax-xmin, 0))
		var ww float64
		for x := range w {
			w[x] = bicubic((float64(x+xmin) - center + 0.5) * ss)
			ww += w[x]
		}
		fixed := make([]int32, len(w))
		for x, v := range w {
			if ww != 0 {
				v /= ww
			}
			if v < 0 {
				fixed[x] = int32(-0.5 + v*(1<<precisionBits))
			} else {
				fixed[x] = int32(0.5 + v*(1<<precisionBits))
			}
		}
		k.start[xx] = xmin
		k.weights[xx] = fixed
	}
	return k
}

func clip8(v int64) uint8 {
	if v >= 1<<precisionBits<<8 {
		return 255
	}
	if v <= 0 {
		return 0
	}
	return uint8(v >> precisionBits)
}

// resampleRows changes the width of an interleaved h x w x c buffer.
func resampleRows(src []uint8, h, w, c, outW int) []uint8 {
	k := newKernel(w, outW)
	out := make([]uint8, h*outW*c)
	for y := range h {
		row := src[y*w*c:]
		for xx := range outW {
			base := k.start[xx]
			for ch := range c {
				ss := int64(1) << (precisionBits - 1)
				for i, wt := range k.weights[xx] {
					ss += int64(row[(base+i)*c+ch]) * int64(wt)
				}
				out[(y*outW+xx)*c+ch] = clip8(ss)
			}
		}
	}
	return out
}

// resampleCols changes the height of an interleaved h x w x c buffer.
func resampleCols(src []uint8, h, w, c, outH int) []uint8 {
	k := newKernel(h, outH)
	stride := w * c
	out := make([]uint8, outH*stride)
	for yy := range outH {
		base := k.start[yy]
		for x := range stride {
			ss := int64(1) << (precisionBits - 1)
			for i, wt := range k.weights[yy] {
				ss += int64(src[(base+i)*stride+x]) * int64(wt)
			}
			out[yy*stride+x] = clip8(ss)
		}
	}
	return out
}

func mulDiv255(a, b uint8) uint8 {
	t := uint32(a)*uint32(b) + 128
	return uint8(((t >> 8) + t) >> 8)
}

func premultiply(rgba []uint8) []uint8 {
	out := make([]uint8, len(rgba))
	for i := 0; i+3 < len(rgba); i += 4 {
		a := rgba[i+3]
		out[i] = mulDiv255(rgba[i], a)
		out[i+1] = mulDiv255(rgba[i+1], a)
		out[i+2] = mulDiv255(rgba[i+2], a)
		out[i+3] = a
	}
	return out
}

// unpremultiply works in place.
func unpremultiply(rgba []uint8) {
	for i := 0; i+3 < len(rgba); i += 4 {
		a := int(rgba[i+3])
		if a == 0 || a == 255 {
			continue
		}
		for j := i; j < i+3; j++ {
			rgba[j] = uint8(min(255*int(rgba[j])/a, 255))
		}
	}
}
