package client

import (
	"math"

	"tinyserve/internal/tensor"
)

// Preprocess shrinks a batch towards the model's canonical shape before it is
// sent, so no bandwidth is spent on pixels the model would discard:
//
//   - a zero-area image becomes zeros of the canonical shape;
//   - an image whose rows differ from the canonical height, or whose columns
//     exceed the canonical width, is downscaled (bicubic) to the canonical
//     height with columns capped at the canonical width, if that is a reduction;
//   - with a 2-D canonical shape, colour images become single-channel.
//
// Only uint8 images with 1, 3 or 4 channels are resampled or converted;
// others pass through.
// A shape with fewer than two dimensions leaves the batch untouched.
func Preprocess(imgs []*tensor.Array, shape []int) ([]*tensor.Array, error) {
	if len(shape) < 2 {
		return imgs, nil
	}
	h, w := shape[0], shape[1]
	gray := len(shape) == 2
	out := make([]*tensor.Array, 0, len(imgs))
	for _, im := range imgs {
		if im == nil || im.Empty() {
			out = append(out, tensor.Zeros(tensor.Uint8, shape...))
			continue
		}
		if im.DType != tensor.Uint8 || !imageChannels(im.Channels()) {
			out = append(out, im)
			continue
		}
		rows, cols := im.Height(), im.Width()
		if rows != h || cols > w {
			if scale := float64(h) / float64(rows); scale < 1 {
				newCols := min(w, int(math.Ceil(scale*float64(cols))))
				resized, err := tensor.Resize(im, h, newCols)
				if err != nil {
					return nil, err
				}
				im = resized
			}
		}
		if gray && len(im.Shape) > 2 {
			g, err := tensor.Grayscale(im)
			if err != nil {
				return nil, err
			}
			im = g
		}
		out = append(out, im)
	}
	return out, nil
}

func imageChannels(c int) bool { return c == 1 || c == 3 || c == 4 }
