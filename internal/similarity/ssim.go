package similarity

import (
	"fmt"
	"image"

	"github.com/nfnt/resize"
)

const (
	ssimWindow = 7
	ssimK1     = 0.01
	ssimK2     = 0.03
	ssimRange  = 255.0
)

// grayPlane is a row-major luminance image.
type grayPlane struct {
	width  int
	height int
	pix    []float64
}

func prepareGray(img image.Image, analysisWidth int) (grayPlane, error) {
	if analysisWidth > 0 && img.Bounds().Dx() > analysisWidth {
		img = resize.Resize(uint(analysisWidth), 0, img, resize.Bilinear)
	}
	plane := toGray(img)
	if plane.width < ssimWindow || plane.height < ssimWindow {
		return grayPlane{}, fmt.Errorf("%w: %dx%d below %dx%d", ErrImageTooSmall, plane.width, plane.height, ssimWindow, ssimWindow)
	}
	return plane, nil
}

// toGray converts to luminance with the ITU-R BT.601 weights
// 0.299 R + 0.587 G + 0.114 B on an 8-bit scale.
func toGray(img image.Image) grayPlane {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := grayPlane{width: w, height: h, pix: make([]float64, w*h)}

	switch src := img.(type) {
	case *image.YCbCr:
		// JPEG luma is already the BT.601 weighted sum.
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				plane.pix[y*w+x] = float64(src.Y[src.YOffset(b.Min.X+x, b.Min.Y+y)])
			}
		}
	case *image.Gray:
		for y := 0; y < h; y++ {
			row := src.Pix[(y+b.Min.Y-src.Rect.Min.Y)*src.Stride:]
			for x := 0; x < w; x++ {
				plane.pix[y*w+x] = float64(row[x+b.Min.X-src.Rect.Min.X])
			}
		}
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				plane.pix[y*w+x] = (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 257.0
			}
		}
	}
	return plane
}

// ssim computes the mean structural similarity of two equally sized planes.
// Local statistics use a uniform 7x7 window with sample covariance; only
// windows lying entirely inside the image contribute to the mean.
func ssim(a, b grayPlane) float64 {
	w, h := a.width, a.height
	sa := newIntegral(a.pix, nil, w, h)
	sb := newIntegral(b.pix, nil, w, h)
	saa := newIntegral(a.pix, a.pix, w, h)
	sbb := newIntegral(b.pix, b.pix, w, h)
	sab := newIntegral(a.pix, b.pix, w, h)

	const np = ssimWindow * ssimWindow
	covNorm := float64(np) / float64(np-1)
	c1 := (ssimK1 * ssimRange) * (ssimK1 * ssimRange)
	c2 := (ssimK2 * ssimRange) * (ssimK2 * ssimRange)

	var total float64
	var count int
	for y := 0; y+ssimWindow <= h; y++ {
		for x := 0; x+ssimWindow <= w; x++ {
			ux := sa.sum(x, y) / np
			uy := sb.sum(x, y) / np
			uxx := saa.sum(x, y) / np
			uyy := sbb.sum(x, y) / np
			uxy := sab.sum(x, y) / np

			vx := covNorm * (uxx - ux*ux)
			vy := covNorm * (uyy - uy*uy)
			vxy := covNorm * (uxy - ux*uy)

			num := (2*ux*uy + c1) * (2*vxy + c2)
			den := (ux*ux + uy*uy + c1) * (vx + vy + c2)
			total += num / den
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// integral is a summed-area table over a product of one or two planes.
type integral struct {
	width int
	table []float64
}

func newIntegral(a, b []float64, w, h int) integral {
	stride := w + 1
	table := make([]float64, stride*(h+1))
	for y := 0; y < h; y++ {
		var row float64
		for x := 0; x < w; x++ {
			v := a[y*w+x]
			if b != nil {
				v *= b[y*w+x]
			}
			row += v
			table[(y+1)*stride+x+1] = table[y*stride+x+1] + row
		}
	}
	return integral{width: stride, table: table}
}

// sum returns the total over the window whose top-left corner is (x, y).
func (s integral) sum(x, y int) float64 {
	x1, y1 := x+ssimWindow, y+ssimWindow
	return s.table[y1*s.width+x1] - s.table[y*s.width+x1] - s.table[y1*s.width+x] + s.table[y*s.width+x]
}
