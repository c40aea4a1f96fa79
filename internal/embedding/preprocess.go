package embedding

import (
	"image"

	"github.com/nfnt/resize"
)

// CLIP normalization constants for RGB channels.
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// Preprocess resizes img to size x size and returns its pixels as a
// channel-major float32 tensor normalized with the CLIP mean and std.
func Preprocess(img image.Image, size int) []float32 {
	resized := resize.Resize(uint(size), uint(size), img, resize.Bilinear)
	bounds := resized.Bounds()
	plane := size * size
	data := make([]float32, 3*plane)

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			data[i] = (float32(r>>8)/255.0 - clipMean[0]) / clipStd[0]
			data[plane+i] = (float32(g>>8)/255.0 - clipMean[1]) / clipStd[1]
			data[2*plane+i] = (float32(b>>8)/255.0 - clipMean[2]) / clipStd[2]
			i++
		}
	}
	return data
}
