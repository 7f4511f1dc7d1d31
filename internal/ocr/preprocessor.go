package ocr

import (
	"image"
	"image/color"
	"math"

	xdraw "golang.org/x/image/draw"
)

// Preprocessing constants. These are tuned black-box parameters carried over
// from the production pipeline; do not adjust them independently.
const (
	minOCRWidth = 2000 // upscale narrower images to this width

	nlmStrength       = 10.0 // non-local-means filter strength
	nlmTemplateWindow = 7
	nlmSearchWindow   = 21

	claheClipLimit = 2.0
	claheTiles     = 8

	adaptiveBlockSize = 11
	adaptiveOffset    = 2.0

	otsuBlurSize = 5
)

const whitePixel = 255

// Preprocess normalizes a decoded color image into a binarized grayscale
// image suited for OCR. Steps, in fixed order: luma grayscale, cubic upscale
// to a minimum width, non-local-means denoising, CLAHE contrast enhancement,
// then the better of adaptive-Gaussian and blur+Otsu binarization (the one
// producing more black pixels wins, adaptive on ties).
func Preprocess(img image.Image) *image.Gray {
	gray := toGray(img)
	gray = upscale(gray, minOCRWidth)
	denoised := denoise(gray, nlmStrength, nlmTemplateWindow, nlmSearchWindow)
	contrast := clahe(denoised, claheClipLimit, claheTiles)

	adaptive := adaptiveGaussianThreshold(contrast, adaptiveBlockSize, adaptiveOffset)
	otsu := otsuThreshold(gaussianBlur(contrast, otsuBlurSize))

	if blackPixels(otsu) > blackPixels(adaptive) {
		return otsu
	}
	return adaptive
}

// toGray converts any image to 8-bit grayscale using the standard luma weights.
func toGray(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			luma := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			gray.SetGray(x-bounds.Min.X, y-bounds.Min.Y, grayValue(luma))
		}
	}
	return gray
}

// upscale resizes the image uniformly with cubic interpolation so its width
// reaches minWidth. Images already wide enough are returned unchanged.
func upscale(gray *image.Gray, minWidth int) *image.Gray {
	w := gray.Bounds().Dx()
	h := gray.Bounds().Dy()
	if w >= minWidth || w == 0 {
		return gray
	}
	scale := float64(minWidth) / float64(w)
	newW := int(math.Round(float64(w) * scale))
	newH := int(math.Round(float64(h) * scale))
	dst := image.NewGray(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), gray, gray.Bounds(), xdraw.Src, nil)
	return dst
}

// denoise applies fast non-local-means denoising using the offset/integral
// image formulation: for every displacement inside the search window, patch
// distances for all pixels are computed in one pass over an integral image of
// squared differences.
func denoise(gray *image.Gray, h float64, templateSize, searchSize int) *image.Gray {
	w := gray.Bounds().Dx()
	hh := gray.Bounds().Dy()
	if w == 0 || hh == 0 {
		return gray
	}

	tRad := templateSize / 2
	sRad := searchSize / 2
	patchArea := float64(templateSize * templateSize)
	norm := 1.0 / (h * h * patchArea)

	src := make([]float64, w*hh)
	for y := 0; y < hh; y++ {
		for x := 0; x < w; x++ {
			src[y*w+x] = float64(gray.GrayAt(x, y).Y)
		}
	}
	at := func(x, y int) float64 {
		return src[clampInt(y, 0, hh-1)*w+clampInt(x, 0, w-1)]
	}

	accum := make([]float64, w*hh)
	wsum := make([]float64, w*hh)
	diff2 := make([]float64, w*hh)
	integral := make([]float64, (w+1)*(hh+1))

	for dy := -sRad; dy <= sRad; dy++ {
		for dx := -sRad; dx <= sRad; dx++ {
			for y := 0; y < hh; y++ {
				for x := 0; x < w; x++ {
					d := at(x, y) - at(x+dx, y+dy)
					diff2[y*w+x] = d * d
				}
			}
			// Summed-area table over the squared differences.
			for y := 0; y < hh; y++ {
				rowSum := 0.0
				for x := 0; x < w; x++ {
					rowSum += diff2[y*w+x]
					integral[(y+1)*(w+1)+x+1] = integral[y*(w+1)+x+1] + rowSum
				}
			}
			boxSum := func(x0, y0, x1, y1 int) float64 {
				x0 = clampInt(x0, 0, w)
				y0 = clampInt(y0, 0, hh)
				x1 = clampInt(x1, 0, w)
				y1 = clampInt(y1, 0, hh)
				return integral[y1*(w+1)+x1] - integral[y0*(w+1)+x1] -
					integral[y1*(w+1)+x0] + integral[y0*(w+1)+x0]
			}
			for y := 0; y < hh; y++ {
				for x := 0; x < w; x++ {
					ssd := boxSum(x-tRad, y-tRad, x+tRad+1, y+tRad+1)
					weight := math.Exp(-ssd * norm)
					accum[y*w+x] += weight * at(x+dx, y+dy)
					wsum[y*w+x] += weight
				}
			}
		}
	}

	out := image.NewGray(image.Rect(0, 0, w, hh))
	for y := 0; y < hh; y++ {
		for x := 0; x < w; x++ {
			out.SetGray(x, y, grayValue(accum[y*w+x]/wsum[y*w+x]))
		}
	}
	return out
}

// clahe performs contrast-limited adaptive histogram equalization over a
// tiles x tiles grid, interpolating bilinearly between neighboring tile
// mappings to avoid visible tile seams.
func clahe(gray *image.Gray, clipLimit float64, tiles int) *image.Gray {
	w := gray.Bounds().Dx()
	h := gray.Bounds().Dy()
	if w == 0 || h == 0 {
		return gray
	}

	tileW := (w + tiles - 1) / tiles
	tileH := (h + tiles - 1) / tiles
	// Dimensions that don't divide evenly can need fewer than tiles rows or
	// columns to cover the image; only populated tiles get a lookup table.
	tilesX := (w + tileW - 1) / tileW
	tilesY := (h + tileH - 1) / tileH

	// Per-tile clipped-histogram lookup tables.
	luts := make([][256]uint8, tilesX*tilesY)
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			x0 := tx * tileW
			y0 := ty * tileH
			x1 := minInt(x0+tileW, w)
			y1 := minInt(y0+tileH, h)

			var hist [256]int
			area := (x1 - x0) * (y1 - y0)
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					hist[gray.GrayAt(x, y).Y]++
				}
			}

			limit := int(clipLimit * float64(area) / 256.0)
			if limit < 1 {
				limit = 1
			}
			excess := 0
			for i := 0; i < 256; i++ {
				if hist[i] > limit {
					excess += hist[i] - limit
					hist[i] = limit
				}
			}
			// Redistribute clipped mass evenly across all bins.
			bonus := excess / 256
			residual := excess % 256
			for i := 0; i < 256; i++ {
				hist[i] += bonus
				if i < residual {
					hist[i]++
				}
			}

			cdf := 0
			scale := 255.0 / float64(area)
			for i := 0; i < 256; i++ {
				cdf += hist[i]
				luts[ty*tilesX+tx][i] = grayValue(float64(cdf) * scale).Y
			}
		}
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Position relative to surrounding tile centers.
			fx := (float64(x) - float64(tileW)/2.0) / float64(tileW)
			fy := (float64(y) - float64(tileH)/2.0) / float64(tileH)
			tx0 := int(math.Floor(fx))
			ty0 := int(math.Floor(fy))
			wx := fx - float64(tx0)
			wy := fy - float64(ty0)

			v := gray.GrayAt(x, y).Y
			lut := func(tx, ty int) float64 {
				tx = clampInt(tx, 0, tilesX-1)
				ty = clampInt(ty, 0, tilesY-1)
				return float64(luts[ty*tilesX+tx][v])
			}
			top := lut(tx0, ty0)*(1-wx) + lut(tx0+1, ty0)*wx
			bottom := lut(tx0, ty0+1)*(1-wx) + lut(tx0+1, ty0+1)*wx
			out.SetGray(x, y, grayValue(top*(1-wy)+bottom*wy))
		}
	}
	return out
}

// adaptiveGaussianThreshold binarizes the image against a per-pixel threshold
// equal to the Gaussian-weighted neighborhood mean minus a constant offset.
func adaptiveGaussianThreshold(gray *image.Gray, blockSize int, offset float64) *image.Gray {
	mean := separableConvolve(gray, gaussianKernel(blockSize))
	w := gray.Bounds().Dx()
	h := gray.Bounds().Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if float64(gray.GrayAt(x, y).Y) > mean[y*w+x]-offset {
				out.SetGray(x, y, color.Gray{Y: whitePixel})
			}
		}
	}
	return out
}

// gaussianBlur smooths the image with a size x size Gaussian kernel.
func gaussianBlur(gray *image.Gray, size int) *image.Gray {
	blurred := separableConvolve(gray, gaussianKernel(size))
	w := gray.Bounds().Dx()
	h := gray.Bounds().Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.SetGray(x, y, grayValue(blurred[y*w+x]))
		}
	}
	return out
}

// otsuThreshold binarizes the image using the global threshold that minimizes
// intra-class intensity variance.
func otsuThreshold(gray *image.Gray) *image.Gray {
	w := gray.Bounds().Dx()
	h := gray.Bounds().Dy()

	var hist [256]int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			hist[gray.GrayAt(x, y).Y]++
		}
	}

	total := w * h
	var sumAll float64
	for i, n := range hist {
		sumAll += float64(i) * float64(n)
	}

	var sumBack float64
	var weightBack int
	bestVariance := -1.0
	threshold := 0
	for t := 0; t < 256; t++ {
		weightBack += hist[t]
		if weightBack == 0 {
			continue
		}
		weightFore := total - weightBack
		if weightFore == 0 {
			break
		}
		sumBack += float64(t) * float64(hist[t])
		meanBack := sumBack / float64(weightBack)
		meanFore := (sumAll - sumBack) / float64(weightFore)
		variance := float64(weightBack) * float64(weightFore) * (meanBack - meanFore) * (meanBack - meanFore)
		if variance > bestVariance {
			bestVariance = variance
			threshold = t
		}
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if int(gray.GrayAt(x, y).Y) > threshold {
				out.SetGray(x, y, color.Gray{Y: whitePixel})
			}
		}
	}
	return out
}

// gaussianKernel builds a normalized 1-D Gaussian kernel of the given odd
// size, with sigma derived from the size by the usual 0.3*((k-1)/2-1)+0.8 rule.
func gaussianKernel(size int) []float64 {
	sigma := 0.3*(float64(size-1)*0.5-1) + 0.8
	kernel := make([]float64, size)
	radius := size / 2
	sum := 0.0
	for i := 0; i < size; i++ {
		d := float64(i - radius)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// separableConvolve convolves the image with kernel horizontally then
// vertically, replicating edge pixels at the borders. Returns row-major
// float values.
func separableConvolve(gray *image.Gray, kernel []float64) []float64 {
	w := gray.Bounds().Dx()
	h := gray.Bounds().Dy()
	radius := len(kernel) / 2

	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0.0
			for k := -radius; k <= radius; k++ {
				sum += kernel[k+radius] * float64(gray.GrayAt(clampInt(x+k, 0, w-1), y).Y)
			}
			tmp[y*w+x] = sum
		}
	}

	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0.0
			for k := -radius; k <= radius; k++ {
				sum += kernel[k+radius] * tmp[clampInt(y+k, 0, h-1)*w+x]
			}
			out[y*w+x] = sum
		}
	}
	return out
}

// blackPixels counts fully black pixels; used to pick the binarization that
// isolated the most text on a light background.
func blackPixels(gray *image.Gray) int {
	count := 0
	for _, v := range gray.Pix {
		if v == 0 {
			count++
		}
	}
	return count
}
