package ocr

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/tekscan/image-ocr-service/internal/models"
)

// Confidence tier colors for bounding boxes.
var (
	tierGreen  = color.NRGBA{G: 255, A: 255}
	tierOrange = color.NRGBA{R: 255, G: 165, A: 255}
	tierRed    = color.NRGBA{R: 255, A: 255}
)

const boxThickness = 2

// Annotate draws one confidence-colored rectangle per text box on a copy of
// the original image, labeling each with its rounded confidence percentage
// just above the top edge. The input image is never modified.
func Annotate(img image.Image, boxes []models.TextBox) *image.NRGBA {
	out := imaging.Clone(img)
	for _, box := range boxes {
		col := tierColor(box.Confidence)
		drawRect(out, box.X, box.Y, box.Width, box.Height, col)
		drawLabel(out, fmt.Sprintf("%.0f%%", box.Confidence), box.X, box.Y-5, col)
	}
	return out
}

// tierColor maps a confidence score to its annotation color:
// above 70 green, above 50 orange, otherwise red.
func tierColor(confidence float64) color.NRGBA {
	switch {
	case confidence > 70:
		return tierGreen
	case confidence > 50:
		return tierOrange
	default:
		return tierRed
	}
}

func drawRect(img *image.NRGBA, x, y, w, h int, col color.NRGBA) {
	for t := 0; t < boxThickness; t++ {
		drawOutline(img, image.Rect(x-t, y-t, x+w+t, y+h+t), col)
	}
}

func drawOutline(img *image.NRGBA, r image.Rectangle, col color.NRGBA) {
	for x := r.Min.X; x <= r.Max.X; x++ {
		setPixel(img, x, r.Min.Y, col)
		setPixel(img, x, r.Max.Y, col)
	}
	for y := r.Min.Y; y <= r.Max.Y; y++ {
		setPixel(img, r.Min.X, y, col)
		setPixel(img, r.Max.X, y, col)
	}
}

func setPixel(img *image.NRGBA, x, y int, col color.NRGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetNRGBA(x, y, col)
	}
}

func drawLabel(img *image.NRGBA, text string, x, y int, col color.NRGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
