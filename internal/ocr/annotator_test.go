package ocr

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/tekscan/image-ocr-service/internal/models"
)

func whiteNRGBA(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	return img
}

func TestTierColor(t *testing.T) {
	tests := []struct {
		confidence float64
		want       color.NRGBA
	}{
		{85, tierGreen},
		{60, tierOrange},
		{20, tierRed},
		{70, tierOrange}, // tier boundaries are exclusive
		{50, tierRed},
	}
	for _, tt := range tests {
		if got := tierColor(tt.confidence); got != tt.want {
			t.Errorf("tierColor(%v) = %v, want %v", tt.confidence, got, tt.want)
		}
	}
}

func TestAnnotateDoesNotMutateOriginal(t *testing.T) {
	img := whiteNRGBA(100, 100)
	before := make([]uint8, len(img.Pix))
	copy(before, img.Pix)

	Annotate(img, []models.TextBox{
		{Text: "word", X: 10, Y: 20, Width: 40, Height: 15, Confidence: 85},
	})

	if !bytes.Equal(before, img.Pix) {
		t.Error("Annotate mutated the caller-supplied image")
	}
}

func TestAnnotateDrawsConfidenceColoredRectangle(t *testing.T) {
	img := whiteNRGBA(120, 120)
	out := Annotate(img, []models.TextBox{
		{Text: "word", X: 20, Y: 40, Width: 30, Height: 20, Confidence: 85},
	})

	if got := out.NRGBAAt(20, 40); got != tierGreen {
		t.Errorf("top-left border pixel = %v, want green %v", got, tierGreen)
	}
	if got := out.NRGBAAt(50, 60); got != tierGreen {
		t.Errorf("bottom-right border pixel = %v, want green %v", got, tierGreen)
	}
	// Interior stays untouched.
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	if got := out.NRGBAAt(35, 50); got != white {
		t.Errorf("interior pixel = %v, want white", got)
	}
}

func TestAnnotateDrawsLabelAboveBox(t *testing.T) {
	img := whiteNRGBA(120, 120)
	out := Annotate(img, []models.TextBox{
		{Text: "word", X: 20, Y: 40, Width: 30, Height: 20, Confidence: 60},
	})

	// Label baseline sits 5px above the box top; glyphs occupy the rows
	// above it. Look for any orange pixel in that band.
	found := false
	for y := 22; y < 36 && !found; y++ {
		for x := 20; x < 60; x++ {
			if out.NRGBAAt(x, y) == tierOrange {
				found = true
				break
			}
		}
	}
	if !found {
		t.Error("no label pixels found above the box top edge")
	}
}

func TestAnnotateClampsOutOfBoundsBoxes(t *testing.T) {
	img := whiteNRGBA(50, 50)
	// Must not panic on geometry exceeding the image.
	out := Annotate(img, []models.TextBox{
		{Text: "word", X: 40, Y: 45, Width: 100, Height: 100, Confidence: 90},
		{Text: "word", X: -5, Y: 2, Width: 10, Height: 10, Confidence: 10},
	})
	if out.Bounds() != img.Bounds() {
		t.Errorf("annotated bounds = %v, want %v", out.Bounds(), img.Bounds())
	}
}

func TestAnnotateEmptyBoxesReturnsCleanCopy(t *testing.T) {
	img := whiteNRGBA(30, 30)
	out := Annotate(img, nil)
	if !bytes.Equal(out.Pix, img.Pix) {
		t.Error("annotating with no boxes should leave the copy unchanged")
	}
}
