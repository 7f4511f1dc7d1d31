package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/otiai10/gosseract/v2"

	"github.com/tekscan/image-ocr-service/internal/models"
)

// confidenceThreshold filters out words tesseract is unsure about.
const confidenceThreshold = 30.0

// Tesseract runs OCR through the linked tesseract engine. Language and
// trained-data location are injected at construction time instead of being
// resolved from the host OS at call time.
//
// DetectRegions and ExtractText each run their own full preprocessing pass;
// results are not shared between the two call sites.
type Tesseract struct {
	language       string
	tessdataPrefix string
}

// NewTesseract creates a recognizer for the given language ("eng" when empty)
// and optional tessdata directory override.
func NewTesseract(language, tessdataPrefix string) *Tesseract {
	if language == "" {
		language = "eng"
	}
	return &Tesseract{
		language:       language,
		tessdataPrefix: tessdataPrefix,
	}
}

// DetectRegions preprocesses the image, runs a fully-automatic page
// segmentation pass and returns one TextBox per recognized word with
// confidence above the threshold. Engine failures degrade to an empty list;
// only failures staging the image for the engine are returned as errors.
func (t *Tesseract) DetectRegions(img image.Image) ([]models.TextBox, error) {
	processed := Preprocess(img)
	data, err := encodePNG(processed)
	if err != nil {
		return nil, fmt.Errorf("encode preprocessed image: %w", err)
	}

	boxes := []models.TextBox{}

	client := gosseract.NewClient()
	defer client.Close()
	if err := t.configure(client, gosseract.PSM_AUTO, data); err != nil {
		log.Printf("[Recognizer] text detection failed: %v", err)
		return boxes, nil
	}
	words, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		log.Printf("[Recognizer] text detection failed: %v", err)
		return boxes, nil
	}

	for _, word := range words {
		if word.Confidence <= confidenceThreshold {
			continue
		}
		text := strings.TrimSpace(word.Word)
		if text == "" {
			continue
		}
		boxes = append(boxes, models.TextBox{
			Text:       text,
			X:          word.Box.Min.X,
			Y:          word.Box.Min.Y,
			Width:      word.Box.Dx(),
			Height:     word.Box.Dy(),
			Confidence: word.Confidence,
		})
	}
	return boxes, nil
}

// ExtractText preprocesses the image and runs the engine twice, once with
// fully-automatic page segmentation and once assuming a single uniform text
// block, returning the longer trimmed output (the automatic pass wins ties).
// Engine failures degrade to an empty string.
func (t *Tesseract) ExtractText(img image.Image) (string, error) {
	processed := Preprocess(img)
	data, err := encodePNG(processed)
	if err != nil {
		return "", fmt.Errorf("encode preprocessed image: %w", err)
	}

	fullPage, err := t.recognize(data, gosseract.PSM_AUTO)
	if err != nil {
		log.Printf("[Recognizer] text extraction failed: %v", err)
		return "", nil
	}
	singleBlock, err := t.recognize(data, gosseract.PSM_SINGLE_BLOCK)
	if err != nil {
		log.Printf("[Recognizer] text extraction failed: %v", err)
		return "", nil
	}

	return longerText(fullPage, singleBlock), nil
}

// longerText picks the output with more characters, favoring the full-page
// pass on ties. Lengths are compared in code points so multibyte output is
// judged by character count, not encoding size.
func longerText(fullPage, singleBlock string) string {
	if utf8.RuneCountInString(singleBlock) > utf8.RuneCountInString(fullPage) {
		return singleBlock
	}
	return fullPage
}

// Version reports the linked tesseract engine version.
func (t *Tesseract) Version() (string, error) {
	client := gosseract.NewClient()
	defer client.Close()
	version := client.Version()
	if version == "" {
		return "", fmt.Errorf("tesseract version unavailable")
	}
	return version, nil
}

// recognize performs a single text pass with a fresh client.
func (t *Tesseract) recognize(imageData []byte, psm gosseract.PageSegMode) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()
	if err := t.configure(client, psm, imageData); err != nil {
		return "", err
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func (t *Tesseract) configure(client *gosseract.Client, psm gosseract.PageSegMode, imageData []byte) error {
	if t.tessdataPrefix != "" {
		if err := client.SetTessdataPrefix(t.tessdataPrefix); err != nil {
			return fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(t.language); err != nil {
		return fmt.Errorf("set language: %w", err)
	}
	if err := client.SetPageSegMode(psm); err != nil {
		return fmt.Errorf("set page segmentation mode: %w", err)
	}
	if err := client.SetImageFromBytes(imageData); err != nil {
		return fmt.Errorf("set image: %w", err)
	}
	return nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
