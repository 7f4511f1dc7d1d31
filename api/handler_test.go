package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tekscan/image-ocr-service/internal/models"
)

// stubRecognizer lets handler tests run without a tesseract installation.
type stubRecognizer struct {
	boxes      []models.TextBox
	text       string
	detectErr  error
	extractErr error
	version    string
	versionErr error
}

func (s *stubRecognizer) DetectRegions(image.Image) ([]models.TextBox, error) {
	return s.boxes, s.detectErr
}

func (s *stubRecognizer) ExtractText(image.Image) (string, error) {
	return s.text, s.extractErr
}

func (s *stubRecognizer) Version() (string, error) {
	return s.version, s.versionErr
}

func newTestHandler(recognizer Recognizer) *Handler {
	return NewHandler(models.DefaultConfig(), recognizer)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 40, 20))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func uploadRequest(t *testing.T, field string, payload []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(field, "upload.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/process-ocr", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestProcessOCRInvalidImage(t *testing.T) {
	handler := newTestHandler(&stubRecognizer{})
	rec := httptest.NewRecorder()

	handler.ProcessOCR(rec, uploadRequest(t, "file", []byte("definitely not an image")))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if !strings.Contains(rec.Body.String(), "Invalid image file") {
		t.Errorf("body = %q, want it to mention the invalid image", rec.Body.String())
	}
}

func TestProcessOCRMissingFile(t *testing.T) {
	handler := newTestHandler(&stubRecognizer{})

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	writer.WriteField("other", "value")
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/process-ocr", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()

	handler.ProcessOCR(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestProcessOCRBlankResult(t *testing.T) {
	handler := newTestHandler(&stubRecognizer{})
	rec := httptest.NewRecorder()

	handler.ProcessOCR(rec, uploadRequest(t, "file", pngBytes(t)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp models.ProcessResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.Data == nil {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
	if resp.Data.Text != noTextFallback {
		t.Errorf("text = %q, want %q", resp.Data.Text, noTextFallback)
	}
	if resp.Data.AverageConfidence != 0 {
		t.Errorf("average_confidence = %v, want 0", resp.Data.AverageConfidence)
	}
	if resp.Data.TotalBoxes != 0 {
		t.Errorf("total_boxes = %v, want 0", resp.Data.TotalBoxes)
	}
	// Empty box list must serialize as [], never null.
	if !strings.Contains(rec.Body.String(), `"text_boxes":[]`) {
		t.Errorf("body = %q, want empty text_boxes array", rec.Body.String())
	}
}

func TestProcessOCRWithBoxes(t *testing.T) {
	stub := &stubRecognizer{
		boxes: []models.TextBox{
			{Text: "hello", X: 1, Y: 2, Width: 30, Height: 10, Confidence: 80},
			{Text: "world", X: 40, Y: 2, Width: 30, Height: 10, Confidence: 60},
		},
		text: "hello world",
	}
	handler := newTestHandler(stub)
	rec := httptest.NewRecorder()

	handler.ProcessOCR(rec, uploadRequest(t, "file", pngBytes(t)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp models.ProcessResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.Text != "hello world" {
		t.Errorf("text = %q", resp.Data.Text)
	}
	if resp.Data.AverageConfidence != 70 {
		t.Errorf("average_confidence = %v, want 70", resp.Data.AverageConfidence)
	}
	if resp.Data.TotalBoxes != 2 {
		t.Errorf("total_boxes = %v, want 2", resp.Data.TotalBoxes)
	}
	if resp.Data.RotationAngle != 0 {
		t.Errorf("rotation_angle = %v, want 0", resp.Data.RotationAngle)
	}
	if !strings.HasPrefix(resp.Data.ProcessedImage, "data:image/jpeg;base64,") {
		t.Errorf("processed_image does not carry a jpeg data URL: %.40q", resp.Data.ProcessedImage)
	}
}

func TestProcessOCRAcceptsImageField(t *testing.T) {
	handler := newTestHandler(&stubRecognizer{text: "ok"})
	rec := httptest.NewRecorder()

	handler.ProcessOCR(rec, uploadRequest(t, "image", pngBytes(t)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestProcessOCRPipelineError(t *testing.T) {
	handler := newTestHandler(&stubRecognizer{detectErr: errors.New("staging exploded")})
	rec := httptest.NewRecorder()

	handler.ProcessOCR(rec, uploadRequest(t, "file", pngBytes(t)))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Processing error") || !strings.Contains(body, "staging exploded") {
		t.Errorf("body = %q, want processing error with cause", body)
	}
}

func TestAverageConfidenceRounding(t *testing.T) {
	boxes := []models.TextBox{
		{Confidence: 33.333},
		{Confidence: 33.333},
		{Confidence: 33.333},
	}
	if got := averageConfidence(boxes); got != 33.33 {
		t.Errorf("averageConfidence = %v, want 33.33", got)
	}
	if got := averageConfidence(nil); got != 0 {
		t.Errorf("averageConfidence(nil) = %v, want 0", got)
	}
}

func TestRootLiveness(t *testing.T) {
	handler := newTestHandler(&stubRecognizer{})
	rec := httptest.NewRecorder()

	handler.Root(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "OCR Backend API is running") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestTestTesseractStatus(t *testing.T) {
	handler := newTestHandler(&stubRecognizer{version: "5.3.0"})
	rec := httptest.NewRecorder()

	handler.TestTesseract(rec, httptest.NewRequest(http.MethodGet, "/test-tesseract", nil))

	var status map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if status["status"] != "OK" || status["tesseract_version"] != "5.3.0" {
		t.Errorf("unexpected status payload: %v", status)
	}
}

func TestTestTesseractError(t *testing.T) {
	handler := newTestHandler(&stubRecognizer{versionErr: errors.New("engine missing")})
	rec := httptest.NewRecorder()

	handler.TestTesseract(rec, httptest.NewRequest(http.MethodGet, "/test-tesseract", nil))

	var status map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if status["status"] != "ERROR" || status["message"] != "engine missing" {
		t.Errorf("unexpected status payload: %v", status)
	}
}

func TestHealthDegradedWithoutEngine(t *testing.T) {
	handler := newTestHandler(&stubRecognizer{versionErr: errors.New("engine missing")})
	rec := httptest.NewRecorder()

	handler.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	var health HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if health.Status != "degraded" {
		t.Errorf("status = %q, want degraded", health.Status)
	}
}
