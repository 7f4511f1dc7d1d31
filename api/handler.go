package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"log"
	"math"
	"net/http"
	"runtime"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/tekscan/image-ocr-service/internal/models"
	"github.com/tekscan/image-ocr-service/internal/ocr"
)

const (
	MaxUploadSize = 10 * 1024 * 1024 // 10MB
	Version       = "1.0.0"
)

// noTextFallback is returned as the extracted text when recognition produced
// nothing at all.
const noTextFallback = "Tidak dapat mendeteksi teks"

// Recognizer is the OCR engine dependency of the handler.
type Recognizer interface {
	DetectRegions(img image.Image) ([]models.TextBox, error)
	ExtractText(img image.Image) (string, error)
	Version() (string, error)
}

// Handler handles HTTP requests for OCR processing
type Handler struct {
	config     *models.Config
	recognizer Recognizer
}

// NewHandler creates a new API handler
func NewHandler(config *models.Config, recognizer Recognizer) *Handler {
	return &Handler{
		config:     config,
		recognizer: recognizer,
	}
}

// SetupRoutes configures the HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	// Main endpoint
	router.HandleFunc("/process-ocr", h.ProcessOCR).Methods("POST")

	// Diagnostics
	router.HandleFunc("/test-tesseract", h.TestTesseract).Methods("GET")
	router.HandleFunc("/health", h.Health).Methods("GET")

	// Liveness
	router.HandleFunc("/", h.Root).Methods("GET")

	return router
}

// Root reports that the API is up
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "OCR Backend API is running",
	})
}

// TestTesseract reports the OCR engine installation status
func (h *Handler) TestTesseract(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	version, err := h.recognizer.Version()
	if err != nil {
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "ERROR",
			"message": err.Error(),
		})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{
		"status":            "OK",
		"tesseract_version": version,
	})
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status    string        `json:"status"`
	Version   string        `json:"version"`
	Timestamp string        `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Memory    MemoryStats   `json:"memory"`
	Tesseract ServiceStatus `json:"tesseract"`
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	Allocated string `json:"allocated"`
	Total     string `json:"total"`
	System    string `json:"system"`
}

// ServiceStatus represents the status of a service dependency
type ServiceStatus struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

var startTime = time.Now()

// Health endpoint - enhanced for monitoring
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	tesseractStatus := h.checkTesseract()

	response := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(startTime).String(),
		Memory: MemoryStats{
			Allocated: fmt.Sprintf("%.2f MB", float64(m.Alloc)/1024/1024),
			Total:     fmt.Sprintf("%.2f MB", float64(m.TotalAlloc)/1024/1024),
			System:    fmt.Sprintf("%.2f MB", float64(m.Sys)/1024/1024),
		},
		Tesseract: tesseractStatus,
	}

	if !tesseractStatus.Available {
		response.Status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

// checkTesseract verifies the OCR engine is available
func (h *Handler) checkTesseract() ServiceStatus {
	version, err := h.recognizer.Version()
	if err != nil {
		return ServiceStatus{
			Available: false,
			Error:     err.Error(),
		}
	}
	return ServiceStatus{
		Available: true,
		Version:   version,
	}
}

// ProcessOCR handles the OCR pipeline for an uploaded image
func (h *Handler) ProcessOCR(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	requestID := uuid.New().String()[:8]
	start := time.Now()

	// Parse multipart form
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		h.sendError(w, http.StatusBadRequest, "File too large or invalid form data")
		return
	}

	// Get file - accept both "file" and "image" field names
	file, header, err := r.FormFile("file")
	if err != nil {
		file, header, err = r.FormFile("image")
		if err != nil {
			h.sendError(w, http.StatusBadRequest, "No file provided (use 'file' or 'image' field)")
			return
		}
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "Failed to read file")
		return
	}

	log.Printf("[Process %s] file=%s size=%d", requestID, header.Filename, len(imageData))

	img, err := imaging.Decode(bytes.NewReader(imageData))
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid image file")
		return
	}

	data, err := h.processImage(img)
	if err != nil {
		log.Printf("[Process %s] ERROR: %v", requestID, err)
		h.sendError(w, http.StatusInternalServerError, fmt.Sprintf("Processing error: %v", err))
		return
	}

	log.Printf("[Process %s] boxes=%d text_len=%d duration=%.2fs",
		requestID, data.TotalBoxes, len(data.Text), time.Since(start).Seconds())

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(models.ProcessResponse{
		Success: true,
		Data:    data,
	})
}

// processImage runs region detection, text extraction and annotation over a
// decoded image. Detection and extraction run independently, each with its
// own preprocessing pass.
func (h *Handler) processImage(img image.Image) (*models.OCRData, error) {
	boxes, err := h.recognizer.DetectRegions(img)
	if err != nil {
		return nil, fmt.Errorf("text detection: %w", err)
	}
	if boxes == nil {
		boxes = []models.TextBox{}
	}

	text, err := h.recognizer.ExtractText(img)
	if err != nil {
		return nil, fmt.Errorf("text extraction: %w", err)
	}
	if text == "" {
		text = noTextFallback
	}

	annotated := ocr.Annotate(img, boxes)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, annotated, imaging.JPEG); err != nil {
		return nil, fmt.Errorf("encode annotated image: %w", err)
	}

	return &models.OCRData{
		Text:              text,
		AverageConfidence: averageConfidence(boxes),
		RotationAngle:     0,
		TextBoxes:         boxes,
		ProcessedImage:    "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		TotalBoxes:        len(boxes),
	}, nil
}

// averageConfidence returns the arithmetic mean of the box confidences,
// rounded to two decimals, or 0 for an empty list.
func averageConfidence(boxes []models.TextBox) float64 {
	if len(boxes) == 0 {
		return 0
	}
	sum := 0.0
	for _, box := range boxes {
		sum += box.Confidence
	}
	return math.Round(sum/float64(len(boxes))*100) / 100
}

// sendError sends an error response
func (h *Handler) sendError(w http.ResponseWriter, statusCode int, message string) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
