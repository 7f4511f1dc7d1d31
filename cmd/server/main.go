package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tekscan/image-ocr-service/api"
	"github.com/tekscan/image-ocr-service/internal/models"
	"github.com/tekscan/image-ocr-service/internal/ocr"
)

func main() {
	// Load configuration
	config, err := loadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Create recognizer and API handler
	recognizer := ocr.NewTesseract(config.OCR.Language, config.OCR.TessdataPrefix)
	handler := api.NewHandler(config, recognizer)
	router := handler.SetupRoutes()

	// Wrap router with CORS middleware for the allowed dev origins
	corsRouter := api.CORSMiddleware(config.CORS.AllowedOrigins, router)

	// Start server
	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	log.Printf("Starting Image OCR Service v%s on %s", api.Version, addr)
	log.Printf("OCR language: %s", config.OCR.Language)
	log.Printf("Allowed origins: %v", config.CORS.AllowedOrigins)
	log.Printf("Endpoints:")
	log.Printf("  POST http://%s/process-ocr     - Process an uploaded image", addr)
	log.Printf("  GET  http://%s/test-tesseract  - OCR engine status", addr)
	log.Printf("  GET  http://%s/health          - Health check", addr)
	log.Printf("  GET  http://%s/                - Liveness", addr)

	if err := http.ListenAndServe(addr, corsRouter); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func loadConfig(path string) (*models.Config, error) {
	config := models.DefaultConfig()

	// Read config file; built-in defaults apply when it is absent
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Override with environment variables if present
	if port := os.Getenv("PORT"); port != "" {
		fmt.Sscanf(port, "%d", &config.Port)
	}
	if host := os.Getenv("HOST"); host != "" {
		config.Host = host
	}
	if language := os.Getenv("OCR_LANGUAGE"); language != "" {
		config.OCR.Language = language
	}
	if prefix := os.Getenv("TESSDATA_PREFIX"); prefix != "" {
		config.OCR.TessdataPrefix = prefix
	}

	return config, nil
}
