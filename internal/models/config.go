package models

// Config represents the service configuration
type Config struct {
	// Server config
	Port int    `yaml:"port"`
	Host string `yaml:"host"`

	// OCR config
	OCR OCRConfig `yaml:"ocr"`

	// CORS config
	CORS CORSConfig `yaml:"cors"`
}

// OCRConfig represents OCR-specific configuration
type OCRConfig struct {
	// Language is the tesseract trained-data language (e.g. "eng")
	Language string `yaml:"language"`

	// TessdataPrefix overrides the tesseract trained-data directory.
	// Empty means the engine's compiled-in default.
	TessdataPrefix string `yaml:"tessdata_prefix"`
}

// CORSConfig lists the origins allowed to call the API
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DefaultConfig returns the configuration used when no config file is present
func DefaultConfig() *Config {
	return &Config{
		Host: "127.0.0.1",
		Port: 8000,
		OCR: OCRConfig{
			Language: "eng",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{
				"http://localhost:3000",
				"http://127.0.0.1:3000",
			},
		},
	}
}
