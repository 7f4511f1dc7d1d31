package models

// TextBox represents one recognized word and its pixel geometry.
// Coordinates are in the preprocessed-image space reported by the engine.
type TextBox struct {
	Text       string  `json:"text"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Confidence float64 `json:"confidence"` // 0-100
}

// OCRData is the payload returned for a successfully processed image
type OCRData struct {
	Text              string    `json:"text"`
	AverageConfidence float64   `json:"average_confidence"`
	RotationAngle     float64   `json:"rotation_angle"` // always 0, reserved
	TextBoxes         []TextBox `json:"text_boxes"`
	ProcessedImage    string    `json:"processed_image"` // data:image/jpeg;base64,<...>
	TotalBoxes        int       `json:"total_boxes"`
}

// ProcessResponse is the response envelope for /process-ocr
type ProcessResponse struct {
	Success bool     `json:"success"`
	Data    *OCRData `json:"data,omitempty"`
	Error   string   `json:"error,omitempty"`
}
