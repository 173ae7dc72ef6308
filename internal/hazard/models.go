package hazard

import "time"

var hazardTypes = map[string]struct{}{
	"pothole":      {},
	"debris":       {},
	"accident":     {},
	"construction": {},
	"weather":      {},
	"animal":       {},
}

var severities = map[string]struct{}{
	"low":      {},
	"medium":   {},
	"high":     {},
	"critical": {},
}

type Hazard struct {
	ID              string     `json:"id"`
	Lat             float64    `json:"lat"`
	Lng             float64    `json:"lng"`
	HazardType      string     `json:"hazard_type"`
	Severity        string     `json:"severity"`
	ConfidenceScore float64    `json:"confidence_score"`
	DetectedBy      *string    `json:"detected_by,omitempty"`
	DetectedAt      time.Time  `json:"detected_at"`
	// ExpiresAt absent means the hazard is permanent.
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	IsActive    bool       `json:"is_active"`
	Description string     `json:"description,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`
	// DistanceM is filled by proximity queries only.
	DistanceM float64 `json:"distance_m,omitempty"`
}

// Detection is the event shape produced by the hazard-detection pipeline.
// Confidence is a pointer so an explicit 0.0 survives; absent means the 0.5
// default.
type Detection struct {
	Lat             float64    `json:"lat"`
	Lng             float64    `json:"lng"`
	HazardType      string     `json:"hazard_type"`
	Severity        string     `json:"severity"`
	ConfidenceScore *float64   `json:"confidence_score,omitempty"`
	DetectedBy      *string    `json:"detected_by,omitempty"`
	Description     string     `json:"description,omitempty"`
	ImageRef        string     `json:"image_ref,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}
