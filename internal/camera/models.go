package camera

import "time"

const (
	TypeFixed        = "fixed"
	TypeMobile       = "mobile"
	TypeAverageSpeed = "average_speed"
)

// Report types accepted against a camera.
const (
	ReportConfirm     = "confirm"
	ReportDispute     = "dispute"
	ReportUpdateSpeed = "update_speed"
	ReportRemove      = "remove"
)

// NewCamera is a user submission. Confidence is a pointer so an explicit
// 0.0 survives; absent means the 0.5 default. Verification state always
// starts cleared.
type NewCamera struct {
	Lat              float64  `json:"lat"`
	Lng              float64  `json:"lng"`
	SpeedLimitKmh    int      `json:"speed_limit_kmh"`
	CameraType       string   `json:"camera_type"`
	DirectionDegrees *int     `json:"direction_degrees,omitempty"`
	ConfidenceScore  *float64 `json:"confidence_score,omitempty"`
	ReportedBy       *string  `json:"reported_by,omitempty"`
	Notes            string   `json:"notes,omitempty"`
}

type Camera struct {
	ID                string    `json:"id"`
	Lat               float64   `json:"lat"`
	Lng               float64   `json:"lng"`
	SpeedLimitKmh     int       `json:"speed_limit_kmh"`
	CameraType        string    `json:"camera_type"`
	DirectionDegrees  *int      `json:"direction_degrees,omitempty"`
	Verified          bool      `json:"verified"`
	VerificationCount int       `json:"verification_count"`
	ConfidenceScore   float64   `json:"confidence_score"`
	ReportedBy        *string   `json:"reported_by,omitempty"`
	Notes             string    `json:"notes,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	// DistanceM is filled by proximity queries only.
	DistanceM float64 `json:"distance_m,omitempty"`
}

// Report is one immutable ledger entry against a camera. Corrections are new
// reports, never edits.
type Report struct {
	ID                    string   `json:"id"`
	CameraID              string   `json:"camera_id"`
	ReportedBy            *string  `json:"reported_by,omitempty"`
	ReportType            string   `json:"report_type"`
	ReportedLat           *float64 `json:"reported_lat,omitempty"`
	ReportedLng           *float64 `json:"reported_lng,omitempty"`
	ReportedSpeedLimitKmh *int     `json:"reported_speed_limit_kmh,omitempty"`
	ConfidenceScore       *float64 `json:"confidence_score,omitempty"`
	Notes                 string   `json:"notes,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}

// ReportResult is the outcome of appending a report: the stored report plus
// the target's verification state after the recompute.
type ReportResult struct {
	Report            Report `json:"report"`
	Verified          bool   `json:"verified"`
	VerificationCount int    `json:"verification_count"`
	Removed           bool   `json:"removed"`
}
