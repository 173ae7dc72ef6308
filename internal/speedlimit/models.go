package speedlimit

import (
	"time"

	"github.com/Rathesh0709/speed-camera-detector-backend/internal/shared/geo"
)

const (
	DirectionForward  = "forward"
	DirectionBackward = "backward"
	DirectionBoth     = "both"
)

// Report types accepted against a speed-limit segment.
const (
	ReportConfirm       = "confirm"
	ReportDispute       = "dispute"
	ReportUpdateSpeed   = "update_speed"
	ReportUpdateSegment = "update_segment"
	ReportRemove        = "remove"
)

// NewSpeedLimit is a user submission. Confidence is a pointer so an explicit
// 0.0 survives; absent means the 0.5 default.
type NewSpeedLimit struct {
	Segment         []geo.Point `json:"segment"`
	SpeedLimitKmh   int         `json:"speed_limit_kmh"`
	RoadName        string      `json:"road_name,omitempty"`
	RoadType        string      `json:"road_type,omitempty"`
	Direction       string      `json:"direction,omitempty"`
	ConfidenceScore *float64    `json:"confidence_score,omitempty"`
	ReportedBy      *string     `json:"reported_by,omitempty"`
	Notes           string      `json:"notes,omitempty"`
}

type SpeedLimit struct {
	ID                string      `json:"id"`
	Segment           []geo.Point `json:"segment"`
	SpeedLimitKmh     int         `json:"speed_limit_kmh"`
	RoadName          string      `json:"road_name,omitempty"`
	RoadType          string      `json:"road_type,omitempty"`
	Direction         string      `json:"direction,omitempty"`
	Verified          bool        `json:"verified"`
	VerificationCount int         `json:"verification_count"`
	ConfidenceScore   float64     `json:"confidence_score"`
	ReportedBy        *string     `json:"reported_by,omitempty"`
	Notes             string      `json:"notes,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
	// DistanceM is the minimum distance from the query center or route to
	// any segment of the polyline; filled by proximity queries only.
	DistanceM float64 `json:"distance_m,omitempty"`
}

// Report is one immutable ledger entry against a speed-limit segment.
type Report struct {
	ID                    string      `json:"id"`
	SpeedLimitID          string      `json:"speed_limit_id"`
	ReportedBy            *string     `json:"reported_by,omitempty"`
	ReportType            string      `json:"report_type"`
	ReportedSegment       []geo.Point `json:"reported_segment,omitempty"`
	ReportedSpeedLimitKmh *int        `json:"reported_speed_limit_kmh,omitempty"`
	ConfidenceScore       *float64    `json:"confidence_score,omitempty"`
	Notes                 string      `json:"notes,omitempty"`
	CreatedAt             time.Time   `json:"created_at"`
}

type ReportResult struct {
	Report            Report `json:"report"`
	Verified          bool   `json:"verified"`
	VerificationCount int    `json:"verification_count"`
	Removed           bool   `json:"removed"`
}
