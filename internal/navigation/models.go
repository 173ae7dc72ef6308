package navigation

import (
	"github.com/Rathesh0709/speed-camera-detector-backend/internal/camera"
	"github.com/Rathesh0709/speed-camera-detector-backend/internal/hazard"
	"github.com/Rathesh0709/speed-camera-detector-backend/internal/shared/geo"
	"github.com/Rathesh0709/speed-camera-detector-backend/internal/speedlimit"
)

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Query is the shared parameter set applied to every fact kind. RadiusM is
// the buffer width for corridor queries. VerifiedOnly applies to cameras and
// speed limits; hazards are never crowd-verified so it is ignored for them.
type Query struct {
	Center        geo.Point
	Route         []geo.Point
	RadiusM       float64
	MinConfidence float64
	VerifiedOnly  bool
}

// Snapshot is the combined answer for one position or route. Each kind
// carries its own status so one failing store degrades that section instead
// of the whole response.
type Snapshot struct {
	Cameras     CameraSection     `json:"cameras"`
	SpeedLimits SpeedLimitSection `json:"speed_limits"`
	Hazards     HazardSection     `json:"hazards"`
	Partial     bool              `json:"partial"`
	Cached      bool              `json:"cached,omitempty"`
}

type CameraSection struct {
	Status string          `json:"status"`
	Count  int             `json:"count"`
	Items  []camera.Camera `json:"items"`
}

type SpeedLimitSection struct {
	Status string                  `json:"status"`
	Count  int                     `json:"count"`
	Items  []speedlimit.SpeedLimit `json:"items"`
}

type HazardSection struct {
	Status string          `json:"status"`
	Count  int             `json:"count"`
	Items  []hazard.Hazard `json:"items"`
}
