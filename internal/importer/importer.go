package importer

import (
	"context"
	"fmt"
	"log"

	"github.com/Rathesh0709/speed-camera-detector-backend/internal/db"
	"github.com/Rathesh0709/speed-camera-detector-backend/internal/shared/apperr"
	"github.com/Rathesh0709/speed-camera-detector-backend/internal/shared/geo"

	"github.com/google/uuid"
)

const (
	// Records landing within this distance of an existing fact with the same
	// speed limit are treated as re-submissions of the same real-world object.
	dupToleranceM = 10.0
	batchSize     = 100

	// Curated datasets arrive pre-verified, so imported rows start verified
	// with a confidence above the user-report default.
	cameraConfidence     = 0.80
	speedLimitConfidence = 0.85
)

// CameraRecord is one row of a bulk camera dataset.
type CameraRecord struct {
	Lat              float64 `json:"lat"`
	Lng              float64 `json:"lng"`
	SpeedLimitKmh    int     `json:"speed_limit_kmh"`
	CameraType       string  `json:"camera_type"`
	DirectionDegrees *int    `json:"direction_degrees,omitempty"`
	Notes            string  `json:"notes,omitempty"`
}

// SpeedLimitRecord is one row of a bulk speed-limit dataset.
type SpeedLimitRecord struct {
	Segment       []geo.Point `json:"segment"`
	SpeedLimitKmh int         `json:"speed_limit_kmh"`
	RoadName      string      `json:"road_name,omitempty"`
	RoadType      string      `json:"road_type,omitempty"`
	Direction     string      `json:"direction,omitempty"`
	Notes         string      `json:"notes,omitempty"`
}

// Summary reports what an import run did. Skipped covers both invalid
// records and duplicates of existing facts.
type Summary struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

type Service struct {
	db db.Querier
}

func NewService(q db.Querier) *Service {
	return &Service{db: q}
}

func validCameraRecord(r CameraRecord) bool {
	if !(geo.Point{Lat: r.Lat, Lng: r.Lng}).Valid() {
		return false
	}
	if r.SpeedLimitKmh <= 0 {
		return false
	}
	switch r.CameraType {
	case "fixed", "mobile", "average_speed":
	default:
		return false
	}
	if r.DirectionDegrees != nil && (*r.DirectionDegrees < 0 || *r.DirectionDegrees >= 360) {
		return false
	}
	return true
}

func validSpeedLimitRecord(r SpeedLimitRecord) bool {
	if !geo.ValidLine(r.Segment) {
		return false
	}
	if r.SpeedLimitKmh <= 0 {
		return false
	}
	switch r.Direction {
	case "", "forward", "backward", "both":
	default:
		return false
	}
	return true
}

// ImportCameras loads a curated camera dataset. Invalid records are skipped
// with a log line rather than aborting the run; work is committed in batches
// so a failure partway keeps earlier batches.
func (s *Service) ImportCameras(ctx context.Context, records []CameraRecord) (Summary, error) {
	var summary Summary

	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := s.importCameraBatch(ctx, records[start:end], &summary); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

func (s *Service) importCameraBatch(ctx context.Context, batch []CameraRecord, summary *Summary) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin import batch: %w: %v", apperr.ErrStorageUnavailable, err)
	}
	defer tx.Rollback(ctx)

	for i, r := range batch {
		if !validCameraRecord(r) {
			log.Printf("import: skipping invalid camera record %d", summary.Imported+summary.Skipped+i)
			summary.Skipped++
			continue
		}

		var dup bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM speed_cameras
				WHERE NOT is_removed
				  AND speed_limit_kmh = $3
				  AND ST_DWithin(location, ST_SetSRID(ST_MakePoint($1,$2), 4326)::geography, $4)
			)
		`, r.Lng, r.Lat, r.SpeedLimitKmh, dupToleranceM).Scan(&dup)
		if err != nil {
			return fmt.Errorf("duplicate check: %w: %v", apperr.ErrStorageUnavailable, err)
		}
		if dup {
			summary.Skipped++
			continue
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO speed_cameras (id, location, speed_limit_kmh, camera_type, direction_degrees,
			                           verified, verification_count, confidence_score, notes)
			VALUES ($1, ST_SetSRID(ST_MakePoint($2,$3), 4326)::geography, $4, $5, $6, TRUE, 1, $7, $8)
		`, uuid.NewString(), r.Lng, r.Lat, r.SpeedLimitKmh, r.CameraType, r.DirectionDegrees,
			cameraConfidence, r.Notes)
		if err != nil {
			return fmt.Errorf("insert imported camera: %w: %v", apperr.ErrStorageUnavailable, err)
		}
		summary.Imported++
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit import batch: %w: %v", apperr.ErrStorageUnavailable, err)
	}
	return nil
}

// ImportSpeedLimits loads a curated speed-limit dataset with the same
// skip-and-continue and batching behavior as the camera import.
func (s *Service) ImportSpeedLimits(ctx context.Context, records []SpeedLimitRecord) (Summary, error) {
	var summary Summary

	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := s.importSpeedLimitBatch(ctx, records[start:end], &summary); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

func (s *Service) importSpeedLimitBatch(ctx context.Context, batch []SpeedLimitRecord, summary *Summary) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin import batch: %w: %v", apperr.ErrStorageUnavailable, err)
	}
	defer tx.Rollback(ctx)

	for i, r := range batch {
		if !validSpeedLimitRecord(r) {
			log.Printf("import: skipping invalid speed limit record %d", summary.Imported+summary.Skipped+i)
			summary.Skipped++
			continue
		}

		wkt := geo.LineStringWKT(r.Segment)
		var dup bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM road_speed_limits
				WHERE NOT is_removed
				  AND speed_limit_kmh = $2
				  AND ST_DWithin(road_segment, ST_GeogFromText($1), $3)
			)
		`, wkt, r.SpeedLimitKmh, dupToleranceM).Scan(&dup)
		if err != nil {
			return fmt.Errorf("duplicate check: %w: %v", apperr.ErrStorageUnavailable, err)
		}
		if dup {
			summary.Skipped++
			continue
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO road_speed_limits (id, road_segment, speed_limit_kmh, road_name, road_type, direction,
			                               verified, verification_count, confidence_score, notes)
			VALUES ($1, ST_GeogFromText($2), $3, $4, $5, $6, TRUE, 1, $7, $8)
		`, uuid.NewString(), wkt, r.SpeedLimitKmh, r.RoadName, r.RoadType, r.Direction,
			speedLimitConfidence, r.Notes)
		if err != nil {
			return fmt.Errorf("insert imported speed limit: %w: %v", apperr.ErrStorageUnavailable, err)
		}
		summary.Imported++
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit import batch: %w: %v", apperr.ErrStorageUnavailable, err)
	}
	return nil
}
