package hazard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/Rathesh0709/speed-camera-detector-backend/internal/db"
	"github.com/Rathesh0709/speed-camera-detector-backend/internal/shared/apperr"
	"github.com/Rathesh0709/speed-camera-detector-backend/internal/shared/geo"
	"github.com/Rathesh0709/speed-camera-detector-backend/internal/stream"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type Service struct {
	db         db.Querier
	hub        *stream.Hub
	maxRadiusM float64
}

func NewService(q db.Querier, hub *stream.Hub, maxRadiusM float64) *Service {
	return &Service{db: q, hub: hub, maxRadiusM: maxRadiusM}
}

func (s *Service) validateQuery(radiusM, minConfidence float64) error {
	if radiusM <= 0 || radiusM > s.maxRadiusM {
		return fmt.Errorf("radius %.0fm outside (0, %.0f]: %w", radiusM, s.maxRadiusM, apperr.ErrInvalidRange)
	}
	if minConfidence < 0 || minConfidence > 1 {
		return fmt.Errorf("min confidence %v outside [0,1]: %w", minConfidence, apperr.ErrInvalidRange)
	}
	return nil
}

// Create stores a detection event as an active hazard and broadcasts it on
// the live feed. Hazards skip the report ledger entirely; they expire
// instead of being crowd-verified.
func (s *Service) Create(ctx context.Context, input Detection) (Hazard, error) {
	if !(geo.Point{Lat: input.Lat, Lng: input.Lng}).Valid() {
		return Hazard{}, fmt.Errorf("coordinates (%v,%v): %w", input.Lat, input.Lng, apperr.ErrInvalidGeometry)
	}
	if _, ok := hazardTypes[input.HazardType]; !ok {
		return Hazard{}, fmt.Errorf("hazard type %q: %w", input.HazardType, apperr.ErrInvalidRange)
	}
	if input.Severity == "" {
		input.Severity = "medium"
	}
	if _, ok := severities[input.Severity]; !ok {
		return Hazard{}, fmt.Errorf("severity %q: %w", input.Severity, apperr.ErrInvalidRange)
	}
	confidence := 0.5
	if input.ConfidenceScore != nil {
		confidence = *input.ConfidenceScore
	}
	if confidence < 0 || confidence > 1 {
		return Hazard{}, fmt.Errorf("confidence %v: %w", confidence, apperr.ErrInvalidRange)
	}

	h := Hazard{
		ID:              uuid.NewString(),
		Lat:             input.Lat,
		Lng:             input.Lng,
		HazardType:      input.HazardType,
		Severity:        input.Severity,
		ConfidenceScore: confidence,
		DetectedBy:      input.DetectedBy,
		ExpiresAt:       input.ExpiresAt,
		IsActive:        true,
		Description:     input.Description,
		ImageURL:        input.ImageRef,
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO hazard_detections (id, location, hazard_type, severity, confidence_score,
		                               detected_by, expires_at, is_active, description, image_url)
		VALUES ($1, ST_SetSRID(ST_MakePoint($2,$3), 4326)::geography, $4, $5, $6, $7, $8, TRUE, $9, $10)
		RETURNING detected_at
	`, h.ID, h.Lng, h.Lat, h.HazardType, h.Severity, h.ConfidenceScore, h.DetectedBy, h.ExpiresAt,
		h.Description, h.ImageURL)
	if err := row.Scan(&h.DetectedAt); err != nil {
		return Hazard{}, fmt.Errorf("insert hazard: %w: %v", apperr.ErrStorageUnavailable, err)
	}

	s.broadcast(h)
	return h, nil
}

func (s *Service) broadcast(h Hazard) {
	if s.hub == nil {
		return
	}
	if payload, err := json.Marshal(h); err == nil {
		s.hub.Broadcast(stream.ChannelAll, payload)
		s.hub.Broadcast(h.HazardType, payload)
	}
}

const hazardColumns = `id, ST_Y(location::geometry), ST_X(location::geometry), hazard_type, severity,
		       confidence_score, detected_by, detected_at, expires_at, is_active,
		       COALESCE(description,''), COALESCE(image_url,'')`

func scanHazard(row pgx.Row) (Hazard, error) {
	var h Hazard
	err := row.Scan(&h.ID, &h.Lat, &h.Lng, &h.HazardType, &h.Severity, &h.ConfidenceScore,
		&h.DetectedBy, &h.DetectedAt, &h.ExpiresAt, &h.IsActive, &h.Description, &h.ImageURL)
	return h, err
}

func (s *Service) Get(ctx context.Context, id string) (Hazard, error) {
	h, err := scanHazard(s.db.QueryRow(ctx, `
		SELECT `+hazardColumns+`
		FROM hazard_detections WHERE id=$1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Hazard{}, fmt.Errorf("hazard %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return Hazard{}, fmt.Errorf("get hazard: %w: %v", apperr.ErrStorageUnavailable, err)
	}
	return h, nil
}

// Nearby returns active, unexpired hazards within radiusM of center. Expiry
// is evaluated lazily against now(); rows whose is_active flag is stale are
// filtered here without waiting for DeactivateExpired to catch up.
func (s *Service) Nearby(ctx context.Context, center geo.Point, radiusM, minConfidence float64) ([]Hazard, error) {
	if !center.Valid() {
		return nil, fmt.Errorf("center (%v,%v): %w", center.Lat, center.Lng, apperr.ErrInvalidGeometry)
	}
	if err := s.validateQuery(radiusM, minConfidence); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+hazardColumns+`
		FROM hazard_detections
		WHERE is_active
		  AND (expires_at IS NULL OR expires_at > now())
		  AND ST_DWithin(location, ST_SetSRID(ST_MakePoint($1,$2), 4326)::geography, $3)
		  AND confidence_score >= $4
	`, center.Lng, center.Lat, radiusM, minConfidence)
	if err != nil {
		return nil, fmt.Errorf("nearby hazards: %w: %v", apperr.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	return s.collect(rows, func(h *Hazard) float64 {
		return geo.DistanceM(center, geo.Point{Lat: h.Lat, Lng: h.Lng})
	}, radiusM)
}

// AlongRoute returns active, unexpired hazards within bufferM of the route.
func (s *Service) AlongRoute(ctx context.Context, route []geo.Point, bufferM, minConfidence float64) ([]Hazard, error) {
	if !geo.ValidLine(route) {
		return nil, fmt.Errorf("route polyline: %w", apperr.ErrInvalidGeometry)
	}
	if err := s.validateQuery(bufferM, minConfidence); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+hazardColumns+`
		FROM hazard_detections
		WHERE is_active
		  AND (expires_at IS NULL OR expires_at > now())
		  AND ST_DWithin(location, ST_GeogFromText($1), $2)
		  AND confidence_score >= $3
	`, geo.LineStringWKT(route), bufferM, minConfidence)
	if err != nil {
		return nil, fmt.Errorf("hazards along route: %w: %v", apperr.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	return s.collect(rows, func(h *Hazard) float64 {
		return geo.PointToLineM(geo.Point{Lat: h.Lat, Lng: h.Lng}, route)
	}, bufferM)
}

func (s *Service) collect(rows pgx.Rows, distance func(*Hazard) float64, limitM float64) ([]Hazard, error) {
	var results []Hazard
	for rows.Next() {
		h, err := scanHazard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan hazard: %w: %v", apperr.ErrStorageUnavailable, err)
		}
		h.DistanceM = distance(&h)
		if h.DistanceM <= limitM {
			results = append(results, h)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hazard rows: %w: %v", apperr.ErrStorageUnavailable, err)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].DistanceM != results[j].DistanceM {
			return results[i].DistanceM < results[j].DistanceM
		}
		return results[i].ID < results[j].ID
	})
	return results, nil
}

// Resolve marks a hazard inactive (cleared by a user or operator).
func (s *Service) Resolve(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `UPDATE hazard_detections SET is_active=FALSE WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("resolve hazard: %w: %v", apperr.ErrStorageUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("hazard %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// DeactivateExpired flips is_active on hazards whose expiry has passed.
// Queries already exclude expired rows, so this is a tidy-up for index and
// scan efficiency, not a correctness requirement.
func (s *Service) DeactivateExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE hazard_detections SET is_active=FALSE
		WHERE is_active AND expires_at IS NOT NULL AND expires_at <= now()
	`)
	if err != nil {
		return 0, fmt.Errorf("deactivate expired: %w: %v", apperr.ErrStorageUnavailable, err)
	}
	return tag.RowsAffected(), nil
}
