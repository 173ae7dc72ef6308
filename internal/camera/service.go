package camera

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Rathesh0709/speed-camera-detector-backend/internal/db"
	"github.com/Rathesh0709/speed-camera-detector-backend/internal/shared/apperr"
	"github.com/Rathesh0709/speed-camera-detector-backend/internal/shared/geo"
	"github.com/Rathesh0709/speed-camera-detector-backend/internal/verify"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const maxConflictRetries = 3

type Service struct {
	db         db.Querier
	verify     verify.Config
	maxRadiusM float64
}

func NewService(q db.Querier, vcfg verify.Config, maxRadiusM float64) *Service {
	return &Service{db: q, verify: vcfg, maxRadiusM: maxRadiusM}
}

func validCameraType(t string) bool {
	return t == TypeFixed || t == TypeMobile || t == TypeAverageSpeed
}

func validReportType(t string) bool {
	return t == ReportConfirm || t == ReportDispute || t == ReportUpdateSpeed || t == ReportRemove
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

// Create stores a user-submitted camera. Bulk-imported records go through the
// importer instead, which sets verified and higher confidence.
func (s *Service) Create(ctx context.Context, input NewCamera) (Camera, error) {
	if !(geo.Point{Lat: input.Lat, Lng: input.Lng}).Valid() {
		return Camera{}, fmt.Errorf("coordinates (%v,%v): %w", input.Lat, input.Lng, apperr.ErrInvalidGeometry)
	}
	if !validCameraType(input.CameraType) {
		return Camera{}, fmt.Errorf("camera type %q: %w", input.CameraType, apperr.ErrInvalidRange)
	}
	if input.SpeedLimitKmh <= 0 {
		return Camera{}, fmt.Errorf("speed limit %d: %w", input.SpeedLimitKmh, apperr.ErrInvalidRange)
	}
	if input.DirectionDegrees != nil && (*input.DirectionDegrees < 0 || *input.DirectionDegrees >= 360) {
		return Camera{}, fmt.Errorf("direction %d: %w", *input.DirectionDegrees, apperr.ErrInvalidRange)
	}
	confidence := 0.5
	if input.ConfidenceScore != nil {
		confidence = *input.ConfidenceScore
	}
	if confidence < 0 || confidence > 1 {
		return Camera{}, fmt.Errorf("confidence %v: %w", confidence, apperr.ErrInvalidRange)
	}

	cam := Camera{
		ID:               uuid.NewString(),
		Lat:              input.Lat,
		Lng:              input.Lng,
		SpeedLimitKmh:    input.SpeedLimitKmh,
		CameraType:       input.CameraType,
		DirectionDegrees: input.DirectionDegrees,
		ConfidenceScore:  confidence,
		ReportedBy:       input.ReportedBy,
		Notes:            input.Notes,
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO speed_cameras (id, location, speed_limit_kmh, camera_type, direction_degrees,
		                           verified, verification_count, confidence_score, reported_by, notes)
		VALUES ($1, ST_SetSRID(ST_MakePoint($2,$3), 4326)::geography, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`, cam.ID, cam.Lng, cam.Lat, cam.SpeedLimitKmh, cam.CameraType, cam.DirectionDegrees,
		cam.Verified, cam.VerificationCount, cam.ConfidenceScore, cam.ReportedBy, cam.Notes)
	if err := row.Scan(&cam.CreatedAt, &cam.UpdatedAt); err != nil {
		return Camera{}, fmt.Errorf("insert camera: %w: %v", apperr.ErrStorageUnavailable, err)
	}
	return cam, nil
}

const cameraColumns = `id, ST_Y(location::geometry), ST_X(location::geometry), speed_limit_kmh,
		       camera_type, direction_degrees, verified, verification_count,
		       confidence_score, reported_by, COALESCE(notes,''), created_at, updated_at`

func scanCamera(row pgx.Row) (Camera, error) {
	var c Camera
	err := row.Scan(&c.ID, &c.Lat, &c.Lng, &c.SpeedLimitKmh, &c.CameraType, &c.DirectionDegrees,
		&c.Verified, &c.VerificationCount, &c.ConfidenceScore, &c.ReportedBy, &c.Notes,
		&c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *Service) Get(ctx context.Context, id string) (Camera, error) {
	c, err := scanCamera(s.db.QueryRow(ctx, `
		SELECT `+cameraColumns+`
		FROM speed_cameras WHERE id=$1 AND NOT is_removed
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Camera{}, fmt.Errorf("camera %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return Camera{}, fmt.Errorf("get camera: %w: %v", apperr.ErrStorageUnavailable, err)
	}
	return c, nil
}

// Delete is the administrative removal path; crowd-driven removal goes
// through remove reports and the configured policy.
func (s *Service) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM speed_cameras WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete camera: %w: %v", apperr.ErrStorageUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("camera %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// Nearby returns cameras within radiusM of center, ascending by geodesic
// distance with id as the tie-break. The GIST index supplies candidates via
// ST_DWithin; exact distances are recomputed here.
func (s *Service) Nearby(ctx context.Context, center geo.Point, radiusM, minConfidence float64, verifiedOnly bool) ([]Camera, error) {
	if !center.Valid() {
		return nil, fmt.Errorf("center (%v,%v): %w", center.Lat, center.Lng, apperr.ErrInvalidGeometry)
	}
	if err := s.validateQuery(radiusM, minConfidence); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+cameraColumns+`
		FROM speed_cameras
		WHERE NOT is_removed
		  AND ST_DWithin(location, ST_SetSRID(ST_MakePoint($1,$2), 4326)::geography, $3)
		  AND confidence_score >= $4
		  AND (verified OR NOT $5)
	`, center.Lng, center.Lat, radiusM, minConfidence, verifiedOnly)
	if err != nil {
		return nil, fmt.Errorf("nearby cameras: %w: %v", apperr.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var results []Camera
	for rows.Next() {
		c, err := scanCamera(rows)
		if err != nil {
			return nil, fmt.Errorf("nearby cameras: %w: %v", apperr.ErrStorageUnavailable, err)
		}
		c.DistanceM = geo.DistanceM(center, geo.Point{Lat: c.Lat, Lng: c.Lng})
		if c.DistanceM <= radiusM {
			results = append(results, c)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("nearby cameras: %w: %v", apperr.ErrStorageUnavailable, err)
	}
	sortByDistance(results)
	return results, nil
}

// AlongRoute returns cameras within bufferM of the route polyline, ascending
// by distance from the route.
func (s *Service) AlongRoute(ctx context.Context, route []geo.Point, bufferM, minConfidence float64, verifiedOnly bool) ([]Camera, error) {
	if !geo.ValidLine(route) {
		return nil, fmt.Errorf("route polyline: %w", apperr.ErrInvalidGeometry)
	}
	if err := s.validateQuery(bufferM, minConfidence); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+cameraColumns+`
		FROM speed_cameras
		WHERE NOT is_removed
		  AND ST_DWithin(location, ST_GeogFromText($1), $2)
		  AND confidence_score >= $3
		  AND (verified OR NOT $4)
	`, geo.LineStringWKT(route), bufferM, minConfidence, verifiedOnly)
	if err != nil {
		return nil, fmt.Errorf("cameras along route: %w: %v", apperr.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var results []Camera
	for rows.Next() {
		c, err := scanCamera(rows)
		if err != nil {
			return nil, fmt.Errorf("cameras along route: %w: %v", apperr.ErrStorageUnavailable, err)
		}
		c.DistanceM = geo.PointToLineM(geo.Point{Lat: c.Lat, Lng: c.Lng}, route)
		if c.DistanceM <= bufferM {
			results = append(results, c)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cameras along route: %w: %v", apperr.ErrStorageUnavailable, err)
	}
	sortByDistance(results)
	return results, nil
}

func sortByDistance(cams []Camera) {
	sort.Slice(cams, func(i, j int) bool {
		if cams[i].DistanceM != cams[j].DistanceM {
			return cams[i].DistanceM < cams[j].DistanceM
		}
		return cams[i].ID < cams[j].ID
	})
}

// SubmitReport appends a report to the camera's ledger and recomputes the
// verification state, both inside one transaction that locks the target row.
// Reports against different cameras proceed in parallel; reports against the
// same camera serialize on the row lock. Serialization failures retry a
// bounded number of times before surfacing as a transient failure.
func (s *Service) SubmitReport(ctx context.Context, input Report) (ReportResult, error) {
	if !validReportType(input.ReportType) {
		return ReportResult{}, fmt.Errorf("report type %q: %w", input.ReportType, apperr.ErrInvalidRange)
	}
	if input.ConfidenceScore != nil && (*input.ConfidenceScore < 0 || *input.ConfidenceScore > 1) {
		return ReportResult{}, fmt.Errorf("confidence %v: %w", *input.ConfidenceScore, apperr.ErrInvalidRange)
	}
	if (input.ReportedLat == nil) != (input.ReportedLng == nil) {
		return ReportResult{}, fmt.Errorf("partial reported location: %w", apperr.ErrInvalidGeometry)
	}
	if input.ReportedLat != nil && !(geo.Point{Lat: *input.ReportedLat, Lng: *input.ReportedLng}).Valid() {
		return ReportResult{}, fmt.Errorf("reported location: %w", apperr.ErrInvalidGeometry)
	}
	if input.ReportedSpeedLimitKmh != nil && *input.ReportedSpeedLimitKmh <= 0 {
		return ReportResult{}, fmt.Errorf("reported speed limit: %w", apperr.ErrInvalidRange)
	}

	var lastErr error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		res, err := s.submitReportOnce(ctx, input)
		if err == nil || !errors.Is(err, apperr.ErrConflict) {
			return res, err
		}
		lastErr = err
	}
	return ReportResult{}, fmt.Errorf("report on camera %s after %d attempts (%v): %w",
		input.CameraID, maxConflictRetries, lastErr, apperr.ErrTransient)
}

func (s *Service) submitReportOnce(ctx context.Context, input Report) (ReportResult, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return ReportResult{}, fmt.Errorf("begin: %w: %v", apperr.ErrStorageUnavailable, err)
	}
	defer tx.Rollback(ctx)

	var verified bool
	err = tx.QueryRow(ctx, `SELECT verified FROM speed_cameras WHERE id=$1 FOR UPDATE`, input.CameraID).Scan(&verified)
	if errors.Is(err, pgx.ErrNoRows) {
		return ReportResult{}, fmt.Errorf("camera %s: %w", input.CameraID, apperr.ErrNotFound)
	}
	if err != nil {
		return ReportResult{}, fmt.Errorf("lock camera: %w", storageOrConflict(err))
	}

	input.ID = uuid.NewString()
	err = tx.QueryRow(ctx, `
		INSERT INTO camera_reports (id, camera_id, reported_by, report_type, reported_location,
		                            reported_speed_limit_kmh, confidence_score, notes)
		VALUES ($1, $2, $3, $4, ST_SetSRID(ST_MakePoint($5::float8,$6::float8), 4326)::geography, $7, $8, $9)
		RETURNING created_at
	`, input.ID, input.CameraID, input.ReportedBy, input.ReportType, input.ReportedLng, input.ReportedLat,
		input.ReportedSpeedLimitKmh, input.ConfidenceScore, input.Notes).Scan(&input.CreatedAt)
	if err != nil {
		return ReportResult{}, fmt.Errorf("append report: %w", storageOrConflict(err))
	}

	var tally verify.Tally
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE report_type='confirm'),
		       COUNT(*) FILTER (WHERE report_type='remove'),
		       COUNT(*)
		FROM camera_reports WHERE camera_id=$1
	`, input.CameraID).Scan(&tally.Confirms, &tally.Removes, &tally.Total)
	if err != nil {
		return ReportResult{}, fmt.Errorf("recount reports: %w", storageOrConflict(err))
	}

	out := s.verify.Evaluate(verified, tally)
	if out.UpdateCount {
		_, err = tx.Exec(ctx, `
			UPDATE speed_cameras SET verified=TRUE, verification_count=$2, updated_at=now() WHERE id=$1
		`, input.CameraID, out.VerificationCount)
		if err != nil {
			return ReportResult{}, fmt.Errorf("apply verification: %w", storageOrConflict(err))
		}
	}
	if out.Remove {
		if s.verify.Removal == verify.RemovalDelete {
			_, err = tx.Exec(ctx, `DELETE FROM speed_cameras WHERE id=$1`, input.CameraID)
		} else {
			_, err = tx.Exec(ctx, `UPDATE speed_cameras SET is_removed=TRUE, updated_at=now() WHERE id=$1`, input.CameraID)
		}
		if err != nil {
			return ReportResult{}, fmt.Errorf("apply removal: %w", storageOrConflict(err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return ReportResult{}, fmt.Errorf("commit report: %w", storageOrConflict(err))
	}
	return ReportResult{
		Report:            input,
		Verified:          out.Verified,
		VerificationCount: out.VerificationCount,
		Removed:           out.Remove,
	}, nil
}

// Reports returns the camera's ledger, newest first.
func (s *Service) Reports(ctx context.Context, cameraID string) ([]Report, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, camera_id, reported_by, report_type,
		       ST_Y(reported_location::geometry), ST_X(reported_location::geometry),
		       reported_speed_limit_kmh, confidence_score, COALESCE(notes,''), created_at
		FROM camera_reports WHERE camera_id=$1
		ORDER BY created_at DESC
	`, cameraID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w: %v", apperr.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.ID, &r.CameraID, &r.ReportedBy, &r.ReportType, &r.ReportedLat, &r.ReportedLng,
			&r.ReportedSpeedLimitKmh, &r.ConfidenceScore, &r.Notes, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("list reports: %w: %v", apperr.ErrStorageUnavailable, err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// storageOrConflict keeps serialization errors recognizable for the retry
// loop and folds everything else into the uniform storage failure.
func storageOrConflict(err error) error {
	if isSerializationError(err) {
		return fmt.Errorf("%w: %v", apperr.ErrConflict, err)
	}
	return fmt.Errorf("%w: %v", apperr.ErrStorageUnavailable, err)
}
