package speedlimit

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

func validDirection(d string) bool {
	return d == "" || d == DirectionForward || d == DirectionBackward || d == DirectionBoth
}

func validReportType(t string) bool {
	switch t {
	case ReportConfirm, ReportDispute, ReportUpdateSpeed, ReportUpdateSegment, ReportRemove:
		return true
	}
	return false
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

func (s *Service) Create(ctx context.Context, input NewSpeedLimit) (SpeedLimit, error) {
	if !geo.ValidLine(input.Segment) {
		return SpeedLimit{}, fmt.Errorf("road segment: %w", apperr.ErrInvalidGeometry)
	}
	if input.SpeedLimitKmh <= 0 {
		return SpeedLimit{}, fmt.Errorf("speed limit %d: %w", input.SpeedLimitKmh, apperr.ErrInvalidRange)
	}
	if !validDirection(input.Direction) {
		return SpeedLimit{}, fmt.Errorf("direction %q: %w", input.Direction, apperr.ErrInvalidRange)
	}
	confidence := 0.5
	if input.ConfidenceScore != nil {
		confidence = *input.ConfidenceScore
	}
	if confidence < 0 || confidence > 1 {
		return SpeedLimit{}, fmt.Errorf("confidence %v: %w", confidence, apperr.ErrInvalidRange)
	}

	sl := SpeedLimit{
		ID:              uuid.NewString(),
		Segment:         input.Segment,
		SpeedLimitKmh:   input.SpeedLimitKmh,
		RoadName:        input.RoadName,
		RoadType:        input.RoadType,
		Direction:       input.Direction,
		ConfidenceScore: confidence,
		ReportedBy:      input.ReportedBy,
		Notes:           input.Notes,
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO road_speed_limits (id, road_segment, speed_limit_kmh, road_name, road_type, direction,
		                               verified, verification_count, confidence_score, reported_by, notes)
		VALUES ($1, ST_GeogFromText($2), $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`, sl.ID, geo.LineStringWKT(sl.Segment), sl.SpeedLimitKmh, sl.RoadName, sl.RoadType,
		sl.Direction, sl.Verified, sl.VerificationCount, sl.ConfidenceScore, sl.ReportedBy, sl.Notes)
	if err := row.Scan(&sl.CreatedAt, &sl.UpdatedAt); err != nil {
		return SpeedLimit{}, fmt.Errorf("insert speed limit: %w: %v", apperr.ErrStorageUnavailable, err)
	}
	return sl, nil
}

const speedLimitColumns = `id, ST_AsText(road_segment::geometry), speed_limit_kmh,
		       COALESCE(road_name,''), COALESCE(road_type,''), COALESCE(direction,''),
		       verified, verification_count, confidence_score, reported_by,
		       COALESCE(notes,''), created_at, updated_at`

func scanSpeedLimit(row pgx.Row) (SpeedLimit, error) {
	var sl SpeedLimit
	var wkt string
	err := row.Scan(&sl.ID, &wkt, &sl.SpeedLimitKmh, &sl.RoadName, &sl.RoadType, &sl.Direction,
		&sl.Verified, &sl.VerificationCount, &sl.ConfidenceScore, &sl.ReportedBy, &sl.Notes,
		&sl.CreatedAt, &sl.UpdatedAt)
	if err != nil {
		return SpeedLimit{}, err
	}
	sl.Segment, err = geo.ParseLineString(wkt)
	return sl, err
}

func (s *Service) Get(ctx context.Context, id string) (SpeedLimit, error) {
	sl, err := scanSpeedLimit(s.db.QueryRow(ctx, `
		SELECT `+speedLimitColumns+`
		FROM road_speed_limits WHERE id=$1 AND NOT is_removed
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return SpeedLimit{}, fmt.Errorf("speed limit %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return SpeedLimit{}, fmt.Errorf("get speed limit: %w: %v", apperr.ErrStorageUnavailable, err)
	}
	return sl, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM road_speed_limits WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete speed limit: %w: %v", apperr.ErrStorageUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("speed limit %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// Nearby returns segments whose polyline passes within radiusM of center,
// ascending by minimum distance with id as the tie-break.
func (s *Service) Nearby(ctx context.Context, center geo.Point, radiusM, minConfidence float64, verifiedOnly bool) ([]SpeedLimit, error) {
	if !center.Valid() {
		return nil, fmt.Errorf("center (%v,%v): %w", center.Lat, center.Lng, apperr.ErrInvalidGeometry)
	}
	if err := s.validateQuery(radiusM, minConfidence); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+speedLimitColumns+`
		FROM road_speed_limits
		WHERE NOT is_removed
		  AND ST_DWithin(road_segment, ST_SetSRID(ST_MakePoint($1,$2), 4326)::geography, $3)
		  AND confidence_score >= $4
		  AND (verified OR NOT $5)
	`, center.Lng, center.Lat, radiusM, minConfidence, verifiedOnly)
	if err != nil {
		return nil, fmt.Errorf("nearby speed limits: %w: %v", apperr.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var results []SpeedLimit
	for rows.Next() {
		sl, err := scanSpeedLimit(rows)
		if err != nil {
			return nil, fmt.Errorf("nearby speed limits: %w: %v", apperr.ErrStorageUnavailable, err)
		}
		sl.DistanceM = geo.PointToLineM(center, sl.Segment)
		if sl.DistanceM <= radiusM {
			results = append(results, sl)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("nearby speed limits: %w: %v", apperr.ErrStorageUnavailable, err)
	}
	sortByDistance(results)
	return results, nil
}

// AlongRoute returns segments within bufferM of the route polyline. The
// reported distance is from the route's first point to the segment, which
// keeps ordering stable for equal distances without claiming more precision
// than a corridor query has.
func (s *Service) AlongRoute(ctx context.Context, route []geo.Point, bufferM, minConfidence float64, verifiedOnly bool) ([]SpeedLimit, error) {
	if !geo.ValidLine(route) {
		return nil, fmt.Errorf("route polyline: %w", apperr.ErrInvalidGeometry)
	}
	if err := s.validateQuery(bufferM, minConfidence); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+speedLimitColumns+`
		FROM road_speed_limits
		WHERE NOT is_removed
		  AND ST_DWithin(road_segment, ST_GeogFromText($1), $2)
		  AND confidence_score >= $3
		  AND (verified OR NOT $4)
	`, geo.LineStringWKT(route), bufferM, minConfidence, verifiedOnly)
	if err != nil {
		return nil, fmt.Errorf("speed limits along route: %w: %v", apperr.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var results []SpeedLimit
	for rows.Next() {
		sl, err := scanSpeedLimit(rows)
		if err != nil {
			return nil, fmt.Errorf("speed limits along route: %w: %v", apperr.ErrStorageUnavailable, err)
		}
		sl.DistanceM = minLineToLineM(route, sl.Segment)
		if sl.DistanceM <= bufferM {
			results = append(results, sl)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("speed limits along route: %w: %v", apperr.ErrStorageUnavailable, err)
	}
	sortByDistance(results)
	return results, nil
}

// minLineToLineM approximates polyline-to-polyline distance by checking each
// vertex of either line against the other. Vertices are dense enough in road
// data for corridor buffers; the index has already bounded the candidates.
func minLineToLineM(a, b []geo.Point) float64 {
	min := geo.PointToLineM(a[0], b)
	for _, p := range a[1:] {
		if d := geo.PointToLineM(p, b); d < min {
			min = d
		}
	}
	for _, p := range b {
		if d := geo.PointToLineM(p, a); d < min {
			min = d
		}
	}
	return min
}

func sortByDistance(sls []SpeedLimit) {
	sort.Slice(sls, func(i, j int) bool {
		if sls[i].DistanceM != sls[j].DistanceM {
			return sls[i].DistanceM < sls[j].DistanceM
		}
		return sls[i].ID < sls[j].ID
	})
}

// SubmitReport appends a ledger entry and recomputes verification in one
// row-locked transaction, mirroring the camera path.
func (s *Service) SubmitReport(ctx context.Context, input Report) (ReportResult, error) {
	if !validReportType(input.ReportType) {
		return ReportResult{}, fmt.Errorf("report type %q: %w", input.ReportType, apperr.ErrInvalidRange)
	}
	if input.ConfidenceScore != nil && (*input.ConfidenceScore < 0 || *input.ConfidenceScore > 1) {
		return ReportResult{}, fmt.Errorf("confidence %v: %w", *input.ConfidenceScore, apperr.ErrInvalidRange)
	}
	if len(input.ReportedSegment) > 0 && !geo.ValidLine(input.ReportedSegment) {
		return ReportResult{}, fmt.Errorf("reported segment: %w", apperr.ErrInvalidGeometry)
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
	return ReportResult{}, fmt.Errorf("report on speed limit %s after %d attempts (%v): %w",
		input.SpeedLimitID, maxConflictRetries, lastErr, apperr.ErrTransient)
}

func (s *Service) submitReportOnce(ctx context.Context, input Report) (ReportResult, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return ReportResult{}, fmt.Errorf("begin: %w: %v", apperr.ErrStorageUnavailable, err)
	}
	defer tx.Rollback(ctx)

	var verified bool
	err = tx.QueryRow(ctx, `SELECT verified FROM road_speed_limits WHERE id=$1 FOR UPDATE`, input.SpeedLimitID).Scan(&verified)
	if errors.Is(err, pgx.ErrNoRows) {
		return ReportResult{}, fmt.Errorf("speed limit %s: %w", input.SpeedLimitID, apperr.ErrNotFound)
	}
	if err != nil {
		return ReportResult{}, fmt.Errorf("lock speed limit: %w", storageOrConflict(err))
	}

	var segmentWKT *string
	if len(input.ReportedSegment) > 0 {
		w := geo.LineStringWKT(input.ReportedSegment)
		segmentWKT = &w
	}

	input.ID = uuid.NewString()
	err = tx.QueryRow(ctx, `
		INSERT INTO speed_limit_reports (id, speed_limit_id, reported_by, report_type, reported_segment,
		                                 reported_speed_limit_kmh, confidence_score, notes)
		VALUES ($1, $2, $3, $4, ST_GeogFromText($5::text), $6, $7, $8)
		RETURNING created_at
	`, input.ID, input.SpeedLimitID, input.ReportedBy, input.ReportType, segmentWKT,
		input.ReportedSpeedLimitKmh, input.ConfidenceScore, input.Notes).Scan(&input.CreatedAt)
	if err != nil {
		return ReportResult{}, fmt.Errorf("append report: %w", storageOrConflict(err))
	}

	var tally verify.Tally
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE report_type='confirm'),
		       COUNT(*) FILTER (WHERE report_type='remove'),
		       COUNT(*)
		FROM speed_limit_reports WHERE speed_limit_id=$1
	`, input.SpeedLimitID).Scan(&tally.Confirms, &tally.Removes, &tally.Total)
	if err != nil {
		return ReportResult{}, fmt.Errorf("recount reports: %w", storageOrConflict(err))
	}

	out := s.verify.Evaluate(verified, tally)
	if out.UpdateCount {
		_, err = tx.Exec(ctx, `
			UPDATE road_speed_limits SET verified=TRUE, verification_count=$2, updated_at=now() WHERE id=$1
		`, input.SpeedLimitID, out.VerificationCount)
		if err != nil {
			return ReportResult{}, fmt.Errorf("apply verification: %w", storageOrConflict(err))
		}
	}
	if out.Remove {
		if s.verify.Removal == verify.RemovalDelete {
			_, err = tx.Exec(ctx, `DELETE FROM road_speed_limits WHERE id=$1`, input.SpeedLimitID)
		} else {
			_, err = tx.Exec(ctx, `UPDATE road_speed_limits SET is_removed=TRUE, updated_at=now() WHERE id=$1`, input.SpeedLimitID)
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

// Reports returns the segment's ledger, newest first.
func (s *Service) Reports(ctx context.Context, speedLimitID string) ([]Report, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, speed_limit_id, reported_by, report_type, ST_AsText(reported_segment::geometry),
		       reported_speed_limit_kmh, confidence_score, COALESCE(notes,''), created_at
		FROM speed_limit_reports WHERE speed_limit_id=$1
		ORDER BY created_at DESC
	`, speedLimitID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w: %v", apperr.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		var r Report
		var wkt *string
		if err := rows.Scan(&r.ID, &r.SpeedLimitID, &r.ReportedBy, &r.ReportType, &wkt,
			&r.ReportedSpeedLimitKmh, &r.ConfidenceScore, &r.Notes, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("list reports: %w: %v", apperr.ErrStorageUnavailable, err)
		}
		if wkt != nil {
			if r.ReportedSegment, err = geo.ParseLineString(*wkt); err != nil {
				return nil, fmt.Errorf("list reports: %w: %v", apperr.ErrStorageUnavailable, err)
			}
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

func storageOrConflict(err error) error {
	if isSerializationError(err) {
		return fmt.Errorf("%w: %v", apperr.ErrConflict, err)
	}
	return fmt.Errorf("%w: %v", apperr.ErrStorageUnavailable, err)
}
