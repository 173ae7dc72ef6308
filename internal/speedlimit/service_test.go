package speedlimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Rathesh0709/speed-camera-detector-backend/internal/shared/apperr"
	"github.com/Rathesh0709/speed-camera-detector-backend/internal/shared/geo"
	"github.com/Rathesh0709/speed-camera-detector-backend/internal/verify"

	"github.com/pashagolub/pgxmock/v3"
)

func newTestService(t *testing.T) (*Service, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewService(mock, verify.DefaultConfig(), 10000), mock
}

func speedLimitRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "segment_wkt", "speed_limit_kmh", "road_name", "road_type",
		"direction", "verified", "verification_count", "confidence_score", "reported_by",
		"notes", "created_at", "updated_at"})
}

func segmentWKT(line []geo.Point) string {
	return geo.LineStringWKT(line)
}

func TestCreateAndGet(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()
	segment := []geo.Point{{Lat: 13.0800, Lng: 80.2700}, {Lat: 13.0900, Lng: 80.2700}}

	mock.ExpectQuery(`INSERT INTO road_speed_limits`).
		WithArgs(pgxmock.AnyArg(), segmentWKT(segment), 60, "Anna Salai", "urban", "both",
			false, 0, 0.5, (*string)(nil), "").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	sl, err := svc.Create(context.Background(), NewSpeedLimit{
		Segment: segment, SpeedLimitKmh: 60, RoadName: "Anna Salai", RoadType: "urban", Direction: "both",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sl.ConfidenceScore != 0.5 {
		t.Fatalf("expected default confidence, got %v", sl.ConfidenceScore)
	}

	mock.ExpectQuery(`SELECT id, ST_AsText\(road_segment::geometry\)`).
		WithArgs(sl.ID).
		WillReturnRows(speedLimitRows().
			AddRow(sl.ID, segmentWKT(segment), 60, "Anna Salai", "urban", "both", false, 0, 0.5, nil, "", now, now))

	loaded, err := svc.Get(context.Background(), sl.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(loaded.Segment) != 2 || loaded.Segment[0] != segment[0] {
		t.Fatalf("segment did not round-trip: %+v", loaded.Segment)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, NewSpeedLimit{Segment: []geo.Point{{Lat: 13, Lng: 80}}, SpeedLimitKmh: 60}); !errors.Is(err, apperr.ErrInvalidGeometry) {
		t.Fatalf("one-point segment: got %v", err)
	}
	seg := []geo.Point{{Lat: 13, Lng: 80}, {Lat: 13.01, Lng: 80}}
	if _, err := svc.Create(ctx, NewSpeedLimit{Segment: seg, SpeedLimitKmh: 0}); !errors.Is(err, apperr.ErrInvalidRange) {
		t.Fatalf("zero speed: got %v", err)
	}
	if _, err := svc.Create(ctx, NewSpeedLimit{Segment: seg, SpeedLimitKmh: 60, Direction: "sideways"}); !errors.Is(err, apperr.ErrInvalidRange) {
		t.Fatalf("bad direction: got %v", err)
	}
}

func TestCreateKeepsExplicitZeroConfidence(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()
	segment := []geo.Point{{Lat: 13.0800, Lng: 80.2700}, {Lat: 13.0900, Lng: 80.2700}}

	zero := 0.0
	mock.ExpectQuery(`INSERT INTO road_speed_limits`).
		WithArgs(pgxmock.AnyArg(), segmentWKT(segment), 60, "", "", "", false, 0, 0.0, (*string)(nil), "").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	sl, err := svc.Create(context.Background(), NewSpeedLimit{
		Segment: segment, SpeedLimitKmh: 60, ConfidenceScore: &zero,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sl.ConfidenceScore != 0 {
		t.Fatalf("explicit 0.0 confidence replaced by default: %v", sl.ConfidenceScore)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNearbyFiltersByPolylineDistance(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()
	center := geo.Point{Lat: 13.0850, Lng: 80.2705}

	near := []geo.Point{{Lat: 13.0800, Lng: 80.2700}, {Lat: 13.0900, Lng: 80.2700}}
	far := []geo.Point{{Lat: 13.2000, Lng: 80.4000}, {Lat: 13.2100, Lng: 80.4000}}

	mock.ExpectQuery(`SELECT id, .*FROM road_speed_limits`).
		WithArgs(center.Lng, center.Lat, 500.0, 0.0, false).
		WillReturnRows(speedLimitRows().
			AddRow("sl-far", segmentWKT(far), 80, "", "", "", true, 5, 0.85, nil, "", now, now).
			AddRow("sl-near", segmentWKT(near), 60, "", "", "", false, 0, 0.5, nil, "", now, now))

	limits, err := svc.Nearby(context.Background(), center, 500, 0, false)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(limits) != 1 || limits[0].ID != "sl-near" {
		t.Fatalf("expected only the near segment, got %+v", limits)
	}
	// ~54m of longitude offset from the segment at this latitude.
	if limits[0].DistanceM <= 0 || limits[0].DistanceM > 100 {
		t.Fatalf("unexpected distance %v", limits[0].DistanceM)
	}
}

func TestAlongRouteCorridor(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()
	route := []geo.Point{{Lat: 13.0800, Lng: 80.2700}, {Lat: 13.0900, Lng: 80.2700}}

	parallel := []geo.Point{{Lat: 13.0800, Lng: 80.2703}, {Lat: 13.0900, Lng: 80.2703}} // ~32m east
	distant := []geo.Point{{Lat: 13.0800, Lng: 80.2800}, {Lat: 13.0900, Lng: 80.2800}}  // ~1km east

	mock.ExpectQuery(`SELECT id, .*FROM road_speed_limits`).
		WithArgs(segmentWKT(route), 50.0, 0.0, false).
		WillReturnRows(speedLimitRows().
			AddRow("sl-parallel", segmentWKT(parallel), 60, "", "", "", false, 0, 0.5, nil, "", now, now).
			AddRow("sl-distant", segmentWKT(distant), 60, "", "", "", false, 0, 0.5, nil, "", now, now))

	limits, err := svc.AlongRoute(context.Background(), route, 50, 0, false)
	if err != nil {
		t.Fatalf("along route: %v", err)
	}
	if len(limits) != 1 || limits[0].ID != "sl-parallel" {
		t.Fatalf("expected only the parallel segment, got %+v", limits)
	}
}

func expectReportTx(mock pgxmock.PgxPoolIface, id string, verified bool, confirms, removes, total int) {
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT verified FROM road_speed_limits WHERE id=\$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"verified"}).AddRow(verified))
	mock.ExpectQuery(`INSERT INTO speed_limit_reports`).
		WithArgs(pgxmock.AnyArg(), id, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FILTER`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"confirms", "removes", "total"}).AddRow(confirms, removes, total))
}

func TestSubmitReportTransition(t *testing.T) {
	svc, mock := newTestService(t)

	expectReportTx(mock, "sl-1", false, 5, 0, 5)
	mock.ExpectExec(`UPDATE road_speed_limits SET verified=TRUE, verification_count=\$2`).
		WithArgs("sl-1", 5).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	res, err := svc.SubmitReport(context.Background(), Report{SpeedLimitID: "sl-1", ReportType: "confirm"})
	if err != nil {
		t.Fatalf("submit report: %v", err)
	}
	if !res.Verified || res.VerificationCount != 5 {
		t.Fatalf("expected verified with count 5, got %+v", res)
	}
}

func TestSubmitReportUpdateSegmentCountsTowardDenominator(t *testing.T) {
	svc, mock := newTestService(t)

	// 4 confirms + this update_segment = 5 total at 80%: transition fires,
	// but the segment itself is untouched (policy is the operator's call).
	seg := []geo.Point{{Lat: 13.08, Lng: 80.27}, {Lat: 13.09, Lng: 80.27}}
	expectReportTx(mock, "sl-1", false, 4, 0, 5)
	mock.ExpectExec(`UPDATE road_speed_limits SET verified=TRUE, verification_count=\$2`).
		WithArgs("sl-1", 4).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	res, err := svc.SubmitReport(context.Background(), Report{
		SpeedLimitID: "sl-1", ReportType: "update_segment", ReportedSegment: seg,
	})
	if err != nil {
		t.Fatalf("submit report: %v", err)
	}
	if !res.Verified || res.VerificationCount != 4 {
		t.Fatalf("expected transition with count 4, got %+v", res)
	}
}

func TestSubmitReportUnknownTarget(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT verified FROM road_speed_limits WHERE id=\$1 FOR UPDATE`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"verified"}))
	mock.ExpectRollback()

	_, err := svc.SubmitReport(context.Background(), Report{SpeedLimitID: "missing", ReportType: "confirm"})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSubmitReportValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.SubmitReport(ctx, Report{SpeedLimitID: "x", ReportType: "approve"}); !errors.Is(err, apperr.ErrInvalidRange) {
		t.Fatalf("bad type: got %v", err)
	}
	if _, err := svc.SubmitReport(ctx, Report{SpeedLimitID: "x", ReportType: "update_segment",
		ReportedSegment: []geo.Point{{Lat: 13, Lng: 80}}}); !errors.Is(err, apperr.ErrInvalidGeometry) {
		t.Fatalf("one-point segment: got %v", err)
	}
}
