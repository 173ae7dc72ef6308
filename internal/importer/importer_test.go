package importer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Rathesh0709/speed-camera-detector-backend/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
	"github.com/pashagolub/pgxmock/v3"
)

func newTestService(t *testing.T) (*Service, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewService(mock), mock
}

func existsRow(exists bool) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"exists"}).AddRow(exists)
}

func TestImportCamerasSkipsInvalidAndDuplicates(t *testing.T) {
	svc, mock := newTestService(t)

	records := []CameraRecord{
		{Lat: 13.0827, Lng: 80.2707, SpeedLimitKmh: 60, CameraType: "fixed"},
		{Lat: 91, Lng: 80.2707, SpeedLimitKmh: 60, CameraType: "fixed"},      // bad latitude
		{Lat: 13.0900, Lng: 80.2800, SpeedLimitKmh: 0, CameraType: "fixed"},  // bad speed
		{Lat: 13.0827, Lng: 80.2707, SpeedLimitKmh: 60, CameraType: "fixed"}, // duplicate of first
		{Lat: 13.0950, Lng: 80.2850, SpeedLimitKmh: 80, CameraType: "mobile"},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(80.2707, 13.0827, 60, dupToleranceM).
		WillReturnRows(existsRow(false))
	mock.ExpectExec(`INSERT INTO speed_cameras`).
		WithArgs(pgxmock.AnyArg(), 80.2707, 13.0827, 60, "fixed", (*int)(nil), cameraConfidence, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(80.2707, 13.0827, 60, dupToleranceM).
		WillReturnRows(existsRow(true))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(80.2850, 13.0950, 80, dupToleranceM).
		WillReturnRows(existsRow(false))
	mock.ExpectExec(`INSERT INTO speed_cameras`).
		WithArgs(pgxmock.AnyArg(), 80.2850, 13.0950, 80, "mobile", (*int)(nil), cameraConfidence, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	summary, err := svc.ImportCameras(context.Background(), records)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if summary.Imported != 2 || summary.Skipped != 3 {
		t.Fatalf("summary %+v, want 2 imported 3 skipped", summary)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestImportCamerasBatchesCommits(t *testing.T) {
	svc, mock := newTestService(t)

	records := make([]CameraRecord, batchSize+1)
	for i := range records {
		records[i] = CameraRecord{
			Lat: 13.0 + float64(i)*0.001, Lng: 80.2, SpeedLimitKmh: 50, CameraType: "fixed",
		}
	}

	mock.ExpectBegin()
	for i := 0; i < batchSize; i++ {
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(80.2, pgxmock.AnyArg(), 50, dupToleranceM).
			WillReturnRows(existsRow(false))
		mock.ExpectExec(`INSERT INTO speed_cameras`).
			WithArgs(pgxmock.AnyArg(), 80.2, pgxmock.AnyArg(), 50, "fixed", (*int)(nil), cameraConfidence, "").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(80.2, pgxmock.AnyArg(), 50, dupToleranceM).
		WillReturnRows(existsRow(false))
	mock.ExpectExec(`INSERT INTO speed_cameras`).
		WithArgs(pgxmock.AnyArg(), 80.2, pgxmock.AnyArg(), 50, "fixed", (*int)(nil), cameraConfidence, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	summary, err := svc.ImportCameras(context.Background(), records)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if summary.Imported != batchSize+1 {
		t.Fatalf("imported %d, want %d", summary.Imported, batchSize+1)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestImportSpeedLimits(t *testing.T) {
	svc, mock := newTestService(t)

	segment := []geo.Point{{Lat: 13.0827, Lng: 80.2707}, {Lat: 13.0840, Lng: 80.2720}}
	records := []SpeedLimitRecord{
		{Segment: segment, SpeedLimitKmh: 60, RoadName: "Anna Salai"},
		{Segment: segment[:1], SpeedLimitKmh: 60}, // degenerate segment
		{Segment: segment, SpeedLimitKmh: 60},     // duplicate
	}

	wkt := geo.LineStringWKT(segment)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(wkt, 60, dupToleranceM).
		WillReturnRows(existsRow(false))
	mock.ExpectExec(`INSERT INTO road_speed_limits`).
		WithArgs(pgxmock.AnyArg(), wkt, 60, "Anna Salai", "", "", speedLimitConfidence, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(wkt, 60, dupToleranceM).
		WillReturnRows(existsRow(true))
	mock.ExpectCommit()

	summary, err := svc.ImportSpeedLimits(context.Background(), records)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if summary.Imported != 1 || summary.Skipped != 2 {
		t.Fatalf("summary %+v, want 1 imported 2 skipped", summary)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestImportCamerasHandler(t *testing.T) {
	svc, mock := newTestService(t)
	app := fiber.New()
	RegisterRoutes(app.Group("/import"), svc)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(80.2707, 13.0827, 60, dupToleranceM).
		WillReturnRows(existsRow(false))
	mock.ExpectExec(`INSERT INTO speed_cameras`).
		WithArgs(pgxmock.AnyArg(), 80.2707, 13.0827, 60, "fixed", (*int)(nil), cameraConfidence, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	body := `[{"lat":13.0827,"lng":80.2707,"speed_limit_kmh":60,"camera_type":"fixed"}]`
	req := httptest.NewRequest(http.MethodPost, "/import/cameras", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
}
