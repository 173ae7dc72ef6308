package speedlimit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Rathesh0709/speed-camera-detector-backend/internal/shared/geo"
	"github.com/Rathesh0709/speed-camera-detector-backend/internal/verify"

	"github.com/gofiber/fiber/v2"
	"github.com/pashagolub/pgxmock/v3"
)

func newTestApp(t *testing.T) (*fiber.App, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)

	app := fiber.New()
	RegisterRoutes(app.Group("/speed-limits"), NewService(mock, verify.DefaultConfig(), 10000))
	return app, mock
}

func TestNearbyHandler(t *testing.T) {
	app, mock := newTestApp(t)
	now := time.Now()
	segment := []geo.Point{{Lat: 13.0848, Lng: 80.2700}, {Lat: 13.0852, Lng: 80.2710}}

	mock.ExpectQuery(`SELECT id, .*FROM road_speed_limits`).
		WithArgs(80.2705, 13.0850, 500.0, 0.0, false).
		WillReturnRows(speedLimitRows().
			AddRow("sl-1", segmentWKT(segment), 60, "Anna Salai", "urban", "both", true, 5, 0.85, nil, "", now, now))

	req := httptest.NewRequest(http.MethodGet, "/speed-limits/nearby?lat=13.0850&lng=80.2705&radius_m=500", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestAlongRouteHandlerRejectsShortRoute(t *testing.T) {
	app, _ := newTestApp(t)

	body := `{"route":[{"lat":13.08,"lng":80.27}],"buffer_m":50}`
	req := httptest.NewRequest(http.MethodPost, "/speed-limits/along-route", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestCreateHandler(t *testing.T) {
	app, mock := newTestApp(t)
	now := time.Now()

	segment := []geo.Point{{Lat: 13.08, Lng: 80.27}, {Lat: 13.09, Lng: 80.27}}
	mock.ExpectQuery(`INSERT INTO road_speed_limits`).
		WithArgs(pgxmock.AnyArg(), segmentWKT(segment), 60, "", "", "", false, 0, 0.5, (*string)(nil), "").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	body := `{"segment":[{"lat":13.08,"lng":80.27},{"lat":13.09,"lng":80.27}],"speed_limit_kmh":60}`
	req := httptest.NewRequest(http.MethodPost, "/speed-limits/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status %d", resp.StatusCode)
	}
}
