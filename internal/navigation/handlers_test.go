package navigation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Rathesh0709/speed-camera-detector-backend/internal/camera"

	"github.com/gofiber/fiber/v2"
)

func newTestApp(cams *fakeCameras, limits *fakeSpeedLimits, hz *fakeHazards) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app.Group("/navigation"), NewService(cams, limits, hz, nil, 0))
	return app
}

func TestNearbyHandler(t *testing.T) {
	app := newTestApp(&fakeCameras{items: []camera.Camera{{ID: "cam-1"}}}, &fakeSpeedLimits{}, &fakeHazards{})

	req := httptest.NewRequest(http.MethodGet, "/navigation/nearby?lat=13.0827&lng=80.2707&radius_m=500", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Cameras.Count != 1 || snap.Partial {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestNearbyHandlerRejectsMissingCoords(t *testing.T) {
	app := newTestApp(&fakeCameras{}, &fakeSpeedLimits{}, &fakeHazards{})

	req := httptest.NewRequest(http.MethodGet, "/navigation/nearby", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestAlongRouteHandler(t *testing.T) {
	app := newTestApp(&fakeCameras{}, &fakeSpeedLimits{}, &fakeHazards{})

	body := `{"route":[{"lat":13.0827,"lng":80.2707},{"lat":13.0840,"lng":80.2720}],"buffer_m":150}`
	req := httptest.NewRequest(http.MethodPost, "/navigation/along-route", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
}
