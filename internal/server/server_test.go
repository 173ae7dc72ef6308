package server

import (
	"net/http/httptest"
	"testing"

	"github.com/Rathesh0709/speed-camera-detector-backend/internal/config"
	"github.com/Rathesh0709/speed-camera-detector-backend/internal/verify"
)

func TestHealthRoute(t *testing.T) {
	s := NewServer(config.Config{ServerPort: ":0"}, nil, nil)

	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 status")
	}
}

func TestVerifyConfigDefaults(t *testing.T) {
	vcfg := verifyConfig(config.Config{})
	if vcfg != verify.DefaultConfig() {
		t.Fatalf("empty config must fall back to defaults, got %+v", vcfg)
	}

	vcfg = verifyConfig(config.Config{VerifyMinReports: 10, VerifyMinRatio: 0.9, RemovalPolicy: "delete"})
	if vcfg.MinReports != 10 || vcfg.MinConfirmRatio != 0.9 || vcfg.Removal != verify.RemovalDelete {
		t.Fatalf("overrides not applied: %+v", vcfg)
	}
}
