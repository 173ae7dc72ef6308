package navigation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Rathesh0709/speed-camera-detector-backend/internal/camera"
	"github.com/Rathesh0709/speed-camera-detector-backend/internal/hazard"
	"github.com/Rathesh0709/speed-camera-detector-backend/internal/shared/apperr"
	"github.com/Rathesh0709/speed-camera-detector-backend/internal/shared/geo"
	"github.com/Rathesh0709/speed-camera-detector-backend/internal/speedlimit"

	"github.com/redis/go-redis/v9"
)

type CameraFinder interface {
	Nearby(ctx context.Context, center geo.Point, radiusM, minConfidence float64, verifiedOnly bool) ([]camera.Camera, error)
	AlongRoute(ctx context.Context, route []geo.Point, bufferM, minConfidence float64, verifiedOnly bool) ([]camera.Camera, error)
}

type SpeedLimitFinder interface {
	Nearby(ctx context.Context, center geo.Point, radiusM, minConfidence float64, verifiedOnly bool) ([]speedlimit.SpeedLimit, error)
	AlongRoute(ctx context.Context, route []geo.Point, bufferM, minConfidence float64, verifiedOnly bool) ([]speedlimit.SpeedLimit, error)
}

type HazardFinder interface {
	Nearby(ctx context.Context, center geo.Point, radiusM, minConfidence float64) ([]hazard.Hazard, error)
	AlongRoute(ctx context.Context, route []geo.Point, bufferM, minConfidence float64) ([]hazard.Hazard, error)
}

// Service answers the combined "what is around me / along my route" query by
// fanning out to the three fact stores. A short-lived redis cache absorbs the
// polling pattern of navigation clients re-asking for the same tile.
type Service struct {
	cameras     CameraFinder
	speedLimits SpeedLimitFinder
	hazards     HazardFinder
	cache       *redis.Client
	cacheTTL    time.Duration
}

func NewService(cameras CameraFinder, speedLimits SpeedLimitFinder, hazards HazardFinder,
	cache *redis.Client, cacheTTL time.Duration) *Service {
	return &Service{
		cameras:     cameras,
		speedLimits: speedLimits,
		hazards:     hazards,
		cache:       cache,
		cacheTTL:    cacheTTL,
	}
}

// Nearby composes the per-kind proximity queries around center.
func (s *Service) Nearby(ctx context.Context, q Query) (Snapshot, error) {
	if !q.Center.Valid() {
		return Snapshot{}, fmt.Errorf("center (%v,%v): %w", q.Center.Lat, q.Center.Lng, apperr.ErrInvalidGeometry)
	}
	key := fmt.Sprintf("nav:nearby:%.6f:%.6f:%.0f:%.2f:%t",
		q.Center.Lat, q.Center.Lng, q.RadiusM, q.MinConfidence, q.VerifiedOnly)

	return s.cached(ctx, key, func() Snapshot {
		return s.gather(ctx,
			func() ([]camera.Camera, error) {
				return s.cameras.Nearby(ctx, q.Center, q.RadiusM, q.MinConfidence, q.VerifiedOnly)
			},
			func() ([]speedlimit.SpeedLimit, error) {
				return s.speedLimits.Nearby(ctx, q.Center, q.RadiusM, q.MinConfidence, q.VerifiedOnly)
			},
			func() ([]hazard.Hazard, error) {
				return s.hazards.Nearby(ctx, q.Center, q.RadiusM, q.MinConfidence)
			})
	})
}

// AlongRoute composes the per-kind corridor queries for a route polyline.
func (s *Service) AlongRoute(ctx context.Context, q Query) (Snapshot, error) {
	if !geo.ValidLine(q.Route) {
		return Snapshot{}, fmt.Errorf("route polyline: %w", apperr.ErrInvalidGeometry)
	}
	sum := sha256.Sum256([]byte(geo.LineStringWKT(q.Route)))
	key := fmt.Sprintf("nav:route:%s:%.0f:%.2f:%t",
		hex.EncodeToString(sum[:8]), q.RadiusM, q.MinConfidence, q.VerifiedOnly)

	return s.cached(ctx, key, func() Snapshot {
		return s.gather(ctx,
			func() ([]camera.Camera, error) {
				return s.cameras.AlongRoute(ctx, q.Route, q.RadiusM, q.MinConfidence, q.VerifiedOnly)
			},
			func() ([]speedlimit.SpeedLimit, error) {
				return s.speedLimits.AlongRoute(ctx, q.Route, q.RadiusM, q.MinConfidence, q.VerifiedOnly)
			},
			func() ([]hazard.Hazard, error) {
				return s.hazards.AlongRoute(ctx, q.Route, q.RadiusM, q.MinConfidence)
			})
	})
}

// cached serves from redis when possible, otherwise computes and stores the
// snapshot. Partial snapshots are never cached; the failing store should be
// retried on the next poll, not pinned for a TTL.
func (s *Service) cached(ctx context.Context, key string, compute func() Snapshot) (Snapshot, error) {
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key).Bytes(); err == nil {
			var snap Snapshot
			if json.Unmarshal(raw, &snap) == nil {
				snap.Cached = true
				return snap, nil
			}
		}
	}

	snap := compute()

	if s.cache != nil && !snap.Partial {
		if raw, err := json.Marshal(snap); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.cacheTTL).Err(); err != nil {
				log.Printf("navigation cache set error: %v", err)
			}
		}
	}
	return snap, nil
}

// gather runs the three kind queries concurrently. A validation error from
// one kind (bad radius, bad confidence) fails that section the same way a
// storage error does; the shared parameters were already shape-checked by the
// caller.
func (s *Service) gather(ctx context.Context,
	cams func() ([]camera.Camera, error),
	limits func() ([]speedlimit.SpeedLimit, error),
	hazards func() ([]hazard.Hazard, error)) Snapshot {

	var snap Snapshot
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		items, err := cams()
		if err != nil {
			log.Printf("navigation cameras query error: %v", err)
			snap.Cameras = CameraSection{Status: StatusFailed}
			return
		}
		snap.Cameras = CameraSection{Status: StatusOK, Count: len(items), Items: items}
	}()
	go func() {
		defer wg.Done()
		items, err := limits()
		if err != nil {
			log.Printf("navigation speed limits query error: %v", err)
			snap.SpeedLimits = SpeedLimitSection{Status: StatusFailed}
			return
		}
		snap.SpeedLimits = SpeedLimitSection{Status: StatusOK, Count: len(items), Items: items}
	}()
	go func() {
		defer wg.Done()
		items, err := hazards()
		if err != nil {
			log.Printf("navigation hazards query error: %v", err)
			snap.Hazards = HazardSection{Status: StatusFailed}
			return
		}
		snap.Hazards = HazardSection{Status: StatusOK, Count: len(items), Items: items}
	}()
	wg.Wait()

	snap.Partial = snap.Cameras.Status == StatusFailed ||
		snap.SpeedLimits.Status == StatusFailed ||
		snap.Hazards.Status == StatusFailed
	return snap
}
