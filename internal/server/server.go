package server

import (
	"time"

	"github.com/Rathesh0709/speed-camera-detector-backend/internal/camera"
	"github.com/Rathesh0709/speed-camera-detector-backend/internal/config"
	"github.com/Rathesh0709/speed-camera-detector-backend/internal/hazard"
	"github.com/Rathesh0709/speed-camera-detector-backend/internal/importer"
	"github.com/Rathesh0709/speed-camera-detector-backend/internal/navigation"
	"github.com/Rathesh0709/speed-camera-detector-backend/internal/speedlimit"
	"github.com/Rathesh0709/speed-camera-detector-backend/internal/stream"
	"github.com/Rathesh0709/speed-camera-detector-backend/internal/verify"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Stream *stream.Hub
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     db,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient),
	}

	registerRoutes(s)
	return s
}

func verifyConfig(cfg config.Config) verify.Config {
	vcfg := verify.DefaultConfig()
	if cfg.VerifyMinReports > 0 {
		vcfg.MinReports = cfg.VerifyMinReports
	}
	if cfg.VerifyMinRatio > 0 {
		vcfg.MinConfirmRatio = cfg.VerifyMinRatio
	}
	if cfg.RemovalPolicy != "" {
		vcfg.Removal = verify.RemovalPolicy(cfg.RemovalPolicy)
	}
	return vcfg
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	vcfg := verifyConfig(s.Cfg)
	maxRadius := s.Cfg.MaxRadiusM
	if maxRadius <= 0 {
		maxRadius = 10000
	}

	cameras := camera.NewService(s.DB, vcfg, maxRadius)
	speedLimits := speedlimit.NewService(s.DB, vcfg, maxRadius)
	hazards := hazard.NewService(s.DB, s.Stream, maxRadius)
	nav := navigation.NewService(cameras, speedLimits, hazards, s.Redis,
		time.Duration(s.Cfg.NavCacheTTLSeconds)*time.Second)

	camera.RegisterRoutes(s.App.Group("/cameras"), cameras)
	speedlimit.RegisterRoutes(s.App.Group("/speed-limits"), speedLimits)
	hazard.RegisterRoutes(s.App.Group("/hazards"), hazards)
	navigation.RegisterRoutes(s.App.Group("/navigation"), nav)
	importer.RegisterRoutes(s.App.Group("/import"), importer.NewService(s.DB))
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}
