package hazard

import (
	"strconv"

	"github.com/Rathesh0709/speed-camera-detector-backend/internal/shared/apperr"
	"github.com/Rathesh0709/speed-camera-detector-backend/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Get("/nearby", func(c *fiber.Ctx) error {
		lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
		lng, err2 := strconv.ParseFloat(c.Query("lng"), 64)
		if err1 != nil || err2 != nil {
			return fiber.NewError(fiber.StatusBadRequest, "lat and lng required")
		}
		radius, _ := strconv.ParseFloat(c.Query("radius_m", "1000"), 64)
		minConfidence, _ := strconv.ParseFloat(c.Query("min_confidence", "0"), 64)

		hazards, err := svc.Nearby(c.Context(), geo.Point{Lat: lat, Lng: lng}, radius, minConfidence)
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(fiber.Map{"hazards": hazards, "count": len(hazards)})
	})

	r.Post("/along-route", func(c *fiber.Ctx) error {
		var body struct {
			Route         []geo.Point `json:"route"`
			BufferM       float64     `json:"buffer_m"`
			MinConfidence float64     `json:"min_confidence"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if body.BufferM == 0 {
			body.BufferM = 100
		}
		hazards, err := svc.AlongRoute(c.Context(), body.Route, body.BufferM, body.MinConfidence)
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(fiber.Map{"hazards": hazards, "count": len(hazards)})
	})

	// Detection events from the inference pipeline land here.
	r.Post("/", func(c *fiber.Ctx) error {
		var req Detection
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		h, err := svc.Create(c.Context(), req)
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.Status(fiber.StatusCreated).JSON(h)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		h, err := svc.Get(c.Context(), c.Params("id"))
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(h)
	})

	r.Post("/:id/resolve", func(c *fiber.Ctx) error {
		if err := svc.Resolve(c.Context(), c.Params("id")); err != nil {
			return apperr.Fiber(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/deactivate-expired", func(c *fiber.Ctx) error {
		n, err := svc.DeactivateExpired(c.Context())
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(fiber.Map{"deactivated": n})
	})
}
