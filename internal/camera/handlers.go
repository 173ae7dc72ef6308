package camera

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
		verifiedOnly := c.Query("verified_only") == "true"

		cams, err := svc.Nearby(c.Context(), geo.Point{Lat: lat, Lng: lng}, radius, minConfidence, verifiedOnly)
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(fiber.Map{"cameras": cams, "count": len(cams)})
	})

	r.Post("/along-route", func(c *fiber.Ctx) error {
		var body struct {
			Route         []geo.Point `json:"route"`
			BufferM       float64     `json:"buffer_m"`
			MinConfidence float64     `json:"min_confidence"`
			VerifiedOnly  bool        `json:"verified_only"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if body.BufferM == 0 {
			body.BufferM = 100
		}
		cams, err := svc.AlongRoute(c.Context(), body.Route, body.BufferM, body.MinConfidence, body.VerifiedOnly)
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(fiber.Map{"cameras": cams, "count": len(cams)})
	})

	r.Post("/", func(c *fiber.Ctx) error {
		var req NewCamera
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		cam, err := svc.Create(c.Context(), req)
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.Status(fiber.StatusCreated).JSON(cam)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		cam, err := svc.Get(c.Context(), c.Params("id"))
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(cam)
	})

	r.Delete("/:id", func(c *fiber.Ctx) error {
		if err := svc.Delete(c.Context(), c.Params("id")); err != nil {
			return apperr.Fiber(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/:id/reports", func(c *fiber.Ctx) error {
		var req Report
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		req.CameraID = c.Params("id")
		res, err := svc.SubmitReport(c.Context(), req)
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	})

	r.Get("/:id/reports", func(c *fiber.Ctx) error {
		reports, err := svc.Reports(c.Context(), c.Params("id"))
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(fiber.Map{"reports": reports, "count": len(reports)})
	})
}
