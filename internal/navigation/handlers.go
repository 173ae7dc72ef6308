package navigation

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
		verifiedOnly := c.QueryBool("verified_only")

		snap, err := svc.Nearby(c.Context(), Query{
			Center:        geo.Point{Lat: lat, Lng: lng},
			RadiusM:       radius,
			MinConfidence: minConfidence,
			VerifiedOnly:  verifiedOnly,
		})
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(snap)
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
		snap, err := svc.AlongRoute(c.Context(), Query{
			Route:         body.Route,
			RadiusM:       body.BufferM,
			MinConfidence: body.MinConfidence,
			VerifiedOnly:  body.VerifiedOnly,
		})
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(snap)
	})
}
