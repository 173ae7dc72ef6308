package importer

import (
	"github.com/Rathesh0709/speed-camera-detector-backend/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Post("/cameras", func(c *fiber.Ctx) error {
		var records []CameraRecord
		if err := c.BodyParser(&records); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		summary, err := svc.ImportCameras(c.Context(), records)
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(summary)
	})

	r.Post("/speed-limits", func(c *fiber.Ctx) error {
		var records []SpeedLimitRecord
		if err := c.BodyParser(&records); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		summary, err := svc.ImportSpeedLimits(c.Context(), records)
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(summary)
	})
}
