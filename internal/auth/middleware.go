package auth

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/domain"
)

// LocalsDeviceID is the fiber Locals key holding the authenticated device.
const LocalsDeviceID = "device_id"

// Guard authenticates ingest requests from the Bearer token and the
// device_id in the JSON body before the handler sees them.
func Guard(a DeviceAuthenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := bearerToken(c.Get(fiber.HeaderAuthorization))

		var body struct {
			DeviceID string `json:"device_id"`
		}
		_ = json.Unmarshal(c.Body(), &body)
		deviceID := strings.TrimSpace(body.DeviceID)

		if err := a.Authenticate(c.UserContext(), deviceID, key); err != nil {
			if errors.Is(err, domain.ErrUnauthorized) {
				log.Warn().Str("device_id", deviceID).Str("path", c.Path()).Msg("device authentication failed")
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid device credentials"})
			}
			log.Error().Err(err).Str("device_id", deviceID).Msg("device authentication error")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "authentication unavailable"})
		}

		c.Locals(LocalsDeviceID, deviceID)
		return c.Next()
	}
}

// DeviceID returns the identity Guard accepted for this request.
func DeviceID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalsDeviceID).(string)
	return id
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
