package http

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/auth"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/domain"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/ingest"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/observability"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/service"
)

const serviceName = "iot-live-metrics-hub"

// NewApp builds the Fiber app with request telemetry and the JSON error
// mapping every handler relies on.
func NewApp(bodyLimit int, tel *observability.Telemetry) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	app.Use(recover.New())
	app.Use(tel.Middleware())
	return app
}

func Register(app *fiber.App, svcs *service.Services, authn auth.DeviceAuthenticator) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("IoT live metrics hub")
	})
	app.Get("/health", health)
	app.Get("/metrics", svcs.Telemetry.FiberHandler())

	app.Post("/ingest", auth.Guard(authn), ingestReadings(svcs))

	app.Get("/alerts", listAlerts(svcs))
	app.Patch("/alerts/:id/resolve", resolveAlert(svcs))

	app.Get("/metrics/:deviceId/:metricName", metricRange(svcs))
}

// RegisterTelemetry mounts only the scrape and health routes.
func RegisterTelemetry(app *fiber.App, tel *observability.Telemetry) {
	app.Get("/health", health)
	app.Get("/metrics", tel.FiberHandler())
}

func health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func ingestReadings(svcs *service.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		batch, err := ingest.DecodeRequest(c.Body())
		if err != nil {
			svcs.Ingest.Reject(observability.ChannelHTTP)
			return err
		}
		// Readings are only stored under the device the guard authenticated.
		if id := auth.DeviceID(c); id != batch.DeviceID {
			svcs.Ingest.Reject(observability.ChannelHTTP)
			return domain.ErrUnauthorized
		}

		stored, err := svcs.Ingest.Ingest(c.UserContext(), observability.ChannelHTTP, batch)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"status": "ok", "stored": stored})
	}
}

func listAlerts(svcs *service.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		filter, err := alertFilter(c)
		if err != nil {
			return err
		}
		alerts, err := svcs.Alerts.Query(c.UserContext(), filter)
		if err != nil {
			return err
		}
		return c.JSON(alerts)
	}
}

func alertFilter(c *fiber.Ctx) (domain.AlertFilter, error) {
	f := domain.AlertFilter{
		DeviceID:   strings.TrimSpace(c.Query("device_id")),
		MetricName: strings.TrimSpace(c.Query("metric_name")),
	}

	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := domain.AlertStatus(strings.ToUpper(raw))
		if !status.Valid() {
			return f, domain.Invalid("status", "must be ACTIVE or RESOLVED")
		}
		f.Status = &status
	}

	var err error
	if f.From, err = optionalTime(c, "from"); err != nil {
		return f, err
	}
	if f.To, err = optionalTime(c, "to"); err != nil {
		return f, err
	}
	return f, nil
}

func optionalTime(c *fiber.Ctx, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	t, err := ingest.ParseTimestamp(raw)
	if err != nil {
		return nil, domain.Invalid(key, "must be an ISO-8601 timestamp")
	}
	return &t, nil
}

func resolveAlert(svcs *service.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		alert, err := svcs.Alerts.Resolve(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(alert)
	}
}

type point struct {
	TS    time.Time `json:"ts"`
	Value float64   `json:"value"`
}

func metricRange(svcs *service.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		deviceID := c.Params("deviceId")
		metricName := strings.ToLower(c.Params("metricName"))

		from, err := optionalTime(c, "from")
		if err != nil {
			return err
		}
		to, err := optionalTime(c, "to")
		if err != nil {
			return err
		}
		if from == nil || to == nil {
			return domain.Invalid("from/to", "both bounds are required")
		}

		readings, err := svcs.Metrics.Range(c.UserContext(), deviceID, metricName, *from, *to)
		if err != nil {
			return err
		}

		points := make([]point, 0, len(readings))
		for _, r := range readings {
			points = append(points, point{TS: r.Timestamp, Value: r.Value})
		}
		return c.JSON(fiber.Map{
			"device_id":   deviceID,
			"metric_name": metricName,
			"points":      points,
		})
	}
}

// errorHandler renders every failure as {"error": "..."}.
func errorHandler(c *fiber.Ctx, err error) error {
	code, msg := statusFor(err)
	if code >= fiber.StatusInternalServerError {
		log.Error().Err(err).Str("method", c.Method()).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}

func statusFor(err error) (int, string) {
	var fe *fiber.Error
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &fe):
		return fe.Code, fe.Message
	case errors.As(err, &ve):
		return fiber.StatusBadRequest, ve.Error()
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, "alert not found"
	case errors.Is(err, domain.ErrUnauthorized):
		return fiber.StatusUnauthorized, "invalid device credentials"
	default:
		return fiber.StatusInternalServerError, "internal server error"
	}
}
