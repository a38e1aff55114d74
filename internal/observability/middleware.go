package observability

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

const unmatchedRoute = "unmatched"

// Middleware counts every request by route pattern once the handler chain returns.
func (t *Telemetry) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Render the error here so the recorded status is the one sent.
		if err := c.Next(); err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		status := c.Response().StatusCode()

		// After Next the route is the matched handler's pattern; unmatched
		// requests still point at this middleware's "/" mount. Raw paths are
		// never used as labels.
		path := c.Route().Path
		if path == "" || (path == "/" && c.Path() != "/") {
			path = unmatchedRoute
		}
		t.HTTPRequest(c.Method(), path, status)
		return nil
	}
}

// FiberHandler exposes the scrape endpoint on a Fiber app.
func (t *Telemetry) FiberHandler() fiber.Handler {
	return adaptor.HTTPHandler(t.Handler())
}
