package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/matryer/is"

	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/auth"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/domain"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/observability"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/repository"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/service"
)

const testKey = "secret"

func setup(t *testing.T) (*fiber.App, *repository.Repos) {
	t.Helper()
	repos := repository.NewMemory()
	tel := observability.New()
	svcs := service.New(repos, tel, service.Options{})

	app := NewApp(1<<20, tel)
	Register(app, svcs, auth.StaticKey{Key: testKey})
	return app, repos
}

func do(t *testing.T, app *fiber.App, method, target, body string) (int, map[string]any, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+testKey)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := io.ReadAll(resp.Body)

	var obj map[string]any
	_ = json.Unmarshal(raw, &obj)
	return resp.StatusCode, obj, raw
}

func TestIngestAlertResolveScenario(t *testing.T) {
	is := is.New(t)
	app, repos := setup(t)
	limit := 30.0
	_, err := repos.Rules.Create(context.Background(), domain.Rule{
		DeviceID: "D", MetricName: "t", Type: domain.RuleMax, MaxValue: &limit, Enabled: true,
	})
	is.NoErr(err)

	code, body, _ := do(t, app, "POST", "/ingest", `{"device_id":"D","metrics":[{"name":"t","value":35}]}`)
	is.Equal(code, fiber.StatusCreated)
	is.Equal(body["status"], "ok")
	is.Equal(body["stored"], 1.0)

	code, _, raw := do(t, app, "GET", "/alerts?status=ACTIVE&device_id=D", "")
	is.Equal(code, 200)
	var alerts []map[string]any
	is.NoErr(json.Unmarshal(raw, &alerts))
	is.Equal(len(alerts), 1)
	is.Equal(alerts[0]["deviceId"], "D")
	is.Equal(alerts[0]["metricName"], "t")
	is.Equal(alerts[0]["value"], 35.0)
	is.Equal(alerts[0]["status"], "ACTIVE")
	is.Equal(alerts[0]["resolvedAt"], nil)

	id := alerts[0]["id"].(string)
	code, resolved, _ := do(t, app, "PATCH", "/alerts/"+id+"/resolve", "")
	is.Equal(code, 200)
	is.Equal(resolved["status"], "RESOLVED")
	is.True(resolved["resolvedAt"] != nil)

	_, _, raw = do(t, app, "GET", "/alerts?status=ACTIVE&device_id=D", "")
	is.NoErr(json.Unmarshal(raw, &alerts))
	is.Equal(len(alerts), 0)
}

func TestIngestRejectsInvalidBatches(t *testing.T) {
	is := is.New(t)
	app, repos := setup(t)

	for _, body := range []string{
		`{"device_id":"D","metrics":[]}`,
		`{"device_id":"D","metrics":[{"name":"t","value":"hot"}]}`,
		`{"device_id":"D","metrics":[{"name":"t","value":1,"ts":"not-a-date"}]}`,
		`{"device_id":"D","metrics":[{"name":"t","value":1},{"value":2}]}`,
	} {
		code, resp, _ := do(t, app, "POST", "/ingest", body)
		is.Equal(code, fiber.StatusBadRequest)
		is.True(resp["error"] != nil)
	}

	got, _ := repos.Readings.Query(context.Background(), "D", "t", time.Time{}, time.Now().Add(time.Hour))
	is.Equal(len(got), 0)
}

func TestIngestRequiresDeviceCredentials(t *testing.T) {
	is := is.New(t)
	app, _ := setup(t)

	req := httptest.NewRequest("POST", "/ingest", strings.NewReader(`{"device_id":"D","metrics":[{"name":"t","value":1}]}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err := app.Test(req, -1)
	is.NoErr(err)
	is.Equal(resp.StatusCode, fiber.StatusUnauthorized)

	req = httptest.NewRequest("POST", "/ingest", strings.NewReader(`{"device_id":"D","metrics":[{"name":"t","value":1}]}`))
	resp, err = app.Test(req, -1)
	is.NoErr(err)
	is.Equal(resp.StatusCode, fiber.StatusUnauthorized)
}

func TestIngestStoresOnlyUnderAuthenticatedDevice(t *testing.T) {
	is := is.New(t)
	repos := repository.NewMemory()
	tel := observability.New()
	svcs := service.New(repos, tel, service.Options{})

	app := NewApp(1<<20, tel)
	app.Post("/ingest", func(c *fiber.Ctx) error {
		c.Locals(auth.LocalsDeviceID, "E")
		return c.Next()
	}, ingestReadings(svcs))

	code, resp, _ := do(t, app, "POST", "/ingest", `{"device_id":"D","metrics":[{"name":"t","value":1}]}`)
	is.Equal(code, fiber.StatusUnauthorized)
	is.True(resp["error"] != nil)

	for _, device := range []string{"D", "E"} {
		got, _ := repos.Readings.Query(context.Background(), device, "t", time.Time{}, time.Now().Add(time.Hour))
		is.Equal(len(got), 0)
	}

	code, _, _ = do(t, app, "POST", "/ingest", `{"device_id":"E","metrics":[{"name":"t","value":1}]}`)
	is.Equal(code, fiber.StatusCreated)
}

func TestAlertQueryValidation(t *testing.T) {
	is := is.New(t)
	app, _ := setup(t)

	code, _, _ := do(t, app, "GET", "/alerts?from=2025-11-25T00:00:00Z&to=2025-11-24T00:00:00Z", "")
	is.Equal(code, fiber.StatusBadRequest)

	code, _, _ = do(t, app, "GET", "/alerts?status=OPEN", "")
	is.Equal(code, fiber.StatusBadRequest)

	code, _, _ = do(t, app, "GET", "/alerts?from=yesterday", "")
	is.Equal(code, fiber.StatusBadRequest)

	code, _, raw := do(t, app, "GET", "/alerts", "")
	is.Equal(code, 200)
	is.Equal(strings.TrimSpace(string(raw)), "[]")
}

func TestResolveUnknownAlertIsNotFound(t *testing.T) {
	is := is.New(t)
	app, _ := setup(t)

	code, body, _ := do(t, app, "PATCH", "/alerts/does-not-exist/resolve", "")
	is.Equal(code, fiber.StatusNotFound)
	is.True(body["error"] != nil)
}

func TestMetricRange(t *testing.T) {
	is := is.New(t)
	app, repos := setup(t)
	ts := time.Date(2025, 11, 24, 10, 0, 0, 0, time.UTC)
	is.NoErr(repos.Readings.Append(context.Background(), []domain.Reading{
		{DeviceID: "D", MetricName: "temperature", Timestamp: ts.Add(time.Minute), Value: 2},
		{DeviceID: "D", MetricName: "temperature", Timestamp: ts, Value: 1},
	}))

	code, body, _ := do(t, app, "GET", "/metrics/D/Temperature?from=2025-11-24T10:00:00Z&to=2025-11-24T10:01:00Z", "")
	is.Equal(code, 200)
	is.Equal(body["device_id"], "D")
	is.Equal(body["metric_name"], "temperature")
	points := body["points"].([]any)
	is.Equal(len(points), 2)
	is.Equal(points[0].(map[string]any)["value"], 1.0)

	code, _, _ = do(t, app, "GET", "/metrics/D/temperature?from=2025-11-24T10:00:00Z", "")
	is.Equal(code, fiber.StatusBadRequest)

	code, _, _ = do(t, app, "GET", "/metrics/D/temperature?from=2025-11-24T11:00:00Z&to=2025-11-24T10:00:00Z", "")
	is.Equal(code, fiber.StatusBadRequest)
}

func TestHealthAndScrape(t *testing.T) {
	is := is.New(t)
	app, _ := setup(t)

	code, body, _ := do(t, app, "GET", "/health", "")
	is.Equal(code, 200)
	is.Equal(body["status"], "ok")
	is.Equal(body["service"], serviceName)

	code, _, raw := do(t, app, "GET", "/metrics", "")
	is.Equal(code, 200)
	is.True(strings.Contains(string(raw), "http_requests_total"))
}
