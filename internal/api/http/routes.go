package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/rs/zerolog/log"

	"github.com/i474232898/ambient-history-cache/internal/metrics"
	"github.com/i474232898/ambient-history-cache/internal/settings"
	"github.com/i474232898/ambient-history-cache/internal/weather"
)

var validate = validator.New()

// Deps bundles what the handlers need.
type Deps struct {
	Service      *weather.Service
	Settings     *settings.FileStore
	Metrics      *metrics.Metrics
	PatternTimes []weather.PatternTime
	// Now defaults to time.Now.
	Now func() time.Time
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	if d.Now == nil {
		d.Now = time.Now
	}
	if len(d.PatternTimes) == 0 {
		d.PatternTimes = weather.DefaultPatternTimes
	}

	if d.Metrics != nil {
		app.Use(requestMetrics(d.Metrics))
		app.Get("/metrics", adaptor.HTTPHandler(d.Metrics.Handler()))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	v1 := app.Group("/api/v1")

	v1.Get("/readings/current", func(c *fiber.Ctx) error {
		reading, err := d.Service.Current(c.UserContext())
		if err != nil {
			if errors.Is(err, weather.ErrNoData) {
				return fiber.NewError(fiber.StatusInternalServerError, "no data available from weather station")
			}
			return err
		}
		cfg, err := d.Settings.Get()
		if err != nil {
			return err
		}
		return c.JSON(currentView(reading, cfg))
	})

	v1.Get("/readings/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c, d.Now()); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		readings, err := d.Service.GetRange(c.UserContext(), req.Start, req.End)
		if err != nil {
			return err
		}
		cfg, err := d.Settings.Get()
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"range":    req.Range,
			"start":    req.Start,
			"end":      req.End,
			"count":    len(readings),
			"sensors":  cfg.Sensors,
			"readings": readings,
			"series":   weather.TemperatureSeries(readings, cfg.EnabledIDs()),
		})
	})

	v1.Get("/patterns", func(c *fiber.Ctx) error {
		req := patternQuery{Months: 1, Time: d.PatternTimes[0].Name}
		if err := c.QueryParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		slot := weather.FindPatternTime(d.PatternTimes, req.Time)
		readings, err := d.Service.DailyPattern(c.UserContext(), req.Months, slot.Hour, slot.Minute)
		if err != nil {
			return err
		}

		body := fiber.Map{
			"months": req.Months,
			"time":   slot,
			"times":  d.PatternTimes,
			"count":  len(readings),
			"points": weather.PatternPoints(readings, d.Service.Location()),
		}
		if len(readings) == 0 {
			body["error"] = "No data found for the specified time period"
		}
		return c.JSON(body)
	})

	v1.Get("/settings", func(c *fiber.Ctx) error {
		cfg, err := d.Settings.Get()
		if err != nil {
			return err
		}
		return c.JSON(cfg)
	})

	v1.Post("/settings", func(c *fiber.Ctx) error {
		var next settings.Settings
		if err := c.BodyParser(&next); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid settings document")
		}
		saved, err := d.Settings.Save(next)
		if err != nil {
			return err
		}
		return c.JSON(saved)
	})
}

// ErrorHandler maps domain errors to status codes and renders them as JSON.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := err.Error()

	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
		msg = fe.Message
	case errors.Is(err, weather.ErrInvalidArgument):
		code = fiber.StatusBadRequest
	}

	if code >= fiber.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}

func requestMetrics(m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
			if errors.Is(err, weather.ErrInvalidArgument) {
				status = fiber.StatusBadRequest
			}
		}
		route := c.Route().Path
		m.ObserveRequest(route, status, time.Since(start))
		return err
	}
}

type sensorView struct {
	Sensor    int      `json:"sensor"`
	Name      string   `json:"name"`
	Enabled   bool     `json:"enabled"`
	Temp      *float64 `json:"temp"`
	Humidity  *float64 `json:"humidity"`
	FeelsLike *float64 `json:"feelsLike"`
	DewPoint  *float64 `json:"dewPoint"`
	Battery   bool     `json:"battery"`
}

func currentView(r weather.Reading, cfg settings.Settings) fiber.Map {
	sensors := make([]sensorView, 0, len(cfg.Sensors))
	for _, s := range cfg.Sensors {
		v := sensorView{Sensor: s.ID, Name: s.Name, Enabled: s.Enabled}
		v.Temp = optional(r.TempF(s.ID))
		v.Humidity = optional(r.Humidity(s.ID))
		v.FeelsLike = optional(r.FeelsLike(s.ID))
		v.DewPoint = optional(r.DewPoint(s.ID))
		v.Battery, _ = r.Battery(s.ID)
		sensors = append(sensors, v)
	}
	return fiber.Map{
		"lastUpdate":  r.Date,
		"outdoorTemp": optional(r.OutdoorTempF()),
		"sensors":     sensors,
	}
}

func optional(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}

// historyQuery holds query parameters for the history endpoint. Either a
// preset range or an explicit start/end pair is accepted.
type historyQuery struct {
	Range string
	Start time.Time `validate:"required"`
	End   time.Time `validate:"required,gtefield=Start"`
}

func (h *historyQuery) bind(c *fiber.Ctx, now time.Time) error {
	startStr, endStr := c.Query("start"), c.Query("end")
	if startStr == "" && endStr == "" {
		h.Start, h.End, h.Range = weather.PresetRange(c.Query("range", weather.Range24h), now)
		return nil
	}
	if startStr == "" || endStr == "" {
		return errors.New("start and end query parameters must be given together")
	}

	start, err := parseTime(startStr)
	if err != nil {
		return err
	}
	end, err := parseTime(endStr)
	if err != nil {
		return err
	}
	h.Start, h.End = start, end
	return nil
}

type patternQuery struct {
	Months int    `query:"months" validate:"min=1,max=12"`
	Time   string `query:"time" validate:"required"`
}

// parseTime tries to parse either RFC3339 or Unix milliseconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix milliseconds")
}
