package internal

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"statlens/internal/config"
	statshttp "statlens/internal/http"
)

// statsCORSConfig is the CORS configuration for the stats API. Dashboards are
// expected to be embedded cross-origin, so reads are open.
var statsCORSConfig = cors.Config{
	AllowOrigins: "*",
	AllowMethods: "GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization",
}

// NewRouter builds the fiber application with all stats routes mounted.
func NewRouter(cfg *config.Config, stats *statshttp.StatsHandler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		DisableStartupMessage: cfg.IsProduction(),
	})

	app.Use(recover.New())
	app.Use(cors.New(statsCORSConfig))

	app.Get("/_health", healthAction)
	app.Head("/_health", healthAction)

	// === STATS API ROUTES ===
	api := app.Group("/api/v1/stats/:domain")
	api.Get("/top-stats", stats.TopStats)
	api.Get("/timeseries", stats.Timeseries)
	api.Get("/breakdown/:dimension", stats.Breakdown)
	api.Get("/current-visitors", stats.CurrentVisitors)
	api.Get("/custom-prop-values", stats.Props)
	api.Get("/suggestions/:filter_name", stats.Suggestions)

	return app
}

func healthAction(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
