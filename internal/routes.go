package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "folioscope/api/v1"
	"folioscope/internal/config"
	"folioscope/internal/geo"
	"folioscope/internal/http"
)

// publicCORSConfig is shared by every public endpoint. The collector runs on
// the portfolio's origin, which may differ from the pipeline's.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,PATCH,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Referrer, User-Agent",
}

// MountAppRoutes mounts all routes. The resolver is injected here so tests
// can swap in a stub without touching global state.
func MountAppRoutes(srv *cartridge.Server, resolver geo.Resolver) {
	cfg := config.GetConfig()

	// Rate limiting only bites in production; in development and test it
	// would interfere with local iteration.
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// 70/min per IP is roughly 1.2 req/sec, enough for a visitor browsing
	// the portfolio while keeping scripted abuse out.
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(70),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Ingestion config: CORS first so rejected requests still carry CORS
	// headers, then rate limiting.
	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		WriteConcurrency: false,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	collectorConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	noContent := func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}

	// === HEALTH ===
	srv.Get("/_health", http.HealthIndexAction)
	srv.Head("/_health", http.HealthIndexAction)

	// === SESSION LIFECYCLE ===
	srv.Post("/x/api/v1/session", v1.CreateSessionHandler(resolver), publicAPIConfig)
	srv.Options("/x/api/v1/session", noContent, publicAPIConfig)
	srv.Patch("/x/api/v1/session/:token", v1.PatchSessionHandler, publicAPIConfig)
	srv.Options("/x/api/v1/session/:token", noContent, publicAPIConfig)

	// === EVENT INGESTION ===
	srv.Post("/x/api/v1/events", v1.CreateEventHandler, publicAPIConfig)
	srv.Options("/x/api/v1/events", noContent, publicAPIConfig)
	srv.Post("/x/api/v1/events/beacon", v1.CreateEventBeaconHandler, publicAPIConfig)
	srv.Options("/x/api/v1/events/beacon", noContent, publicAPIConfig)

	// === PUBLIC ANALYTICS ===
	srv.Get("/x/api/v1/social-analytics", v1.GetSocialAnalyticsHandler, publicAPIConfig)
	srv.Options("/x/api/v1/social-analytics", noContent, publicAPIConfig)

	// === COLLECTOR DELIVERY ===
	srv.Get("/y/api/v1/collector.js", v1.GetCollectorAction, collectorConfig)

	// === DASHBOARD ===
	dashboardConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
	}
	srv.Get("/api/v1/dashboard", http.GetDashboardAction, dashboardConfig)
}
