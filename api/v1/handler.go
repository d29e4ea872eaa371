package v1

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"folioscope/internal/analytics"
	"folioscope/internal/events"
	"folioscope/internal/fingerprint"
	"folioscope/internal/geo"
	"folioscope/internal/sessions"
	"folioscope/internal/settings"
)

const (
	errInvalidRequest = "Invalid request"

	codeSessionNotFound  = "SESSION_NOT_FOUND"
	codeInvalidEventType = "INVALID_EVENT_TYPE"
	codeStoreUnavailable = "STORE_UNAVAILABLE"
)

// CreateSessionParams is the session creation payload sent by the collector.
// Classification fields the client omits are filled server-side from the
// request headers.
type CreateSessionParams struct {
	SessionID        string `json:"session_id"`
	LandingPage      string `json:"landing_page"`
	LandingMode      string `json:"landing_mode"`
	Referrer         string `json:"referrer"`
	ReferrerSource   string `json:"referrer_source"`
	Query            string `json:"query"`
	UTMSource        string `json:"utm_source"`
	UTMMedium        string `json:"utm_medium"`
	UTMCampaign      string `json:"utm_campaign"`
	UserAgent        string `json:"user_agent"`
	DeviceType       string `json:"device_type"`
	Browser          string `json:"browser"`
	OS               string `json:"os"`
	ScreenResolution string `json:"screen_resolution"`
}

// CreateEventParams is the event submission payload.
type CreateEventParams struct {
	SessionID     string                 `json:"session_id"`
	EventType     string                 `json:"event_type"`
	EventCategory string                 `json:"event_category"`
	EventLabel    string                 `json:"event_label"`
	EventValue    *int                   `json:"event_value"`
	PortfolioMode string                 `json:"portfolio_mode"`
	PageURL       string                 `json:"page_url"`
	ReferrerURL   string                 `json:"referrer_url"`
	TargetType    string                 `json:"target_type"`
	TargetID      string                 `json:"target_id"`
	Metadata      map[string]interface{} `json:"metadata"`
}

// CreateSessionHandler returns the POST session handler bound to the given
// IP resolver.
func CreateSessionHandler(resolver geo.Resolver) func(*cartridge.Context) error {
	return func(ctx *cartridge.Context) error {
		var params CreateSessionParams
		if err := ctx.Ctx.BodyParser(&params); err != nil {
			ctx.Logger.Debug("Failed to parse session request", slog.Any("error", err))
			return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": errInvalidRequest})
		}

		userAgent := params.UserAgent
		if userAgent == "" {
			userAgent = ctx.Get("User-Agent")
		}
		referrer := params.Referrer
		if referrer == "" {
			referrer = ctx.Get("Referer")
		}

		clientIP := getClientIP(ctx.Ctx)

		// The operator's own traffic is acknowledged but never stored.
		if excluded, err := settings.IsIPExcluded(clientIP); err != nil {
			ctx.Logger.Error("Error checking IP exclusion", slog.Any("error", err))
		} else if excluded {
			token := params.SessionID
			if token == "" {
				token = sessions.IssueToken()
			}
			ctx.Logger.Debug("Skipping session for excluded IP", slog.String("ip", clientIP))
			return ctx.Status(http.StatusCreated).JSON(fiber.Map{"session_id": token})
		}

		// Fill anything the client did not classify itself.
		fp := fingerprint.Collect(fingerprint.Input{
			UserAgent:   userAgent,
			ReferrerURL: referrer,
			Query:       params.Query,
		})
		input := &sessions.StartInput{
			Token:            params.SessionID,
			LandingPage:      params.LandingPage,
			LandingMode:      params.LandingMode,
			ReferrerSource:   firstNonEmpty(params.ReferrerSource, fp.ReferrerSource),
			UTMSource:        firstNonEmpty(params.UTMSource, fp.UTMSource),
			UTMMedium:        firstNonEmpty(params.UTMMedium, fp.UTMMedium),
			UTMCampaign:      firstNonEmpty(params.UTMCampaign, fp.UTMCampaign),
			UserAgent:        userAgent,
			DeviceType:       firstNonEmpty(params.DeviceType, fp.DeviceType),
			Browser:          firstNonEmpty(params.Browser, fp.Browser),
			OperatingSystem:  firstNonEmpty(params.OS, fp.OperatingSystem),
			ScreenResolution: params.ScreenResolution,
			IPAddress:        clientIP,
			Country:          resolver.Country(clientIP),
			Organization:     resolver.Organization(clientIP),
		}

		session, err := sessions.StartOrResume(ctx.DBManager, ctx.Logger, input)
		if err != nil {
			if isStoreUnavailable(err) {
				return storeUnavailable(ctx)
			}
			ctx.Logger.Error("Failed to start session", slog.Any("error", err))
			return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to start session",
				"code":  "SESSION_ERROR",
			})
		}

		return ctx.Status(http.StatusCreated).JSON(fiber.Map{"session_id": session.Token})
	}
}

// PatchSessionParams is the partial counter-delta map applied to a session.
type PatchSessionParams struct {
	PageViews        int    `json:"page_views"`
	ProjectsViewed   int    `json:"projects_viewed"`
	BlogPostsViewed  int    `json:"blog_posts_viewed"`
	ModeSwitches     int    `json:"mode_switches"`
	LastMode         string `json:"last_mode"`
	ContactSubmitted bool   `json:"contact_submitted"`
	CVDownloaded     bool   `json:"cv_downloaded"`
}

// PatchSessionHandler applies counter deltas to an existing session.
func PatchSessionHandler(ctx *cartridge.Context) error {
	token := ctx.Params("token")

	var params PatchSessionParams
	if err := ctx.Ctx.BodyParser(&params); err != nil {
		ctx.Logger.Debug("Failed to parse session patch", slog.Any("error", err))
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": errInvalidRequest})
	}

	delta := &sessions.ActivityDelta{
		PageViews:        params.PageViews,
		ProjectsViewed:   params.ProjectsViewed,
		BlogPostsViewed:  params.BlogPostsViewed,
		ModeSwitches:     params.ModeSwitches,
		LastMode:         params.LastMode,
		ContactSubmitted: params.ContactSubmitted,
		CVDownloaded:     params.CVDownloaded,
	}
	if err := delta.Validate(); err != nil {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if err := sessions.ApplyActivity(ctx.DBManager, ctx.Logger, token, delta); err != nil {
		var notFound *sessions.SessionNotFoundError
		if errors.As(err, &notFound) {
			return ctx.Status(http.StatusNotFound).JSON(fiber.Map{
				"error": "Session not found",
				"code":  codeSessionNotFound,
			})
		}
		if isStoreUnavailable(err) {
			return storeUnavailable(ctx)
		}
		ctx.Logger.Error("Failed to patch session", slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update session",
			"code":  "SESSION_ERROR",
		})
	}

	return ctx.SendStatus(http.StatusNoContent)
}

// CreateEventHandler validates and records one interaction event.
func CreateEventHandler(ctx *cartridge.Context) error {
	params, err := parseEventParams(ctx)
	if err != nil {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": errInvalidRequest})
	}

	if excluded, err := settings.IsIPExcluded(getClientIP(ctx.Ctx)); err != nil {
		ctx.Logger.Error("Error checking IP exclusion", slog.Any("error", err))
	} else if excluded {
		return ctx.SendStatus(http.StatusAccepted)
	}

	if _, err := events.Record(ctx.DBManager, ctx.Logger, eventInputFromParams(params)); err != nil {
		return eventError(ctx, err)
	}

	return ctx.Status(http.StatusAccepted).JSON(fiber.Map{
		"message": "Event recorded",
		"status":  http.StatusAccepted,
	})
}

// CreateEventBeaconHandler handles events sent via navigator.sendBeacon on
// page unload. Beacon requests always get 202: the browser never retries and
// the page must not observe a failure.
func CreateEventBeaconHandler(ctx *cartridge.Context) error {
	params, err := parseEventParams(ctx)
	if err != nil {
		ctx.Logger.Debug("Failed to parse beacon request", slog.Any("error", err))
		return ctx.SendStatus(http.StatusAccepted)
	}

	if excluded, err := settings.IsIPExcluded(getClientIP(ctx.Ctx)); err == nil && excluded {
		return ctx.SendStatus(http.StatusAccepted)
	}

	if _, err := events.Record(ctx.DBManager, ctx.Logger, eventInputFromParams(params)); err != nil {
		ctx.Logger.Error("Failed to record beacon event",
			slog.String("event_type", params.EventType),
			slog.Any("error", err))
	}

	return ctx.SendStatus(http.StatusAccepted)
}

// GetSocialAnalyticsHandler reports all-time share-intent counts per platform.
func GetSocialAnalyticsHandler(ctx *cartridge.Context) error {
	db := ctx.DBManager.GetConnection()

	stats, err := analytics.GetShareCounts(db, nil)
	if err != nil {
		ctx.Logger.Error("Failed to fetch share counts", slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch share analytics",
			"code":  "AGGREGATION_ERROR",
		})
	}

	platformStats := make([]fiber.Map, len(stats))
	for i, stat := range stats {
		entry := fiber.Map{
			"platform": stat.Platform,
			"shares":   stat.Shares,
		}
		if !stat.LastShare.IsZero() {
			entry["last_share"] = stat.LastShare.Format(time.RFC3339)
		}
		platformStats[i] = entry
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{
		"total_shares":   analytics.TotalShares(stats),
		"platform_stats": platformStats,
	})
}

func parseEventParams(ctx *cartridge.Context) (*CreateEventParams, error) {
	var params CreateEventParams
	// Beacon payloads arrive as text/plain, so parse the raw body as JSON.
	if err := ctx.Ctx.BodyParser(&params); err != nil {
		return nil, err
	}
	return &params, nil
}

func eventInputFromParams(params *CreateEventParams) *events.RecordInput {
	return &events.RecordInput{
		SessionToken: params.SessionID,
		EventType:    events.Type(params.EventType),
		Category:     params.EventCategory,
		Label:        params.EventLabel,
		Value:        params.EventValue,
		Mode:         params.PortfolioMode,
		PageURL:      params.PageURL,
		ReferrerURL:  params.ReferrerURL,
		TargetType:   params.TargetType,
		TargetID:     params.TargetID,
		Metadata:     params.Metadata,
	}
}

func eventError(ctx *cartridge.Context, err error) error {
	var invalidType *events.InvalidEventTypeError
	if errors.As(err, &invalidType) {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": invalidType.Error(),
			"code":  codeInvalidEventType,
		})
	}

	var notFound *sessions.SessionNotFoundError
	if errors.As(err, &notFound) {
		return ctx.Status(http.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
			"code":  codeSessionNotFound,
		})
	}

	if isStoreUnavailable(err) {
		return storeUnavailable(ctx)
	}

	ctx.Logger.Error("Failed to record event", slog.Any("error", err))
	return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to record event",
		"code":  "RECORDING_ERROR",
	})
}

// isStoreUnavailable detects SQLite contention errors the client may retry.
func isStoreUnavailable(err error) bool {
	if err == nil {
		return false
	}
	message := err.Error()
	return strings.Contains(message, "database is locked") || strings.Contains(message, "busy")
}

func storeUnavailable(ctx *cartridge.Context) error {
	return ctx.Status(http.StatusServiceUnavailable).JSON(fiber.Map{
		"error": "Telemetry store temporarily unavailable",
		"code":  codeStoreUnavailable,
	})
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
