package http

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"folioscope/internal/analytics"
	"folioscope/internal/geo"
	"folioscope/internal/pkg/async"
	"folioscope/internal/timeframe"
)

const (
	topProjectsLimit       = 10
	organizationLimit      = 20
	dashboardWorkers       = 6
	dashboardQueryDeadline = 10 * time.Second
)

type DashboardResponse struct {
	Views             ViewStats          `json:"views"`
	Visitors          VisitorBreakdown   `json:"visitors"`
	RecruiterActivity []RecruiterEntry   `json:"recruiterActivity"`
	TopProjects       []TopProjectEntry  `json:"topProjects"`
	Period            string             `json:"period"`
	GeneratedAt       string             `json:"generatedAt"`
}

type ViewStats struct {
	Total     int     `json:"total"`
	Unique    int     `json:"unique"`
	Returning int     `json:"returning"`
	Growth    float64 `json:"growth"`
}

type VisitorBreakdown struct {
	Countries []DistributionPoint `json:"countries"`
	Devices   []DistributionPoint `json:"devices"`
}

type DistributionPoint struct {
	Name       string  `json:"name"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type RecruiterEntry struct {
	Organization   string   `json:"organization"`
	Visits         int      `json:"visits"`
	TimeSpent      string   `json:"timeSpent"`
	LastVisit      string   `json:"lastVisit"`
	ProjectsViewed []string `json:"projectsViewed"`
}

type TopProjectEntry struct {
	Name    string   `json:"name"`
	Views   int      `json:"views"`
	AvgTime *float64 `json:"avgTime,omitempty"`
}

// GetDashboardAction aggregates the dashboard payload for one reporting
// period. Aggregations run concurrently; a sub-metric that cannot be
// computed is served as its empty value, the rest of the dashboard still
// comes back.
func GetDashboardAction(ctx *cartridge.Context) error {
	period := ctx.Query("period", string(timeframe.Period7d))

	parser := timeframe.NewParser()
	tf, err := parser.Parse(period)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("Invalid period %q, expected one of 24h, 7d, 30d, 90d", period),
		})
	}

	db := ctx.DBManager.GetConnection()

	return ctx.Status(fiber.StatusOK).JSON(fetchDashboard(db, tf, ctx.Logger))
}

func fetchDashboard(db *gorm.DB, tf *timeframe.TimeFrame, logger *slog.Logger) *DashboardResponse {
	tasks := []async.Task{
		{
			Name: "visits",
			Execute: func() (interface{}, error) {
				return analytics.GetVisitCounts(db, tf)
			},
		},
		{
			Name: "previousTotal",
			Execute: func() (interface{}, error) {
				return analytics.GetPageViewTotal(db, tf.Previous())
			},
		},
		{
			Name: "topProjects",
			Execute: func() (interface{}, error) {
				return analytics.GetTopContent(db, tf, topProjectsLimit, "project_view")
			},
		},
		{
			Name: "countries",
			Execute: func() (interface{}, error) {
				return analytics.GetCountryDistribution(db, tf)
			},
		},
		{
			Name: "devices",
			Execute: func() (interface{}, error) {
				return analytics.GetDeviceDistribution(db, tf)
			},
		},
		{
			Name: "organizations",
			Execute: func() (interface{}, error) {
				return analytics.GetOrganizationActivity(db, tf, organizationLimit)
			},
		},
	}

	queryCtx, cancel := context.WithTimeout(context.Background(), dashboardQueryDeadline)
	defer cancel()

	pool := async.NewPool(dashboardWorkers)
	results := pool.Execute(queryCtx, tasks)

	response := &DashboardResponse{
		Visitors: VisitorBreakdown{
			Countries: []DistributionPoint{},
			Devices:   []DistributionPoint{},
		},
		RecruiterActivity: []RecruiterEntry{},
		TopProjects:       []TopProjectEntry{},
		Period:            string(tf.Period),
		GeneratedAt:       time.Now().UTC().Format(time.RFC3339),
	}

	if visits, ok := taskResult[*analytics.VisitCounts](results, "visits", logger); ok {
		response.Views = ViewStats{
			Total:     visits.Total,
			Unique:    visits.Unique,
			Returning: visits.Returning,
		}
		if previousTotal, ok := taskResult[int](results, "previousTotal", logger); ok {
			response.Views.Growth = analytics.CalculateGrowth(visits.Total, previousTotal)
		}
	}
	if countries, ok := taskResult[[]analytics.DistributionEntry](results, "countries", logger); ok {
		response.Visitors.Countries = convertCountryDistribution(countries, logger)
	}
	if devices, ok := taskResult[[]analytics.DistributionEntry](results, "devices", logger); ok {
		response.Visitors.Devices = convertDeviceDistribution(devices)
	}
	if organizations, ok := taskResult[[]analytics.OrganizationActivity](results, "organizations", logger); ok {
		response.RecruiterActivity = convertOrganizationActivity(organizations)
	}
	if topProjects, ok := taskResult[[]analytics.ContentStat](results, "topProjects", logger); ok {
		response.TopProjects = convertTopProjects(topProjects)
	}

	return response
}

// taskResult pulls one sub-metric out of the pool results. A failed or
// timed-out task logs a warning and reports false so the remaining
// sub-metrics are still served.
func taskResult[T any](results map[string]async.Result, name string, logger *slog.Logger) (T, bool) {
	var zero T

	result, found := results[name]
	if !found {
		logger.Warn("Dashboard sub-metric timed out", slog.String("metric", name))
		return zero, false
	}
	if result.Err != nil {
		logger.Warn("Dashboard sub-metric failed",
			slog.String("metric", name),
			slog.Any("error", result.Err))
		return zero, false
	}

	value, ok := result.Data.(T)
	return value, ok
}

// convertCountryDistribution swaps ISO codes for display names. Codes
// gountries does not know pass through uppercased.
func convertCountryDistribution(items []analytics.DistributionEntry, logger *slog.Logger) []DistributionPoint {
	caser := cases.Upper(language.AmericanEnglish)
	countries := gountries.New()

	result := make([]DistributionPoint, len(items))
	for i, item := range items {
		name := item.Name
		if name == geo.UnknownCountry || name == "" {
			name = "Unknown"
		} else if country, err := countries.FindCountryByAlpha(name); err == nil {
			name = country.Name.Common
		} else {
			logger.Debug("Unrecognized country code", slog.String("code", name))
			name = caser.String(name)
		}
		result[i] = DistributionPoint{
			Name:       name,
			Count:      item.Count,
			Percentage: item.Percentage,
		}
	}
	return result
}

func convertDeviceDistribution(items []analytics.DistributionEntry) []DistributionPoint {
	caser := cases.Title(language.AmericanEnglish)

	result := make([]DistributionPoint, len(items))
	for i, item := range items {
		name := item.Name
		if name == "" {
			name = "Unknown"
		}
		result[i] = DistributionPoint{
			Name:       caser.String(name),
			Count:      item.Count,
			Percentage: item.Percentage,
		}
	}
	return result
}

func convertOrganizationActivity(items []analytics.OrganizationActivity) []RecruiterEntry {
	result := make([]RecruiterEntry, len(items))
	for i, item := range items {
		projects := item.ContentViewed
		if projects == nil {
			projects = []string{}
		}
		lastVisit := ""
		if !item.LastVisit.IsZero() {
			lastVisit = item.LastVisit.Format(time.RFC3339)
		}
		result[i] = RecruiterEntry{
			Organization:   item.Organization,
			Visits:         item.Visits,
			TimeSpent:      humanizeDuration(item.DwellSeconds),
			LastVisit:      lastVisit,
			ProjectsViewed: projects,
		}
	}
	return result
}

func convertTopProjects(items []analytics.ContentStat) []TopProjectEntry {
	result := make([]TopProjectEntry, len(items))
	for i, item := range items {
		var avgTime *float64
		if item.AvgDwellSeconds != nil {
			rounded := analytics.Round1(*item.AvgDwellSeconds)
			avgTime = &rounded
		}
		result[i] = TopProjectEntry{
			Name:    item.Name,
			Views:   item.Views,
			AvgTime: avgTime,
		}
	}
	return result
}

// humanizeDuration renders seconds as "8m 34s" style strings for the
// recruiter activity table.
func humanizeDuration(seconds int) string {
	if seconds <= 0 {
		return "0s"
	}

	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}
