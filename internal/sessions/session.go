// Package sessions owns visitor session identity and the only mutable
// telemetry state: per-session activity counters.
package sessions

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Session represents one continuous visit by one browser tab, identified by
// an opaque token stable for that visit. Attributes are set once at creation;
// counters only ever increase and flags only ever flip to true.
type Session struct {
	ID    uint   `gorm:"primaryKey;autoIncrement"`
	Token string `gorm:"uniqueIndex;size:64;not null"`

	LandingPage      string
	LandingMode      string
	ReferrerSource   string `gorm:"index"`
	UTMSource        string
	UTMMedium        string
	UTMCampaign      string
	UserAgent        string
	DeviceType       string `gorm:"index"`
	Browser          string
	OperatingSystem  string
	ScreenResolution string
	IPAddress        string
	Country          string `gorm:"index"`
	Organization     string `gorm:"index"`

	PageViews        int    `gorm:"not null;default:0"`
	ProjectsViewed   int    `gorm:"not null;default:0"`
	BlogPostsViewed  int    `gorm:"not null;default:0"`
	ModeSwitches     int    `gorm:"not null;default:0"`
	LastMode         string
	ContactSubmitted bool `gorm:"not null;default:false"`
	CVDownloaded     bool `gorm:"not null;default:false"`

	CreatedAt  time.Time `gorm:"index;not null"`
	LastSeenAt time.Time `gorm:"index;not null"`
}

// SessionNotFoundError indicates an operation referenced a token with no
// stored session.
type SessionNotFoundError struct {
	Token string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session not found: %s", e.Token)
}

// NewSessionNotFoundError creates a SessionNotFoundError for the given token.
func NewSessionNotFoundError(token string) *SessionNotFoundError {
	return &SessionNotFoundError{Token: token}
}

// StartInput carries the creation-time attributes of a session. Token may be
// empty, in which case the server issues one.
type StartInput struct {
	Token            string
	LandingPage      string
	LandingMode      string
	ReferrerSource   string
	UTMSource        string
	UTMMedium        string
	UTMCampaign      string
	UserAgent        string
	DeviceType       string
	Browser          string
	OperatingSystem  string
	ScreenResolution string
	IPAddress        string
	Country          string
	Organization     string
}

// IssueToken mints a fresh opaque session token.
func IssueToken() string {
	return uuid.NewString()
}

// StartOrResume creates a session for the given token or resumes the existing
// one. Concurrent calls bearing the same token converge to a single row: the
// insert is keyed by the token's unique index with ON CONFLICT DO NOTHING and
// the canonical row is read back afterwards. A resumed session's attributes
// are never mutated.
func StartOrResume(dbManager cartridge.DBManager, logger *slog.Logger, input *StartInput) (*Session, error) {
	token := input.Token
	if token == "" {
		token = IssueToken()
	}

	now := time.Now().UTC()
	session := &Session{
		Token:            token,
		LandingPage:      input.LandingPage,
		LandingMode:      input.LandingMode,
		ReferrerSource:   input.ReferrerSource,
		UTMSource:        input.UTMSource,
		UTMMedium:        input.UTMMedium,
		UTMCampaign:      input.UTMCampaign,
		UserAgent:        input.UserAgent,
		DeviceType:       input.DeviceType,
		Browser:          input.Browser,
		OperatingSystem:  input.OperatingSystem,
		ScreenResolution: input.ScreenResolution,
		IPAddress:        input.IPAddress,
		Country:          input.Country,
		Organization:     input.Organization,
		CreatedAt:        now,
		LastSeenAt:       now,
	}

	db := dbManager.GetConnection()
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token"}},
			DoNothing: true,
		}).Create(session).Error
	})
	if err != nil {
		logger.Error("Failed to upsert session", slog.String("token", token), slog.Any("error", err))
		return nil, fmt.Errorf("failed to upsert session: %w", err)
	}

	// Read the canonical row back: on conflict the insert was a no-op and the
	// winning row carries another call's attributes.
	stored, err := GetByToken(db, token)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// GetByToken fetches a session by its token.
func GetByToken(db *gorm.DB, token string) (*Session, error) {
	var session Session
	result := db.Where("token = ?", token).First(&session)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, NewSessionNotFoundError(token)
		}
		return nil, fmt.Errorf("failed to load session: %w", result.Error)
	}
	return &session, nil
}

// ActivityDelta names the counter increments and flag transitions one
// activity update applies. All increments must be non-negative; flags are
// monotone and can only be raised.
type ActivityDelta struct {
	PageViews        int
	ProjectsViewed   int
	BlogPostsViewed  int
	ModeSwitches     int
	LastMode         string
	ContactSubmitted bool
	CVDownloaded     bool
}

// Validate rejects deltas that would decrement a counter.
func (d *ActivityDelta) Validate() error {
	if d.PageViews < 0 || d.ProjectsViewed < 0 || d.BlogPostsViewed < 0 || d.ModeSwitches < 0 {
		return errNegativeDelta
	}
	return nil
}

// IsZero reports whether the delta changes nothing.
func (d *ActivityDelta) IsZero() bool {
	return d.PageViews == 0 && d.ProjectsViewed == 0 && d.BlogPostsViewed == 0 &&
		d.ModeSwitches == 0 && d.LastMode == "" && !d.ContactSubmitted && !d.CVDownloaded
}

// ApplyActivity applies a delta to the session identified by token as a
// single atomic UPDATE, so concurrent updates for the same session are never
// lost to read-modify-write races. Returns SessionNotFoundError when the
// token has no session.
func ApplyActivity(dbManager cartridge.DBManager, logger *slog.Logger, token string, delta *ActivityDelta) error {
	db := dbManager.GetConnection()
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return ApplyActivityTx(tx, token, delta)
	})
	if err != nil {
		var notFound *SessionNotFoundError
		if errors.As(err, &notFound) {
			return err
		}
		if errors.Is(err, errNegativeDelta) {
			return err
		}
		logger.Error("Failed to apply session activity",
			slog.String("token", token), slog.Any("error", err))
		return fmt.Errorf("failed to apply session activity: %w", err)
	}
	return nil
}

var errNegativeDelta = errors.New("counter deltas must be non-negative")

// ApplyActivityTx applies a delta inside an existing write transaction. The
// update always bumps last_seen_at, so it doubles as the session existence
// check for callers composing it with other writes.
func ApplyActivityTx(tx *gorm.DB, token string, delta *ActivityDelta) error {
	if err := delta.Validate(); err != nil {
		return err
	}

	result := tx.Exec(`
            UPDATE sessions
            SET page_views        = page_views + ?,
                projects_viewed   = projects_viewed + ?,
                blog_posts_viewed = blog_posts_viewed + ?,
                mode_switches     = mode_switches + ?,
                last_mode         = CASE WHEN ? != '' THEN ? ELSE last_mode END,
                contact_submitted = CASE WHEN ? THEN 1 ELSE contact_submitted END,
                cv_downloaded     = CASE WHEN ? THEN 1 ELSE cv_downloaded END,
                last_seen_at      = ?
            WHERE token = ?
        `,
		delta.PageViews,
		delta.ProjectsViewed,
		delta.BlogPostsViewed,
		delta.ModeSwitches,
		delta.LastMode, delta.LastMode,
		delta.ContactSubmitted,
		delta.CVDownloaded,
		time.Now().UTC(),
		token,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return NewSessionNotFoundError(token)
	}
	return nil
}
