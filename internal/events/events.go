// Package events records discrete visitor interactions. The event log is
// append-only: rows are never mutated or deleted once written.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"folioscope/internal/sessions"
)

// Type is the closed enumeration of known event types. Anything outside this
// set is rejected with InvalidEventTypeError so misconfigured clients stay
// observable.
type Type string

const (
	TypePageView    Type = "page_view"
	TypeProjectView Type = "project_view"
	TypeBlogView    Type = "blog_view"
	TypeContact     Type = "contact"
	TypeCVDownload  Type = "cv_download"
	TypeModeSwitch  Type = "mode_switch"
	TypeClick       Type = "click"
)

// CategoryShare marks click events that express share intent. The platform
// travels in the event label and feeds the social-analytics aggregate.
const CategoryShare = "share"

// counterEffects is the fixed mapping from event type to the session counter
// it drives. Every known type maps to exactly zero or one effect; adding an
// event type is a row here, not a new code path.
var counterEffects = map[Type]sessions.ActivityDelta{
	TypePageView:    {PageViews: 1},
	TypeProjectView: {ProjectsViewed: 1},
	TypeBlogView:    {BlogPostsViewed: 1},
	TypeContact:     {ContactSubmitted: true},
	TypeCVDownload:  {CVDownloaded: true},
	TypeModeSwitch:  {ModeSwitches: 1},
	TypeClick:       {},
}

// KnownType reports whether t is a member of the event-type enumeration.
func KnownType(t Type) bool {
	_, ok := counterEffects[t]
	return ok
}

// InvalidEventTypeError indicates a submission with a type outside the known
// enumeration.
type InvalidEventTypeError struct {
	Type string
}

func (e *InvalidEventTypeError) Error() string {
	return fmt.Sprintf("invalid event type: %s", e.Type)
}

// NewInvalidEventTypeError creates an InvalidEventTypeError for the given type.
func NewInvalidEventTypeError(t string) *InvalidEventTypeError {
	return &InvalidEventTypeError{Type: t}
}

// Event is one recorded interaction tied to a session. The auto-increment id
// is the ordering key within a session.
type Event struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	SessionToken string `gorm:"index:idx_events_session_created;size:64;not null"`
	EventType    Type   `gorm:"index;not null"`
	Category     string `gorm:"index"`
	Label        string
	Value        *int
	Mode         string
	PageURL      string
	ReferrerURL  string
	TargetType   string `gorm:"index"`
	TargetID     string `gorm:"index"`
	Metadata     string `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"index:idx_events_session_created;not null"`
}

// RecordInput defines the input required to record an event.
type RecordInput struct {
	SessionToken string
	EventType    Type
	Category     string
	Label        string
	Value        *int
	Mode         string
	PageURL      string
	ReferrerURL  string
	TargetType   string
	TargetID     string
	Metadata     map[string]interface{}
}

// Record validates and appends an event, applying the event's counter effect
// to its session in the same transaction. Either the whole logical operation
// lands or none of it does: an event referencing an unknown session is never
// orphaned into storage, and a failed append never leaves a counter bumped.
func Record(dbManager cartridge.DBManager, logger *slog.Logger, input *RecordInput) (*Event, error) {
	if !KnownType(input.EventType) {
		logger.Warn("Rejected event with unknown type",
			slog.String("event_type", string(input.EventType)),
			slog.String("session", input.SessionToken))
		return nil, NewInvalidEventTypeError(string(input.EventType))
	}

	metadata := ""
	if len(input.Metadata) > 0 {
		raw, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode event metadata: %w", err)
		}
		metadata = string(raw)
	}

	event := &Event{
		SessionToken: input.SessionToken,
		EventType:    input.EventType,
		Category:     input.Category,
		Label:        input.Label,
		Value:        input.Value,
		Mode:         input.Mode,
		PageURL:      input.PageURL,
		ReferrerURL:  input.ReferrerURL,
		TargetType:   input.TargetType,
		TargetID:     input.TargetID,
		Metadata:     metadata,
		CreatedAt:    time.Now().UTC(),
	}

	delta := effectFor(input)

	db := dbManager.GetConnection()
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		// The activity update doubles as the session existence check.
		if err := sessions.ApplyActivityTx(tx, input.SessionToken, delta); err != nil {
			return err
		}
		return tx.Create(event).Error
	})
	if err != nil {
		var notFound *sessions.SessionNotFoundError
		if errors.As(err, &notFound) {
			return nil, err
		}
		logger.Error("Failed to record event",
			slog.String("event_type", string(input.EventType)),
			slog.String("session", input.SessionToken),
			slog.Any("error", err))
		return nil, fmt.Errorf("failed to record event: %w", err)
	}

	return event, nil
}

// effectFor returns the counter effect for one submission. The lookup table
// carries the fixed increments; mode_switch additionally tracks the mode the
// visitor switched to.
func effectFor(input *RecordInput) *sessions.ActivityDelta {
	delta := counterEffects[input.EventType]
	if input.EventType == TypeModeSwitch {
		delta.LastMode = input.Mode
	}
	return &delta
}
