// Package mentorship records the coaching sessions between mentors and their mentees.
package mentorship

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/user"
)

var (
	// errors
	ErrNotFound  = core.NewNotFoundError("mentorship log not found")
	ErrForbidden = core.NewForbiddenError("only the mentor or an admin may remove this log")
)

type Log struct {
	ID              string    `json:"log_id"`
	MentorID        string    `json:"mentor_id"`
	MenteeID        string    `json:"mentee_id"`
	Topic           string    `json:"topic"`
	Notes           string    `json:"notes"`
	DurationMinutes int       `json:"duration_minutes"`
	SessionDate     time.Time `json:"session_date"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewLog contains the information a mentor provides about a session.
type NewLog struct {
	MenteeID        string    `json:"mentee_id" validate:"required"`
	Topic           string    `json:"topic" validate:"required"`
	Notes           string    `json:"notes"`
	DurationMinutes int       `json:"duration_minutes" validate:"min=1,max=1440"`
	SessionDate     time.Time `json:"session_date"`
}

func (nl *NewLog) Validate(validate *validator.Validate) error {
	nl.MenteeID = core.CleanString(nl.MenteeID)
	nl.Topic = core.CleanString(nl.Topic)
	nl.Notes = core.CleanString(nl.Notes)
	return validate.Struct(nl)
}

type QueryFilter struct {
	MentorID string
	MenteeID string
}

func (qf QueryFilter) Match(l Log) bool {
	return (qf.MentorID == "" || l.MentorID == qf.MentorID) && (qf.MenteeID == "" || l.MenteeID == qf.MenteeID)
}

type (
	Repository interface {
		// QueryLogs returns the logs matching `filter`, latest session first.
		QueryLogs(ctx context.Context, filter QueryFilter) ([]Log, error)
		GetLog(ctx context.Context, id string) (Log, error)
		CreateLog(ctx context.Context, l Log) (Log, error)
		DeleteLog(ctx context.Context, id string) error
	}

	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service struct {
		repo  Repository
		users UserGetter
	}
)

func NewService(repo Repository, users UserGetter) *Service {
	return &Service{repo: repo, users: users}
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Log, error) {
	return svc.repo.QueryLogs(ctx, filter)
}

// Add records a session held by `mentor`.
func (svc *Service) Add(ctx context.Context, mentor user.User, nl NewLog) (Log, error) {
	if _, err := svc.users.GetByID(ctx, nl.MenteeID); err != nil {
		if core.IsNotFound(err) {
			return Log{}, core.NewValidationError(err, core.FieldError{Field: "mentee_id", Error: "mentee not found"})
		}
		return Log{}, err
	}
	now := time.Now().UTC()
	date := nl.SessionDate
	if date.IsZero() {
		date = now
	}
	return svc.repo.CreateLog(ctx, Log{
		MentorID:        mentor.ID,
		MenteeID:        nl.MenteeID,
		Topic:           nl.Topic,
		Notes:           nl.Notes,
		DurationMinutes: nl.DurationMinutes,
		SessionDate:     date.UTC(),
		CreatedAt:       now,
	})
}

// Delete removes a log owned by `actor`, or any log when `actor` is an admin.
func (svc *Service) Delete(ctx context.Context, actor user.User, id string) error {
	l, err := svc.repo.GetLog(ctx, id)
	if err != nil {
		return err
	}
	if l.MentorID != actor.ID && !actor.IsAdmin() {
		return ErrForbidden
	}
	return svc.repo.DeleteLog(ctx, id)
}
