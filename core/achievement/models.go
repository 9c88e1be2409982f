package achievement

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/user"
)

type BadgeKind string

const (
	KindCourseCompletion BadgeKind = "course_completion" // completing CourseID
	KindCourseCount      BadgeKind = "course_count"      // completing Threshold courses
	KindPoints           BadgeKind = "points"            // reaching Threshold points

	// Issuer signs every certificate.
	Issuer = "Tallman LMS Training Authority"
)

type Badge struct {
	ID        string    `json:"badge_id"`
	Name      string    `json:"name"`
	ImageURL  string    `json:"image_url"`
	Criteria  string    `json:"criteria"`
	Kind      BadgeKind `json:"kind"`
	CourseID  string    `json:"course_id,omitempty"`
	Threshold int       `json:"threshold,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Earned reports whether the badge criteria are met.
func (b Badge) Earned(points, completedCourses int, completedCourseID string) bool {
	switch b.Kind {
	case KindCourseCompletion:
		return completedCourseID != "" && b.CourseID == completedCourseID
	case KindCourseCount:
		return completedCourses >= b.Threshold
	case KindPoints:
		return points >= b.Threshold
	}
	return false
}

type UserBadge struct {
	UserID    string    `json:"user_id"`
	BadgeID   string    `json:"badge_id"`
	AwardedAt time.Time `json:"awarded_at"`
}

// EarnedBadge is a badge as displayed on a learner profile.
type EarnedBadge struct {
	Badge
	AwardedAt time.Time `json:"awarded_at"`
}

type Certificate struct {
	ID             string    `json:"certificate_id"`
	UserID         string    `json:"user_id"`
	UserName       string    `json:"user_name"`
	CourseID       string    `json:"course_id"`
	CourseName     string    `json:"course_name"`
	Issuer         string    `json:"issuer"`
	CompletionDate time.Time `json:"completion_date"`
}

// NewCertificateID returns a fresh "CERT-XXXXXXXX" identifier.
func NewCertificateID() string {
	return "CERT-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}

type CertificateFilter struct {
	UserID   string
	CourseID string
}

func (cf CertificateFilter) Match(cert Certificate) bool {
	return (cf.UserID == "" || cert.UserID == cf.UserID) && (cf.CourseID == "" || cert.CourseID == cf.CourseID)
}

// SaveBadge contains the information an admin provides to create or replace a Badge.
type SaveBadge struct {
	ID        string    `json:"badge_id" validate:"omitempty,slug"`
	Name      string    `json:"name" validate:"required"`
	ImageURL  string    `json:"image_url" validate:"omitempty,url"`
	Criteria  string    `json:"criteria"`
	Kind      BadgeKind `json:"kind" validate:"required,oneof=course_completion course_count points"`
	CourseID  string    `json:"course_id"`
	Threshold int       `json:"threshold" validate:"min=0"`
}

func (sb *SaveBadge) Validate(validate *validator.Validate) error {
	sb.ID = core.CleanString(sb.ID, true /* lower */)
	sb.Name = core.CleanString(sb.Name)
	sb.Criteria = core.CleanString(sb.Criteria)
	sb.CourseID = core.CleanString(sb.CourseID)

	if err := validate.Struct(sb); err != nil {
		return err
	}
	switch {
	case sb.Kind == KindCourseCompletion && sb.CourseID == "":
		return core.NewValidationError(nil, core.FieldError{Field: "course_id", Error: "course_id is required for course completion badges"})
	case sb.Kind != KindCourseCompletion && sb.Threshold < 1:
		return core.NewValidationError(nil, core.FieldError{Field: "threshold", Error: "threshold must be at least 1"})
	}
	return nil
}

// LevelProgress locates a learner between two levels.
type LevelProgress struct {
	Level              int `json:"level"`
	Points             int `json:"points"`
	CurrentLevelPoints int `json:"current_level_points"`
	NextLevelPoints    int `json:"next_level_points"`
	Percent            int `json:"percent"`
}

func GetLevelProgress(usr user.User) LevelProgress {
	lvl := user.LevelForPoints(usr.Points)
	lp := LevelProgress{Level: lvl, Points: usr.Points, NextLevelPoints: (lvl + 1) * user.PointsPerLevel}
	if lvl > 1 {
		lp.CurrentLevelPoints = lvl * user.PointsPerLevel
	}
	span := lp.NextLevelPoints - lp.CurrentLevelPoints
	lp.Percent = core.ClampPercent(float64(usr.Points-lp.CurrentLevelPoints) / float64(span) * 100)
	return lp
}

type LeaderboardEntry struct {
	Rank      int    `json:"rank"`
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	BranchID  string `json:"branch_id"`
	Points    int    `json:"points"`
	Level     int    `json:"level"`
}

func badgeImageURL(name string) string {
	return fmt.Sprintf("https://picsum.photos/seed/badge-%s/128", core.Slugify(name, "-"))
}
