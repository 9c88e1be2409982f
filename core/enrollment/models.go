package enrollment

import (
	"time"

	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/course"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"

	// LessonPoints is credited to the learner for each newly completed lesson.
	LessonPoints = 10
)

type Enrollment struct {
	ID                 string         `json:"enrollment_id"`
	UserID             string         `json:"user_id"`
	CourseID           string         `json:"course_id"`
	ProgressPercent    int            `json:"progress_percent"`
	Status             Status         `json:"status"`
	CompletedLessonIDs []string       `json:"completed_lesson_ids"`
	UnitAttempts       map[string]int `json:"unit_attempts"`
	EnrolledAt         time.Time      `json:"enrolled_at"`
	CompletedAt        *time.Time     `json:"completed_at"`
}

func (e Enrollment) HasCompleted(lessonID string) bool {
	return core.ContainsString(e.CompletedLessonIDs, lessonID)
}

// Recalculate derives the progress and status from the completed lessons still part of `c`.
// It reports whether the enrollment just reached completion.
func (e *Enrollment) Recalculate(c course.Course, now time.Time) bool {
	total := c.TotalLessons()
	done := make(map[string]struct{}, len(e.CompletedLessonIDs))
	for _, id := range e.CompletedLessonIDs {
		if _, ok := c.FindLesson(id); ok {
			done[id] = struct{}{}
		}
	}
	complete := total > 0 && len(done) == total
	if total > 0 {
		e.ProgressPercent = core.ClampPercent(float64(len(done)) / float64(total) * 100)
	} else {
		e.ProgressPercent = 0
	}
	// 100 only once every lesson is done
	if !complete && e.ProgressPercent > 99 {
		e.ProgressPercent = 99
	}

	wasCompleted := e.Status == StatusCompleted
	if complete {
		e.Status = StatusCompleted
		if e.CompletedAt == nil {
			t := now.UTC()
			e.CompletedAt = &t
		}
	} else {
		e.Status = StatusActive
		e.CompletedAt = nil
	}
	return !wasCompleted && e.Status == StatusCompleted
}

// Reset clears every trace of progress.
func (e *Enrollment) Reset() {
	e.ProgressPercent = 0
	e.Status = StatusActive
	e.CompletedLessonIDs = []string{}
	e.UnitAttempts = map[string]int{}
	e.CompletedAt = nil
}

type QueryFilter struct {
	UserID   string
	CourseID string
	Status   Status
}

// Match reports whether `e` passes the filter.
func (qf *QueryFilter) Match(e Enrollment) bool {
	if qf == nil {
		return true
	}
	return (qf.UserID == "" || e.UserID == qf.UserID) &&
		(qf.CourseID == "" || e.CourseID == qf.CourseID) &&
		(qf.Status == "" || e.Status == qf.Status)
}

// QuizAttempt holds the option index picked for each question.
type QuizAttempt struct {
	Answers []int `json:"answers" validate:"required"`
}

// Progress describes what a player action changed.
type Progress struct {
	Enrollment      Enrollment `json:"enrollment"`
	LessonCompleted bool       `json:"lesson_completed"`
	CourseCompleted bool       `json:"course_completed"`
	PointsAwarded   int        `json:"points_awarded"`
	NextLessonID    string     `json:"next_lesson_id,omitempty"`
}

type QuizOutcome struct {
	Result   course.QuizResult `json:"result"`
	Attempts int               `json:"attempts"`
	Progress Progress          `json:"progress"`
}
