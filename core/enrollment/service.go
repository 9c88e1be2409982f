package enrollment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/course"
	"github.com/trezcool/tallman/core/user"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("enrollment not found")
	ErrLessonNotFound = core.NewNotFoundError("lesson not found in this course")
	ErrCourseNotOpen  = core.NewConflictError("this course is not open for enrollment")
	ErrQuizRequired   = core.NewConflictError("quiz lessons are completed by passing the quiz")
	ErrAccountOnHold  = core.NewConflictError("account pending approval")
)

type (
	Repository interface {
		// QueryEnrollments returns the enrollments matching `filter`, oldest first.
		QueryEnrollments(ctx context.Context, filter *QueryFilter) ([]Enrollment, error)
		GetEnrollment(ctx context.Context, id string) (Enrollment, error)
		GetUserEnrollment(ctx context.Context, userID, courseID string) (Enrollment, error)
		CreateEnrollment(ctx context.Context, e Enrollment) (Enrollment, error)
		UpdateEnrollment(ctx context.Context, e Enrollment) (Enrollment, error)
		DeleteEnrollment(ctx context.Context, id string) error
		// ResetCourseEnrollments resets the progress of every enrollment in the course and returns how many.
		ResetCourseEnrollments(ctx context.Context, courseID string) (int, error)
	}

	// CourseStore is the part of the course store enrollments depend on.
	CourseStore interface {
		Get(ctx context.Context, id string) (course.Course, error)
		AdjustEnrolledCount(ctx context.Context, id string, delta int) error
	}

	// PointsAwarder credits learners for their progress.
	PointsAwarder interface {
		AddPoints(ctx context.Context, id string, delta int) (user.User, error)
	}

	// ProgressListener is notified after progress was saved.
	ProgressListener interface {
		OnPointsChanged(ctx context.Context, usr user.User) error
		OnCourseCompleted(ctx context.Context, e Enrollment, c course.Course) error
	}

	Service struct {
		mu       sync.Mutex // serializes progress updates
		repo     Repository
		courses  CourseStore
		points   PointsAwarder
		listener ProgressListener
		logger   core.Logger
	}
)

func NewService(repo Repository, courses CourseStore, points PointsAwarder, logger core.Logger) *Service {
	return &Service{repo: repo, courses: courses, points: points, logger: logger}
}

// SetListener registers the listener notified of points and completions.
func (svc *Service) SetListener(l ProgressListener) {
	svc.listener = l
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter) ([]Enrollment, error) {
	return svc.repo.QueryEnrollments(ctx, filter)
}

func (svc *Service) Get(ctx context.Context, id string) (Enrollment, error) {
	return svc.repo.GetEnrollment(ctx, id)
}

// Enroll subscribes `usr` to a published course. Enrolling twice returns the existing enrollment.
func (svc *Service) Enroll(ctx context.Context, usr user.User, courseID string) (Enrollment, bool, error) {
	if usr.IsOnHold() {
		return Enrollment{}, false, ErrAccountOnHold
	}
	c, err := svc.courses.Get(ctx, courseID)
	if err != nil {
		return Enrollment{}, false, err
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	if e, err := svc.repo.GetUserEnrollment(ctx, usr.ID, c.ID); err == nil {
		return e, false, nil
	} else if errors.Cause(err) != ErrNotFound {
		return Enrollment{}, false, errors.Wrap(err, "finding enrollment")
	}
	if c.Status != course.StatusPublished {
		return Enrollment{}, false, ErrCourseNotOpen
	}

	e, err := svc.repo.CreateEnrollment(ctx, Enrollment{
		UserID:             usr.ID,
		CourseID:           c.ID,
		Status:             StatusActive,
		CompletedLessonIDs: []string{},
		UnitAttempts:       map[string]int{},
		EnrolledAt:         time.Now().UTC(),
	})
	if err != nil {
		return Enrollment{}, false, errors.Wrap(err, "creating enrollment")
	}
	if err = svc.courses.AdjustEnrolledCount(ctx, c.ID, 1); err != nil {
		// undo, the count must match the enrollments
		if derr := svc.repo.DeleteEnrollment(ctx, e.ID); derr != nil {
			svc.logger.Error(fmt.Sprintf("rolling back enrollment %s", e.ID), derr)
		}
		return Enrollment{}, false, errors.Wrap(err, "updating enrolled count")
	}
	return e, true, nil
}

// CompleteLesson marks a document or video lesson as done.
func (svc *Service) CompleteLesson(ctx context.Context, enrollmentID, lessonID string) (Progress, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	e, c, lesson, err := svc.load(ctx, enrollmentID, lessonID)
	if err != nil {
		return Progress{}, err
	}
	if lesson.Type == course.LessonQuiz {
		return Progress{}, ErrQuizRequired
	}
	return svc.complete(ctx, e, c, lesson.ID)
}

// RecordQuizAttempt grades the answers, counts the attempt and completes the lesson on pass.
func (svc *Service) RecordQuizAttempt(ctx context.Context, enrollmentID, lessonID string, answers []int) (QuizOutcome, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	e, c, lesson, err := svc.load(ctx, enrollmentID, lessonID)
	if err != nil {
		return QuizOutcome{}, err
	}
	res, err := course.GradeQuiz(lesson, answers)
	if err != nil {
		return QuizOutcome{}, err
	}

	if e.UnitAttempts == nil {
		e.UnitAttempts = map[string]int{}
	}
	e.UnitAttempts[lesson.ID]++
	out := QuizOutcome{Result: res, Attempts: e.UnitAttempts[lesson.ID]}

	if res.Passed {
		out.Progress, err = svc.complete(ctx, e, c, lesson.ID)
		return out, err
	}

	if e, err = svc.repo.UpdateEnrollment(ctx, e); err != nil {
		return QuizOutcome{}, errors.Wrap(err, "updating enrollment")
	}
	out.Progress = Progress{Enrollment: e, NextLessonID: nextLessonID(c, e)}
	return out, nil
}

// ResetForCourse wipes the progress of every learner enrolled in the course.
func (svc *Service) ResetForCourse(ctx context.Context, courseID string) (int, error) {
	if _, err := svc.courses.Get(ctx, courseID); err != nil {
		return 0, err
	}
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.repo.ResetCourseEnrollments(ctx, courseID)
}

func (svc *Service) load(ctx context.Context, enrollmentID, lessonID string) (Enrollment, course.Course, course.Lesson, error) {
	e, err := svc.repo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return Enrollment{}, course.Course{}, course.Lesson{}, err
	}
	c, err := svc.courses.Get(ctx, e.CourseID)
	if err != nil {
		return Enrollment{}, course.Course{}, course.Lesson{}, errors.Wrap(err, "finding enrollment course")
	}
	lesson, ok := c.FindLesson(lessonID)
	if !ok {
		return Enrollment{}, course.Course{}, course.Lesson{}, ErrLessonNotFound
	}
	return e, c, lesson, nil
}

// complete appends the lesson, recalculates progress, saves, then credits points and notifies.
func (svc *Service) complete(ctx context.Context, e Enrollment, c course.Course, lessonID string) (Progress, error) {
	var prog Progress
	if !e.HasCompleted(lessonID) {
		e.CompletedLessonIDs = append(e.CompletedLessonIDs, lessonID)
		prog.LessonCompleted = true
	}
	prog.CourseCompleted = e.Recalculate(c, time.Now())

	e, err := svc.repo.UpdateEnrollment(ctx, e)
	if err != nil {
		return Progress{}, errors.Wrap(err, "updating enrollment")
	}
	prog.Enrollment = e
	prog.NextLessonID = nextLessonID(c, e)

	if prog.LessonCompleted {
		usr, err := svc.points.AddPoints(ctx, e.UserID, LessonPoints)
		if err != nil {
			return prog, errors.Wrap(err, "awarding points")
		}
		prog.PointsAwarded = LessonPoints
		svc.notify(func(l ProgressListener) error { return l.OnPointsChanged(ctx, usr) })
	}
	if prog.CourseCompleted {
		svc.notify(func(l ProgressListener) error { return l.OnCourseCompleted(ctx, e, c) })
	}
	return prog, nil
}

// notify reports listener failures without failing the player action that triggered them.
func (svc *Service) notify(fn func(ProgressListener) error) {
	if svc.listener == nil {
		return
	}
	if err := fn(svc.listener); err != nil {
		svc.logger.Error(fmt.Sprintf("progress listener: %v", err), err)
	}
}

func nextLessonID(c course.Course, e Enrollment) string {
	if l, ok := c.NextLesson(e.CompletedLessonIDs); ok {
		return l.ID
	}
	return ""
}
