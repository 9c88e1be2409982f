package testutil

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/course"
	"github.com/trezcool/tallman/core/user"
	"github.com/trezcool/tallman/services/logger"
)

// NewLogger returns a logger that neither prints nor reports.
func NewLogger() core.Logger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), core.NewTestConfig())
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Email:     email,
		AvatarURL: user.AvatarURL(name),
		Roles:     roles,
		Level:     1,
		BranchID:  "br_addison",
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

// SampleCourse builds a published course with two document lessons and a three question quiz.
// Correct answers are 0, 1 and 2.
func SampleCourse(id string) course.Course {
	now := time.Now().UTC()
	c := course.Course{
		ID:               id,
		Name:             "Sample " + id,
		ShortDescription: "A course used by tests",
		ThumbnailURL:     course.ThumbnailURL(id),
		CategoryID:       "safety",
		Status:           course.StatusPublished,
		Difficulty:       course.DifficultyBeginner,
		Rating:           4.5,
		CreatedAt:        now,
		UpdatedAt:        now,
		Modules: []course.Module{
			{Title: "Reading", Lessons: []course.Lesson{
				{Title: "Manual", Type: course.LessonDocument, Content: "read me"},
				{Title: "Procedure", Type: course.LessonDocument, Content: "then me", DurationMinutes: 30},
			}},
			{Title: "Check", Lessons: []course.Lesson{
				{Title: "Audit", Type: course.LessonQuiz, QuizQuestions: []course.QuizQuestion{
					{Question: "One?", Options: []string{"a", "b", "c"}, CorrectIndex: 0},
					{Question: "Two?", Options: []string{"a", "b", "c"}, CorrectIndex: 1},
					{Question: "Three?", Options: []string{"a", "b", "c"}, CorrectIndex: 2},
				}},
			}},
		},
	}
	c.Normalize()
	return c
}

func CreateCourse(t *testing.T, repo course.Repository, c course.Course) course.Course {
	c, err := repo.SaveCourse(context.Background(), c)
	if err != nil {
		t.Fatalf("createCourse() failed: %v", err)
	}
	return c
}
