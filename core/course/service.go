package course

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/tallman/core"
)

var (
	// errors
	ErrNotFound   = core.NewNotFoundError("course not found")
	ErrIDExists   = errors.New("a course with this id already exists")
	ErrBaseCourse = core.NewConflictError("base curriculum courses cannot be deleted")
)

type (
	Repository interface {
		// QueryCourses returns the courses matching `filter`, oldest first.
		QueryCourses(ctx context.Context, filter *QueryFilter) ([]Course, error)
		GetCourse(ctx context.Context, id string) (Course, error)
		// SaveCourse inserts the course or replaces the stored one with the same ID.
		SaveCourse(ctx context.Context, c Course) (Course, error)
		DeleteCourse(ctx context.Context, id string) error
		AdjustEnrolledCount(ctx context.Context, id string, delta int) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewID builds a readable course id from `name`.
func NewID(name string) string {
	slug := core.Slugify(name, "_")
	if len(slug) > 40 {
		slug = strings.TrimRight(slug[:40], "_")
	}
	return fmt.Sprintf("c_%s_%s", slug, strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter) ([]Course, error) {
	return svc.repo.QueryCourses(ctx, filter)
}

func (svc *Service) Get(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, id)
}

// Create stores a new course from admin input.
func (svc *Service) Create(ctx context.Context, sc SaveCourse) (Course, error) {
	id := sc.ID
	if id == "" {
		id = NewID(sc.Name)
	} else if _, err := svc.repo.GetCourse(ctx, id); err == nil {
		return Course{}, core.NewValidationError(ErrIDExists, core.FieldError{Field: "course_id", Error: ErrIDExists.Error()})
	} else if errors.Cause(err) != ErrNotFound {
		return Course{}, errors.Wrap(err, "checking course id")
	}

	now := time.Now().UTC()
	c := Course{ID: id, CreatedAt: now}
	apply(&c, sc)
	return svc.Save(ctx, c)
}

// Update replaces the editable fields of `orig` with `sc`.
func (svc *Service) Update(ctx context.Context, orig Course, sc SaveCourse) (Course, error) {
	apply(&orig, sc)
	return svc.Save(ctx, orig)
}

// Save upserts `c` after normalizing its modules and lessons.
func (svc *Service) Save(ctx context.Context, c Course) (Course, error) {
	if c.ID == "" {
		c.ID = NewID(c.Name)
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.Modules == nil {
		c.Modules = []Module{}
	}
	c.Normalize()
	return svc.repo.SaveCourse(ctx, c)
}

// Delete removes `c` unless it belongs to the base curriculum.
func (svc *Service) Delete(ctx context.Context, c Course) error {
	if c.IsBase {
		return ErrBaseCourse
	}
	return svc.repo.DeleteCourse(ctx, c.ID)
}

func (svc *Service) AdjustEnrolledCount(ctx context.Context, id string, delta int) error {
	return svc.repo.AdjustEnrolledCount(ctx, id, delta)
}

func apply(c *Course, sc SaveCourse) {
	c.Name = sc.Name
	c.ShortDescription = sc.ShortDescription
	c.ThumbnailURL = sc.ThumbnailURL
	if c.ThumbnailURL == "" {
		c.ThumbnailURL = ThumbnailURL(sc.Name)
	}
	c.CategoryID = sc.CategoryID
	c.InstructorID = sc.InstructorID
	c.Status = sc.Status
	c.Difficulty = sc.Difficulty
	c.Rating = sc.Rating
	c.Modules = sc.Modules
}

// ThumbnailURL is the placeholder artwork used for courses without one.
func ThumbnailURL(seed string) string {
	return fmt.Sprintf("https://picsum.photos/seed/%s/1200/600", core.Slugify(seed, "-"))
}
