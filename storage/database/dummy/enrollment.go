package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/enrollment"
)

type enrollmentRepository struct {
	db *DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil)

func NewEnrollmentRepository(db *DB) enrollment.Repository {
	return &enrollmentRepository{db: db}
}

func cloneEnrollment(e enrollment.Enrollment) enrollment.Enrollment {
	e.CompletedLessonIDs = append([]string{}, e.CompletedLessonIDs...)
	attempts := make(map[string]int, len(e.UnitAttempts))
	for k, v := range e.UnitAttempts {
		attempts[k] = v
	}
	e.UnitAttempts = attempts
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		e.CompletedAt = &t
	}
	return e
}

func (repo *enrollmentRepository) save(e enrollment.Enrollment) (enrollment.Enrollment, error) {
	if err := repo.db.quota.reserve("enrollment:"+e.ID, e); err != nil {
		return enrollment.Enrollment{}, err
	}
	stored := cloneEnrollment(e)
	repo.db.enrollment.table[e.ID] = &stored
	return cloneEnrollment(stored), nil
}

func (repo *enrollmentRepository) QueryEnrollments(_ context.Context, filter *enrollment.QueryFilter) ([]enrollment.Enrollment, error) {
	repo.db.enrollment.RLock()
	defer repo.db.enrollment.RUnlock()

	enrollments := make([]enrollment.Enrollment, 0)
	for _, e := range repo.db.enrollment.table {
		if filter.Match(*e) {
			enrollments = append(enrollments, cloneEnrollment(*e))
		}
	}
	sort.Slice(enrollments, func(i, j int) bool {
		if !enrollments[i].EnrolledAt.Equal(enrollments[j].EnrolledAt) {
			return enrollments[i].EnrolledAt.Before(enrollments[j].EnrolledAt)
		}
		return enrollments[i].ID < enrollments[j].ID
	})
	return enrollments, nil
}

func (repo *enrollmentRepository) GetEnrollment(_ context.Context, id string) (enrollment.Enrollment, error) {
	repo.db.enrollment.RLock()
	defer repo.db.enrollment.RUnlock()

	if e, ok := repo.db.enrollment.table[id]; ok {
		return cloneEnrollment(*e), nil
	}
	return enrollment.Enrollment{}, enrollment.ErrNotFound
}

func (repo *enrollmentRepository) GetUserEnrollment(_ context.Context, userID, courseID string) (enrollment.Enrollment, error) {
	repo.db.enrollment.RLock()
	defer repo.db.enrollment.RUnlock()

	for _, e := range repo.db.enrollment.table {
		if e.UserID == userID && e.CourseID == courseID {
			return cloneEnrollment(*e), nil
		}
	}
	return enrollment.Enrollment{}, enrollment.ErrNotFound
}

func (repo *enrollmentRepository) CreateEnrollment(_ context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	repo.db.enrollment.Lock()
	defer repo.db.enrollment.Unlock()

	for _, existing := range repo.db.enrollment.table {
		if existing.UserID == e.UserID && existing.CourseID == e.CourseID {
			return enrollment.Enrollment{}, core.NewConflictError("already enrolled in this course")
		}
	}
	e.ID = uuid.New().String()
	return repo.save(e)
}

func (repo *enrollmentRepository) UpdateEnrollment(_ context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	repo.db.enrollment.Lock()
	defer repo.db.enrollment.Unlock()

	orig, ok := repo.db.enrollment.table[e.ID]
	if !ok {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	e.UserID, e.CourseID, e.EnrolledAt = orig.UserID, orig.CourseID, orig.EnrolledAt
	return repo.save(e)
}

func (repo *enrollmentRepository) DeleteEnrollment(_ context.Context, id string) error {
	repo.db.enrollment.Lock()
	defer repo.db.enrollment.Unlock()

	if _, ok := repo.db.enrollment.table[id]; !ok {
		return enrollment.ErrNotFound
	}
	delete(repo.db.enrollment.table, id)
	repo.db.quota.release("enrollment:" + id)
	return nil
}

func (repo *enrollmentRepository) ResetCourseEnrollments(_ context.Context, courseID string) (int, error) {
	repo.db.enrollment.Lock()
	defer repo.db.enrollment.Unlock()

	var n int
	for _, e := range repo.db.enrollment.table {
		if e.CourseID != courseID {
			continue
		}
		reset := cloneEnrollment(*e)
		reset.Reset()
		if _, err := repo.save(reset); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
