package dummydb

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/trezcool/tallman/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db}
}

// cloneCourse deep copies `c` so callers never share modules with the table.
func cloneCourse(c course.Course) course.Course {
	data, err := json.Marshal(c)
	if err != nil {
		return c
	}
	var cp course.Course
	if err = json.Unmarshal(data, &cp); err != nil {
		return c
	}
	cp.CreatedAt, cp.UpdatedAt = c.CreatedAt, c.UpdatedAt
	return cp
}

func (repo *courseRepository) QueryCourses(_ context.Context, filter *course.QueryFilter) ([]course.Course, error) {
	repo.db.course.RLock()
	defer repo.db.course.RUnlock()

	courses := make([]course.Course, 0, len(repo.db.course.table))
	for _, c := range repo.db.course.table {
		if filter.Match(*c) {
			courses = append(courses, cloneCourse(*c))
		}
	}
	sort.Slice(courses, func(i, j int) bool {
		if !courses[i].CreatedAt.Equal(courses[j].CreatedAt) {
			return courses[i].CreatedAt.Before(courses[j].CreatedAt)
		}
		return courses[i].ID < courses[j].ID
	})
	return courses, nil
}

func (repo *courseRepository) GetCourse(_ context.Context, id string) (course.Course, error) {
	repo.db.course.RLock()
	defer repo.db.course.RUnlock()

	if c, ok := repo.db.course.table[id]; ok {
		return cloneCourse(*c), nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) SaveCourse(_ context.Context, c course.Course) (course.Course, error) {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()

	if orig, ok := repo.db.course.table[c.ID]; ok {
		c.EnrolledCount = orig.EnrolledCount
		c.CreatedAt = orig.CreatedAt
	}
	if err := repo.db.quota.reserve("course:"+c.ID, c); err != nil {
		return course.Course{}, err
	}
	stored := cloneCourse(c)
	repo.db.course.table[c.ID] = &stored
	return cloneCourse(stored), nil
}

// DeleteCourse also removes the course enrollments.
func (repo *courseRepository) DeleteCourse(_ context.Context, id string) error {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()

	if _, ok := repo.db.course.table[id]; !ok {
		return course.ErrNotFound
	}
	delete(repo.db.course.table, id)
	repo.db.quota.release("course:" + id)

	repo.db.enrollment.Lock()
	defer repo.db.enrollment.Unlock()
	for eid, e := range repo.db.enrollment.table {
		if e.CourseID == id {
			delete(repo.db.enrollment.table, eid)
			repo.db.quota.release("enrollment:" + eid)
		}
	}
	return nil
}

func (repo *courseRepository) AdjustEnrolledCount(_ context.Context, id string, delta int) error {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()

	c, ok := repo.db.course.table[id]
	if !ok {
		return course.ErrNotFound
	}
	c.EnrolledCount += delta
	if c.EnrolledCount < 0 {
		c.EnrolledCount = 0
	}
	return nil
}
