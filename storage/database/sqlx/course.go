package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/tallman/core/course"
)

const courseColumns = `id, name, short_description, thumbnail_url, category_id, instructor_id, status, difficulty,
	enrolled_count, rating, is_base, modules, created_at, updated_at`

type courseRow struct {
	ID               string         `db:"id"`
	Name             string         `db:"name"`
	ShortDescription string         `db:"short_description"`
	ThumbnailURL     string         `db:"thumbnail_url"`
	CategoryID       string         `db:"category_id"`
	InstructorID     string         `db:"instructor_id"`
	Status           string         `db:"status"`
	Difficulty       string         `db:"difficulty"`
	EnrolledCount    int            `db:"enrolled_count"`
	Rating           float64        `db:"rating"`
	IsBase           bool           `db:"is_base"`
	Modules          types.JSONText `db:"modules"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func newCourseRow(c course.Course) (courseRow, error) {
	modules := c.Modules
	if modules == nil {
		modules = []course.Module{}
	}
	data, err := json.Marshal(modules)
	if err != nil {
		return courseRow{}, errors.Wrap(err, "encoding modules")
	}
	return courseRow{
		ID:               c.ID,
		Name:             c.Name,
		ShortDescription: c.ShortDescription,
		ThumbnailURL:     c.ThumbnailURL,
		CategoryID:       c.CategoryID,
		InstructorID:     c.InstructorID,
		Status:           string(c.Status),
		Difficulty:       string(c.Difficulty),
		EnrolledCount:    c.EnrolledCount,
		Rating:           c.Rating,
		IsBase:           c.IsBase,
		Modules:          types.JSONText(data),
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}, nil
}

func (r courseRow) toCourse() (course.Course, error) {
	c := course.Course{
		ID:               r.ID,
		Name:             r.Name,
		ShortDescription: r.ShortDescription,
		ThumbnailURL:     r.ThumbnailURL,
		CategoryID:       r.CategoryID,
		InstructorID:     r.InstructorID,
		Status:           course.Status(r.Status),
		Difficulty:       course.Difficulty(r.Difficulty),
		EnrolledCount:    r.EnrolledCount,
		Rating:           r.Rating,
		IsBase:           r.IsBase,
		Modules:          []course.Module{},
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
	if len(r.Modules) > 0 {
		if err := r.Modules.Unmarshal(&c.Modules); err != nil {
			return course.Course{}, errors.Wrapf(err, "decoding modules of %s", r.ID)
		}
	}
	return c, nil
}

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *sqlx.DB) course.Repository {
	return &courseRepository{db: db}
}

func coursesQuery(filter *course.QueryFilter) sq.SelectBuilder {
	qb := psql.Select(courseColumns).From("course").OrderBy("created_at ASC", "id ASC")
	if filter != nil {
		if filter.Search != "" {
			qb = qb.Where("name ILIKE ?", likePattern(filter.Search))
		}
		if filter.CategoryID != "" {
			qb = qb.Where("category_id = ?", filter.CategoryID)
		}
		if filter.Difficulty != "" {
			qb = qb.Where("lower(difficulty) = lower(?)", string(filter.Difficulty))
		}
		if len(filter.Statuses) > 0 {
			statuses := make([]string, 0, len(filter.Statuses))
			for _, st := range filter.Statuses {
				statuses = append(statuses, string(st))
			}
			qb = qb.Where("status = ANY(?)", pq.StringArray(statuses))
		}
	}
	return qb
}

func (repo *courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter) ([]course.Course, error) {
	var rows []courseRow
	if err := selectAll(ctx, repo.db, &rows, coursesQuery(filter)); err != nil {
		return nil, errors.Wrap(err, "selecting courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, r := range rows {
		c, err := r.toCourse()
		if err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, id string) (course.Course, error) {
	var row courseRow
	q := repo.db.Rebind(`SELECT ` + courseColumns + ` FROM course WHERE id = ?`)
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, errors.Wrap(err, "selecting course")
	}
	return row.toCourse()
}

// SaveCourse keeps the stored enrolled_count and created_at of an existing course.
func (repo *courseRepository) SaveCourse(ctx context.Context, c course.Course) (course.Course, error) {
	row, err := newCourseRow(c)
	if err != nil {
		return course.Course{}, err
	}
	q := `INSERT INTO course (` + courseColumns + `)
		VALUES (:id, :name, :short_description, :thumbnail_url, :category_id, :instructor_id, :status, :difficulty,
			:enrolled_count, :rating, :is_base, :modules, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			short_description = EXCLUDED.short_description,
			thumbnail_url = EXCLUDED.thumbnail_url,
			category_id = EXCLUDED.category_id,
			instructor_id = EXCLUDED.instructor_id,
			status = EXCLUDED.status,
			difficulty = EXCLUDED.difficulty,
			rating = EXCLUDED.rating,
			is_base = EXCLUDED.is_base,
			modules = EXCLUDED.modules,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + courseColumns
	var saved courseRow
	if err = namedGet(ctx, repo.db, &saved, q, row); err != nil {
		return course.Course{}, errors.Wrap(err, "saving course")
	}
	return saved.toCourse()
}

// DeleteCourse cascades to the enrollments of the course.
func (repo *courseRepository) DeleteCourse(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(`DELETE FROM course WHERE id = ?`), id)
	if err != nil {
		return errors.Wrap(err, "deleting course")
	}
	if n, err := rowsAffected(res); err != nil {
		return err
	} else if n == 0 {
		return course.ErrNotFound
	}
	return nil
}

func (repo *courseRepository) AdjustEnrolledCount(ctx context.Context, id string, delta int) error {
	q := repo.db.Rebind(`UPDATE course SET enrolled_count = GREATEST(enrolled_count + ?, 0) WHERE id = ?`)
	res, err := repo.db.ExecContext(ctx, q, delta, id)
	if err != nil {
		return errors.Wrap(err, "updating enrolled count")
	}
	if n, err := rowsAffected(res); err != nil {
		return err
	} else if n == 0 {
		return course.ErrNotFound
	}
	return nil
}
