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
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/enrollment"
)

const enrollmentColumns = `id, user_id, course_id, progress_percent, status, completed_lesson_ids, unit_attempts,
	enrolled_at, completed_at`

var errAlreadyEnrolled = core.NewConflictError("already enrolled in this course")

type enrollmentRow struct {
	ID                 string         `db:"id"`
	UserID             string         `db:"user_id"`
	CourseID           string         `db:"course_id"`
	ProgressPercent    int            `db:"progress_percent"`
	Status             string         `db:"status"`
	CompletedLessonIDs pq.StringArray `db:"completed_lesson_ids"`
	UnitAttempts       types.JSONText `db:"unit_attempts"`
	EnrolledAt         time.Time      `db:"enrolled_at"`
	CompletedAt        null.Time      `db:"completed_at"`
}

func newEnrollmentRow(e enrollment.Enrollment) (enrollmentRow, error) {
	attempts := e.UnitAttempts
	if attempts == nil {
		attempts = map[string]int{}
	}
	data, err := json.Marshal(attempts)
	if err != nil {
		return enrollmentRow{}, errors.Wrap(err, "encoding unit attempts")
	}
	lessons := e.CompletedLessonIDs
	if lessons == nil {
		lessons = []string{}
	}
	return enrollmentRow{
		ID:                 e.ID,
		UserID:             e.UserID,
		CourseID:           e.CourseID,
		ProgressPercent:    e.ProgressPercent,
		Status:             string(e.Status),
		CompletedLessonIDs: pq.StringArray(lessons),
		UnitAttempts:       types.JSONText(data),
		EnrolledAt:         e.EnrolledAt,
		CompletedAt:        null.TimeFromPtr(e.CompletedAt),
	}, nil
}

func (r enrollmentRow) toEnrollment() (enrollment.Enrollment, error) {
	e := enrollment.Enrollment{
		ID:                 r.ID,
		UserID:             r.UserID,
		CourseID:           r.CourseID,
		ProgressPercent:    r.ProgressPercent,
		Status:             enrollment.Status(r.Status),
		CompletedLessonIDs: append([]string{}, r.CompletedLessonIDs...),
		UnitAttempts:       map[string]int{},
		EnrolledAt:         r.EnrolledAt.UTC(),
	}
	if len(r.UnitAttempts) > 0 {
		if err := r.UnitAttempts.Unmarshal(&e.UnitAttempts); err != nil {
			return enrollment.Enrollment{}, errors.Wrapf(err, "decoding unit attempts of %s", r.ID)
		}
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time.UTC()
		e.CompletedAt = &t
	}
	return e, nil
}

type enrollmentRepository struct {
	db *sqlx.DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil)

func NewEnrollmentRepository(db *sqlx.DB) enrollment.Repository {
	return &enrollmentRepository{db: db}
}

func selectEnrollments() sq.SelectBuilder {
	return psql.Select(enrollmentColumns).From("enrollment")
}

func (repo *enrollmentRepository) selectMany(ctx context.Context, qb sq.SelectBuilder) ([]enrollment.Enrollment, error) {
	var rows []enrollmentRow
	if err := selectAll(ctx, repo.db, &rows, qb.OrderBy("enrolled_at ASC", "id ASC")); err != nil {
		return nil, errors.Wrap(err, "selecting enrollments")
	}
	enrollments := make([]enrollment.Enrollment, 0, len(rows))
	for _, r := range rows {
		e, err := r.toEnrollment()
		if err != nil {
			return nil, err
		}
		enrollments = append(enrollments, e)
	}
	return enrollments, nil
}

func (repo *enrollmentRepository) selectOne(ctx context.Context, qb sq.SelectBuilder) (enrollment.Enrollment, error) {
	var row enrollmentRow
	if err := selectRow(ctx, repo.db, &row, qb); err != nil {
		if err == sql.ErrNoRows {
			return enrollment.Enrollment{}, enrollment.ErrNotFound
		}
		return enrollment.Enrollment{}, errors.Wrap(err, "selecting enrollment")
	}
	return row.toEnrollment()
}

func (repo *enrollmentRepository) QueryEnrollments(ctx context.Context, filter *enrollment.QueryFilter) ([]enrollment.Enrollment, error) {
	qb := selectEnrollments()
	if filter != nil {
		if filter.UserID != "" {
			qb = qb.Where("user_id::text = ?", filter.UserID)
		}
		if filter.CourseID != "" {
			qb = qb.Where("course_id = ?", filter.CourseID)
		}
		if filter.Status != "" {
			qb = qb.Where("status = ?", string(filter.Status))
		}
	}
	return repo.selectMany(ctx, qb)
}

func (repo *enrollmentRepository) GetEnrollment(ctx context.Context, id string) (enrollment.Enrollment, error) {
	return repo.selectOne(ctx, selectEnrollments().Where("id::text = ?", id))
}

func (repo *enrollmentRepository) GetUserEnrollment(ctx context.Context, userID, courseID string) (enrollment.Enrollment, error) {
	return repo.selectOne(ctx, selectEnrollments().Where("user_id::text = ? AND course_id = ?", userID, courseID))
}

func (repo *enrollmentRepository) CreateEnrollment(ctx context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	row, err := newEnrollmentRow(e)
	if err != nil {
		return enrollment.Enrollment{}, err
	}
	q := `INSERT INTO enrollment (user_id, course_id, progress_percent, status, completed_lesson_ids, unit_attempts,
			enrolled_at, completed_at)
		VALUES (:user_id, :course_id, :progress_percent, :status, :completed_lesson_ids, :unit_attempts,
			:enrolled_at, :completed_at)
		RETURNING ` + enrollmentColumns
	var saved enrollmentRow
	if err = namedGet(ctx, repo.db, &saved, q, row); err != nil {
		if pqCode(err) == codeUniqueViolation {
			return enrollment.Enrollment{}, errAlreadyEnrolled
		}
		return enrollment.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return saved.toEnrollment()
}

func (repo *enrollmentRepository) UpdateEnrollment(ctx context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	row, err := newEnrollmentRow(e)
	if err != nil {
		return enrollment.Enrollment{}, err
	}
	q := `UPDATE enrollment SET
			progress_percent = :progress_percent,
			status = :status,
			completed_lesson_ids = :completed_lesson_ids,
			unit_attempts = :unit_attempts,
			completed_at = :completed_at
		WHERE id = :id
		RETURNING ` + enrollmentColumns
	var saved enrollmentRow
	if err = namedGet(ctx, repo.db, &saved, q, row); err != nil {
		if err == sql.ErrNoRows {
			return enrollment.Enrollment{}, enrollment.ErrNotFound
		}
		return enrollment.Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	return saved.toEnrollment()
}

func (repo *enrollmentRepository) DeleteEnrollment(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(`DELETE FROM enrollment WHERE id::text = ?`), id)
	if err != nil {
		return errors.Wrap(err, "deleting enrollment")
	}
	if n, err := rowsAffected(res); err != nil {
		return err
	} else if n == 0 {
		return enrollment.ErrNotFound
	}
	return nil
}

func (repo *enrollmentRepository) ResetCourseEnrollments(ctx context.Context, courseID string) (int, error) {
	q := repo.db.Rebind(`UPDATE enrollment SET progress_percent = 0, status = ?, completed_lesson_ids = '{}',
		unit_attempts = '{}', completed_at = NULL WHERE course_id = ?`)
	res, err := repo.db.ExecContext(ctx, q, string(enrollment.StatusActive), courseID)
	if err != nil {
		return 0, errors.Wrap(err, "resetting enrollments")
	}
	return rowsAffected(res)
}
