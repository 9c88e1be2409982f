package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/tallman/core/mentorship"
)

const mentorshipColumns = `id, mentor_id, mentee_id, topic, notes, duration_minutes, session_date, created_at`

type mentorshipRow struct {
	ID              string    `db:"id"`
	MentorID        string    `db:"mentor_id"`
	MenteeID        string    `db:"mentee_id"`
	Topic           string    `db:"topic"`
	Notes           string    `db:"notes"`
	DurationMinutes int       `db:"duration_minutes"`
	SessionDate     time.Time `db:"session_date"`
	CreatedAt       time.Time `db:"created_at"`
}

func (r mentorshipRow) toLog() mentorship.Log {
	l := mentorship.Log(r)
	l.SessionDate = l.SessionDate.UTC()
	l.CreatedAt = l.CreatedAt.UTC()
	return l
}

type mentorshipRepository struct {
	db *sqlx.DB
}

var _ mentorship.Repository = (*mentorshipRepository)(nil)

func NewMentorshipRepository(db *sqlx.DB) mentorship.Repository {
	return &mentorshipRepository{db: db}
}

func (repo *mentorshipRepository) QueryLogs(ctx context.Context, filter mentorship.QueryFilter) ([]mentorship.Log, error) {
	qb := psql.Select(mentorshipColumns).From("mentorship_log").OrderBy("session_date DESC", "id ASC")
	if filter.MentorID != "" {
		qb = qb.Where("mentor_id::text = ?", filter.MentorID)
	}
	if filter.MenteeID != "" {
		qb = qb.Where("mentee_id::text = ?", filter.MenteeID)
	}
	var rows []mentorshipRow
	if err := selectAll(ctx, repo.db, &rows, qb); err != nil {
		return nil, errors.Wrap(err, "selecting mentorship logs")
	}
	logs := make([]mentorship.Log, 0, len(rows))
	for _, r := range rows {
		logs = append(logs, r.toLog())
	}
	return logs, nil
}

func (repo *mentorshipRepository) GetLog(ctx context.Context, id string) (mentorship.Log, error) {
	var row mentorshipRow
	q := repo.db.Rebind(`SELECT ` + mentorshipColumns + ` FROM mentorship_log WHERE id::text = ?`)
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return mentorship.Log{}, mentorship.ErrNotFound
		}
		return mentorship.Log{}, errors.Wrap(err, "selecting mentorship log")
	}
	return row.toLog(), nil
}

func (repo *mentorshipRepository) CreateLog(ctx context.Context, l mentorship.Log) (mentorship.Log, error) {
	q := `INSERT INTO mentorship_log (mentor_id, mentee_id, topic, notes, duration_minutes, session_date, created_at)
		VALUES (:mentor_id, :mentee_id, :topic, :notes, :duration_minutes, :session_date, :created_at)
		RETURNING ` + mentorshipColumns
	var saved mentorshipRow
	if err := namedGet(ctx, repo.db, &saved, q, mentorshipRow(l)); err != nil {
		return mentorship.Log{}, errors.Wrap(err, "inserting mentorship log")
	}
	return saved.toLog(), nil
}

func (repo *mentorshipRepository) DeleteLog(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(`DELETE FROM mentorship_log WHERE id::text = ?`), id)
	if err != nil {
		return errors.Wrap(err, "deleting mentorship log")
	}
	if n, err := rowsAffected(res); err != nil {
		return err
	} else if n == 0 {
		return mentorship.ErrNotFound
	}
	return nil
}
