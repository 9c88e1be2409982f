package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tallman/core/achievement"
)

const (
	badgeColumns       = `id, name, image_url, criteria, kind, course_id, threshold, created_at`
	certificateColumns = `id, user_id, user_name, course_id, course_name, issuer, completion_date`
)

type badgeRow struct {
	ID        string      `db:"id"`
	Name      string      `db:"name"`
	ImageURL  string      `db:"image_url"`
	Criteria  string      `db:"criteria"`
	Kind      string      `db:"kind"`
	CourseID  null.String `db:"course_id"`
	Threshold int         `db:"threshold"`
	CreatedAt time.Time   `db:"created_at"`
}

func newBadgeRow(b achievement.Badge) badgeRow {
	return badgeRow{
		ID:        b.ID,
		Name:      b.Name,
		ImageURL:  b.ImageURL,
		Criteria:  b.Criteria,
		Kind:      string(b.Kind),
		CourseID:  null.NewString(b.CourseID, b.CourseID != ""),
		Threshold: b.Threshold,
		CreatedAt: b.CreatedAt,
	}
}

func (r badgeRow) toBadge() achievement.Badge {
	return achievement.Badge{
		ID:        r.ID,
		Name:      r.Name,
		ImageURL:  r.ImageURL,
		Criteria:  r.Criteria,
		Kind:      achievement.BadgeKind(r.Kind),
		CourseID:  r.CourseID.String,
		Threshold: r.Threshold,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

type earnedBadgeRow struct {
	badgeRow
	AwardedAt time.Time `db:"awarded_at"`
}

type certificateRow struct {
	ID             string    `db:"id"`
	UserID         string    `db:"user_id"`
	UserName       string    `db:"user_name"`
	CourseID       string    `db:"course_id"`
	CourseName     string    `db:"course_name"`
	Issuer         string    `db:"issuer"`
	CompletionDate time.Time `db:"completion_date"`
}

func (r certificateRow) toCertificate() achievement.Certificate {
	cert := achievement.Certificate(r)
	cert.CompletionDate = cert.CompletionDate.UTC()
	return cert
}

type achievementRepository struct {
	db *sqlx.DB
}

var _ achievement.Repository = (*achievementRepository)(nil)

func NewAchievementRepository(db *sqlx.DB) achievement.Repository {
	return &achievementRepository{db: db}
}

func (repo *achievementRepository) QueryBadges(ctx context.Context) ([]achievement.Badge, error) {
	var rows []badgeRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT `+badgeColumns+` FROM badge ORDER BY created_at ASC, id ASC`); err != nil {
		return nil, errors.Wrap(err, "selecting badges")
	}
	badges := make([]achievement.Badge, 0, len(rows))
	for _, r := range rows {
		badges = append(badges, r.toBadge())
	}
	return badges, nil
}

func (repo *achievementRepository) GetBadge(ctx context.Context, id string) (achievement.Badge, error) {
	var row badgeRow
	if err := repo.db.GetContext(ctx, &row, repo.db.Rebind(`SELECT `+badgeColumns+` FROM badge WHERE id = ?`), id); err != nil {
		if err == sql.ErrNoRows {
			return achievement.Badge{}, achievement.ErrBadgeNotFound
		}
		return achievement.Badge{}, errors.Wrap(err, "selecting badge")
	}
	return row.toBadge(), nil
}

func (repo *achievementRepository) SaveBadge(ctx context.Context, b achievement.Badge) (achievement.Badge, error) {
	q := `INSERT INTO badge (` + badgeColumns + `)
		VALUES (:id, :name, :image_url, :criteria, :kind, :course_id, :threshold, :created_at)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			image_url = EXCLUDED.image_url,
			criteria = EXCLUDED.criteria,
			kind = EXCLUDED.kind,
			course_id = EXCLUDED.course_id,
			threshold = EXCLUDED.threshold
		RETURNING ` + badgeColumns
	var saved badgeRow
	if err := namedGet(ctx, repo.db, &saved, q, newBadgeRow(b)); err != nil {
		return achievement.Badge{}, errors.Wrap(err, "saving badge")
	}
	return saved.toBadge(), nil
}

func (repo *achievementRepository) DeleteBadge(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(`DELETE FROM badge WHERE id = ?`), id)
	if err != nil {
		return errors.Wrap(err, "deleting badge")
	}
	if n, err := rowsAffected(res); err != nil {
		return err
	} else if n == 0 {
		return achievement.ErrBadgeNotFound
	}
	return nil
}

func (repo *achievementRepository) QueryUserBadges(ctx context.Context, userID string) ([]achievement.EarnedBadge, error) {
	q := repo.db.Rebind(`SELECT b.id, b.name, b.image_url, b.criteria, b.kind, b.course_id, b.threshold, b.created_at,
			ub.awarded_at
		FROM user_badge ub JOIN badge b ON b.id = ub.badge_id
		WHERE ub.user_id::text = ?
		ORDER BY ub.awarded_at ASC`)
	var rows []earnedBadgeRow
	if err := repo.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "selecting user badges")
	}
	earned := make([]achievement.EarnedBadge, 0, len(rows))
	for _, r := range rows {
		earned = append(earned, achievement.EarnedBadge{Badge: r.toBadge(), AwardedAt: r.AwardedAt.UTC()})
	}
	return earned, nil
}

func (repo *achievementRepository) AwardBadge(ctx context.Context, ub achievement.UserBadge) (bool, error) {
	q := repo.db.Rebind(`INSERT INTO user_badge (user_id, badge_id, awarded_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id, badge_id) DO NOTHING`)
	res, err := repo.db.ExecContext(ctx, q, ub.UserID, ub.BadgeID, ub.AwardedAt)
	if err != nil {
		if pqCode(err) == codeForeignKeyViolation {
			return false, achievement.ErrBadgeNotFound
		}
		return false, errors.Wrap(storageErr(err), "awarding badge")
	}
	n, err := rowsAffected(res)
	return n > 0, err
}

func (repo *achievementRepository) QueryCertificates(ctx context.Context, filter achievement.CertificateFilter) ([]achievement.Certificate, error) {
	qb := psql.Select(certificateColumns).From("certificate").OrderBy("completion_date DESC", "id ASC")
	if filter.UserID != "" {
		qb = qb.Where("user_id::text = ?", filter.UserID)
	}
	if filter.CourseID != "" {
		qb = qb.Where("course_id = ?", filter.CourseID)
	}
	var rows []certificateRow
	if err := selectAll(ctx, repo.db, &rows, qb); err != nil {
		return nil, errors.Wrap(err, "selecting certificates")
	}
	certs := make([]achievement.Certificate, 0, len(rows))
	for _, r := range rows {
		certs = append(certs, r.toCertificate())
	}
	return certs, nil
}

func (repo *achievementRepository) GetCertificate(ctx context.Context, id string) (achievement.Certificate, error) {
	var row certificateRow
	q := repo.db.Rebind(`SELECT ` + certificateColumns + ` FROM certificate WHERE id = ?`)
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return achievement.Certificate{}, achievement.ErrCertificateNotFound
		}
		return achievement.Certificate{}, errors.Wrap(err, "selecting certificate")
	}
	return row.toCertificate(), nil
}

func (repo *achievementRepository) CreateCertificate(ctx context.Context, cert achievement.Certificate) (achievement.Certificate, error) {
	q := `INSERT INTO certificate (` + certificateColumns + `)
		VALUES (:id, :user_id, :user_name, :course_id, :course_name, :issuer, :completion_date)
		RETURNING ` + certificateColumns
	var saved certificateRow
	if err := namedGet(ctx, repo.db, &saved, q, certificateRow(cert)); err != nil {
		if pqCode(err) == codeUniqueViolation {
			return achievement.Certificate{}, achievement.ErrCertificateExists
		}
		return achievement.Certificate{}, errors.Wrap(err, "inserting certificate")
	}
	return saved.toCertificate(), nil
}
