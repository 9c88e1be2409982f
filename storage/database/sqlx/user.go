package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/user"
)

const userColumns = `id, name, email, avatar_url, roles, points, level, branch_id, department, is_active,
	password_hash, created_at, updated_at, last_login`

var userOrderFields = []string{"name", "email", "points", "level", "branch_id", "created_at", "last_login"}

type userRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Email        string         `db:"email"`
	AvatarURL    string         `db:"avatar_url"`
	Roles        pq.StringArray `db:"roles"`
	Points       int            `db:"points"`
	Level        int            `db:"level"`
	BranchID     string         `db:"branch_id"`
	Department   string         `db:"department"`
	IsActive     bool           `db:"is_active"`
	PasswordHash []byte         `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
}

func newUserRow(u user.User) userRow {
	return userRow{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		AvatarURL:    u.AvatarURL,
		Roles:        pq.StringArray(u.Roles),
		Points:       u.Points,
		Level:        u.Level,
		BranchID:     u.BranchID,
		Department:   u.Department,
		IsActive:     u.IsActive,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
		LastLogin:    null.NewTime(u.LastLogin, !u.LastLogin.IsZero()),
	}
}

func (r userRow) toUser() user.User {
	u := user.User{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		AvatarURL:    r.AvatarURL,
		Roles:        []string(r.Roles),
		Points:       r.Points,
		Level:        r.Level,
		BranchID:     r.BranchID,
		Department:   r.Department,
		IsActive:     r.IsActive,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if r.LastLogin.Valid {
		u.LastLogin = r.LastLogin.Time.UTC()
	}
	if u.Roles == nil {
		u.Roles = []string{}
	}
	return u
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...user.User) error {
	ids := make([]string, 0, len(excludedUsers))
	for _, usr := range excludedUsers {
		ids = append(ids, usr.ID)
	}
	var count int
	q := repo.db.Rebind(`SELECT COUNT(*) FROM "user" WHERE email = ? AND NOT (id::text = ANY(?))`)
	if err := repo.db.GetContext(ctx, &count, q, email, pq.StringArray(ids)); err != nil {
		return errors.Wrap(err, "counting users")
	}
	if count > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	var row userRow
	q := `INSERT INTO "user" (name, email, avatar_url, roles, points, level, branch_id, department, is_active,
			password_hash, created_at, updated_at, last_login)
		VALUES (:name, :email, :avatar_url, :roles, :points, :level, :branch_id, :department, :is_active,
			:password_hash, :created_at, :updated_at, :last_login)
		RETURNING ` + userColumns
	if err := namedGet(ctx, repo.db, &row, q, newUserRow(usr)); err != nil {
		if pqCode(err) == codeUniqueViolation {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return row.toUser(), nil
}

func usersQuery(filter *user.QueryFilter, ordering []core.DBOrdering) sq.SelectBuilder {
	qb := psql.Select(userColumns).From(`"user"`)
	if filter != nil {
		if filter.Search != "" {
			pattern := likePattern(filter.Search)
			qb = qb.Where("(name ILIKE ? OR email ILIKE ?)", pattern, pattern)
		}
		if len(filter.Roles) > 0 {
			prefixes := make([]string, 0, len(filter.Roles))
			for _, r := range filter.Roles {
				prefixes = append(prefixes, r+"%")
			}
			qb = qb.Where("EXISTS (SELECT 1 FROM unnest(roles) AS r WHERE r LIKE ANY(?))", pq.StringArray(prefixes))
		}
		if filter.BranchID != "" {
			qb = qb.Where("branch_id = ?", filter.BranchID)
		}
		if filter.IsActive != nil {
			qb = qb.Where("is_active = ?", *filter.IsActive)
		}
	}

	orderBy := core.OrderByClause(ordering, userOrderFields...)
	if orderBy == "" {
		orderBy = "created_at ASC"
	}
	return qb.OrderBy(orderBy, "id ASC")
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	var rows []userRow
	if err := selectAll(ctx, repo.db, &rows, usersQuery(filter, ordering)); err != nil {
		return nil, errors.Wrap(err, "selecting users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toUser())
	}
	return users, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	if filter.ID == "" && filter.Email == "" {
		return user.User{}, user.ErrNotFound
	}
	qb := psql.Select(userColumns).From(`"user"`)
	if filter.ID != "" {
		qb = qb.Where("id::text = ?", filter.ID)
	}
	if filter.Email != "" {
		qb = qb.Where("email = ?", filter.Email)
	}

	var row userRow
	if err := selectRow(ctx, repo.db, &row, qb); err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "selecting user")
	}
	return row.toUser(), nil
}

// UpdateUser leaves points and level alone: they only change through AddPoints.
func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	set := `name = :name, email = :email, avatar_url = :avatar_url, roles = :roles, branch_id = :branch_id,
		department = :department, is_active = :is_active, updated_at = :updated_at, last_login = :last_login`
	if len(usr.PasswordHash) > 0 {
		set += ", password_hash = :password_hash"
	}

	var row userRow
	q := `UPDATE "user" SET ` + set + ` WHERE id = :id RETURNING ` + userColumns
	if err := namedGet(ctx, repo.db, &row, q, newUserRow(usr)); err != nil {
		switch {
		case err == sql.ErrNoRows:
			return user.User{}, user.ErrNotFound
		case pqCode(err) == codeUniqueViolation:
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return row.toUser(), nil
}

func (repo *userRepository) AddPoints(ctx context.Context, id string, delta int) (user.User, error) {
	q := repo.db.Rebind(fmt.Sprintf(
		`UPDATE "user" SET points = GREATEST(points + ?, 0), level = GREATEST(GREATEST(points + ?, 0) / %d, 1)
		WHERE id::text = ? RETURNING %s`,
		user.PointsPerLevel, userColumns,
	))
	var row userRow
	if err := repo.db.GetContext(ctx, &row, q, delta, delta, id); err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "adding points")
	}
	return row.toUser(), nil
}

// DeleteUsersByID relies on the foreign keys to cascade to what belongs to the users.
func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	q := repo.db.Rebind(`DELETE FROM "user" WHERE id::text = ANY(?)`)
	if _, err := repo.db.ExecContext(ctx, q, pq.StringArray(ids)); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}
