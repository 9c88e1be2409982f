package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/forum"
)

const forumPostColumns = `id, author_id, author_name, author_avatar, title, content, category, replies, is_pinned, created_at`

type forumPostRow struct {
	ID           string      `db:"id"`
	AuthorID     null.String `db:"author_id"`
	AuthorName   string      `db:"author_name"`
	AuthorAvatar string      `db:"author_avatar"`
	Title        string      `db:"title"`
	Content      string      `db:"content"`
	Category     string      `db:"category"`
	Replies      int         `db:"replies"`
	IsPinned     bool        `db:"is_pinned"`
	CreatedAt    time.Time   `db:"created_at"`
}

func newForumPostRow(p forum.Post) forumPostRow {
	return forumPostRow{
		ID:           p.ID,
		AuthorID:     null.NewString(p.AuthorID, p.AuthorID != ""),
		AuthorName:   p.AuthorName,
		AuthorAvatar: p.AuthorAvatar,
		Title:        p.Title,
		Content:      p.Content,
		Category:     p.Category,
		Replies:      p.Replies,
		IsPinned:     p.IsPinned,
		CreatedAt:    p.CreatedAt,
	}
}

func (r forumPostRow) toPost() forum.Post {
	return forum.Post{
		ID:           r.ID,
		AuthorID:     r.AuthorID.String,
		AuthorName:   r.AuthorName,
		AuthorAvatar: r.AuthorAvatar,
		Title:        r.Title,
		Content:      r.Content,
		Category:     r.Category,
		Replies:      r.Replies,
		IsPinned:     r.IsPinned,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

type forumRepository struct {
	db *sqlx.DB
}

var _ forum.Repository = (*forumRepository)(nil)

func NewForumRepository(db *sqlx.DB) forum.Repository {
	return &forumRepository{db: db}
}

func postsQuery(filter forum.QueryFilter) sq.SelectBuilder {
	qb := psql.Select(forumPostColumns).From("forum_post").OrderBy("is_pinned DESC", "created_at DESC", "id ASC")
	if filter.Category != "" {
		qb = qb.Where("category = ?", filter.Category)
	}
	return qb
}

func (repo *forumRepository) QueryPosts(ctx context.Context, filter forum.QueryFilter) ([]forum.Post, error) {
	var rows []forumPostRow
	if err := selectAll(ctx, repo.db, &rows, postsQuery(filter)); err != nil {
		return nil, errors.Wrap(err, "selecting forum posts")
	}
	posts := make([]forum.Post, 0, len(rows))
	for _, r := range rows {
		posts = append(posts, r.toPost())
	}
	return posts, nil
}

func (repo *forumRepository) GetPost(ctx context.Context, id string) (forum.Post, error) {
	var row forumPostRow
	if err := selectRow(ctx, repo.db, &row, psql.Select(forumPostColumns).From("forum_post").Where("id = ?", id)); err != nil {
		if err == sql.ErrNoRows {
			return forum.Post{}, forum.ErrNotFound
		}
		return forum.Post{}, errors.Wrap(err, "selecting forum post")
	}
	return row.toPost(), nil
}

func (repo *forumRepository) CreatePost(ctx context.Context, p forum.Post) (forum.Post, error) {
	q := `INSERT INTO forum_post (` + forumPostColumns + `)
		VALUES (:id, :author_id, :author_name, :author_avatar, :title, :content, :category, :replies, :is_pinned, :created_at)
		RETURNING ` + forumPostColumns
	var saved forumPostRow
	if err := namedGet(ctx, repo.db, &saved, q, newForumPostRow(p)); err != nil {
		if pqCode(err) == codeUniqueViolation {
			return forum.Post{}, core.NewConflictError("post already exists")
		}
		return forum.Post{}, errors.Wrap(err, "inserting forum post")
	}
	return saved.toPost(), nil
}

func (repo *forumRepository) SetPinned(ctx context.Context, id string, pinned bool) (forum.Post, error) {
	q := repo.db.Rebind(`UPDATE forum_post SET is_pinned = ? WHERE id = ? RETURNING ` + forumPostColumns)
	var row forumPostRow
	if err := repo.db.GetContext(ctx, &row, q, pinned, id); err != nil {
		if err == sql.ErrNoRows {
			return forum.Post{}, forum.ErrNotFound
		}
		return forum.Post{}, errors.Wrap(err, "pinning forum post")
	}
	return row.toPost(), nil
}

func (repo *forumRepository) DeletePost(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(`DELETE FROM forum_post WHERE id = ?`), id)
	if err != nil {
		return errors.Wrap(err, "deleting forum post")
	}
	if n, err := rowsAffected(res); err != nil {
		return err
	} else if n == 0 {
		return forum.ErrNotFound
	}
	return nil
}
