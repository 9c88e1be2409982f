// Package forum is the community board where technicians share field knowledge.
package forum

import (
	"context"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/user"
)

var (
	// errors
	ErrNotFound  = core.NewNotFoundError("post not found")
	ErrForbidden = core.NewForbiddenError("only the author or an admin may remove this post")
)

// Channels are the categories a post can be filed under.
var Channels = []string{"General", "Lineman Rigging", "HV Testing", "Management", "Epicor P21", "Engineering & Tech"}

func IsChannel(name string) bool {
	return core.ContainsString(Channels, name)
}

type Post struct {
	ID           string    `json:"id"`
	AuthorID     string    `json:"author_id,omitempty"`
	AuthorName   string    `json:"author_name"`
	AuthorAvatar string    `json:"author_avatar"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Category     string    `json:"category"`
	Replies      int       `json:"replies"`
	IsPinned     bool      `json:"is_pinned"`
	CreatedAt    time.Time `json:"timestamp"`
}

// SortPosts orders pinned posts first, then the newest.
func SortPosts(posts []Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].IsPinned != posts[j].IsPinned {
			return posts[i].IsPinned
		}
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		}
		return posts[i].ID < posts[j].ID
	})
}

type NewPost struct {
	Title    string `json:"title" validate:"required,max=255"`
	Content  string `json:"content" validate:"required"`
	Category string `json:"category"`
}

func (np *NewPost) Validate(validate *validator.Validate) error {
	np.Title = core.CleanString(np.Title)
	np.Content = core.CleanString(np.Content)
	np.Category = core.CleanString(np.Category)
	if np.Category == "" {
		np.Category = Channels[0]
	}
	if err := validate.Struct(np); err != nil {
		return err
	}
	if !IsChannel(np.Category) {
		return core.NewValidationError(
			errors.Errorf("unknown channel %q", np.Category),
			core.FieldError{Field: "category", Error: "unknown channel"},
		)
	}
	return nil
}

type QueryFilter struct {
	Category string
}

func (qf QueryFilter) Match(p Post) bool {
	return qf.Category == "" || p.Category == qf.Category
}

type (
	Repository interface {
		// QueryPosts returns the posts matching `filter`, pinned first then newest.
		QueryPosts(ctx context.Context, filter QueryFilter) ([]Post, error)
		GetPost(ctx context.Context, id string) (Post, error)
		CreatePost(ctx context.Context, p Post) (Post, error)
		SetPinned(ctx context.Context, id string, pinned bool) (Post, error)
		DeletePost(ctx context.Context, id string) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Post, error) {
	return svc.repo.QueryPosts(ctx, filter)
}

func (svc *Service) Get(ctx context.Context, id string) (Post, error) {
	return svc.repo.GetPost(ctx, id)
}

// Create opens a discussion signed by `author`.
func (svc *Service) Create(ctx context.Context, author user.User, np NewPost) (Post, error) {
	return svc.repo.CreatePost(ctx, Post{
		ID:           uuid.New().String(),
		AuthorID:     author.ID,
		AuthorName:   author.Name,
		AuthorAvatar: author.AvatarURL,
		Title:        np.Title,
		Content:      np.Content,
		Category:     np.Category,
		CreatedAt:    time.Now().UTC(),
	})
}

// Import stores `p` as is. Used to install the seeded discussions.
func (svc *Service) Import(ctx context.Context, p Post) (Post, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return svc.repo.CreatePost(ctx, p)
}

func (svc *Service) Pin(ctx context.Context, id string, pinned bool) (Post, error) {
	return svc.repo.SetPinned(ctx, id, pinned)
}

// Delete removes a post written by `actor`, or any post when `actor` is an admin.
func (svc *Service) Delete(ctx context.Context, actor user.User, id string) error {
	p, err := svc.repo.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if p.AuthorID != actor.ID && !actor.IsAdmin() {
		return ErrForbidden
	}
	return svc.repo.DeletePost(ctx, id)
}
