package dummydb

import (
	"context"

	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/forum"
)

type forumRepository struct {
	db *DB
}

var _ forum.Repository = (*forumRepository)(nil)

func NewForumRepository(db *DB) forum.Repository {
	return &forumRepository{db: db}
}

func (repo *forumRepository) QueryPosts(_ context.Context, filter forum.QueryFilter) ([]forum.Post, error) {
	repo.db.forum.RLock()
	defer repo.db.forum.RUnlock()

	posts := make([]forum.Post, 0)
	for _, p := range repo.db.forum.table {
		if filter.Match(*p) {
			posts = append(posts, *p)
		}
	}
	forum.SortPosts(posts)
	return posts, nil
}

func (repo *forumRepository) GetPost(_ context.Context, id string) (forum.Post, error) {
	repo.db.forum.RLock()
	defer repo.db.forum.RUnlock()

	if p, ok := repo.db.forum.table[id]; ok {
		return *p, nil
	}
	return forum.Post{}, forum.ErrNotFound
}

func (repo *forumRepository) CreatePost(_ context.Context, p forum.Post) (forum.Post, error) {
	repo.db.forum.Lock()
	defer repo.db.forum.Unlock()

	if _, ok := repo.db.forum.table[p.ID]; ok {
		return forum.Post{}, core.NewConflictError("post already exists")
	}
	if err := repo.db.quota.reserve("forum:"+p.ID, p); err != nil {
		return forum.Post{}, err
	}
	stored := p
	repo.db.forum.table[p.ID] = &stored
	return p, nil
}

func (repo *forumRepository) SetPinned(_ context.Context, id string, pinned bool) (forum.Post, error) {
	repo.db.forum.Lock()
	defer repo.db.forum.Unlock()

	p, ok := repo.db.forum.table[id]
	if !ok {
		return forum.Post{}, forum.ErrNotFound
	}
	p.IsPinned = pinned
	return *p, nil
}

func (repo *forumRepository) DeletePost(_ context.Context, id string) error {
	repo.db.forum.Lock()
	defer repo.db.forum.Unlock()

	if _, ok := repo.db.forum.table[id]; !ok {
		return forum.ErrNotFound
	}
	delete(repo.db.forum.table, id)
	repo.db.quota.release("forum:" + id)
	return nil
}
