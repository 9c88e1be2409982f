package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/tallman/core/mentorship"
)

type mentorshipRepository struct {
	db *DB
}

var _ mentorship.Repository = (*mentorshipRepository)(nil)

func NewMentorshipRepository(db *DB) mentorship.Repository {
	return &mentorshipRepository{db: db}
}

func (repo *mentorshipRepository) QueryLogs(_ context.Context, filter mentorship.QueryFilter) ([]mentorship.Log, error) {
	repo.db.mentorship.RLock()
	defer repo.db.mentorship.RUnlock()

	logs := make([]mentorship.Log, 0)
	for _, l := range repo.db.mentorship.table {
		if filter.Match(*l) {
			logs = append(logs, *l)
		}
	}
	sort.Slice(logs, func(i, j int) bool {
		if !logs[i].SessionDate.Equal(logs[j].SessionDate) {
			return logs[i].SessionDate.After(logs[j].SessionDate)
		}
		return logs[i].CreatedAt.After(logs[j].CreatedAt)
	})
	return logs, nil
}

func (repo *mentorshipRepository) GetLog(_ context.Context, id string) (mentorship.Log, error) {
	repo.db.mentorship.RLock()
	defer repo.db.mentorship.RUnlock()

	if l, ok := repo.db.mentorship.table[id]; ok {
		return *l, nil
	}
	return mentorship.Log{}, mentorship.ErrNotFound
}

func (repo *mentorshipRepository) CreateLog(_ context.Context, l mentorship.Log) (mentorship.Log, error) {
	repo.db.mentorship.Lock()
	defer repo.db.mentorship.Unlock()

	l.ID = uuid.New().String()
	if err := repo.db.quota.reserve("mentorship:"+l.ID, l); err != nil {
		return mentorship.Log{}, err
	}
	stored := l
	repo.db.mentorship.table[l.ID] = &stored
	return l, nil
}

func (repo *mentorshipRepository) DeleteLog(_ context.Context, id string) error {
	repo.db.mentorship.Lock()
	defer repo.db.mentorship.Unlock()

	if _, ok := repo.db.mentorship.table[id]; !ok {
		return mentorship.ErrNotFound
	}
	delete(repo.db.mentorship.table, id)
	repo.db.quota.release("mentorship:" + id)
	return nil
}
