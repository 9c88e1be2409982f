// Package dummydb keeps every repository in memory. Used by tests and the "memory" storage driver.
package dummydb

import (
	"encoding/json"
	"sync"

	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/achievement"
	"github.com/trezcool/tallman/core/course"
	"github.com/trezcool/tallman/core/enrollment"
	"github.com/trezcool/tallman/core/forum"
	"github.com/trezcool/tallman/core/mentorship"
	"github.com/trezcool/tallman/core/user"
)

type (
	DB struct {
		quota       *quota
		user        *userTable
		course      *courseTable
		enrollment  *enrollmentTable
		badge       *badgeTable
		userBadge   *userBadgeTable
		certificate *certificateTable
		mentorship  *mentorshipTable
		forum       *forumTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	courseTable struct {
		sync.RWMutex
		table map[string]*course.Course
	}

	enrollmentTable struct {
		sync.RWMutex
		table map[string]*enrollment.Enrollment
	}

	badgeTable struct {
		sync.RWMutex
		table map[string]*achievement.Badge
	}

	userBadgeTable struct {
		sync.RWMutex
		table []achievement.UserBadge
	}

	certificateTable struct {
		sync.RWMutex
		table map[string]*achievement.Certificate
	}

	mentorshipTable struct {
		sync.RWMutex
		table map[string]*mentorship.Log
	}

	forumTable struct {
		sync.RWMutex
		table map[string]*forum.Post
	}

	// quota tracks the serialized size of the stored records.
	quota struct {
		sync.Mutex
		limit int // 0: unlimited
		used  int
		sizes map[string]int
	}
)

// Open returns an empty database. A positive `quotaBytes` bounds the size of the stored records.
func Open(quotaBytes int) (*DB, error) {
	db := &DB{
		quota:       &quota{limit: quotaBytes, sizes: make(map[string]int)},
		user:        &userTable{table: make(map[string]*user.User)},
		course:      &courseTable{table: make(map[string]*course.Course)},
		enrollment:  &enrollmentTable{table: make(map[string]*enrollment.Enrollment)},
		badge:       &badgeTable{table: make(map[string]*achievement.Badge)},
		userBadge:   &userBadgeTable{},
		certificate: &certificateTable{table: make(map[string]*achievement.Certificate)},
		mentorship:  &mentorshipTable{table: make(map[string]*mentorship.Log)},
		forum:       &forumTable{table: make(map[string]*forum.Post)},
	}
	return db, nil
}

// Usage returns the bytes currently accounted for and the limit (0 when unlimited).
func (db *DB) Usage() (used, limit int) {
	db.quota.Lock()
	defer db.quota.Unlock()
	return db.quota.used, db.quota.limit
}

// reserve accounts for `v` stored under `key`, failing with core.ErrStorageQuota when it does not fit.
func (q *quota) reserve(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	q.Lock()
	defer q.Unlock()
	used := q.used - q.sizes[key] + len(data)
	if q.limit > 0 && used > q.limit {
		return core.ErrStorageQuota
	}
	q.used = used
	q.sizes[key] = len(data)
	return nil
}

func (q *quota) release(key string) {
	q.Lock()
	defer q.Unlock()
	q.used -= q.sizes[key]
	delete(q.sizes, key)
}
