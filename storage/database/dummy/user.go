package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func cloneUser(u user.User) user.User {
	u.Roles = append([]string{}, u.Roles...)
	u.PasswordHash = append([]byte{}, u.PasswordHash...)
	return u
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.user.table))
	for _, u := range repo.db.user.table {
		users = append(users, cloneUser(*u))
	}
	return users
}

func (repo *userRepository) save(usr user.User) (user.User, error) {
	if err := repo.db.quota.reserve("user:"+usr.ID, usr); err != nil {
		return user.User{}, err
	}
	stored := cloneUser(usr)
	repo.db.user.table[usr.ID] = &stored
	return cloneUser(stored), nil
}

func (repo *userRepository) CheckEmailUniqueness(_ context.Context, email string, excludedUsers ...user.User) error {
	repo.db.user.RLock()
	defer repo.db.user.RUnlock()

	for _, usr := range repo.db.user.table {
		if usr.Email == email && !isExcluded(*usr, excludedUsers) {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.user.Lock()
	defer repo.db.user.Unlock()

	usr.ID = uuid.New().String()
	return repo.save(usr)
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	repo.db.user.RLock()
	defer repo.db.user.RUnlock()

	users := make([]user.User, 0, len(repo.db.user.table))
	for _, u := range repo.query() {
		if matchUser(u, filter) {
			users = append(users, u)
		}
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at", Ascending: true}}
	}
	sort.SliceStable(users, func(i, j int) bool {
		for _, ord := range ordering {
			if c := compareUsers(users[i], users[j], ord.Field); c != 0 {
				if ord.Ascending {
					return c < 0
				}
				return c > 0
			}
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.user.RLock()
	defer repo.db.user.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.user.table[filter.ID]; ok && (filter.Email == "" || usr.Email == filter.Email) {
			return cloneUser(*usr), nil
		}
		return user.User{}, user.ErrNotFound
	}
	if filter.Email != "" {
		for _, usr := range repo.db.user.table {
			if usr.Email == filter.Email {
				return cloneUser(*usr), nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.user.Lock()
	defer repo.db.user.Unlock()

	orig, ok := repo.db.user.table[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	// points only change through AddPoints
	usr.Points, usr.Level = orig.Points, orig.Level
	if len(usr.PasswordHash) == 0 {
		usr.PasswordHash = orig.PasswordHash
	}
	return repo.save(usr)
}

func (repo *userRepository) AddPoints(_ context.Context, id string, delta int) (user.User, error) {
	repo.db.user.Lock()
	defer repo.db.user.Unlock()

	usr, ok := repo.db.user.table[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	updated := cloneUser(*usr)
	updated.Points += delta
	if updated.Points < 0 {
		updated.Points = 0
	}
	updated.Level = user.LevelForPoints(updated.Points)
	return repo.save(updated)
}

// DeleteUsersByID also removes what belongs to the users, like the database cascades do.
func (repo *userRepository) DeleteUsersByID(_ context.Context, ids ...string) error {
	repo.db.user.Lock()
	defer repo.db.user.Unlock()
	for _, id := range ids {
		delete(repo.db.user.table, id)
		repo.db.quota.release("user:" + id)
	}

	repo.db.enrollment.Lock()
	for id, e := range repo.db.enrollment.table {
		if core.ContainsString(ids, e.UserID) {
			delete(repo.db.enrollment.table, id)
			repo.db.quota.release("enrollment:" + id)
		}
	}
	repo.db.enrollment.Unlock()

	repo.db.userBadge.Lock()
	kept := repo.db.userBadge.table[:0]
	for _, ub := range repo.db.userBadge.table {
		if core.ContainsString(ids, ub.UserID) {
			repo.db.quota.release(userBadgeKey(ub))
			continue
		}
		kept = append(kept, ub)
	}
	repo.db.userBadge.table = kept
	repo.db.userBadge.Unlock()

	repo.db.certificate.Lock()
	for id, cert := range repo.db.certificate.table {
		if core.ContainsString(ids, cert.UserID) {
			delete(repo.db.certificate.table, id)
			repo.db.quota.release("certificate:" + id)
		}
	}
	repo.db.certificate.Unlock()

	repo.db.mentorship.Lock()
	for id, l := range repo.db.mentorship.table {
		if core.ContainsString(ids, l.MentorID) || core.ContainsString(ids, l.MenteeID) {
			delete(repo.db.mentorship.table, id)
			repo.db.quota.release("mentorship:" + id)
		}
	}
	repo.db.mentorship.Unlock()

	// posts outlive their author
	repo.db.forum.Lock()
	for _, p := range repo.db.forum.table {
		if core.ContainsString(ids, p.AuthorID) {
			p.AuthorID = ""
		}
	}
	repo.db.forum.Unlock()
	return nil
}

func matchUser(u user.User, filter *user.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Search != "" {
		search := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(u.Name), search) && !strings.Contains(strings.ToLower(u.Email), search) {
			return false
		}
	}
	if len(filter.Roles) > 0 {
		var found bool
		for _, r := range filter.Roles {
			if u.RoleStartsWith(r) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.BranchID != "" && u.BranchID != filter.BranchID {
		return false
	}
	if filter.IsActive != nil && u.IsActive != *filter.IsActive {
		return false
	}
	return true
}

func compareUsers(a, b user.User, field string) int {
	switch field {
	case "name":
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "points":
		return a.Points - b.Points
	case "level":
		return a.Level - b.Level
	case "branch_id":
		return strings.Compare(a.BranchID, b.BranchID)
	case "created_at":
		return compareTimes(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano())
	case "last_login":
		return compareTimes(a.LastLogin.UnixNano(), b.LastLogin.UnixNano())
	}
	return 0
}

func compareTimes(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func isExcluded(usr user.User, excludedUsers []user.User) bool {
	for _, excl := range excludedUsers {
		if excl.ID == usr.ID {
			return true
		}
	}
	return false
}
