package dummydb

import (
	"context"
	"sort"

	"github.com/trezcool/tallman/core/achievement"
)

type achievementRepository struct {
	db *DB
}

var _ achievement.Repository = (*achievementRepository)(nil)

func NewAchievementRepository(db *DB) achievement.Repository {
	return &achievementRepository{db: db}
}

func (repo *achievementRepository) QueryBadges(_ context.Context) ([]achievement.Badge, error) {
	repo.db.badge.RLock()
	defer repo.db.badge.RUnlock()

	badges := make([]achievement.Badge, 0, len(repo.db.badge.table))
	for _, b := range repo.db.badge.table {
		badges = append(badges, *b)
	}
	sort.Slice(badges, func(i, j int) bool {
		if !badges[i].CreatedAt.Equal(badges[j].CreatedAt) {
			return badges[i].CreatedAt.Before(badges[j].CreatedAt)
		}
		return badges[i].ID < badges[j].ID
	})
	return badges, nil
}

func (repo *achievementRepository) GetBadge(_ context.Context, id string) (achievement.Badge, error) {
	repo.db.badge.RLock()
	defer repo.db.badge.RUnlock()

	if b, ok := repo.db.badge.table[id]; ok {
		return *b, nil
	}
	return achievement.Badge{}, achievement.ErrBadgeNotFound
}

func (repo *achievementRepository) SaveBadge(_ context.Context, b achievement.Badge) (achievement.Badge, error) {
	repo.db.badge.Lock()
	defer repo.db.badge.Unlock()

	if err := repo.db.quota.reserve("badge:"+b.ID, b); err != nil {
		return achievement.Badge{}, err
	}
	stored := b
	repo.db.badge.table[b.ID] = &stored
	return b, nil
}

// DeleteBadge also takes the badge back from its holders.
func (repo *achievementRepository) DeleteBadge(_ context.Context, id string) error {
	repo.db.badge.Lock()
	defer repo.db.badge.Unlock()

	if _, ok := repo.db.badge.table[id]; !ok {
		return achievement.ErrBadgeNotFound
	}
	delete(repo.db.badge.table, id)
	repo.db.quota.release("badge:" + id)

	repo.db.userBadge.Lock()
	defer repo.db.userBadge.Unlock()
	kept := repo.db.userBadge.table[:0]
	for _, ub := range repo.db.userBadge.table {
		if ub.BadgeID == id {
			repo.db.quota.release(userBadgeKey(ub))
			continue
		}
		kept = append(kept, ub)
	}
	repo.db.userBadge.table = kept
	return nil
}

func (repo *achievementRepository) QueryUserBadges(_ context.Context, userID string) ([]achievement.EarnedBadge, error) {
	repo.db.badge.RLock()
	defer repo.db.badge.RUnlock()
	repo.db.userBadge.RLock()
	defer repo.db.userBadge.RUnlock()

	earned := make([]achievement.EarnedBadge, 0)
	for _, ub := range repo.db.userBadge.table {
		if ub.UserID != userID {
			continue
		}
		if b, ok := repo.db.badge.table[ub.BadgeID]; ok {
			earned = append(earned, achievement.EarnedBadge{Badge: *b, AwardedAt: ub.AwardedAt})
		}
	}
	sort.SliceStable(earned, func(i, j int) bool { return earned[i].AwardedAt.Before(earned[j].AwardedAt) })
	return earned, nil
}

func (repo *achievementRepository) AwardBadge(_ context.Context, ub achievement.UserBadge) (bool, error) {
	repo.db.badge.RLock()
	_, exists := repo.db.badge.table[ub.BadgeID]
	repo.db.badge.RUnlock()
	if !exists {
		return false, achievement.ErrBadgeNotFound
	}

	repo.db.userBadge.Lock()
	defer repo.db.userBadge.Unlock()
	for _, held := range repo.db.userBadge.table {
		if held.UserID == ub.UserID && held.BadgeID == ub.BadgeID {
			return false, nil
		}
	}
	if err := repo.db.quota.reserve(userBadgeKey(ub), ub); err != nil {
		return false, err
	}
	repo.db.userBadge.table = append(repo.db.userBadge.table, ub)
	return true, nil
}

func (repo *achievementRepository) QueryCertificates(_ context.Context, filter achievement.CertificateFilter) ([]achievement.Certificate, error) {
	repo.db.certificate.RLock()
	defer repo.db.certificate.RUnlock()

	certs := make([]achievement.Certificate, 0)
	for _, cert := range repo.db.certificate.table {
		if filter.Match(*cert) {
			certs = append(certs, *cert)
		}
	}
	sort.Slice(certs, func(i, j int) bool {
		if !certs[i].CompletionDate.Equal(certs[j].CompletionDate) {
			return certs[i].CompletionDate.After(certs[j].CompletionDate)
		}
		return certs[i].ID < certs[j].ID
	})
	return certs, nil
}

func (repo *achievementRepository) GetCertificate(_ context.Context, id string) (achievement.Certificate, error) {
	repo.db.certificate.RLock()
	defer repo.db.certificate.RUnlock()

	if cert, ok := repo.db.certificate.table[id]; ok {
		return *cert, nil
	}
	return achievement.Certificate{}, achievement.ErrCertificateNotFound
}

func (repo *achievementRepository) CreateCertificate(_ context.Context, cert achievement.Certificate) (achievement.Certificate, error) {
	repo.db.certificate.Lock()
	defer repo.db.certificate.Unlock()

	for _, held := range repo.db.certificate.table {
		if held.UserID == cert.UserID && held.CourseID == cert.CourseID {
			return achievement.Certificate{}, achievement.ErrCertificateExists
		}
	}
	if err := repo.db.quota.reserve("certificate:"+cert.ID, cert); err != nil {
		return achievement.Certificate{}, err
	}
	stored := cert
	repo.db.certificate.table[cert.ID] = &stored
	return cert, nil
}

func userBadgeKey(ub achievement.UserBadge) string {
	return "user_badge:" + ub.UserID + ":" + ub.BadgeID
}
