package achievement

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/course"
	"github.com/trezcool/tallman/core/enrollment"
	"github.com/trezcool/tallman/core/user"
)

var (
	// errors
	ErrBadgeNotFound       = core.NewNotFoundError("badge not found")
	ErrCertificateNotFound = core.NewNotFoundError("certificate not found")
	ErrCertificateExists   = core.NewConflictError("a certificate was already issued for this course")
	ErrBadgeIDExists       = errors.New("a badge with this id already exists")
)

// DefaultLeaderboardSize is used when no limit is requested.
const DefaultLeaderboardSize = 10

type (
	Repository interface {
		QueryBadges(ctx context.Context) ([]Badge, error)
		GetBadge(ctx context.Context, id string) (Badge, error)
		// SaveBadge inserts the badge or replaces the stored one with the same ID.
		SaveBadge(ctx context.Context, b Badge) (Badge, error)
		DeleteBadge(ctx context.Context, id string) error
		QueryUserBadges(ctx context.Context, userID string) ([]EarnedBadge, error)
		// AwardBadge reports false when the user already holds the badge.
		AwardBadge(ctx context.Context, ub UserBadge) (bool, error)

		QueryCertificates(ctx context.Context, filter CertificateFilter) ([]Certificate, error)
		GetCertificate(ctx context.Context, id string) (Certificate, error)
		// CreateCertificate returns ErrCertificateExists when the user already holds one for the course.
		CreateCertificate(ctx context.Context, cert Certificate) (Certificate, error)
	}

	UserStore interface {
		GetByID(ctx context.Context, id string) (user.User, error)
		Query(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error)
	}

	EnrollmentStore interface {
		Query(ctx context.Context, filter *enrollment.QueryFilter) ([]enrollment.Enrollment, error)
	}

	Service struct {
		repo        Repository
		users       UserStore
		enrollments EnrollmentStore
		mailSvc     core.EmailService
		logger      core.Logger
	}
)

func NewService(repo Repository, users UserStore, enrollments EnrollmentStore, mailSvc core.EmailService, logger core.Logger) *Service {
	return &Service{repo: repo, users: users, enrollments: enrollments, mailSvc: mailSvc, logger: logger}
}

func (svc *Service) QueryBadges(ctx context.Context) ([]Badge, error) {
	return svc.repo.QueryBadges(ctx)
}

func (svc *Service) GetBadge(ctx context.Context, id string) (Badge, error) {
	return svc.repo.GetBadge(ctx, id)
}

func (svc *Service) CreateBadge(ctx context.Context, sb SaveBadge) (Badge, error) {
	id := sb.ID
	if id == "" {
		id = "b_" + core.Slugify(sb.Name, "_")
	}
	if _, err := svc.repo.GetBadge(ctx, id); err == nil {
		return Badge{}, core.NewValidationError(ErrBadgeIDExists, core.FieldError{Field: "badge_id", Error: ErrBadgeIDExists.Error()})
	} else if errors.Cause(err) != ErrBadgeNotFound {
		return Badge{}, errors.Wrap(err, "checking badge id")
	}
	b := Badge{ID: id, CreatedAt: time.Now().UTC()}
	applyBadge(&b, sb)
	return svc.repo.SaveBadge(ctx, b)
}

func (svc *Service) UpdateBadge(ctx context.Context, orig Badge, sb SaveBadge) (Badge, error) {
	applyBadge(&orig, sb)
	return svc.repo.SaveBadge(ctx, orig)
}

// SaveBadge stores `b` as is. Used by seeding.
func (svc *Service) SaveBadge(ctx context.Context, b Badge) (Badge, error) {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	if b.ImageURL == "" {
		b.ImageURL = badgeImageURL(b.Name)
	}
	return svc.repo.SaveBadge(ctx, b)
}

func (svc *Service) DeleteBadge(ctx context.Context, id string) error {
	return svc.repo.DeleteBadge(ctx, id)
}

func (svc *Service) UserBadges(ctx context.Context, userID string) ([]EarnedBadge, error) {
	return svc.repo.QueryUserBadges(ctx, userID)
}

func (svc *Service) Certificates(ctx context.Context, filter CertificateFilter) ([]Certificate, error) {
	return svc.repo.QueryCertificates(ctx, filter)
}

func (svc *Service) GetCertificate(ctx context.Context, id string) (Certificate, error) {
	return svc.repo.GetCertificate(ctx, id)
}

// OnPointsChanged awards the point badges `usr` qualifies for.
func (svc *Service) OnPointsChanged(ctx context.Context, usr user.User) error {
	_, err := svc.EvaluatePointBadges(ctx, usr)
	return err
}

// EvaluatePointBadges awards every points badge reached by `usr` and returns the new ones.
func (svc *Service) EvaluatePointBadges(ctx context.Context, usr user.User) ([]Badge, error) {
	return svc.award(ctx, usr.ID, func(b Badge) bool {
		return b.Kind == KindPoints && b.Earned(usr.Points, 0, "")
	})
}

// OnCourseCompleted issues the course certificate once, awards completion badges and notifies the learner.
func (svc *Service) OnCourseCompleted(ctx context.Context, e enrollment.Enrollment, c course.Course) error {
	usr, err := svc.users.GetByID(ctx, e.UserID)
	if err != nil {
		return errors.Wrap(err, "finding learner")
	}

	completedAt := time.Now().UTC()
	if e.CompletedAt != nil {
		completedAt = *e.CompletedAt
	}
	cert, err := svc.repo.CreateCertificate(ctx, Certificate{
		ID:             NewCertificateID(),
		UserID:         usr.ID,
		UserName:       usr.Name,
		CourseID:       c.ID,
		CourseName:     c.Name,
		Issuer:         Issuer,
		CompletionDate: completedAt,
	})
	switch {
	case err == nil:
		svc.sendCertificate(usr, cert)
	case errors.Cause(err) != ErrCertificateExists:
		return errors.Wrap(err, "issuing certificate")
	}

	completed, err := svc.enrollments.Query(ctx, &enrollment.QueryFilter{UserID: usr.ID, Status: enrollment.StatusCompleted})
	if err != nil {
		return errors.Wrap(err, "counting completed courses")
	}
	count := len(completed)
	_, err = svc.award(ctx, usr.ID, func(b Badge) bool {
		return b.Kind != KindPoints && b.Earned(0, count, c.ID)
	})
	return err
}

// Leaderboard ranks learners by points, optionally within a branch.
func (svc *Service) Leaderboard(ctx context.Context, limit int, branchID string) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardSize
	}
	active := true
	users, err := svc.users.Query(ctx,
		&user.QueryFilter{BranchID: branchID, IsActive: &active},
		[]core.DBOrdering{{Field: "points"}, {Field: "name", Ascending: true}},
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}

	entries := make([]LeaderboardEntry, 0, limit)
	for _, usr := range users {
		if usr.IsOnHold() {
			continue
		}
		entries = append(entries, LeaderboardEntry{
			Rank:      len(entries) + 1,
			UserID:    usr.ID,
			Name:      usr.Name,
			AvatarURL: usr.AvatarURL,
			BranchID:  usr.BranchID,
			Points:    usr.Points,
			Level:     usr.Level,
		})
		if len(entries) == limit {
			break
		}
	}
	return entries, nil
}

func (svc *Service) award(ctx context.Context, userID string, eligible func(Badge) bool) ([]Badge, error) {
	badges, err := svc.repo.QueryBadges(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying badges")
	}
	var awarded []Badge
	now := time.Now().UTC()
	for _, b := range badges {
		if !eligible(b) {
			continue
		}
		ok, err := svc.repo.AwardBadge(ctx, UserBadge{UserID: userID, BadgeID: b.ID, AwardedAt: now})
		if err != nil {
			return awarded, errors.Wrapf(err, "awarding badge %s", b.ID)
		}
		if ok {
			awarded = append(awarded, b)
		}
	}
	return awarded, nil
}

func (svc *Service) sendCertificate(usr user.User, cert Certificate) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      fmt.Sprintf("Certificate: %s", cert.CourseName),
		TemplateName: "certificate_issued",
		TemplateData: struct {
			Name, CourseName, CompletionDate, CertificateID, Issuer string
		}{
			Name:           usr.Name,
			CourseName:     cert.CourseName,
			CompletionDate: cert.CompletionDate.Format("January 2, 2006"),
			CertificateID:  cert.ID,
			Issuer:         cert.Issuer,
		},
	})
}

func applyBadge(b *Badge, sb SaveBadge) {
	b.Name = sb.Name
	b.ImageURL = sb.ImageURL
	if b.ImageURL == "" {
		b.ImageURL = badgeImageURL(sb.Name)
	}
	b.Criteria = sb.Criteria
	b.Kind = sb.Kind
	b.CourseID = sb.CourseID
	b.Threshold = sb.Threshold
}
