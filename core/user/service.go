package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/tallman/core"
)

var (
	// errors
	ErrNotFound    = core.NewNotFoundError("user not found")
	ErrEmailExists = errors.New("This identity is already registered.")
)

type (
	Repository interface {
		// CheckEmailUniqueness returns ErrEmailExists when another user owns `email`.
		CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		// AddPoints adds `delta` (floored at 0 total) and recomputes the level.
		AddPoints(ctx context.Context, id string, delta int) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...string) error
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
		tokens  *resetTokens
	}
)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{
		repo:    repo,
		mailSvc: mailSvc,
		conf:    conf,
		tokens:  newResetTokens(conf.SecretKey, conf.PasswordResetTimeoutDelta),
	}
}

func (svc *Service) CheckUniqueness(ctx context.Context, email string, exclUsers ...User) error {
	if err := svc.repo.CheckEmailUniqueness(ctx, email, exclUsers...); err != nil {
		if err == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

// Signup registers a self-service account. It stays on hold until an admin grants a role.
func (svc *Service) Signup(ctx context.Context, su Signup) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:      su.Name,
		Email:     su.Email,
		AvatarURL: AvatarURL(su.Name),
		Roles:     []string{RoleHold},
		Level:     1,
		BranchID:  svc.conf.DefaultBranchID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(su.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "creating user")
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Welcome aboard",
		TemplateName: "welcome",
		TemplateData: struct{ Name string }{Name: usr.Name},
	})
	return usr, nil
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	roles := nu.Roles
	if len(roles) == 0 {
		roles = []string{RoleLearner}
	}
	branch := nu.BranchID
	if branch == "" {
		branch = svc.conf.DefaultBranchID
	}
	usr := User{
		Name:       nu.Name,
		Email:      nu.Email,
		AvatarURL:  AvatarURL(nu.Name),
		Roles:      roles,
		Level:      1,
		BranchID:   branch,
		Department: nu.Department,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *Service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	usr.Name = uu.Name
	usr.Email = uu.Email
	if uu.AvatarURL != "" {
		usr.AvatarURL = uu.AvatarURL
	}
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Roles != nil {
		usr.Roles = uu.Roles
	}
	if uu.BranchID != "" {
		usr.BranchID = uu.BranchID
	}
	if uu.Department != nil {
		usr.Department = core.CleanString(*uu.Department)
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// AddPoints credits (or debits) a user's points.
func (svc *Service) AddPoints(ctx context.Context, id string, delta int) (User, error) {
	return svc.repo.AddPoints(ctx, id, delta)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteUsersByID(ctx, ids...)
}

// RequestPasswordReset mails a reset link to the active user owning `email`.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}

	token := svc.tokens.issue(usr)
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: struct{ Name, ResetURL string }{
			Name:     usr.Name,
			ResetURL: svc.conf.FrontendBaseURL + "/password-reset/" + EncodeUID(usr) + "/" + token,
		},
	})
	return nil
}

func (svc *Service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	invalidErr := core.NewValidationError(errInvalidToken, core.FieldError{Field: "token", Error: errInvalidToken.Error()})

	id, err := decodeUID(data.UID)
	if err != nil {
		return invalidErr
	}
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return invalidErr
		}
		return errors.Wrap(err, "finding user by ID")
	}

	if err = svc.tokens.verify(usr, data.Token); err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "token", Error: err.Error()})
	}

	if err = usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	if _, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return errors.Wrap(err, "updating user")
	}
	return nil
}
