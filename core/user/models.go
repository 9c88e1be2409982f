package user

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/tallman/core"
)

// Roles
const (
	// Admin
	RoleAdmin      = "admin:"
	RoleSuperAdmin = "admin:super"

	// Instructor
	RoleInstructor = "instructor:"

	// Learner
	RoleLearner = "learner:"

	// Hold: registered, waiting for an admin to grant access
	RoleHold = "hold:"
)

// PointsPerLevel is the number of points needed to climb one level.
const PointsPerLevel = 250

var (
	AdminRoles      = []string{RoleAdmin, RoleSuperAdmin}
	InstructorRoles = []string{RoleInstructor}
	LearnerRoles    = []string{RoleLearner}
	AllRoles        = getAllRoles()

	rolePriorities = map[string]int{
		// Admins: 30 - 21
		RoleSuperAdmin: 30,
		RoleAdmin:      21,

		// Instructors: 20 - 11
		RoleInstructor: 11,

		// Learners: 10 - 2
		RoleLearner: 2,

		RoleHold: 1,
	}

	Roles = []Role{
		{Name: "Awaiting Approval", Value: RoleHold},
		{Name: "Learner", Value: RoleLearner},
		{Name: "Instructor", Value: RoleInstructor},
		{Name: "Admin", Value: RoleAdmin},
		{Name: "Super Admin", Value: RoleSuperAdmin},
	}
)

func getAllRoles() []string {
	all := make([]string, 0, 5)
	all = append(all, AdminRoles...)
	all = append(all, InstructorRoles...)
	all = append(all, LearnerRoles...)
	all = append(all, RoleHold)
	return all
}

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

// LevelForPoints returns the level reached with `points`: one level per PointsPerLevel, starting at 1.
func LevelForPoints(points int) int {
	if lvl := points / PointsPerLevel; lvl > 1 {
		return lvl
	}
	return 1
}

// AvatarURL is the placeholder avatar assigned to new accounts.
func AvatarURL(name string) string {
	return fmt.Sprintf("https://picsum.photos/seed/%s/200", url.PathEscape(core.Slugify(name, "-")))
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	AvatarURL    string    `json:"avatar_url"`
	Roles        []string  `json:"roles"`
	Points       int       `json:"points"`
	Level        int       `json:"level"`
	BranchID     string    `json:"branch_id"`
	Department   string    `json:"department"`
	IsActive     bool      `json:"is_active"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool {
	return u.RoleStartsWith(RoleAdmin)
}

func (u *User) IsSuperAdmin() bool {
	return core.ContainsString(u.Roles, RoleSuperAdmin)
}

func (u *User) IsInstructor() bool {
	return u.RoleStartsWith(RoleInstructor)
}

func (u *User) IsLearner() bool {
	return u.RoleStartsWith(RoleLearner)
}

// CanLearn reports whether the account was granted access to the course player.
func (u *User) CanLearn() bool {
	return u.IsLearner() || u.IsInstructor() || u.IsAdmin()
}

// IsOnHold reports whether the account is still waiting for approval.
func (u *User) IsOnHold() bool {
	return !u.CanLearn()
}

// Signup contains the information a visitor provides to register.
type Signup struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (su *Signup) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	su.Name = core.CleanString(su.Name)
	su.Email = core.CleanString(su.Email, true /* lower */)

	if err := validate.Struct(su); err != nil {
		return err
	}
	if domain := svc.conf.SignupDomain; domain != "" && !strings.HasSuffix(su.Email, "@"+domain) {
		return core.NewValidationError(nil, core.FieldError{
			Field: "email",
			Error: fmt.Sprintf("Enrollment requires a @%s domain.", domain),
		})
	}
	return svc.CheckUniqueness(ctx, su.Email)
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string   `json:"name" validate:"required"`
	Email           string   `json:"email" validate:"required,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	BranchID        string   `json:"branch_id" validate:"omitempty,branch"`
	Department      string   `json:"department"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Department = core.CleanString(nu.Department)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string   `json:"name"`
	Email           string   `json:"email" validate:"omitempty,email"`
	AvatarURL       string   `json:"avatar_url" validate:"omitempty,url"`
	IsActive        *bool    `json:"is_active"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	BranchID        string   `json:"branch_id" validate:"omitempty,branch"`
	Department      *string  `json:"department"`
	Password        string   `json:"password" validate:"omitempty"`
	PasswordConfirm string   `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc *Service) error {
	name := core.CleanString(uu.Name)
	if name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}

	email := core.CleanString(uu.Email, true /* lower */)
	if email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, uu.Email, origUsr)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type QueryFilter struct {
	Search   string
	Roles    []string
	BranchID string
	IsActive *bool
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.BranchID == "" && qf.IsActive == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.BranchID = core.CleanString(qf.BranchID, true /* lower */)
}

// GetFilter selects a single User by one of its unique keys.
type GetFilter struct {
	ID    string
	Email string
}
