package echoapi

import (
	"context"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/user"
)

const (
	tokenContextKey = "userToken"
	contextUserKey  = "user"
	jwtAudience     = "Tallman LMS"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64    `json:"oriat,omitempty"`
	Name         string   `json:"name,omitempty"`
	Email        string   `json:"email,omitempty"`
	BranchID     string   `json:"branch_id,omitempty"`
	IsLearner    bool     `json:"is_learner,omitempty"`    // -> LEARNER PORTAL
	IsInstructor bool     `json:"is_instructor,omitempty"` // -> INSTRUCTOR PORTAL
	IsAdmin      bool     `json:"is_admin,omitempty"`      // -> ADMIN CONSOLE
	IsOnHold     bool     `json:"is_on_hold,omitempty"`
	Roles        []string `json:"roles,omitempty"`
}

func jwtConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    tokenContextKey,
		Claims:        new(Claims),
	}
}

func GetUserClaims(conf *core.Config, usr user.User, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   usr.ID,
			Audience:  jwtAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Name:         usr.Name,
		Email:        usr.Email,
		BranchID:     usr.BranchID,
		IsLearner:    usr.IsLearner(),
		IsInstructor: usr.IsInstructor(),
		IsAdmin:      usr.IsAdmin(),
		IsOnHold:     usr.IsOnHold(),
		Roles:        usr.Roles,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	cfg := jwtConfig(conf)
	token := jwt.NewWithClaims(jwt.GetSigningMethod(cfg.SigningMethod), claims)

	ss, err := token.SignedString(cfg.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func authenticate(ctx context.Context, email, pwd string, svc *user.Service) (user.User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errAuthenticationFailed
		}
		return user.User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return user.User{}, errAuthenticationFailed
	}
	if !usr.IsActive {
		return user.User{}, errAccountDeactivated
	}
	usr, err = svc.SetLastLogin(ctx, usr)
	if err != nil {
		return user.User{}, errors.Wrap(err, "setting lastLogin")
	}
	return usr, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(tokenContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// getContextUser loads the authenticated user once per request.
func getContextUser(ctx echo.Context, svc *user.Service) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return user.User{}, errors.Wrap(err, "getting context claims")
	}

	usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errUnauthorized
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	if !usr.IsActive {
		return user.User{}, errAccountDeactivated
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}

func refreshToken(ctx echo.Context, conf *core.Config, svc *user.Service) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context claims")
	}

	usr, err := getContextUser(ctx, svc)
	if err != nil {
		return "", err
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	return GenerateToken(conf, GetUserClaims(conf, usr, claims.OrigIssuedAt))
}
