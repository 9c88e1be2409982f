package user

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

const tokenSalt = "tallman.core.user.reset_token"

var (
	// errors
	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

// EncodeUID base64 encodes the user ID carried by reset links.
func EncodeUID(usr User) string {
	return base64.RawURLEncoding.EncodeToString([]byte(usr.ID))
}

func decodeUID(uid string) (string, error) {
	id, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", err
	}
	return string(id), nil
}

// resetTokens issues password reset tokens of the form `<expiry, base 36 unix seconds>-<signature>`.
// The signature covers the password hash and the last login, so a token dies as soon as
// the password changes or the user signs in.
type resetTokens struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func newResetTokens(secretKey string, ttl time.Duration) *resetTokens {
	key := sha256.Sum256([]byte(tokenSalt + secretKey))
	return &resetTokens{key: key[:], ttl: ttl, now: time.Now}
}

func (rt *resetTokens) issue(usr User) string {
	expiry := strconv.FormatInt(rt.now().Add(rt.ttl).Unix(), 36)
	return expiry + "-" + rt.sign(usr, expiry)
}

func (rt *resetTokens) verify(usr User, token string) error {
	expiry, sig, ok := strings.Cut(token, "-")
	if !ok || expiry == "" || sig == "" {
		return errInvalidToken
	}
	exp, err := strconv.ParseInt(expiry, 36, 64)
	if err != nil {
		return errInvalidToken
	}
	if !hmac.Equal([]byte(sig), []byte(rt.sign(usr, expiry))) {
		return errInvalidToken
	}
	if rt.now().Unix() > exp {
		return errTokenExpired
	}
	return nil
}

func (rt *resetTokens) sign(usr User, expiry string) string {
	h := hmac.New(sha256.New, rt.key)
	for _, part := range [][]byte{
		[]byte(usr.ID),
		usr.PasswordHash,
		[]byte(lastLoginStamp(usr)),
		[]byte(expiry),
	} {
		h.Write(part)
		h.Write([]byte{0})
	}
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func lastLoginStamp(usr User) string {
	if usr.LastLogin.IsZero() {
		return ""
	}
	return usr.LastLogin.UTC().Format(time.RFC3339Nano)
}
