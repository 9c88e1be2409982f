package user

import (
	"bufio"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/tallman/core"
	appfs "github.com/trezcool/tallman/fs"
)

var (
	allRolesTag  = "allroles"
	allRolesText = "invalid roles"

	branchTag  = "branch"
	branchText = "unknown branch"

	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"

	pwdComplexityTag  = "pwdcplx"
	pwdComplexityText = "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character"
	specialRegex      = regexp.MustCompile("[^A-Za-z0-9]")

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "password cannot be similar to user attributes"

	pwdNoCommonTag  = "pwdnocommon"
	pwdNoCommonText = "password is too common"
	commonPasswords []string

	commonPasswordsPath = "assets/common-passwords.txt"
)

// InitValidators registers the user validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(allRolesTag, allRolesValidation)
	core.RegisterCustomTranslation(validate, translator, allRolesTag, allRolesText)

	_ = validate.RegisterValidation(branchTag, branchValidation)
	core.RegisterCustomTranslation(validate, translator, branchTag, branchText)

	validate.RegisterStructValidation(userStructValidation, Signup{}, NewUser{}, UpdateUser{}, ResetUserPassword{})
	core.RegisterCustomTranslation(validate, translator, pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(validate, translator, pwdNoSpaceTag, pwdNoSpaceText)
	core.RegisterCustomTranslation(validate, translator, pwdNotAllNumTag, pwdNotAllNumText)
	core.RegisterCustomTranslation(validate, translator, pwdComplexityTag, pwdComplexityText)
	core.RegisterCustomTranslation(validate, translator, pwdAttrSimTag, pwdAttrSimText)
	core.RegisterCustomTranslation(validate, translator, pwdNoCommonTag, pwdNoCommonText)
}

// LoadCommonPasswords reads the embedded list of passwords rejected by the password policy.
func LoadCommonPasswords(logger core.Logger) {
	file, err := appfs.FS.Open(commonPasswordsPath)
	if err != nil {
		logger.Error(fmt.Sprintf("opening %s: %v", commonPasswordsPath, err), err)
		return
	}
	defer file.Close()

	pwds := make([]string, 0, 64)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if pwd := strings.TrimSpace(scanner.Text()); pwd != "" {
			pwds = append(pwds, strings.ToLower(pwd))
		}
	}
	if err = scanner.Err(); err != nil {
		logger.Error(fmt.Sprintf("reading %s: %v", commonPasswordsPath, err), err)
	}
	sort.Strings(pwds)
	commonPasswords = pwds
}

// Custom Validators

// allRolesValidation checks that provided user roles are all in AllRoles
func allRolesValidation(fl validator.FieldLevel) bool {
	roles, ok := fl.Field().Interface().([]string)
	if !ok {
		return false
	}
	for _, role := range roles {
		if !core.ContainsString(AllRoles, role) {
			return false
		}
	}
	return true
}

func branchValidation(fl validator.FieldLevel) bool {
	_, ok := GetBranch(fl.Field().String())
	return ok
}

// userStructValidation applies the password policy on every struct that sets a password.
func userStructValidation(sl validator.StructLevel) {
	switch usr := sl.Current().Interface().(type) {
	case Signup:
		validatePassword(usr.Password, sl, usr.Name, usr.Email)
	case NewUser:
		validatePassword(usr.Password, sl, usr.Name, usr.Email)
	case UpdateUser:
		if usr.Password != "" {
			validatePassword(usr.Password, sl, usr.Name, usr.Email)
		}
	case ResetUserPassword:
		if usr.Password != "" {
			validatePassword(usr.Password, sl)
		}
	}
}

// validatePassword applies the password policy to provided password:
// - minLen: 8
// - no whitespace
// - no all numeric
// - complexity: 1 upper, 1 lower, 1 digit, 1 special
// - no user attrs similarity
// - no common password
func validatePassword(pwd string, sl validator.StructLevel, attrs ...string) {
	reportErr := func(tag string) {
		sl.ReportError(pwd, "password", "Password", tag, "")
	}

	var (
		digitCount         int
		hasUpper, hasLower bool
	)

	pwdLen := len([]rune(pwd))
	if pwdLen < pwdMinLen {
		reportErr(pwdMinLenTag)
		return
	}
	for _, char := range pwd {
		if unicode.IsSpace(char) {
			reportErr(pwdNoSpaceTag)
			return
		}
		if unicode.IsDigit(char) {
			digitCount++
		}
		if unicode.IsUpper(char) {
			hasUpper = true
		}
		if unicode.IsLower(char) {
			hasLower = true
		}
	}

	if digitCount == pwdLen {
		reportErr(pwdNotAllNumTag)
		return
	}

	if !(hasUpper && hasLower && digitCount > 0 && specialRegex.MatchString(pwd)) {
		reportErr(pwdComplexityTag)
		return
	}

	lpwd := strings.ToLower(pwd)
	for _, attr := range attrs {
		if attr == "" {
			continue
		}
		// compare with the local part of emails only
		if i := strings.Index(attr, "@"); i > 0 {
			attr = attr[:i]
		}
		m := difflib.NewMatcher(strings.Split(lpwd, ""), strings.Split(strings.ToLower(attr), ""))
		if m.QuickRatio() >= pwdMaxSim {
			reportErr(pwdAttrSimTag)
			return
		}
	}

	if idx := sort.SearchStrings(commonPasswords, lpwd); idx < len(commonPasswords) && commonPasswords[idx] == lpwd {
		reportErr(pwdNoCommonTag)
	}
}
