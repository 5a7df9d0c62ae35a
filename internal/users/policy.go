package users

import (
	"fmt"
	"regexp"

	"github.com/almoxweb/almoxweb/internal/shared"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// PasswordPolicy is the configurable strength rule applied on account
// creation and password change. The historical minimum is 6 characters;
// deployments wanting a stricter floor raise MinLength via config
// instead of editing code.
type PasswordPolicy struct {
	MinLength int
}

// DefaultPasswordPolicy mirrors the legacy rule set.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{MinLength: 6}
}

var (
	hasLetter = regexp.MustCompile(`[A-Za-z]`)
	hasDigit  = regexp.MustCompile(`[0-9]`)
)

// Validate checks password against the policy. The returned error is a
// shared.ValidationError listing every failed rule.
func (p PasswordPolicy) Validate(password string) error {
	min := p.MinLength
	if min <= 0 {
		min = DefaultPasswordPolicy().MinLength
	}
	fields := make(map[string]string)
	if len(password) < min {
		fields["password"] = fmt.Sprintf("must be at least %d characters", min)
	}
	if !hasLetter.MatchString(password) {
		appendRule(fields, "password", "must contain at least one letter")
	}
	if !hasDigit.MatchString(password) {
		appendRule(fields, "password", "must contain at least one digit")
	}
	if len(fields) > 0 {
		return &shared.ValidationError{Fields: fields}
	}
	return nil
}

func appendRule(fields map[string]string, field, msg string) {
	if existing, ok := fields[field]; ok {
		fields[field] = existing + "; " + msg
		return
	}
	fields[field] = msg
}

// ValidateEmail checks the address against the standard pattern.
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return shared.NewValidationError("email", "invalid email address")
	}
	return nil
}
