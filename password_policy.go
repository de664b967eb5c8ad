package auth

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
)

const (
	DefaultPasswordMinLength = 8

	// MaxPasswordBytes is the most bcrypt will hash.
	MaxPasswordBytes = 72
)

// PasswordPolicy checks new passwords: length bounds, not entirely
// numeric, not a common password and not similar to the user's own
// attributes.
type PasswordPolicy struct {
	MinLength int
	common    map[string]struct{}
}

// NewPasswordPolicy returns the default policy with the embedded common
// password list.
func NewPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{
		MinLength: DefaultPasswordMinLength,
		common:    loadCommonPasswords(),
	}
}

// PasswordSubject are the user attributes a password must not resemble.
type PasswordSubject struct {
	Email     string
	FirstName string
	LastName  string
}

// Check returns every violated rule, joined.
func (p *PasswordPolicy) Check(password string, subject PasswordSubject) error {
	var msgs []string

	if n := len([]rune(password)); n < p.MinLength {
		msgs = append(msgs, fmt.Sprintf("This password is too short. It must contain at least %d characters.", p.MinLength))
	}

	if len(password) > MaxPasswordBytes {
		msgs = append(msgs, fmt.Sprintf("This password is too long. It must contain at most %d bytes.", MaxPasswordBytes))
	}

	if password != "" && isAllDigits(password) {
		msgs = append(msgs, "This password is entirely numeric.")
	}

	if _, ok := p.common[strings.ToLower(strings.TrimSpace(password))]; ok {
		msgs = append(msgs, "This password is too common.")
	}

	if attr := similarAttribute(password, subject); attr != "" {
		msgs = append(msgs, fmt.Sprintf("The password is too similar to the %s.", attr))
	}

	if len(msgs) == 0 {
		return nil
	}
	return errors.New(strings.Join(msgs, " "))
}

// Rule adapts the policy to an ozzo validation rule.
func (p *PasswordPolicy) Rule(subject PasswordSubject) validation.Rule {
	return validation.By(func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		return p.Check(s, subject)
	})
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func similarAttribute(password string, subject PasswordSubject) string {
	pwd := strings.ToLower(password)
	if pwd == "" {
		return ""
	}

	local := NormalizeEmail(subject.Email)
	if i := strings.IndexByte(local, '@'); i >= 0 {
		local = local[:i]
	}

	attrs := []struct {
		name  string
		value string
	}{
		{"email address", local},
		{"first name", strings.ToLower(strings.TrimSpace(subject.FirstName))},
		{"last name", strings.ToLower(strings.TrimSpace(subject.LastName))},
	}

	for _, a := range attrs {
		if len(a.value) < 3 {
			continue
		}
		if strings.Contains(pwd, a.value) || strings.Contains(a.value, pwd) {
			return a.name
		}
	}
	return ""
}

func loadCommonPasswords() map[string]struct{} {
	out := map[string]struct{}{}
	scanner := bufio.NewScanner(bytes.NewReader(commonPasswords))
	for scanner.Scan() {
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out[line] = struct{}{}
	}
	return out
}
