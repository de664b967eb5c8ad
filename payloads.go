package auth

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

const (
	DefaultPhoneRegion = "US"

	msgPasswordMismatch = "Password fields don't match."
)

// RegisterRequest is the registration payload
type RegisterRequest struct {
	Email           string `json:"email" form:"email"`
	FirstName       string `json:"first_name" form:"first_name"`
	LastName        string `json:"last_name" form:"last_name"`
	Phone           string `json:"phone" form:"phone"`
	Password        string `json:"password" form:"password"`
	PasswordConfirm string `json:"password_confirm" form:"password_confirm"`
}

// Validate will validate the payload
func (r RegisterRequest) Validate(policy *PasswordPolicy, region string) error {
	subject := PasswordSubject{Email: r.Email, FirstName: r.FirstName, LastName: r.LastName}
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 150)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 150)),
		validation.Field(&r.Phone, validation.By(ValidatePhone(region))),
		validation.Field(&r.Password, validation.Required, policy.Rule(subject)),
		validation.Field(
			&r.PasswordConfirm,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

// LoginRequest is the login payload
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// RefreshRequest carries a refresh token when no cookie is present
type RefreshRequest struct {
	Refresh string `json:"refresh" form:"refresh"`
}

// ProfileUpdateRequest updates the profile. Nil fields are left untouched
// on partial updates.
type ProfileUpdateRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
}

// Validate checks the payload. Full updates require both names.
func (r ProfileUpdateRequest) Validate(partial bool, region string) error {
	nameRules := func(v *string) []validation.Rule {
		if !partial {
			return []validation.Rule{validation.NotNil, validation.Required, validation.Length(1, 150)}
		}
		return []validation.Rule{validation.NilOrNotEmpty, validation.Length(1, 150)}
	}

	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, nameRules(r.FirstName)...),
		validation.Field(&r.LastName, nameRules(r.LastName)...),
		validation.Field(&r.Phone, validation.By(ValidatePhone(region))),
	)
}

// Apply copies the provided fields onto user.
func (r ProfileUpdateRequest) Apply(user *User, region string) error {
	if r.FirstName != nil {
		user.FirstName = strings.TrimSpace(*r.FirstName)
	}
	if r.LastName != nil {
		user.LastName = strings.TrimSpace(*r.LastName)
	}
	if r.Phone != nil {
		phone, err := NormalizePhone(*r.Phone, region)
		if err != nil {
			return err
		}
		user.Phone = phone
	}
	return nil
}

// ChangePasswordRequest is the change password payload
type ChangePasswordRequest struct {
	OldPassword        string `json:"old_password"`
	NewPassword        string `json:"new_password"`
	NewPasswordConfirm string `json:"new_password_confirm"`
}

// Validate checks presence, policy and confirmation. The old password is
// verified separately against the stored hash.
func (r ChangePasswordRequest) Validate(policy *PasswordPolicy, subject PasswordSubject) error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.OldPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, policy.Rule(subject)),
		validation.Field(
			&r.NewPasswordConfirm,
			validation.Required,
			validation.By(ValidateStringEquals(r.NewPassword)),
		),
	)
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New(msgPasswordMismatch)
		}
		return nil
	}
}

// ValidatePhone accepts empty values and numbers that parse as valid for
// region.
func ValidatePhone(region string) validation.RuleFunc {
	return func(value any) error {
		var s string
		switch v := value.(type) {
		case string:
			s = v
		case *string:
			if v == nil {
				return nil
			}
			s = *v
		}
		if strings.TrimSpace(s) == "" {
			return nil
		}
		if _, err := NormalizePhone(s, region); err != nil {
			return errors.New("Enter a valid phone number.")
		}
		return nil
	}
}

// NormalizePhone formats raw as E.164. Empty input yields an empty string.
func NormalizePhone(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if region == "" {
		region = DefaultPhoneRegion
	}

	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", validationErrorFrom(err, map[string]string{"phone": "Enter a valid phone number."})
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", ValidationError(map[string]string{"phone": "Enter a valid phone number."})
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// ValidationErrorFromOzzo converts ozzo field errors to a validation error.
// Errors that are already rich pass through unchanged.
func ValidationErrorFromOzzo(err error) error {
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		var rich *goerrors.Error
		if errors.As(err, &rich) {
			return err
		}
		return validationErrorFrom(err, map[string]string{"non_field_errors": err.Error()})
	}
	return validationErrorFrom(err, FormatValidationErrorToMap(verrs))
}

// FormatValidationErrorToMap flattens ozzo errors keyed by json field name
func FormatValidationErrorToMap(verrs validation.Errors) map[string]string {
	fields := make(map[string]string, len(verrs))
	for k, v := range verrs {
		if v == nil {
			continue
		}
		fields[k] = v.Error()
	}
	return fields
}
