package authclient

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used to parse numbers without a country prefix.
const DefaultPhoneRegion = "US"

// Credentials is the login payload.
type Credentials struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

// Validate checks the login input before any request is made.
func (c Credentials) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Identifier, validation.Required, validation.Length(1, 254)),
		validation.Field(&c.Secret, validation.Required, validation.Length(1, 256)),
	)
	if err != nil {
		return newValidationError(err, "invalid login input")
	}
	return nil
}

// ProfileUpdate is a partial profile change; empty fields are not sent.
type ProfileUpdate struct {
	Name         string `json:"name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	ProfileImage string `json:"profile_image,omitempty"`
}

// IsEmpty reports an update with nothing to send.
func (p ProfileUpdate) IsEmpty() bool {
	return p == ProfileUpdate{}
}

// Normalize trims fields and rewrites the phone number to E.164.
func (p *ProfileUpdate) Normalize(region string) error {
	p.Name = strings.TrimSpace(p.Name)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.ProfileImage = strings.TrimSpace(p.ProfileImage)
	p.Phone = strings.TrimSpace(p.Phone)

	if p.Phone == "" {
		return nil
	}

	phone, err := NormalizePhone(p.Phone, region)
	if err != nil {
		return err
	}
	p.Phone = phone
	return nil
}

// Validate checks a normalized update.
func (p ProfileUpdate) Validate() error {
	if p.IsEmpty() {
		return newValidationError(errors.New("no fields to update"), "invalid profile update")
	}
	err := validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Length(1, 100)),
		validation.Field(&p.LastName, validation.Length(1, 100)),
		validation.Field(&p.Email, validation.Length(6, 254), is.Email),
		validation.Field(&p.ProfileImage, is.URL),
	)
	if err != nil {
		return newValidationError(err, "invalid profile update")
	}
	return nil
}

// NormalizePhone parses number in region and formats it as E.164.
func NormalizePhone(number, region string) (string, error) {
	if region == "" {
		region = DefaultPhoneRegion
	}
	parsed, err := phonenumbers.Parse(number, strings.ToUpper(region))
	if err != nil {
		return "", newValidationError(err, "invalid phone number")
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", newValidationError(errors.New("number is not valid for its region"), "invalid phone number")
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}

// PasswordChange is the body of PUT /auth/updatepassword.
type PasswordChange struct {
	CurrentSecret string `json:"currentSecret"`
	NewSecret     string `json:"newSecret"`
}

// MinSecretLength is the shortest secret accepted locally.
var MinSecretLength = 6

func (p PasswordChange) Validate() error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.CurrentSecret, validation.Required),
		validation.Field(&p.NewSecret,
			validation.Required,
			validation.Length(MinSecretLength, 128),
			validation.By(differentFrom(p.CurrentSecret)),
		),
	)
	if err != nil {
		return newValidationError(err, "invalid password change")
	}
	return nil
}

func differentFrom(other string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s != "" && s == other {
			return errors.New("must differ from the current secret")
		}
		return nil
	}
}

// ValidateUserPayload rejects user records without an identifier.
func ValidateUserPayload(u *User) error {
	if u == nil {
		return ErrMalformedPayload
	}
	err := validation.ValidateStruct(u,
		validation.Field(&u.ID, validation.Required),
	)
	if err != nil {
		return withMetadata(ErrMalformedPayload, map[string]any{"validation": err.Error()})
	}
	return nil
}
