package auth

import (
	"strings"

	"github.com/frahmantamala/crm-backend/internal/core/common/validation"
)

type LoginDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (d *LoginDTO) Normalize() {
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
}

func (d LoginDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("email", d.Email).Required().Email()
	v.Field("password", d.Password).Required()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type RefreshTokenDTO struct {
	RefreshToken string `json:"refresh_token"`
}

func (d RefreshTokenDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("refresh_token", d.RefreshToken).Required()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type RequestOTPDTO struct {
	Email string `json:"email"`
}

func (d *RequestOTPDTO) Normalize() {
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
}

func (d RequestOTPDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("email", d.Email).Required().Email()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type VerifyOTPDTO struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (d *VerifyOTPDTO) Normalize() {
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
	d.Code = strings.TrimSpace(d.Code)
}

func (d VerifyOTPDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("email", d.Email).Required().Email()
	v.Field("code", d.Code).Required().MinLength(4).MaxLength(10)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type OTPRequestedResponse struct {
	Status    string `json:"status"`
	ExpiresIn int64  `json:"expires_in"`
}

type AuthURLResponse struct {
	URL string `json:"url"`
}
