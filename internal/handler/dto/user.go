// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"github.com/usermgmt/usermgmt/internal/model"
	"github.com/usermgmt/usermgmt/internal/service"
)

// CreateUserRequest represents the request body for creating a user.
type CreateUserRequest struct {
	Username     string `json:"username" validate:"required,max=100"`
	FullName     string `json:"fullName" validate:"max=200"`
	Email        string `json:"email" validate:"required,email,max=254"`
	MobileNumber string `json:"mobileNumber" validate:"max=32"`
	Language     string `json:"language" validate:"max=16"`
	Culture      string `json:"culture" validate:"max=16"`
	Password     string `json:"password" validate:"required"`
}

// ToInput converts the request into service input.
func (r *CreateUserRequest) ToInput() service.CreateUserInput {
	return service.CreateUserInput{
		Username:     r.Username,
		FullName:     r.FullName,
		Email:        r.Email,
		MobileNumber: r.MobileNumber,
		Language:     r.Language,
		Culture:      r.Culture,
		Password:     r.Password,
	}
}

// UpdateUserRequest represents the request body for updating a user.
// Username and email are always overwritten; omitted or empty optional
// fields keep their stored value, and an empty password keeps the current one.
type UpdateUserRequest struct {
	Username     string  `json:"username" validate:"required,max=100"`
	FullName     *string `json:"fullName,omitempty" validate:"omitempty,max=200"`
	Email        string  `json:"email" validate:"required,email,max=254"`
	MobileNumber *string `json:"mobileNumber,omitempty" validate:"omitempty,max=32"`
	Language     *string `json:"language,omitempty" validate:"omitempty,max=16"`
	Culture      *string `json:"culture,omitempty" validate:"omitempty,max=16"`
	Password     string  `json:"password,omitempty"`
}

// ToInput converts the request into service input.
func (r *UpdateUserRequest) ToInput() service.UpdateUserInput {
	return service.UpdateUserInput{
		Username:     r.Username,
		FullName:     r.FullName,
		Email:        r.Email,
		MobileNumber: r.MobileNumber,
		Language:     r.Language,
		Culture:      r.Culture,
		Password:     r.Password,
	}
}

// ToUserResponse converts a User model to its public form.
func ToUserResponse(user *model.User) model.UserResponse {
	return user.ToResponse()
}

// ToUserListResponse converts users to their public form. Never returns nil.
func ToUserListResponse(users []*model.User) []model.UserResponse {
	out := make([]model.UserResponse, len(users))
	for i, u := range users {
		out[i] = u.ToResponse()
	}
	return out
}
