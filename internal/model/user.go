// Package model defines domain entities for the application.
package model

import "time"

// User represents an account that can log in and own API keys.
// Optional profile fields are pointers so "absent" and "empty" stay distinguishable.
type User struct {
	ID           string    `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	FullName     *string   `json:"fullName,omitempty" db:"full_name"`
	Email        string    `json:"email" db:"email"`
	MobileNumber *string   `json:"mobileNumber,omitempty" db:"mobile_number"`
	Language     *string   `json:"language,omitempty" db:"language"`
	Culture      *string   `json:"culture,omitempty" db:"culture"`
	PasswordHash string    `json:"-" db:"password_hash"` // Never serialize
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// UserResponse is the public representation of a user.
type UserResponse struct {
	ID           string  `json:"id"`
	Username     string  `json:"username"`
	FullName     *string `json:"fullName"`
	Email        string  `json:"email"`
	MobileNumber *string `json:"mobileNumber"`
	Language     *string `json:"language"`
	Culture      *string `json:"culture"`
}

// ToResponse converts a User to UserResponse, dropping the password hash.
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:           u.ID,
		Username:     u.Username,
		FullName:     u.FullName,
		Email:        u.Email,
		MobileNumber: u.MobileNumber,
		Language:     u.Language,
		Culture:      u.Culture,
	}
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
