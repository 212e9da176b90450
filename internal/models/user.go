package models

import (
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

type UserStatus string

const (
	StatusOnline  UserStatus = "online"
	StatusOffline UserStatus = "offline"
)

// Valid reports whether s is a known presence status.
func (s UserStatus) Valid() bool {
	return s == StatusOnline || s == StatusOffline
}

// User is the record stored at users/{uid}. The uid is the key and is only
// filled in on read.
type User struct {
	UID         string     `json:"uid,omitempty"`
	Email       string     `json:"email"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	DisplayName string     `json:"displayName"`
	DateOfBirth string     `json:"dateOfBirth,omitempty"`
	Status      UserStatus `json:"status"`
	LastSeen    int64      `json:"lastSeen"`
	PhotoURL    string     `json:"photoURL,omitempty"`
}

// Complete reports whether the record has the fields search results need.
func (u *User) Complete() bool {
	return u.Email != "" && u.FirstName != "" && u.LastName != ""
}

// Snapshot copies the public identity fields embedded in friend requests.
func (u *User) Snapshot() UserSnapshot {
	return UserSnapshot{
		UID:         u.UID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		DisplayName: u.Name(),
	}
}

// Friend copies the public profile and presence fields stored as a friend
// edge.
func (u *User) Friend() Friend {
	return Friend{
		UID:         u.UID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		DisplayName: u.Name(),
		Status:      u.Status,
		LastSeen:    u.LastSeen,
		PhotoURL:    u.PhotoURL,
	}
}

// Name is the display name, falling back to "first last".
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return DisplayName(u.FirstName, u.LastName)
}

func DisplayName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}

// Presence is the status slice of a user delivered to status subscribers.
type Presence struct {
	UID      string     `json:"uid"`
	Status   UserStatus `json:"status"`
	LastSeen int64      `json:"lastSeen"`
}

type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email"`
	FirstName   string `json:"firstName" validate:"required,min=1,max=50"`
	LastName    string `json:"lastName" validate:"required,min=1,max=50"`
	DateOfBirth string `json:"dateOfBirth" validate:"omitempty,datetime=2006-01-02"`
}

type UpdateProfileRequest struct {
	FirstName   string `json:"firstName,omitempty" validate:"omitempty,min=1,max=50"`
	LastName    string `json:"lastName,omitempty" validate:"omitempty,min=1,max=50"`
	DateOfBirth string `json:"dateOfBirth,omitempty" validate:"omitempty,datetime=2006-01-02"`
	PhotoURL    string `json:"photoURL,omitempty" validate:"omitempty,url"`
}

type UpdatePresenceRequest struct {
	Status UserStatus `json:"status" validate:"required,oneof=online offline"`
}

type DevTokenRequest struct {
	UID string `json:"uid" validate:"required,max=128"`
}

// JwtCustomClaims are the claims of locally issued tokens.
type JwtCustomClaims struct {
	UID string `json:"uid"`
	jwt.RegisteredClaims
}
