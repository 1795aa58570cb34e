package auth

import "errors"

var (
	// ErrEmailTaken means registration hit an existing account email.
	ErrEmailTaken = errors.New("auth: email already registered")

	// ErrInvalidCredentials covers unknown email and wrong password alike,
	// so login failures do not reveal which one it was.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrInvalidToken means the presented credential is unknown or malformed.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrTokenExpired means the credential was valid but its session lapsed.
	ErrTokenExpired = errors.New("auth: token expired")

	// ErrUserNotFound means no account exists for the requested id.
	ErrUserNotFound = errors.New("auth: user not found")
)
