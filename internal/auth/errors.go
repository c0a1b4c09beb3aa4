package auth

import "errors"

var (
	ErrEmptySecret  = errors.New("auth secret cannot be empty")
	ErrTokenExpired = errors.New("token expired")
)
