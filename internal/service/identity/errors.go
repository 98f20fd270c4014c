package identity

import "errors"

var (
	// ErrValidation covers malformed or missing registration input.
	ErrValidation = errors.New("identity: invalid input")
	// ErrEmailTaken indicates a permanent identity already holds the email.
	ErrEmailTaken = errors.New("identity: email already registered")
	// ErrUnauthorized covers every credential failure. The message presented
	// to callers stays generic so account existence cannot be probed.
	ErrUnauthorized = errors.New("identity: invalid credentials")
)
