package identity

import "errors"

// ErrInvalidCredentials is returned by Authenticate for an unknown email or a
// wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

var (
	errEmailPwdRequired = errors.New("email and password are required")
	errUserIDEmpty      = errors.New("user id cannot be empty")
	errTokenRequired    = errors.New("token is required")
)
