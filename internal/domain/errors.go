package domain

import "errors"

// ErrInvalidInput marks caller mistakes such as an unsupported aspect ratio.
var ErrInvalidInput = errors.New("invalid input")
