package types

import "errors"

var (
	ErrInvalidEvent  = errors.New("unknown inbound event")
	ErrInvalidUserID = errors.New("invalid user id format")
)
