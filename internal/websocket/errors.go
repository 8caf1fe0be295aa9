package websocket

import "errors"

var (
	ErrConnectionClosed = errors.New("connection is closed")
	ErrInvalidJSON      = errors.New("failed to marshal JSON")
	ErrWriteTimeout     = errors.New("write operation timed out")
	ErrNilConnection    = errors.New("connection cannot be nil")
	ErrClientNotFound   = errors.New("client not found")
)
