package domain

import "errors"

var (
	ErrTransportFailure       = errors.New("transport failure")
	ErrDecodeFailure          = errors.New("decode failure")
	ErrTemporarilyUnavailable = errors.New("temporarily unavailable")
	ErrInvalidURL             = errors.New("invalid url")
)
