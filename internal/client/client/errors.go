package client

import "errors"

var (
	ErrUnavailable           = errors.New("record store unavailable")
	ErrRejected              = errors.New("record rejected by store")
	ErrLocalDataNotAvailable = errors.New("local data unavailable")
)
