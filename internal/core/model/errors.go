package model

import "errors"

var (
	ErrInvalidRoute      = errors.New("route geometry needs at least 2 finite points")
	ErrInvalidCoordinate = errors.New("coordinate out of range")
	ErrInvalidCategory   = errors.New("unknown place category")
	ErrNotConfigured     = errors.New("required credential or endpoint is not configured")
	ErrUpstream          = errors.New("upstream unavailable")
	ErrNoData            = errors.New("no cached data")
	ErrRefreshRunning    = errors.New("a refresh is already running")
)
