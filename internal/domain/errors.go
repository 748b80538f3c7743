package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrStaleSnapshot       = errors.New("snapshot is stale")
	ErrDuplicateTrigger    = errors.New("duplicate trigger suppressed")
	ErrNoMatchingLine      = errors.New("no oracle line within tolerance")
	ErrUpstreamUnavailable = errors.New("oracle upstream unavailable")
	ErrWSDisconnect        = errors.New("websocket disconnected")
	ErrInvalidUpdate       = errors.New("invalid feed update")
)
