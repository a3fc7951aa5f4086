package common

import "errors"

var (
	ErrItemNotFound       = errors.New("item not found")
	ErrInvalidURL         = errors.New("invalid url")
	ErrNoURLs             = errors.New("no valid urls provided")
	ErrEngineNotRunning   = errors.New("engine is not running")
	ErrEngineRunning      = errors.New("engine is already running")
	ErrUnexpectedStatus   = errors.New("unexpected response status")
	ErrUnexpectedRange    = errors.New("unexpected content range")
	ErrIncompleteTransfer = errors.New("transfer ended before all bytes were received")
	ErrUnknownStorage     = errors.New("unknown storage type")
)
