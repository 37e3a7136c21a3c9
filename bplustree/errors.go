package bplus

import "errors"

// Tree errors.
var (
	ErrNotFound      = errors.New("key not found")
	ErrAlreadyExists = errors.New("key already exists")
	ErrOutOfMemory   = errors.New("node arena exhausted")
	ErrInvalidState  = errors.New("b+ tree not initialized")
	ErrInvalidOrder  = errors.New("invalid tree order")
	ErrCorrupt       = errors.New("b+ tree corrupt")
)

// Storage errors.
var (
	ErrPageOverflow = errors.New("node does not fit in a page")
	ErrPagerClosed  = errors.New("pager is closed")
	ErrPageNotFound = errors.New("page not found")
	ErrNoCheckpoint = errors.New("no checkpoint in pager")
)
