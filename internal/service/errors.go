package service

import "errors"

var (
	ErrNoPendingConflicts = errors.New("no pending conflicts")
	ErrInvalidDraftName   = errors.New("invalid draft name")
)
