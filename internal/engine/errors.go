package engine

import (
	"context"
	"errors"
)

// Error kinds shared by every stage of the pipeline.
var (
	ErrNoConnectivity   = errors.New("no connectivity")
	ErrNoProxyAvailable = errors.New("no proxy available")
	ErrRemoteNotFound   = errors.New("remote resource not found")
	ErrContentDisabled  = errors.New("content disabled")
	ErrRemoteTransient  = errors.New("remote transient failure")
	ErrStoreConflict    = errors.New("store conflict")
	ErrParse            = errors.New("parse error")
	ErrCancelled        = errors.New("cancelled")
	ErrInternal         = errors.New("internal error")
)

// ItemError wraps a failure of one item inside a batch (one video, one channel).
// Use errors.As() to recover the item and errors.Is() for the kind:
//
//	var ie *engine.ItemError
//	if errors.As(err, &ie) && errors.Is(err, engine.ErrContentDisabled) { ... }
type ItemError struct {
	Op  string // "thumbnail", "transcript", "comments"
	ID  string
	Err error
}

func (e *ItemError) Error() string {
	return e.Op + " " + e.ID + ": " + e.Err.Error()
}

func (e *ItemError) Unwrap() error { return e.Err }

// IsCancelled reports whether err stems from a cancelled or expired context.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}
