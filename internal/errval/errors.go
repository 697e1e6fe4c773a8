package errval

import (
	"errors"
)

var (
	ErrInternal        = errors.New("internal server error")
	ErrNotFound        = errors.New("not found")
	ErrInvalidTaskType = errors.New("invalid task type")

	// ErrPublishOverflow is returned when the broker rejects a publish
	// because the destination queue is at its configured max length.
	ErrPublishOverflow = errors.New("destination queue is full")

	// ErrPublishFailed covers transient broker failures on the publish path.
	ErrPublishFailed = errors.New("broker publish failed")

	// ErrBufferTooSmall is returned by the retrain trigger when the training
	// buffer has fewer records than requested.
	ErrBufferTooSmall = errors.New("training buffer below minimum size")
)
