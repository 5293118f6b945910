package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateCode  = errors.New("duplicate bucket code")
	ErrUnknownBucket  = errors.New("unknown bucket")
	ErrInvalidTarget  = errors.New("invalid move target")
	ErrBucketNotEmpty = errors.New("bucket is not empty")
	ErrOCRFailure     = errors.New("ocr failure")
	ErrRunInProgress  = errors.New("classification run in progress")
	ErrRunNotIdle     = errors.New("classification session is not idle")
	ErrInvalidInput   = errors.New("invalid input")
	ErrTemporary      = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
