package services

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrInsufficientTokens is returned when a deduction is attempted against
// an empty balance. Handlers surface it as 402 with a tokensNeeded flag.
var ErrInsufficientTokens = errors.New("insufficient tokens")

// ExternalServiceError marks a failure in an external collaborator (image
// model, payment provider). After a successful deduction it triggers the
// refund path; the original failure still reaches the caller.
type ExternalServiceError struct {
	Op  string
	Err error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// StorageErrorKind classifies ledger storage failures.
type StorageErrorKind string

const (
	StorageUnavailable StorageErrorKind = "unavailable"
	StorageConstraint  StorageErrorKind = "constraint"
	StorageUnknown     StorageErrorKind = "unknown"
)

// StorageError wraps a storage-engine failure with a coarse classification.
type StorageError struct {
	Kind StorageErrorKind
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// wrapStorageError classifies a database error. Constraint violations map
// to pq error class 23, connection-level failures to class 08.
func wrapStorageError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrConnDone) {
		return &StorageError{Kind: StorageUnavailable, Err: err}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "23":
			return &StorageError{Kind: StorageConstraint, Err: err}
		case "08", "53", "57":
			return &StorageError{Kind: StorageUnavailable, Err: err}
		}
	}
	return &StorageError{Kind: StorageUnknown, Err: err}
}
