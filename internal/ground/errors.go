package ground

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/ground/internal/model"
	"github.com/roach88/ground/internal/storage"
)

// Error is the single error type returned by Store operations.
//
// Errors carry a Code for programmatic handling and, where relevant, the
// item and version involved. The backend error that caused a
// STORAGE_IO or CONSISTENCY error is kept in Err and reachable through
// errors.Is / errors.As.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// ItemID identifies the affected item, if any.
	ItemID model.OptionalID

	// VersionID identifies the affected version, if any.
	VersionID model.OptionalID

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes errors.
type ErrorCode string

const (
	// CodeNotFound indicates a missing item, version or successor.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeDuplicateKey indicates a source key already in use.
	CodeDuplicateKey ErrorCode = "DUPLICATE_KEY"

	// CodeConflict indicates a version-history invariant would break:
	// a re-parent, a cycle, or a version placed under a foreign item.
	CodeConflict ErrorCode = "CONFLICT"

	// CodeSchemaViolation indicates tags that do not satisfy a structure.
	CodeSchemaViolation ErrorCode = "SCHEMA_VIOLATION"

	// CodeStorageIO indicates a backend failure. Retryable.
	CodeStorageIO ErrorCode = "STORAGE_IO"

	// CodeConsistency indicates corrupt stored state.
	CodeConsistency ErrorCode = "CONSISTENCY"
)

// Sentinels for errors.Is. An *Error matches the sentinel of its code.
var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicateKey    = errors.New("duplicate key")
	ErrConflict        = errors.New("conflict")
	ErrSchemaViolation = errors.New("schema violation")
	ErrStorageIO       = errors.New("storage i/o")
	ErrConsistency     = errors.New("consistency")
)

var sentinels = map[ErrorCode]error{
	CodeNotFound:        ErrNotFound,
	CodeDuplicateKey:    ErrDuplicateKey,
	CodeConflict:        ErrConflict,
	CodeSchemaViolation: ErrSchemaViolation,
	CodeStorageIO:       ErrStorageIO,
	CodeConsistency:     ErrConsistency,
}

// NOT_FOUND sub-kinds; each message starts "no <kind> ".
const (
	kindItem      = "item"
	kindVersion   = "version"
	kindSuccessor = "successor"
)

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	var ids []string
	if e.ItemID.Valid {
		ids = append(ids, "item="+e.ItemID.ID.String())
	}
	if e.VersionID.Valid {
		ids = append(ids, "version="+e.VersionID.ID.String())
	}
	if len(ids) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(ids, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for e.Code.
func (e *Error) Is(target error) bool {
	return sentinels[e.Code] == target
}

func hasCode(err error, code ErrorCode) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Code == code
}

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

// IsDuplicateKey reports whether err is a DUPLICATE_KEY error.
func IsDuplicateKey(err error) bool { return hasCode(err, CodeDuplicateKey) }

// IsConflict reports whether err is a CONFLICT error.
func IsConflict(err error) bool { return hasCode(err, CodeConflict) }

// IsSchemaViolation reports whether err is a SCHEMA_VIOLATION error.
func IsSchemaViolation(err error) bool { return hasCode(err, CodeSchemaViolation) }

// IsStorageIO reports whether err is a STORAGE_IO error.
func IsStorageIO(err error) bool { return hasCode(err, CodeStorageIO) }

// IsConsistency reports whether err is a CONSISTENCY error.
func IsConsistency(err error) bool { return hasCode(err, CodeConsistency) }

// IsRetryable reports whether retrying the operation may succeed.
// Only backend failures are retryable.
func IsRetryable(err error) bool { return IsStorageIO(err) }

// IsItemNotFound reports whether err is a NOT_FOUND for an item.
func IsItemNotFound(err error) bool { return isNotFoundKind(err, kindItem) }

// IsVersionNotFound reports whether err is a NOT_FOUND for a version.
func IsVersionNotFound(err error) bool { return isNotFoundKind(err, kindVersion) }

func isNotFoundKind(err error, kind string) bool {
	var ge *Error
	if !errors.As(err, &ge) || ge.Code != CodeNotFound {
		return false
	}
	return strings.HasPrefix(ge.Message, "no "+kind+" ")
}

// ItemNotFound creates a NOT_FOUND error for an item id.
func ItemNotFound(id model.ID) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("no %s found with id %d", kindItem, id),
		ItemID:  model.Some(id),
	}
}

// ItemKeyNotFound creates a NOT_FOUND error for a source key.
func ItemKeyNotFound(kind model.ItemType, sourceKey string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("no %s found of type %s with source key %q", kindItem, kind, sourceKey),
	}
}

// VersionNotFound creates a NOT_FOUND error for a version id.
func VersionNotFound(id model.ID) *Error {
	return &Error{
		Code:      CodeNotFound,
		Message:   fmt.Sprintf("no %s found with id %d", kindVersion, id),
		VersionID: model.Some(id),
	}
}

// SuccessorNotFound creates a NOT_FOUND error for a successor id.
func SuccessorNotFound(id model.ID) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("no %s found with id %d", kindSuccessor, id),
	}
}

// DuplicateKey creates a DUPLICATE_KEY error.
func DuplicateKey(kind model.ItemType, sourceKey string, cause error) *Error {
	return &Error{
		Code:    CodeDuplicateKey,
		Message: fmt.Sprintf("%s with source key %q already exists", kind, sourceKey),
		Err:     cause,
	}
}

// Conflict creates a CONFLICT error.
func Conflict(itemID, versionID model.ID, cause error, format string, args ...any) *Error {
	return &Error{
		Code:      CodeConflict,
		Message:   fmt.Sprintf(format, args...),
		ItemID:    model.Some(itemID),
		VersionID: model.Some(versionID),
		Err:       cause,
	}
}

// SchemaViolation creates a SCHEMA_VIOLATION error.
func SchemaViolation(structureVersionID model.OptionalID, cause error) *Error {
	msg := "tags do not satisfy their declared types"
	if structureVersionID.Valid {
		msg = fmt.Sprintf("tags do not satisfy structure version %d", structureVersionID.ID)
	}
	return &Error{
		Code:    CodeSchemaViolation,
		Message: msg,
		Err:     cause,
	}
}

// Consistency creates a CONSISTENCY error.
func Consistency(itemID model.ID, format string, args ...any) *Error {
	return &Error{
		Code:    CodeConsistency,
		Message: fmt.Sprintf(format, args...),
		ItemID:  model.Some(itemID),
	}
}

// classify turns an error escaping an operation into an *Error.
// Errors already classified pass through.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ge *Error
	if errors.As(err, &ge) {
		return err
	}
	switch {
	case errors.Is(err, storage.ErrConstraint):
		return &Error{Code: CodeConflict, Message: op + ": constraint violated", Err: err}
	case errors.Is(err, storage.ErrInvalidRecord), errors.Is(err, storage.ErrUnknownCollection):
		return &Error{Code: CodeConsistency, Message: op + ": record does not match schema", Err: err}
	default:
		return &Error{Code: CodeStorageIO, Message: op + ": storage failure", Err: err}
	}
}
