package service

import (
	"errors"
	"fmt"

	"github.com/bitfantasy/backoffice/internal/shared/i18n"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Kind error taxonomy surfaced to handlers
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindConflict
	KindLocked
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindLocked:
		return "locked"
	case KindExternal:
		return "external"
	}
	return "unknown"
}

// Sentinels matched with errors.Is
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrLocked     = &Error{Kind: KindLocked}
	ErrExternal   = &Error{Kind: KindExternal}
)

// Error Key is an i18n message key shown to the user; Err is logged, never shown
type Error struct {
	Kind Kind
	Key  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Key != "" {
		msg += ": " + i18n.T(i18n.English, e.Key)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so errors.Is(err, ErrConflict) works for any conflict
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Key == "" && t.Err == nil
}

func validationError(key string, format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Key: key, Err: fmt.Errorf(format, args...)}
}

func notFound(what string, id interface{}) error {
	return &Error{Kind: KindNotFound, Key: i18n.NotFound, Err: fmt.Errorf("%s %v not found", what, id)}
}

// IsUniqueViolation duplicate key from postgres or gorm's translated error
func IsUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsForeignKeyViolation the row is still referenced, or points at a missing one
func IsForeignKeyViolation(err error) bool {
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// classify maps storage errors onto the taxonomy; already classified errors pass through
func classify(err error, what string) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	if IsUniqueViolation(err) || IsForeignKeyViolation(err) {
		return &Error{Kind: KindConflict, Key: i18n.UnableToSave, Err: fmt.Errorf("%s: %w", what, err)}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Error{Kind: KindNotFound, Key: i18n.NotFound, Err: fmt.Errorf("%s: %w", what, err)}
	}
	return fmt.Errorf("%s: %w", what, err)
}

// KindOf 0 for unclassified errors
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

// MessageKey i18n key for err, falling back to "unable to save"
func MessageKey(err error) string {
	var se *Error
	if errors.As(err, &se) && se.Key != "" {
		return se.Key
	}
	return i18n.UnableToSave
}
