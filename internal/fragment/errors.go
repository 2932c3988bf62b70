package fragment

import (
	"errors"
	"fmt"

	"github.com/jaywantadh/fragments/internal/storage"
)

var (
	// ErrValidation marks malformed or missing construction input.
	ErrValidation = errors.New("invalid fragment")
	// ErrUnsupportedType is a validation failure for a well-formed type
	// outside the supported set.
	ErrUnsupportedType = fmt.Errorf("%w: unsupported type", ErrValidation)
	// ErrNotFound is returned when metadata or data is absent. It matches
	// storage.ErrNotFound as well.
	ErrNotFound = fmt.Errorf("fragment %w", storage.ErrNotFound)
	// ErrInvalidData is returned when SetData receives no byte value.
	ErrInvalidData = errors.New("fragment data must be a byte slice")
	// ErrTypeMismatch is returned when replacement data changes the base type.
	ErrTypeMismatch = errors.New("fragment type cannot be changed")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// notFound converts a storage miss into ErrNotFound and passes every other
// error through.
func notFound(err error, ownerID, id string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, ownerID, id)
	}
	return err
}
