// Package codec turns task and event payloads into opaque byte blobs and
// back. The store treats blobs as opaque; a decode failure is surfaced as
// ErrDecode so callers can substitute a legacy placeholder instead of losing
// the record.
package codec

import (
	"errors"

	"github.com/schedq/schedq/internal/models"
)

// ErrDecode reports that a stored blob cannot be turned back into a payload.
// It is recovered locally by substituting a legacy placeholder; it never
// propagates to scheduler callers.
var ErrDecode = errors.New("cannot decode payload")

// Codec encodes and decodes opaque task and event payloads.
//
// Implementations must preserve bytes verbatim for payloads they cannot
// decode: encoding a legacy placeholder yields exactly the bytes it was
// created from.
type Codec interface {
	EncodeTask(t models.Task) ([]byte, error)
	DecodeTask(blob []byte) (models.Task, error)

	EncodeEvent(e models.Event) ([]byte, error)
	DecodeEvent(blob []byte) (models.Event, error)

	EncodeError(err error) ([]byte, error)
	DecodeError(blob []byte) (error, error)
}
