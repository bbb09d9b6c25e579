package services

import "errors"

// Error kinds shared by every browse operation. Concrete failures wrap
// one of these sentinels so callers can classify with errors.Is without
// matching message text.
var (
	// ErrNotFound: the referenced object, entry or dataset does not
	// exist or is not allocated.
	ErrNotFound = errors.New("not found")

	// ErrCorrupt: on-disk bytes violate a structural invariant. An
	// operation may return partial results alongside this error.
	ErrCorrupt = errors.New("corrupt metadata")

	// ErrUnsupported: the structure is valid but uses a feature the
	// browser does not implement, such as gang blocks.
	ErrUnsupported = errors.New("unsupported feature")

	// ErrIO: the underlying device read failed.
	ErrIO = errors.New("i/o failure")

	// ErrInvalidArgument: the caller's parameters are out of range.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Device-level conditions. Both are a species of i/o failure, so
// errors.Is(err, ErrIO) also holds for them.
var (
	// ErrDeviceUnavailable: the backing vdev image is missing, removed
	// or too small for the requested range.
	ErrDeviceUnavailable = &wrappedSentinel{msg: "device unavailable", parent: ErrIO}

	// ErrKeyUnavailable: the block is encrypted and no decryption is
	// available.
	ErrKeyUnavailable = &wrappedSentinel{msg: "encryption key unavailable", parent: ErrIO}
)

type wrappedSentinel struct {
	msg    string
	parent error
}

func (w *wrappedSentinel) Error() string { return w.msg }
func (w *wrappedSentinel) Unwrap() error { return w.parent }
