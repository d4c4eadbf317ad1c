package uvc

import "errors"

var (
	ErrReadyTimeout      = errors.New("instance did not become ready")
	ErrDuplicateInstance = errors.New("instance already registered")
	ErrUnknownInstance   = errors.New("no such instance")
	ErrBulkStalled       = errors.New("bulk endpoint stopped taking buffers")
	ErrNoNode            = errors.New("gadget video nodes are not supported on this platform")
)
