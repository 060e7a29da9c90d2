package docstore

import "errors"

// Sentinel errors for infrastructure facts. Backends return these (optionally
// wrapped) so domain stores can translate them into the error taxonomy at
// exactly the boundaries that own the translation.
var (
	// ErrNotFound: the document does not exist in the collection.
	ErrNotFound = errors.New("document not found")
	// ErrConflict: the id is already taken. Idempotent-create call sites
	// convert this into their documented Conflict/no-op outcome.
	ErrConflict = errors.New("document already exists")
	// ErrUnavailable: the backend failed transiently. Never down-mapped to
	// ErrNotFound.
	ErrUnavailable = errors.New("document store unavailable")
)
