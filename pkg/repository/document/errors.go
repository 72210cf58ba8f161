package document

import "errors"

// Sentinel errors returned (wrapped) by the repository engine. Absence of a
// document is never an error: single-document reads return nil, nil.
var (
	// ErrConflict reports a uniqueness violation on write.
	ErrConflict = errors.New("document conflict")

	// ErrDataIntegrity reports stored data contradicting a declared
	// expectation, e.g. more than one match for a unique lookup.
	ErrDataIntegrity = errors.New("data integrity violation")

	// ErrCapability reports an operation the document type does not support.
	ErrCapability = errors.New("operation not supported by document type")

	// ErrInvariant reports a call that breaks the engine's input contract.
	ErrInvariant = errors.New("invariant violation")

	ErrInvalidSort = errors.New("invalid sort")
	ErrInvalidPage = errors.New("invalid page request")
)
