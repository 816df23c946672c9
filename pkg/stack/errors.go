package stack

import "errors"

var (
	// ErrNoContext is reported when an operation is attempted before the
	// stack is initialized, or after teardown without re-initialization.
	ErrNoContext = errors.New("no context available")

	// ErrDetachedInstance is reported when a delete is attempted on an
	// instance that is not associated with any context.
	ErrDetachedInstance = errors.New("instance has no context")

	// ErrUnknownEntity is reported when an instance of an entity type the
	// engine does not recognize is requested.
	ErrUnknownEntity = errors.New("unknown entity type")

	// ErrUnknownProperty is reported when a value is set for a property
	// the entity does not declare.
	ErrUnknownProperty = errors.New("unknown property")

	// ErrMultipleMatches is the contract-violation signal of Fetch: the
	// predicate was expected to match at most one instance but matched
	// several. It marks a programmer error, not an engine failure.
	ErrMultipleMatches = errors.New("fetch matched multiple instances")
)
