package catalog

import "errors"

var (
	// ErrNotFound is returned when a lookup by ID or alias finds nothing.
	ErrNotFound = errors.New("catalog: record not found")
	// ErrAliasTaken is returned when RenameAlias targets an alias that
	// another database already uses.
	ErrAliasTaken = errors.New("catalog: alias already in use")
	// ErrAliasInvalid is returned when a proposed alias does not match the
	// grammar: 1-64 chars of [A-Za-z0-9_-], not starting with a digit.
	ErrAliasInvalid = errors.New("catalog: alias does not match the required grammar")
	// ErrLastActiveKey is returned when revoking or deleting an API key
	// would leave zero active keys in the catalog.
	ErrLastActiveKey = errors.New("catalog: cannot remove the last active API key")
	// ErrDuplicateUsername is returned on a unique-username conflict.
	ErrDuplicateUsername = errors.New("catalog: username already exists")
)
