// Package common defines sentinel errors shared by the sync engine, its
// stores and the operator front end. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Configuration errors.
	ErrSyncDisabled = errors.New("sync is not enabled")

	// Registry errors.
	ErrNoRegistry      = errors.New("no remote registry")
	ErrProjectNotFound = errors.New("project not found")
	ErrProjectDeleted  = errors.New("project is deleted remotely")
	ErrInvalidID       = errors.New("invalid project id")

	// Conflicts escalated to the operator.
	ErrNameConflict    = errors.New("name conflict")
	ErrDeletedConflict = errors.New("deleted project conflict")

	// Push precondition.
	ErrCloudSyncOff = errors.New("cloud sync is off for project")

	// Object store transfer that did not complete.
	ErrTransfer = errors.New("transfer failed")

	ErrInvalidResolution = errors.New("invalid conflict resolution")
)
