package errs

import (
	"errors"
	"fmt"
)

// Closed enumeration of business-error sentinels, tested with errors.Is
// against the underlying cause. Mirrors the teacher's
// "<Name>BusinessError = errors.New(code)" catalog shape.
var (
	ErrDuplicateCorrelationID  = errors.New("E0001")
	ErrNameAlreadyInUse        = errors.New("E0002")
	ErrEntityNotFound          = errors.New("E0003")
	ErrAlreadyExists           = errors.New("E0004")
	ErrInvalidName             = errors.New("E0005")
	ErrInvalidUUID             = errors.New("E0006")
	ErrInvalidEnumValue        = errors.New("E0007")
	ErrReferenceTypeDisabled   = errors.New("E0008")
	ErrNotBasedOnLatest        = errors.New("E0009")
	ErrRepositoryNotEmpty      = errors.New("E0010")
	ErrAlreadyDeleted          = errors.New("E0011")
	ErrNotDeleted              = errors.New("E0012")
	ErrUndeleteWindowClosed    = errors.New("E0013")
	ErrHashMismatch            = errors.New("E0014")
	ErrSizeMismatch            = errors.New("E0015")
	ErrMissingCorrelationID    = errors.New("E0016")
	ErrStateStoreUnreachable   = errors.New("E0017")
	ErrEventBusUnreachable     = errors.New("E0018")
	ErrUnresolvedAncestor      = errors.New("E0019")
	ErrImmutableReferenceType  = errors.New("E0020")
	ErrBranchNameConflict      = errors.New("E0021")
	ErrParentBranchNotActive   = errors.New("E0022")
	ErrDirectoryVersionContent = errors.New("E0023")
)

// catalogEntry is the localized (English-only) title/message pair a
// sentinel resolves to.
type catalogEntry struct {
	title   string
	message string
}

var catalog = map[error]catalogEntry{
	ErrDuplicateCorrelationID: {
		title:   "Duplicate Correlation ID",
		message: "A command with this correlation-id has already been applied to this entity. Retry with a fresh correlation-id if you intend a new command.",
	},
	ErrNameAlreadyInUse: {
		title:   "Name Already In Use",
		message: "An active entity with this name already exists under the same parent. Choose a different name.",
	},
	ErrEntityNotFound: {
		title:   "Entity Not Found",
		message: "No entity was found for the given id or name. Verify the identifier and try again.",
	},
	ErrAlreadyExists: {
		title:   "Entity Already Exists",
		message: "Create was issued against an id that already identifies an active or logically deleted entity.",
	},
	ErrInvalidName: {
		title:   "Invalid Name",
		message: "Names must match ^[A-Za-z][A-Za-z0-9-]{1,63}$.",
	},
	ErrInvalidUUID: {
		title:   "Invalid Identifier",
		message: "The supplied identifier is not a well-formed UUID.",
	},
	ErrInvalidEnumValue: {
		title:   "Invalid Enum Value",
		message: "The supplied value is not one of the accepted enumeration members.",
	},
	ErrReferenceTypeDisabled: {
		title:   "Reference Type Disabled",
		message: "This branch has disabled the requested reference type.",
	},
	ErrNotBasedOnLatest: {
		title:   "Not Based On Latest Promotion",
		message: "The branch is not based on the parent's latest promotion reference.",
	},
	ErrRepositoryNotEmpty: {
		title:   "Repository Not Empty",
		message: "The repository has branches and was not deleted with --force.",
	},
	ErrAlreadyDeleted: {
		title:   "Already Deleted",
		message: "The entity has already been logically or physically deleted.",
	},
	ErrNotDeleted: {
		title:   "Not Deleted",
		message: "Undelete was requested on an entity that is not logically deleted.",
	},
	ErrUndeleteWindowClosed: {
		title:   "Undelete Window Closed",
		message: "The physical-deletion timer has already fired; the entity can no longer be undeleted.",
	},
	ErrHashMismatch: {
		title:   "Hash Mismatch",
		message: "The computed sha256 does not match the declared hash.",
	},
	ErrSizeMismatch: {
		title:   "Size Mismatch",
		message: "The aggregate size does not equal the sum of referenced file sizes.",
	},
	ErrMissingCorrelationID: {
		title:   "Missing Correlation ID",
		message: "Every command requires a non-empty correlation-id.",
	},
	ErrStateStoreUnreachable: {
		title:   "State Store Unreachable",
		message: "The durable state store could not be reached.",
	},
	ErrEventBusUnreachable: {
		title:   "Event Bus Unreachable",
		message: "The event bus could not be reached.",
	},
	ErrUnresolvedAncestor: {
		title:   "Unresolved Ancestor",
		message: "One or more ancestor path segments could not be resolved to an id.",
	},
	ErrImmutableReferenceType: {
		title:   "Immutable Reference Type",
		message: "A reference's type is fixed at creation and cannot change.",
	},
	ErrBranchNameConflict: {
		title:   "Branch Name Conflict",
		message: "An active branch with this name already exists in the repository.",
	},
	ErrParentBranchNotActive: {
		title:   "Parent Branch Not Active",
		message: "The parent branch referenced is not active.",
	},
	ErrDirectoryVersionContent: {
		title:   "Directory Version Content Error",
		message: "The directory version's content addressing invariant was violated.",
	},
}

// Wrap resolves sentinel into the appropriately-kinded typed error for
// entityType, filling Title/Message from the catalog and formatting
// Message with args when the catalog message is a format string.
func Wrap(sentinel error, entityType string, args ...any) error {
	entry, ok := catalog[sentinel]
	if !ok {
		return InternalError{
			EntityType: entityType,
			Code:       "E9999",
			Title:      "Internal Error",
			Message:    fmt.Sprintf("unclassified error: %v", sentinel),
			Err:        sentinel,
		}
	}

	msg := entry.message
	if len(args) > 0 {
		msg = fmt.Sprintf(entry.message, args...)
	}

	code := sentinel.Error()

	switch sentinel { //nolint:exhaustive
	case ErrNameAlreadyInUse, ErrAlreadyExists, ErrDuplicateCorrelationID, ErrAlreadyDeleted, ErrBranchNameConflict:
		return ConflictError{EntityType: entityType, Code: code, Title: entry.title, Message: msg, Err: sentinel}
	case ErrEntityNotFound, ErrUnresolvedAncestor:
		return NotFoundError{EntityType: entityType, Code: code, Title: entry.title, Message: msg, Err: sentinel}
	case ErrInvalidName, ErrInvalidUUID, ErrInvalidEnumValue, ErrMissingCorrelationID:
		return ValidationError{EntityType: entityType, Code: code, Title: entry.title, Message: msg, Err: sentinel}
	case ErrReferenceTypeDisabled, ErrNotBasedOnLatest, ErrRepositoryNotEmpty, ErrNotDeleted,
		ErrUndeleteWindowClosed, ErrImmutableReferenceType, ErrParentBranchNotActive:
		return PreconditionFailedError{EntityType: entityType, Code: code, Title: entry.title, Message: msg, Err: sentinel}
	case ErrHashMismatch, ErrSizeMismatch, ErrDirectoryVersionContent:
		return IntegrityError{EntityType: entityType, Code: code, Title: entry.title, Message: msg, Err: sentinel}
	case ErrStateStoreUnreachable, ErrEventBusUnreachable:
		return DependencyFailureError{EntityType: entityType, Code: code, Title: entry.title, Message: msg, Err: sentinel}
	default:
		return InternalError{EntityType: entityType, Code: code, Title: entry.title, Message: msg, Err: sentinel}
	}
}

// WrapDependency always yields a DependencyFailureError, used when a
// platform call (state store, event bus) fails with an arbitrary
// underlying error rather than one of the catalog sentinels.
func WrapDependency(entityType string, err error) error {
	return DependencyFailureError{
		EntityType: entityType,
		Code:       "E0099",
		Title:      "Dependency Failure",
		Message:    "A platform dependency failed during this operation.",
		Err:        err,
	}
}

// WrapInternal always yields an InternalError wrapping err.
func WrapInternal(entityType string, err error) error {
	return InternalError{
		EntityType: entityType,
		Code:       "E9999",
		Title:      "Internal Error",
		Message:    "An unexpected internal error occurred.",
		Err:        err,
	}
}
