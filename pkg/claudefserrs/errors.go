// Package claudefserrs declares the typed error categories shared across
// the CFS data plane (spec §7). Each category is an errs.Class; individual
// packages wrap their own errs.Class around these to preserve both the
// component of origin and the error category in a single error chain.
package claudefserrs

import "github.com/zeebo/errs"

// Categories, one errs.Class per §7 bucket.
var (
	Capacity   = errs.Class("capacity")
	NotFound   = errs.Class("not-found")
	Conflict   = errs.Class("conflict")
	Validation = errs.Class("validation")
	Protocol   = errs.Class("protocol")
	Policy     = errs.Class("policy")
)

// Capacity errors.
var (
	ErrOutOfSpace       = Capacity.New("out of space")
	ErrQueueFull         = Capacity.New("queue full")
	ErrDisabled          = Capacity.New("disabled")
	ErrMigrationDisabled = Capacity.New("migration is disabled")
	ErrMaxRetriesExceeded = Capacity.New("max retries exceeded")
)

// TooManyConcurrent carries the configured max so callers can report it.
func TooManyConcurrent(max int) error {
	return Capacity.New("too many concurrent operations (max %d)", max)
}

// MaxQueuePairsReached carries the configured max so callers can report it.
func MaxQueuePairsReached(max uint32) error {
	return Capacity.New("max queue pairs (%d) reached", max)
}

// Not-found errors.
var (
	ErrBucketNotFound = NotFound.New("bucket not found")
	ErrObjectNotFound = NotFound.New("object not found")
	ErrQueueNotFound  = NotFound.New("queue not found")
	ErrCommandNotFound = NotFound.New("command not found")
	ErrPathNotFound   = NotFound.New("path not found")
	ErrCursorMissing  = NotFound.New("cursor missing")
	ErrNoQueueForCore = NotFound.New("no queue pair bound to core")
	ErrMigrationNotFound = NotFound.New("migration not found")
)

// Conflict errors.
var (
	ErrDuplicateInterface = Conflict.New("duplicate interface")
	ErrDuplicateEndpoint  = Conflict.New("duplicate endpoint")
	ErrBucketNotEmpty     = Conflict.New("bucket not empty")
	ErrQueueNotActive     = Conflict.New("queue not in active state")
)

// AlreadyMigrating carries the offending connection identity.
func AlreadyMigrating(conn string) error {
	return Conflict.New("connection %s is already migrating", conn)
}

// CoreAlreadyBound carries the offending core identity.
func CoreAlreadyBound(core uint32) error {
	return Conflict.New("core %d already has a queue pair", core)
}

// Validation errors.
var (
	ErrInvalidBucketName = Validation.New("invalid bucket name")
	ErrInvalidURL         = Validation.New("invalid url")
	ErrInvalidTarget      = Validation.New("invalid target")
)

// InvalidConfig carries the specific reason.
func InvalidConfig(reason string) error {
	return Validation.New("invalid config: %s", reason)
}

// Protocol/I-O errors.
func ProtocolError(reason string) error {
	return Protocol.New("protocol error: %s", reason)
}

// DeviceError carries the device identity alongside the reason.
func DeviceError(device, reason string) error {
	return Protocol.New("device %s: %s", device, reason)
}

// SerializationError carries the serialization failure reason.
func SerializationError(reason string) error {
	return Protocol.New("serialization error: %s", reason)
}

// Policy errors.
var (
	ErrPermissionDenied    = Policy.New("permission denied")
	ErrUnauthorizedSyscall = Policy.New("unauthorized syscall")
	ErrCapabilityEscalation = Policy.New("capability escalation")
	ErrAtomicWritesDisabled = Policy.New("atomic writes not enabled")
)
