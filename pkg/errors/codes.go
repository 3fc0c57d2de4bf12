package errors

// -----------------------------------------------------------------------------
// Configuration Error Codes
// -----------------------------------------------------------------------------

const (
	// ErrConfigNotFound indicates the configuration file does not exist.
	ErrConfigNotFound = "CONFIG_NOT_FOUND"

	// ErrConfigParseFailed indicates the configuration file could not be parsed.
	ErrConfigParseFailed = "CONFIG_PARSE_FAILED"

	// ErrConfigInvalid indicates configuration values are invalid.
	ErrConfigInvalid = "CONFIG_INVALID"

	// ErrConfigWriteFailed indicates the config file could not be written.
	ErrConfigWriteFailed = "CONFIG_WRITE_FAILED"
)

// -----------------------------------------------------------------------------
// Protocol Error Codes
// -----------------------------------------------------------------------------
// Framing errors are recoverable at message or chunk granularity and never
// touch unrelated in-flight messages.

const (
	// ErrHeaderOverflow indicates a header field value exceeds its bit width.
	ErrHeaderOverflow = "PROTOCOL_HEADER_OVERFLOW"

	// ErrPayloadCapacity indicates the oscillator count leaves no room for payload.
	ErrPayloadCapacity = "PROTOCOL_PAYLOAD_CAPACITY"

	// ErrChunkCountOverflow indicates a message needs more chunks than the
	// 4-bit total field can declare.
	ErrChunkCountOverflow = "PROTOCOL_CHUNK_COUNT_OVERFLOW"

	// ErrChunkLengthMismatch indicates a built or decoded frame does not match
	// the oscillator count.
	ErrChunkLengthMismatch = "PROTOCOL_CHUNK_LENGTH_MISMATCH"

	// ErrMissingChunk indicates a message reached its declared chunk count with
	// a sequence slot still empty.
	ErrMissingChunk = "PROTOCOL_MISSING_CHUNK"

	// ErrDuplicateChunk indicates the same sequence number arrived twice.
	ErrDuplicateChunk = "PROTOCOL_DUPLICATE_CHUNK"

	// ErrInvalidFrame indicates a frame could not be parsed (non-binary
	// characters, short header, zero total).
	ErrInvalidFrame = "PROTOCOL_INVALID_FRAME"

	// ErrEmptyMessage indicates there was nothing to transmit.
	ErrEmptyMessage = "PROTOCOL_EMPTY_MESSAGE"

	// ErrPayloadDecode indicates a reassembled payload could not be decoded.
	ErrPayloadDecode = "PROTOCOL_PAYLOAD_DECODE"
)

// -----------------------------------------------------------------------------
// State Error Codes
// -----------------------------------------------------------------------------

const (
	// ErrStateUninitialized indicates an operation ran on a state with no bases.
	ErrStateUninitialized = "STATE_UNINITIALIZED"

	// ErrStateShapeMismatch indicates two states have different basis layouts.
	ErrStateShapeMismatch = "STATE_SHAPE_MISMATCH"
)

// -----------------------------------------------------------------------------
// Validation Error Codes
// -----------------------------------------------------------------------------

const (
	// ErrValidationRequired indicates a required field is missing.
	ErrValidationRequired = "VALIDATION_REQUIRED"

	// ErrValidationInvalidValue indicates a value is invalid.
	ErrValidationInvalidValue = "VALIDATION_INVALID_VALUE"

	// ErrValidationOutOfRange indicates a value is outside allowed range.
	ErrValidationOutOfRange = "VALIDATION_OUT_OF_RANGE"
)

// -----------------------------------------------------------------------------
// IO and Network Error Codes
// -----------------------------------------------------------------------------

const (
	// ErrExportFailed indicates a session export could not be written.
	ErrExportFailed = "IO_EXPORT_FAILED"

	// ErrStoreFailed indicates a database operation failed.
	ErrStoreFailed = "IO_STORE_FAILED"

	// ErrServerFailed indicates the telemetry server could not start.
	ErrServerFailed = "NETWORK_SERVER_FAILED"
)

// -----------------------------------------------------------------------------
// Internal Error Codes
// -----------------------------------------------------------------------------

const (
	// ErrSweepTrialFailed indicates one trial of a parameter sweep failed.
	ErrSweepTrialFailed = "INTERNAL_SWEEP_TRIAL_FAILED"
)
