// Package engineerr defines the error taxonomy shared by every core
// subsystem (playback, sprite, export, composition).
package engineerr

import "errors"

// Class classifies an error so callers and the Host Protocol can decide
// whether to recover locally or surface it to the host.
type Class uint8

// Error classes.
const (
	// ClassTransient is a transient decode error; recoverable by resetting
	// the decoder on the next operation.
	ClassTransient Class = iota
	// ClassInvariant is an invariant violation (bad keyframe, out-of-bounds
	// target); the current operation is aborted but state stays coherent.
	ClassInvariant
	// ClassResourceExhaustion is a cache-full or allocation failure; the
	// caller should evict and retry before surfacing it.
	ClassResourceExhaustion
	// ClassProtocol is a command issued in the wrong state; ignored with a
	// warning event, never fatal.
	ClassProtocol
	// ClassFatal is an unrecoverable configuration error; the engine moves
	// to Idle and the host must reload.
	ClassFatal
)

// Recoverable reports whether the engine can continue operating without
// host intervention after an error of this class.
func (c Class) Recoverable() bool {
	return c != ClassFatal
}

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassInvariant:
		return "invariant"
	case ClassResourceExhaustion:
		return "resource_exhaustion"
	case ClassProtocol:
		return "protocol"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a classified engine error.
type Error struct {
	Class   Class
	Op      string // operation that failed, e.g. "seek", "flush"
	Err     error
	Message string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a classified error.
func New(class Class, op string, err error) *Error {
	return &Error{Class: class, Op: op, Err: err}
}

// Newf builds a classified error from a message, no wrapped cause.
func Newf(class Class, op, message string) *Error {
	return &Error{Class: class, Op: op, Message: message}
}

// Recoverable reports whether err (if classified) is recoverable.
// Unclassified errors are treated as recoverable, matching the "locally
// recovered" default posture.
func Recoverable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class.Recoverable()
	}
	return true
}

// ClassOf returns the class of err, or ClassTransient if unclassified.
func ClassOf(err error) Class {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ClassTransient
}

// Sentinel errors used across subsystems with errors.Is.
var (
	// ErrOverlap is returned when a clip placement would overlap another
	// clip on a video/subtitle track.
	ErrOverlap = errors.New("clip overlap")
	// ErrNotFound is returned for unknown source/track/clip/link IDs.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTrim is returned for trim bounds that violate the clip
	// trim invariants.
	ErrInvalidTrim = errors.New("invalid trim")
	// ErrSourceInUse is returned by RemoveSource when a clip still
	// references the source.
	ErrSourceInUse = errors.New("source in use")
	// ErrTrackKindMismatch is returned when moving a clip to a track of a
	// different kind.
	ErrTrackKindMismatch = errors.New("track kind mismatch")
	// ErrKeyframeCorrupt is returned when the keyframe index disagrees
	// with the sample's sync flag.
	ErrKeyframeCorrupt = errors.New("keyframe index corrupt")
	// ErrTerminated is returned by actor loops (coordinator, pipelines)
	// once they have shut down.
	ErrTerminated = errors.New("terminated")
)
