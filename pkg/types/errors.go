package types

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Kind classifies engine and transport failures. Its numeric value is the
// status byte carried in command responses.
type Kind uint8

const (
	KindOK                  Kind = 0
	KindStreamNotFound      Kind = 1
	KindTopicNotFound       Kind = 2
	KindPartitionNotFound   Kind = 3
	KindPayloadTooLarge     Kind = 4
	KindPartitionFull       Kind = 5
	KindInvalidCount        Kind = 6
	KindInvalidCommand      Kind = 7
	KindTimeout             Kind = 8
	KindTransportFailure    Kind = 9
	KindStreamAlreadyExists Kind = 10
	KindTopicAlreadyExists  Kind = 11
	KindInvalidName         Kind = 12
	KindUnknown             Kind = 255
)

var kindNames = map[Kind]string{
	KindOK:                  "ok",
	KindStreamNotFound:      "stream not found",
	KindTopicNotFound:       "topic not found",
	KindPartitionNotFound:   "partition not found",
	KindPayloadTooLarge:     "payload too large",
	KindPartitionFull:       "partition full",
	KindInvalidCount:        "invalid count",
	KindInvalidCommand:      "invalid command",
	KindTimeout:             "timeout",
	KindTransportFailure:    "transport failure",
	KindStreamAlreadyExists: "stream already exists",
	KindTopicAlreadyExists:  "topic already exists",
	KindInvalidName:         "invalid name",
	KindUnknown:             "unknown",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// KindFromStatus maps a response status byte to a Kind; unrecognized values become KindUnknown.
func KindFromStatus(status byte) Kind {
	k := Kind(status)
	if _, ok := kindNames[k]; ok {
		return k
	}
	return KindUnknown
}

// Error is a classified failure. ID carries the stream, topic or partition id
// for the not-found kinds.
type Error struct {
	Kind Kind
	ID   uint32
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var s string
	switch e.Kind {
	case KindStreamNotFound, KindTopicNotFound, KindPartitionNotFound,
		KindStreamAlreadyExists, KindTopicAlreadyExists:
		s = fmt.Sprintf("%s: %d", e.Kind, e.ID)
	default:
		s = e.Kind.String()
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels like ErrTopicNotFound
// can be used with errors.Is regardless of ID.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrStreamNotFound      = &Error{Kind: KindStreamNotFound}
	ErrTopicNotFound       = &Error{Kind: KindTopicNotFound}
	ErrPartitionNotFound   = &Error{Kind: KindPartitionNotFound}
	ErrPayloadTooLarge     = &Error{Kind: KindPayloadTooLarge}
	ErrPartitionFull       = &Error{Kind: KindPartitionFull}
	ErrInvalidCount        = &Error{Kind: KindInvalidCount}
	ErrInvalidCommand      = &Error{Kind: KindInvalidCommand}
	ErrTimeout             = &Error{Kind: KindTimeout}
	ErrTransportFailure    = &Error{Kind: KindTransportFailure}
	ErrStreamAlreadyExists = &Error{Kind: KindStreamAlreadyExists}
	ErrTopicAlreadyExists  = &Error{Kind: KindTopicAlreadyExists}
	ErrInvalidName         = &Error{Kind: KindInvalidName}
	ErrUnknown             = &Error{Kind: KindUnknown}
)

func StreamNotFound(id uint32) error    { return &Error{Kind: KindStreamNotFound, ID: id} }
func TopicNotFound(id uint32) error     { return &Error{Kind: KindTopicNotFound, ID: id} }
func PartitionNotFound(id uint32) error { return &Error{Kind: KindPartitionNotFound, ID: id} }

func StreamAlreadyExists(id uint32) error { return &Error{Kind: KindStreamAlreadyExists, ID: id} }
func TopicAlreadyExists(id uint32) error  { return &Error{Kind: KindTopicAlreadyExists, ID: id} }

func PayloadTooLarge(size, limit int) error {
	return &Error{Kind: KindPayloadTooLarge, Msg: fmt.Sprintf("%d bytes exceeds limit of %d", size, limit)}
}

func InvalidCommand(format string, args ...any) error {
	return &Error{Kind: KindInvalidCommand, Msg: fmt.Sprintf(format, args...)}
}

func TransportFailure(err error) error {
	return &Error{Kind: KindTransportFailure, Err: err}
}

// KindOf classifies err. Context deadlines and I/O timeouts map to KindTimeout.
func KindOf(err error) Kind {
	if err == nil {
		return KindOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// IDOf returns the id attached to a classified error, or zero.
func IDOf(err error) uint32 {
	var e *Error
	if errors.As(err, &e) {
		return e.ID
	}
	return 0
}
