package errs

// Code enumerates the request-layer error kinds the request plane can
// return in a reply envelope's status field (negated: status = -int32(code)).
type Code uint16

const (
	UnknownError Code = iota
	PortDoesNotExist
	PortTypeMismatch
	PortLocked
	PortFlagMismatch
	DuplicateConnection
	ClientNotActive
	ClientNotFound
	NoFreePortSlot
	UnknownPortType
	OwnerMismatch
	IOFailure
	InternalLoadFailure
)

var codeMessage = map[Code]string{
	UnknownError:        "unknown error",
	PortDoesNotExist:    "port does not exist",
	PortTypeMismatch:    "port type mismatch",
	PortLocked:          "port is locked",
	PortFlagMismatch:    "port flag mismatch",
	DuplicateConnection: "destination port already connected and type has no mixdown",
	ClientNotActive:     "client is not active",
	ClientNotFound:      "client not found",
	NoFreePortSlot:      "no free port slot",
	UnknownPortType:     "unknown port type",
	OwnerMismatch:       "caller does not own this resource",
	IOFailure:           "i/o failure",
	InternalLoadFailure: "internal load failure",
}

// Message returns the default human-readable text for c.
func (c Code) Message() string {
	if m, ok := codeMessage[c]; ok {
		return m
	}
	return codeMessage[UnknownError]
}

// Error builds an Error of kind c wrapping parent (parent may be nil).
//
//	err := errs.PortLocked.Error(nil)
func (c Code) Error(parent error) Error {
	return newErs(c, c.Message(), parent)
}

// Errorf is like Error but with a custom formatted message.
func (c Code) Errorf(parent error, format string, args ...any) Error {
	return newErsf(c, parent, format, args...)
}

// Status returns the reply-envelope status integer for c: zero for
// UnknownError (StatusOf sends the generic -1 instead), otherwise a
// negative value unique to c.
func (c Code) Status() int32 {
	if c == UnknownError {
		return 0
	}
	return -int32(c)
}
