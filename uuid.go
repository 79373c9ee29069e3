package amqp

import (
	"fmt"

	"github.com/google/uuid"
)

// UUID is a 128 bit identifier as defined in RFC 4122.
type UUID [16]byte

// String returns the hex encoded representation described in RFC 4122, Section 3.
func (u UUID) String() string {
	return uuid.UUID(u).String()
}

// ParseUUID returns a uuid value parsed from its RFC 4122 text form.
func ParseUUID(s string) (*Value, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return NewUUID(UUID(u)), nil
}
