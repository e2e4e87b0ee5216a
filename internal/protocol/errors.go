package protocol

import (
	"errors"
	"fmt"

	"github.com/GTDGit/pts_listener/internal/models"
)

var (
	ErrShortPacket    = errors.New("protocol: packet too short")
	ErrInvalidLayout  = errors.New("protocol: invalid field layout")
	ErrUnknownVersion = errors.New("protocol: unknown protocol version")
	ErrUnknownKind    = errors.New("protocol: kind not supported by version")
)

// DecodeError reports a datagram that could not be decoded. It is never fatal.
type DecodeError struct {
	Version string
	Kind    models.PacketKind
	Length  int
	Need    int
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Need > 0 {
		return fmt.Sprintf("decode %s (%s): %d bytes, need %d: %v", e.Kind, e.Version, e.Length, e.Need, e.Err)
	}
	return fmt.Sprintf("decode %s (%s): %v", e.Kind, e.Version, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
