package outbox

import (
	"encoding/binary"
	"errors"
)

const (
	frameMagic     byte = 0
	frameHeaderLen      = 5
)

// ErrUnframed is returned for record values that lack the schema registry header.
var ErrUnframed = errors.New("outbox: value is not schema registry framed")

// Frame prefixes payload with the magic byte and the big-endian schema ID.
func Frame(schemaID int, payload []byte) []byte {
	out := make([]byte, frameHeaderLen, frameHeaderLen+len(payload))
	out[0] = frameMagic
	binary.BigEndian.PutUint32(out[1:frameHeaderLen], uint32(schemaID))
	return append(out, payload...)
}

// Unframe returns the schema ID and payload of a framed record value.
func Unframe(value []byte) (int, []byte, error) {
	if len(value) < frameHeaderLen || value[0] != frameMagic {
		return 0, nil, ErrUnframed
	}
	return int(binary.BigEndian.Uint32(value[1:frameHeaderLen])), value[frameHeaderLen:], nil
}
