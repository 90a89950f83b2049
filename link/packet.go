package link

import (
	"errors"
	"fmt"
	"io"
)

const (
	// StartByte marks the beginning of every frame.
	StartByte = 0xAA
	// MaxPayload is the largest payload a frame may carry.
	MaxPayload = 64
	// start, type, length and checksum
	frameOverhead = 4
)

var (
	ErrChecksum         = errors.New("frame checksum mismatch")
	ErrPayloadTooLarge  = fmt.Errorf("payload exceeds %d bytes", MaxPayload)
	ErrStartByteInFrame = errors.New("frame contains the start byte after the start marker")
)

// Packet is one message exchanged with the radio module.
type Packet struct {
	Type    byte
	Payload []byte
}

func (p Packet) String() string {
	return fmt.Sprintf("packet{type: %#02x, payload: % x}", p.Type, p.Payload)
}

// Checksum is the XOR of the type, length and payload bytes.
func Checksum(typ byte, payload []byte) byte {
	sum := typ ^ byte(len(payload))
	for _, b := range payload {
		sum ^= b
	}
	return sum
}

// Encode builds the wire frame [0xAA][type][len][payload][checksum].
// A frame carrying 0xAA anywhere after the start marker, the computed checksum
// included, is refused with ErrStartByteInFrame: the receiver treats that byte
// as a new start and could never deliver it.
func Encode(p Packet) ([]byte, error) {
	if len(p.Payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d", ErrPayloadTooLarge, len(p.Payload))
	}
	frame := make([]byte, 0, len(p.Payload)+frameOverhead)
	frame = append(frame, StartByte, p.Type, byte(len(p.Payload)))
	frame = append(frame, p.Payload...)
	frame = append(frame, Checksum(p.Type, p.Payload))
	for i := 1; i < len(frame); i++ {
		if frame[i] == StartByte {
			return nil, fmt.Errorf("%w: offset %d", ErrStartByteInFrame, i)
		}
	}
	return frame, nil
}

// WriteFrame encodes p and writes the whole frame to w.
func WriteFrame(w io.Writer, p Packet) error {
	frame, err := Encode(p)
	if err != nil {
		return err
	}
	n, err := w.Write(frame)
	if err != nil {
		return fmt.Errorf("could not write frame: %w", err)
	}
	if n != len(frame) {
		return fmt.Errorf("short frame write: %d of %d bytes", n, len(frame))
	}
	return nil
}
