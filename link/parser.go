package link

// Frame is a captured frame whose checksum has not been verified yet.
type Frame struct {
	Type     byte
	Payload  []byte
	Checksum byte
}

// Verify recomputes the checksum and returns the packet it carries.
func (f Frame) Verify() (Packet, error) {
	if Checksum(f.Type, f.Payload) != f.Checksum {
		return Packet{}, ErrChecksum
	}
	return Packet{Type: f.Type, Payload: f.Payload}, nil
}

// DropReason labels why a frame was discarded.
type DropReason string

const (
	DropChecksum DropReason = "checksum"
	DropOversize DropReason = "oversize"
	DropOverrun  DropReason = "overrun"
	DropResync   DropReason = "resync"
)

// ParseResult is the outcome of feeding one byte.
type ParseResult struct {
	// Frame is set when the byte completed a frame.
	Frame *Frame
	// Drop is set when the byte caused a partial frame to be abandoned.
	Drop DropReason
}

type parseState int

const (
	stateWaitStart    parseState = iota // hunting for 0xAA
	stateWaitType                       // start seen
	stateWaitLength                     // type seen
	stateWaitData                       // receiving payload
	stateWaitChecksum                   // payload complete
)

// Parser reassembles frames from a byte stream. It is not safe for concurrent use;
// a single reader goroutine owns it.
type Parser struct {
	state  parseState
	typ    byte
	length int
	recv   int
	buf    [MaxPayload]byte
}

// Reset drops any partial frame.
func (p *Parser) Reset() {
	p.state = stateWaitStart
	p.recv = 0
}

// Parse consumes one byte.
func (p *Parser) Parse(b byte) (pr ParseResult) {
	if b == StartByte {
		if p.state != stateWaitStart {
			pr.Drop = DropResync
		}
		p.recv = 0
		p.state = stateWaitType
		return
	}
	switch p.state {
	case stateWaitStart:
		// noise between frames
	case stateWaitType:
		p.typ = b
		p.state = stateWaitLength
	case stateWaitLength:
		if int(b) > MaxPayload {
			pr.Drop = DropOversize
			p.Reset()
			return
		}
		p.length, p.recv = int(b), 0
		if p.length == 0 {
			p.state = stateWaitChecksum
		} else {
			p.state = stateWaitData
		}
	case stateWaitData:
		p.buf[p.recv] = b
		p.recv++
		if p.recv >= p.length {
			p.state = stateWaitChecksum
		}
	case stateWaitChecksum:
		payload := make([]byte, p.length)
		copy(payload, p.buf[:p.length])
		pr.Frame = &Frame{Type: p.typ, Payload: payload, Checksum: b}
		p.Reset()
	}
	return
}
