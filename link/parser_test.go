package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type parseOutcome struct {
	frames []Frame
	drops  []DropReason
}

func feed(p *Parser, in ...byte) parseOutcome {
	var out parseOutcome
	for _, b := range in {
		pr := p.Parse(b)
		if pr.Drop != "" {
			out.drops = append(out.drops, pr.Drop)
		}
		if pr.Frame != nil {
			out.frames = append(out.frames, *pr.Frame)
		}
	}
	return out
}

func TestParser(t *testing.T) {
	testCases := []struct {
		name   string
		in     []byte
		frames []Frame
		drops  []DropReason
	}{
		{
			name:   "single frame",
			in:     []byte{0xAA, 0x01, 0x02, 0x10, 0x20, 0x33},
			frames: []Frame{{Type: 0x01, Payload: []byte{0x10, 0x20}, Checksum: 0x33}},
		},
		{
			name:   "noise before start",
			in:     []byte{0x00, 0x13, 0xFF, 0xAA, 0x05, 0x00, 0x05},
			frames: []Frame{{Type: 0x05, Payload: []byte{}, Checksum: 0x05}},
		},
		{
			name: "back to back",
			in:   []byte{0xAA, 0x01, 0x01, 0x07, 0x07, 0xAA, 0x02, 0x00, 0x02},
			frames: []Frame{
				{Type: 0x01, Payload: []byte{0x07}, Checksum: 0x07},
				{Type: 0x02, Payload: []byte{}, Checksum: 0x02},
			},
		},
		{
			name:   "start byte mid payload restarts capture",
			in:     []byte{0xAA, 0x01, 0x05, 0x11, 0x22, 0xAA, 0x02, 0x01, 0x44, 0x47},
			frames: []Frame{{Type: 0x02, Payload: []byte{0x44}, Checksum: 0x47}},
			drops:  []DropReason{DropResync},
		},
		{
			name:   "start byte as length restarts capture",
			in:     []byte{0xAA, 0x01, 0xAA, 0x01, 0x00, 0x01},
			frames: []Frame{{Type: 0x01, Payload: []byte{}, Checksum: 0x01}},
			drops:  []DropReason{DropResync},
		},
		{
			name:  "oversize length rejected",
			in:    []byte{0xAA, 0x01, 0x41, 0x01, 0x02, 0x03},
			drops: []DropReason{DropOversize},
		},
		{
			name:   "oversize then valid",
			in:     []byte{0xAA, 0x01, 0xFF, 0x10, 0xAA, 0x01, 0x01, 0x10, 0x10},
			frames: []Frame{{Type: 0x01, Payload: []byte{0x10}, Checksum: 0x10}},
			drops:  []DropReason{DropOversize},
		},
		{
			name:   "bad checksum still completes capture",
			in:     []byte{0xAA, 0x01, 0x02, 0x10, 0x20, 0x34},
			frames: []Frame{{Type: 0x01, Payload: []byte{0x10, 0x20}, Checksum: 0x34}},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var p Parser
			out := feed(&p, tc.in...)
			assert.Equal(t, tc.frames, out.frames)
			assert.Equal(t, tc.drops, out.drops)
		})
	}
}

func TestParser_OversizeStoresNothing(t *testing.T) {
	var p Parser
	feed(&p, 0xAA, 0x01, 0x41)
	assert.Equal(t, stateWaitStart, p.state)
	// payload bytes that follow are treated as noise
	out := feed(&p, make([]byte, 65)...)
	assert.Empty(t, out.frames)
	assert.Equal(t, [MaxPayload]byte{}, p.buf)
}

func TestParser_MaxPayload(t *testing.T) {
	payload := make([]byte, MaxPayload)
	for i := range payload {
		payload[i] = byte(i)
	}
	frame, err := Encode(Packet{Type: 0x10, Payload: payload})
	require.NoError(t, err)

	var p Parser
	out := feed(&p, frame...)
	require.Len(t, out.frames, 1)
	got, err := out.frames[0].Verify()
	require.NoError(t, err)
	assert.Equal(t, payload, got.Payload)
}

func TestParser_FramePayloadIsCopied(t *testing.T) {
	var p Parser
	first := feed(&p, 0xAA, 0x01, 0x01, 0x07, 0x07).frames[0]
	feed(&p, 0xAA, 0x01, 0x01, 0x09, 0x09)
	assert.Equal(t, []byte{0x07}, first.Payload)
}

func TestFrame_Verify(t *testing.T) {
	p, err := Frame{Type: 0x01, Payload: []byte{0x10, 0x20}, Checksum: 0x33}.Verify()
	require.NoError(t, err)
	assert.Equal(t, Packet{Type: 0x01, Payload: []byte{0x10, 0x20}}, p)

	_, err = Frame{Type: 0x01, Payload: []byte{0x10, 0x20}, Checksum: 0x32}.Verify()
	assert.ErrorIs(t, err, ErrChecksum)
}
