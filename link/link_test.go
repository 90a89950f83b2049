package link

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startLink runs a Link over one end of an in-memory pipe and returns the other end.
func startLink(t *testing.T, opts ...LinkOpt) (*Link, net.Conn, context.CancelFunc, <-chan error) {
	t.Helper()
	local, remote := net.Pipe()
	l := New(local, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- l.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		_ = remote.Close()
	})
	return l, remote, cancel, done
}

func TestLink_Send(t *testing.T) {
	l, remote, _, _ := startLink(t)

	require.NoError(t, l.Send(context.Background(), Packet{Type: 0x01, Payload: []byte{0x10, 0x20}}))

	_ = remote.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 6)
	_, err := io.ReadFull(remote, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0x01, 0x02, 0x10, 0x20, 0x33}, buf)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(l.Stats().Sent) == 1
	}, time.Second, time.Millisecond)
}

func TestLink_SendInvalid(t *testing.T) {
	l := New(nil)
	err := l.Send(context.Background(), Packet{Type: 0x01, Payload: make([]byte, 65)})
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
	err = l.Send(context.Background(), Packet{Type: StartByte})
	assert.ErrorIs(t, err, ErrStartByteInFrame)
}

func TestLink_SendQueueFull(t *testing.T) {
	l := New(nil, WithOutboundDepth(1))
	require.NoError(t, l.Send(context.Background(), Packet{Type: 0x01}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	err := l.Send(ctx, Packet{Type: 0x01})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLink_Inbound(t *testing.T) {
	l, remote, _, _ := startLink(t, WithHandoffDepth(4))

	// noise, a corrupted frame and a valid one
	_, err := remote.Write([]byte{0x00, 0x17, 0xAA, 0x01, 0x01, 0x05, 0x00})
	require.NoError(t, err)
	_, err = remote.Write([]byte{0xAA, 0x02, 0x01, 0x44, 0x47})
	require.NoError(t, err)

	select {
	case p := <-l.Inbound():
		assert.Equal(t, Packet{Type: 0x02, Payload: []byte{0x44}}, p)
	case <-time.After(time.Second):
		t.Fatal("no packet received")
	}
	assert.Eventually(t, func() bool {
		return dropped(l.Stats(), DropChecksum) == 1
	}, time.Second, time.Millisecond)
}

func TestLink_Handler(t *testing.T) {
	received := make(chan Packet, 1)
	_, remote, _, _ := startLink(t, WithHandler(HandlerFunc(func(ctx context.Context, p Packet) {
		received <- p
	})))

	_, err := remote.Write([]byte{0xAA, 0x01, 0x02, 0x10, 0x20, 0x33})
	require.NoError(t, err)

	select {
	case p := <-received:
		assert.Equal(t, byte(0x01), p.Type)
		assert.Equal(t, []byte{0x10, 0x20}, p.Payload)
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}
}

func TestLink_Echo(t *testing.T) {
	var l *Link
	l, remote, _, _ := startLink(t, WithHandler(HandlerFunc(func(ctx context.Context, p Packet) {
		_ = l.Send(ctx, Packet{Type: p.Type | 0x80, Payload: p.Payload})
	})))

	_, err := remote.Write([]byte{0xAA, 0x01, 0x02, 0x10, 0x20, 0x33})
	require.NoError(t, err)

	_ = remote.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 6)
	_, err = io.ReadFull(remote, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0x81, 0x02, 0x10, 0x20, 0xB3}, buf)
}

func TestLink_RunStopsOnCancel(t *testing.T) {
	_, _, cancel, done := startLink(t)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not return")
	}
}

func TestLink_RunFailsWhenPortCloses(t *testing.T) {
	_, remote, _, done := startLink(t)
	require.NoError(t, remote.Close())
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not return")
	}
}

func TestLink_BackToBackFramesAllDelivered(t *testing.T) {
	l, remote, _, _ := startLink(t)

	const n = 10
	var burst []byte
	for i := 1; i <= n; i++ {
		frame, err := Encode(Packet{Type: 0x01, Payload: []byte{byte(i)}})
		require.NoError(t, err)
		burst = append(burst, frame...)
	}
	go func() {
		_, _ = remote.Write(burst)
	}()

	for i := 1; i <= n; i++ {
		select {
		case p := <-l.Inbound():
			assert.Equal(t, []byte{byte(i)}, p.Payload)
		case <-time.After(time.Second):
			t.Fatalf("frame %d of %d not delivered", i, n)
		}
	}
	c := l.Stats().Counts()
	assert.Equal(t, float64(n), c.Received)
	assert.Zero(t, c.Dropped[DropOverrun])
}
