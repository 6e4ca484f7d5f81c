package servo

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUDPChannel_SendsOneDatagramPerCommand(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer listener.Close()

	ch, err := NewUDPChannel(listener.LocalAddr().String())
	require.NoError(t, err)
	defer ch.Close()
	assert.Equal(t, "udp://"+listener.LocalAddr().String(), ch.String())

	msg, err := EncodeCommand(0.5, 0.1, -0.1)
	require.NoError(t, err)
	require.NoError(t, ch.Send(msg))

	buf := make([]byte, 1024)
	require.NoError(t, listener.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := listener.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, msg, buf[:n])
	assert.Equal(t, uint64(1), ch.Sent())
}

func TestUDPChannel_SendAfterClose(t *testing.T) {
	ch, err := NewUDPChannel("127.0.0.1:9")
	require.NoError(t, err)
	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())

	assert.ErrorIs(t, ch.Send([]byte("x\n")), ErrChannelClosed)
}

func TestNewUDPChannel_BadAddress(t *testing.T) {
	_, err := NewUDPChannel("not-an-address")
	assert.Error(t, err)
}

func TestMockChannel(t *testing.T) {
	m := NewMockChannel()
	require.NoError(t, m.Send([]byte(`{"ctrl":{"version":1,"roll":0.0,"pitch":0.0,"yaw":0.0,"thrust":0.0}}`)))

	cmds, err := m.Commands()
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.True(t, cmds[0].IsDisarm())

	m.SendError = errors.New("boom")
	assert.EqualError(t, m.Send([]byte("x")), "boom")
	assert.Len(t, m.Messages(), 1)

	require.NoError(t, m.Close())
	assert.True(t, m.Closed())
	assert.ErrorIs(t, m.Send([]byte("x")), ErrChannelClosed)
}
