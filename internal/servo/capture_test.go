package servo

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func udpFrame(t *testing.T, dstPort int, payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(192, 168, 1, 2),
		DstIP:    net.IPv4(192, 168, 1, 1),
	}
	udp := &layers.UDP{SrcPort: 40000, DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)))
	return buf.Bytes()
}

func writeCapture(t *testing.T, frames [][]byte, start time.Time) []byte {
	t.Helper()
	var out bytes.Buffer
	w := pcapgo.NewWriter(&out)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))
	for i, f := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     start.Add(time.Duration(i) * 50 * time.Millisecond),
			CaptureLength: len(f),
			Length:        len(f),
		}
		require.NoError(t, w.WritePacket(ci, f))
	}
	return out.Bytes()
}

func TestReadCommandCapture(t *testing.T) {
	first, err := EncodeCommand(0.634, 0, 0)
	require.NoError(t, err)
	disarm, err := EncodeCommand(0, 0, 0)
	require.NoError(t, err)

	start := time.Unix(1700000000, 0).UTC()
	data := writeCapture(t, [][]byte{
		udpFrame(t, 5556, first),
		udpFrame(t, 9999, first), // other port
		udpFrame(t, 5556, []byte("garbage\n")),
		udpFrame(t, 5556, disarm),
	}, start)

	cmds, skipped, err := ReadCommandCapture(bytes.NewReader(data), 5556)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, cmds, 2)
	assert.InDelta(t, 0.634, cmds[0].Command.Thrust, 1e-12)
	assert.True(t, cmds[0].Time.Equal(start))
	assert.True(t, cmds[1].Command.IsDisarm())
	assert.True(t, cmds[1].Time.Equal(start.Add(150*time.Millisecond)))
}

func TestReadCommandCaptureFile(t *testing.T) {
	msg, err := EncodeCommand(0.5, 0.1, -0.1)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "cmds.pcap")
	require.NoError(t, os.WriteFile(path, writeCapture(t, [][]byte{udpFrame(t, 5556, msg)}, time.Unix(0, 0)), 0o644))

	cmds, skipped, err := ReadCommandCaptureFile(path, 5556)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, cmds, 1)
	assert.Equal(t, NewCommand(0.5, 0.1, -0.1), cmds[0].Command)

	_, _, err = ReadCommandCaptureFile(filepath.Join(t.TempDir(), "missing.pcap"), 5556)
	assert.Error(t, err)
}

func TestReadCommandCapture_BadHeader(t *testing.T) {
	_, _, err := ReadCommandCapture(bytes.NewReader([]byte("not a pcap file at all")), 5556)
	assert.Error(t, err)
}
