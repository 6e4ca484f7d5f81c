package servo

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// CapturedCommand is an actuation command recovered from a packet capture.
type CapturedCommand struct {
	Time    time.Time
	Command ActuationCommand
}

// ReadCommandCaptureFile decodes every command sent to udpPort in a pcap
// file. Datagrams that do not parse as commands are skipped and counted.
func ReadCommandCaptureFile(path string, udpPort int) ([]CapturedCommand, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open capture %s: %w", path, err)
	}
	defer f.Close()
	return ReadCommandCapture(bufio.NewReader(f), udpPort)
}

// ReadCommandCapture is ReadCommandCaptureFile over an io.Reader.
func ReadCommandCapture(r io.Reader, udpPort int) (cmds []CapturedCommand, skipped int, err error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read pcap header: %w", err)
	}

	for {
		data, ci, err := reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return cmds, skipped, nil
		}
		if err != nil {
			return cmds, skipped, fmt.Errorf("failed to read packet %d: %w", len(cmds)+skipped+1, err)
		}

		packet := gopacket.NewPacket(data, reader.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || int(udp.DstPort) != udpPort {
			continue
		}

		// A datagram normally carries one line, but tolerate batching.
		for _, line := range bytes.Split(udp.Payload, []byte("\n")) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			cmd, err := DecodeCommand(line)
			if err != nil {
				skipped++
				continue
			}
			cmds = append(cmds, CapturedCommand{Time: ci.Timestamp, Command: cmd})
		}
	}
}
