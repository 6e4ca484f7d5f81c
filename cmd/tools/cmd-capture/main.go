// Command cmd-capture decodes the actuation commands sent to the vehicle
// from a packet capture, e.g. one taken with
//
//	tcpdump -i wlan0 -w cmds.pcap udp port 5556
package main

import (
	"encoding/csv"
	"flag"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/banshee-data/depth-servo/internal/servo"
)

var (
	pcapFile = flag.String("pcap", "", "Capture file to decode (required)")
	udpPort  = flag.Int("port", 5556, "Vehicle command UDP port")
)

func main() {
	flag.Parse()
	if *pcapFile == "" {
		log.Fatal("-pcap is required")
	}

	cmds, skipped, err := servo.ReadCommandCaptureFile(*pcapFile, *udpPort)
	if err != nil {
		log.Fatalf("failed to decode %s: %v", *pcapFile, err)
	}

	w := csv.NewWriter(os.Stdout)
	_ = w.Write([]string{"time", "offset_ms", "version", "thrust", "pitch", "roll", "yaw", "disarm"})
	var start time.Time
	disarms := 0
	for i, c := range cmds {
		if i == 0 {
			start = c.Time
		}
		if c.Command.IsDisarm() {
			disarms++
		}
		_ = w.Write([]string{
			c.Time.UTC().Format(time.RFC3339Nano),
			strconv.FormatInt(c.Time.Sub(start).Milliseconds(), 10),
			strconv.Itoa(c.Command.Version),
			strconv.FormatFloat(c.Command.Thrust, 'f', -1, 64),
			strconv.FormatFloat(c.Command.Pitch, 'f', -1, 64),
			strconv.FormatFloat(c.Command.Roll, 'f', -1, 64),
			strconv.FormatFloat(c.Command.Yaw, 'f', -1, 64),
			strconv.FormatBool(c.Command.IsDisarm()),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		log.Fatal(err)
	}
	log.Printf("%d commands (%d disarm), %d undecodable datagrams", len(cmds), disarms, skipped)
}
