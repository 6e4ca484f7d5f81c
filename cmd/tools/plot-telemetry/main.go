// Command plot-telemetry prints the summary of a recorded control session
// and renders its command outputs to an image.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/depth-servo/internal/telemetry"
)

var (
	dbPath  = flag.String("db", "servo_telemetry.db", "Telemetry database")
	session = flag.String("session", "", "Session ID (default: latest)")
	out     = flag.String("out", "", "Output image (.png, .svg or .pdf); empty skips plotting")
	list    = flag.Bool("list", false, "List recorded sessions and exit")
	jsonOut = flag.Bool("json", false, "Print the summary as JSON")
)

func main() {
	flag.Parse()
	ctx := context.Background()

	store, err := telemetry.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open %s: %v", *dbPath, err)
	}
	defer store.Close()

	if *list {
		sessions, err := store.Sessions(ctx)
		if err != nil {
			log.Fatalf("failed to list sessions: %v", err)
		}
		for _, s := range sessions {
			fmt.Printf("%s  %s  %6d ticks  %s\n", s.ID, s.Started.Format("2006-01-02 15:04:05"), s.Ticks, s.Notes)
		}
		return
	}

	id := *session
	if id == "" {
		if id, err = store.LatestSession(ctx); err != nil {
			log.Fatal(err)
		}
	}

	sum, err := store.Summary(ctx, id)
	if err != nil {
		log.Fatal(err)
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sum); err != nil {
			log.Fatal(err)
		}
	} else {
		fmt.Print(sum)
	}

	if *out != "" {
		if err := store.ExportPlot(ctx, id, *out); err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote %s", *out)
	}
}
