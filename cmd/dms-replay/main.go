// dms-replay: runs a recorded feature CSV through the engine
// and prints reports and a summary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-dms/internal/config"
	"github.com/teslashibe/go-dms/internal/log"
	"github.com/teslashibe/go-dms/pkg/driverstate"
	"github.com/teslashibe/go-dms/pkg/replay"
)

func main() {
	configPath := flag.String("config", "", "Path to dms.yaml (engine section is used)")
	asJSON := flag.Bool("json", false, "Print one JSON report per frame")
	changes := flag.Bool("changes", false, "Print only frames where a warning flag changes")
	quiet := flag.Bool("quiet", false, "Print only the summary")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: dms-replay [flags] <recording.csv | ->\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(1)
	}
	log.Init(cfg.Log.Level)

	in, closeIn, err := open(flag.Arg(0))
	if err != nil {
		log.Error("failed to open recording", "error", err)
		os.Exit(1)
	}
	defer closeIn()

	engine, err := driverstate.New(cfg.Engine.Driverstate())
	if err != nil {
		log.Error("invalid engine config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	enc := json.NewEncoder(os.Stdout)
	var prev driverstate.Report

	observe := func(row replay.Row, r driverstate.Report) {
		changed := r.Drowsy != prev.Drowsy || r.DistractedWarning != prev.DistractedWarning
		prev = r
		if *quiet || (*changes && !changed) {
			return
		}
		if *asJSON {
			enc.Encode(struct {
				Line int    `json:"line"`
				Kind string `json:"kind"`
				driverstate.Report
			}{row.Line, row.Kind.String(), r})
			return
		}
		printReport(row, r)
	}

	sum, err := replay.Run(ctx, replay.NewReader(in), engine, observe)
	printSummary(sum)
	if err != nil {
		log.Error("replay stopped", "error", err)
		os.Exit(1)
	}
}

func open(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func printReport(row replay.Row, r driverstate.Report) {
	state := "ok"
	switch {
	case r.Drowsy && r.DistractedWarning:
		state = "DROWSY+DISTRACTED"
	case r.Drowsy:
		state = "DROWSY"
	case r.DistractedWarning:
		state = "DISTRACTED"
	}
	tag := ""
	if r.Calibrating {
		tag = " (calibrating)"
	}
	if row.Kind == replay.RowNoFace {
		tag += " (no face)"
	} else if r.Skipped {
		tag += " (skipped)"
	}
	fmt.Printf("%5d  %-18s open=%.2f/%.2f pitch=%6.1f yaw=%6.1f closed=%.2fs distracted=%.2fs%s\n",
		row.Line, state, r.LeftOpen, r.RightOpen, r.Pitch, r.Yaw, r.ClosedTime, r.DistractedTime, tag)
}

func printSummary(s replay.Summary) {
	fmt.Println()
	fmt.Println("Summary")
	fmt.Printf("  rows:        %d (%d frames, %d no face, %d skipped, %d resets)\n",
		s.Rows, s.Frames, s.NoFace, s.Skipped, s.Resets)
	fmt.Printf("  duration:    %.1fs\n", s.Duration)
	fmt.Printf("  drowsy:      %d alerts, %d frames\n", s.DrowsyAlerts, s.DrowsyFrames)
	fmt.Printf("  distracted:  %d alerts, %d frames\n", s.DistractedAlerts, s.DistractedFrames)
}
