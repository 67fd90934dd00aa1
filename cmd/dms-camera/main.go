// dms-camera: local driver monitor
// Runs an external landmark detector, feeds a local engine and prints
// alerts. Type "r" + Enter to restart calibration.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-dms/internal/config"
	"github.com/teslashibe/go-dms/internal/log"
	"github.com/teslashibe/go-dms/pkg/debug"
	"github.com/teslashibe/go-dms/pkg/detector"
	"github.com/teslashibe/go-dms/pkg/driverstate"
	"github.com/teslashibe/go-dms/pkg/landmarks"
	"github.com/teslashibe/go-dms/pkg/replay"
)

func main() {
	configPath := flag.String("config", "", "Path to dms.yaml (engine section is used)")
	detectorCmd := flag.String("detector", "", "Detector command; arguments follow --")
	wsURL := flag.String("ws", "", "Mirror features to a dms-server stream, e.g. ws://host:8080/ws/stream/cab-1")
	recordPath := flag.String("record", "", "Write features to a replay CSV")
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *detectorCmd == "" {
		fmt.Fprintln(os.Stderr, "❌ --detector is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(1)
	}
	level := cfg.Log.Level
	if *debugFlag {
		level = "debug"
	}
	log.Init(level)
	debug.Enabled = *debugFlag

	engine, err := driverstate.New(cfg.Engine.Driverstate())
	if err != nil {
		log.Error("invalid engine config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	worker, err := detector.New(detector.Config{
		Command: *detectorCmd,
		Args:    flag.Args(),
		Logger:  log.For("detector"),
	})
	if err != nil {
		log.Error("detector config", "error", err)
		os.Exit(1)
	}

	c := &camera{engine: engine, resets: make(chan struct{}, 1)}

	if *wsURL != "" {
		c.up, err = dialUplink(ctx, *wsURL)
		if err != nil {
			log.Error("uplink failed", "url", *wsURL, "error", err)
			os.Exit(1)
		}
		defer c.up.Close()
	}

	if *recordPath != "" {
		f, err := os.Create(*recordPath)
		if err != nil {
			log.Error("failed to create recording", "error", err)
			os.Exit(1)
		}
		defer f.Close()
		c.rec = replay.NewWriter(f)
		defer c.rec.Flush()
	}

	if err := worker.Start(ctx); err != nil {
		log.Error("failed to start detector", "error", err)
		os.Exit(1)
	}
	defer worker.Stop()

	fmt.Println("👁️  Driver monitor running (r + Enter to recalibrate, Ctrl+C to stop)")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.run(ctx, worker.Results())
	})
	go c.readCommands(os.Stdin)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("camera stopped", "error", err)
	}
	log.Info("detector stats", "metrics", worker.Metrics())
}

// camera owns the engine. Only run touches it.
type camera struct {
	engine *driverstate.Engine
	up     *uplink
	rec    *replay.Writer
	resets chan struct{}

	prev driverstate.Report
}

func (c *camera) run(ctx context.Context, results <-chan detector.Result) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-c.resets:
			c.engine.ResetCalibration()
			if c.rec != nil {
				c.rec.WriteReset()
			}
			if c.up != nil {
				c.up.SendReset()
			}
			fmt.Println("🔄 Calibration restarted, look straight ahead")

		case res, ok := <-results:
			if !ok {
				log.Info("detector output ended")
				return nil
			}
			c.handle(res)
		}
	}
}

func (c *camera) handle(res detector.Result) {
	if res.Face == nil {
		c.engine.Skip()
		if c.rec != nil {
			c.rec.WriteNoFace(res.Duration)
		}
		if c.up != nil {
			c.up.SendNoFace(res.Duration)
		}
		return
	}

	f, err := landmarks.Features(*res.Face, res.Duration)
	if err != nil {
		debug.Log("frame skipped", "seq", res.Seq, "error", err)
		c.engine.Skip()
		return
	}

	r, err := c.engine.Process(f)
	if err != nil {
		debug.Log("frame skipped", "seq", res.Seq, "error", err)
		return
	}
	if c.rec != nil {
		c.rec.WriteFrame(f)
	}
	if c.up != nil {
		c.up.SendFeatures(f)
	}

	c.announce(r)
	c.prev = r
}

// announce prints warning transitions
func (c *camera) announce(r driverstate.Report) {
	if c.prev.Calibrating && !r.Calibrating {
		fmt.Printf("✅ Calibrated (pitch offset %.1f°, yaw offset %.1f°)\n", r.PitchOffset, r.YawOffset)
	}
	if r.Drowsy != c.prev.Drowsy {
		if r.Drowsy {
			fmt.Printf("😴 DROWSY: eyes closed %.1fs of the last %.0fs\n", r.ClosedTime, c.engine.WindowTotal())
		} else {
			fmt.Println("   drowsiness cleared")
		}
	}
	if r.DistractedWarning != c.prev.DistractedWarning {
		if r.DistractedWarning {
			fmt.Printf("👀 DISTRACTED: pitch %.1f° yaw %.1f° roll %.1f°\n", r.Pitch, r.Yaw, r.Roll)
		} else {
			fmt.Println("   attention restored")
		}
	}
}

// readCommands turns "r" lines on stdin into reset requests
func (c *camera) readCommands(in *os.File) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if strings.EqualFold(strings.TrimSpace(scanner.Text()), "r") {
			select {
			case c.resets <- struct{}{}:
			default:
			}
		}
	}
}
