// ABOUTME: Diagnostic that measures clock exchanges against a sink
// ABOUTME: Runs repeated synchronisations and call round trips, then prints a summary
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/Resonate-Protocol/resonate-stream/internal/logging"
	"github.com/Resonate-Protocol/resonate-stream/pkg/clock"
	"github.com/Resonate-Protocol/resonate-stream/pkg/player"
	"github.com/Resonate-Protocol/resonate-stream/pkg/transport"
)

func main() {
	fs := pflag.NewFlagSet("clock-probe", pflag.ExitOnError)

	var (
		url       = fs.StringP("url", "u", "ws://localhost:8927/stream", "Sink websocket URL")
		passes    = fs.IntP("passes", "p", 10, "Number of synchronisations")
		rounds    = fs.Int("rounds", 5, "Maximum exchanges per synchronisation")
		threshold = fs.Duration("threshold", 10*time.Millisecond, "Accept once the one-way estimate is below this")
		interval  = fs.Duration("interval", 500*time.Millisecond, "Pause between passes")
		logLevel  = fs.String("log-level", "warn", "Log level")
	)
	fs.Parse(os.Args[1:])

	closeLog, err := logging.Setup(logging.Options{Level: *logLevel, Service: "clock-probe"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	log := logging.WithComponent("probe")
	base := logging.Base()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("=== Clock Probe ===")
	fmt.Printf("Connecting to %s\n", *url)
	fmt.Println("The probe opens the sink's stream for the duration of the run.")
	fmt.Println()

	c, err := transport.Dial(ctx, *url, transport.ClientConfig{
		ClientID: uuid.New().String(),
		Name:     "clock-probe",
		Logger:   &base,
	}, player.Signals{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect")
	}
	defer c.Close()

	hello := c.HelloReply()
	fmt.Printf("Sink: %s (%s %s, interface %d)\n\n", hello.FriendlyName, hello.Manufacturer, hello.Product, hello.Version)

	if err := c.OpenStream(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to open stream")
	}
	defer c.CloseStream(context.Background())

	local := clock.New()
	opts := clock.SyncOptions{Rounds: *rounds, Threshold: *threshold, Backoff: -1, Logger: &base}

	var estimates, rtts []time.Duration
	converged := 0
	for i := 0; i < *passes && ctx.Err() == nil; i++ {
		res, err := clock.Synchronize(ctx, local, c, opts)
		if err != nil {
			log.Error().Err(err).Int("pass", i+1).Msg("synchronisation failed")
			continue
		}

		start := time.Now()
		if _, _, err := c.Delay(ctx); err != nil {
			log.Error().Err(err).Int("pass", i+1).Msg("delay query failed")
			continue
		}
		rtt := time.Since(start)

		estimates = append(estimates, res.Estimate)
		rtts = append(rtts, rtt)
		if res.Converged {
			converged++
		}
		fmt.Printf("pass %2d: estimate %-12v rounds %d  quality %-8v rtt %v\n",
			i+1, res.Estimate, res.Rounds, res.Quality, rtt)

		select {
		case <-time.After(*interval):
		case <-ctx.Done():
		}
	}

	if len(estimates) == 0 {
		fmt.Println("\nno successful passes")
		os.Exit(1)
	}
	fmt.Println()
	fmt.Printf("converged: %d/%d\n", converged, len(estimates))
	fmt.Printf("estimate:  %s\n", summarize(estimates))
	fmt.Printf("rtt:       %s\n", summarize(rtts))
}

func summarize(ds []time.Duration) string {
	sorted := slices.Clone(ds)
	slices.Sort(sorted)

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	return fmt.Sprintf("min %v  median %v  max %v  mean %v",
		sorted[0], sorted[len(sorted)/2], sorted[len(sorted)-1], total/time.Duration(len(sorted)))
}
