// Command photocal is the calibration CLI front-end: a thin wrapper that
// wires transports, discovery, the calibration engine and the ZP updater
// together per the chosen subcommand. The front-end itself carries no
// calibration logic of its own.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/tessw/photocal/internal/calconfig"
	"github.com/tessw/photocal/internal/configstore"
	"github.com/tessw/photocal/internal/debug"
	"github.com/tessw/photocal/internal/photometer/calibration"
	"github.com/tessw/photocal/internal/photometer/decode"
	"github.com/tessw/photocal/internal/photometer/discovery"
	"github.com/tessw/photocal/internal/photometer/transport"
	"github.com/tessw/photocal/internal/photometer/zpupdate"
	"github.com/tessw/photocal/internal/pipeline"
	"github.com/tessw/photocal/internal/report"
	"github.com/tessw/photocal/internal/version"
)

var (
	configFile  = flag.String("config", calconfig.DefaultConfigPath, "path to JSON calibration configuration file")
	dbPath      = flag.String("db-path", "photocal.db", "path to sqlite configuration store")
	serialPort  = flag.String("port", transport.DefaultPortName(), "serial port for the reference photometer")
	reportDir   = flag.String("report-dir", "", "directory to write a calibration report to (empty disables reports)")
	debugAddr   = flag.String("debug-addr", "", "address to serve live calibration status on (empty disables it)")
	versionFlag = flag.Bool("version", false, "print version information and exit")
)

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("photocal v%s (git SHA: %s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		log.Fatal("usage: photocal <calibrate|read|update|migrate> [flags]")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch args[0] {
	case "calibrate":
		err = runCalibrate(ctx)
	case "read":
		err = runRead(ctx)
	case "update":
		err = runUpdate(ctx, args[1:])
	case "migrate":
		err = runMigrate()
	default:
		log.Fatalf("unknown subcommand %q", args[0])
	}

	if err != nil {
		log.Fatalf("photocal: %v", err)
	}
}

func loadConfig() *calconfig.CalibrationConfig {
	cfg, err := calconfig.Load(*configFile)
	if err != nil {
		log.Printf("calibration config %q not loaded, using defaults: %v", *configFile, err)
		return calconfig.Empty()
	}
	return cfg
}

func openStore() (*configstore.Store, error) {
	return configstore.Open(*dbPath)
}

func buildReaders(cfg *calconfig.CalibrationConfig) []pipeline.Reader {
	policy := decode.DedupImmediate
	if cfg.GetDedupPolicy() == "delayed" {
		policy = decode.DedupDelayed
	}

	udp := transport.NewUDP(transport.DefaultUDPAddress)
	serial := transport.NewSerial(*serialPort)

	return []pipeline.Reader{
		{Label: "ref", Transport: serial, Decoder: decode.NewBracketed(policy)},
		{Label: "test", Transport: udp, Decoder: decode.NewStructured(policy)},
	}
}

func runCalibrate(ctx context.Context) error {
	cfg := loadConfig()
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	httpDiscoverer := discovery.NewHTTPDiscoverer(nil, "")
	testInfo, err := httpDiscoverer.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discovering test photometer: %w", err)
	}

	storeDiscoverer := discovery.NewStoreDiscoverer(store)
	refInfo, err := storeDiscoverer.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discovering reference photometer: %w", err)
	}

	offset, err := store.GetCalibrationOffset(ctx)
	if err != nil {
		return fmt.Errorf("reading calibration offset: %w", err)
	}

	readers := buildReaders(cfg)

	opts := calibration.Options{
		Window:    cfg.GetWindow(),
		NumRounds: cfg.GetRounds(),
		RoundMin:  time.Duration(cfg.GetRoundMinMillis()) * time.Millisecond,
		RoundMax:  time.Duration(cfg.GetRoundMaxMillis()) * time.Millisecond,
		OffsetZP:  offset,
		ZPFict:    float32(cfg.GetZPFict()),
		RefInfo:   refInfo,
		TestInfo:  testInfo,
	}
	sup := pipeline.New(readers, opts)

	tracker := debug.NewTracker(sup.SessionID(), cfg.GetRounds())
	sup.SetOnRound(tracker.RecordRound)

	if *debugAddr != "" {
		mux := http.NewServeMux()
		debug.AttachRoutes(mux, tracker)
		srv := &http.Server{Addr: *debugAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("debug server exited: %v", err)
			}
		}()
		go func() {
			<-ctx.Done()
			srv.Close()
		}()
		log.Printf("serving calibration status on %s (session %s)", *debugAddr, sup.SessionID())
	}

	summary, err := sup.Run(ctx)
	tracker.Finish(err)
	if err != nil {
		return fmt.Errorf("calibration run failed: %w", err)
	}

	log.Printf("calibration session %s complete: final ZP = %.2f over %d rounds", sup.SessionID(), summary.FinalZP, len(summary.Rounds))

	if *reportDir != "" {
		if err := report.Write(*reportDir, summary); err != nil {
			log.Printf("report generation failed: %v", err)
		}
	}

	updater := zpupdate.New(nil, "")
	if err := updater.Update(ctx, summary.FinalZP); err != nil {
		return fmt.Errorf("writing zero-point to device: %w", err)
	}
	log.Printf("zero-point %.2f written and verified", summary.FinalZP)
	return nil
}

func runRead(ctx context.Context) error {
	cfg := loadConfig()
	udp := transport.NewUDP(transport.DefaultUDPAddress)
	defer udp.Close()

	dec := decode.NewStructured(decode.DedupImmediate)
	_ = cfg
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		ts, text, err := udp.Read(ctx)
		if err != nil {
			return err
		}
		sample, ok, err := dec.Decode(ts, text)
		if err != nil {
			log.Printf("decode error: %v", err)
			continue
		}
		if !ok {
			continue
		}
		log.Printf("freq=%.2f Hz", sample.Payload.Freq())
	}
}

func runUpdate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	zp := fs.Float64("zp", 0, "zero-point value to write")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *zp == 0 {
		return fmt.Errorf("update requires -zp")
	}
	updater := zpupdate.New(nil, "")
	return updater.Update(ctx, *zp)
}

func runMigrate() error {
	store, err := openStore()
	if err != nil {
		return err
	}
	return store.Close()
}
