package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/kardianos/service"

	"printrelay/agent/storage"
	"printrelay/common/config"
	"printrelay/common/logger"
	commonstorage "printrelay/common/storage"
)

// Version information (set at build time via -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	BuildType = "dev"
)

func main() {
	configPath := flag.String("config", "", "Configuration file path (standard locations are searched when empty)")
	generateConfig := flag.Bool("generate-config", false, "Generate default config file and exit")
	serviceCmd := flag.String("service", "", "Service control: install, uninstall, start, stop, restart, status, run")
	showVersion := flag.Bool("version", false, "Show version information and exit")
	discoverOnce := flag.Bool("discover", false, "Run one discovery pass and exit")
	collectOnce := flag.Bool("collect", false, "Run one collection pass and exit")
	syncOnce := flag.Bool("sync", false, "Run one sync pass and exit")
	registerOnce := flag.Bool("register", false, "Register with the aggregator and exit")
	setSerial := flag.Bool("set-serial", false, "Set and lock a device serial: -set-serial IP SERIAL")
	flag.Parse()

	if *showVersion {
		fmt.Printf("printrelay agent %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		fmt.Printf("Build Type: %s\n", BuildType)
		fmt.Printf("Go Version: %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		return
	}

	if *generateConfig {
		path := *configPath
		if path == "" {
			path = "config.toml"
		}
		if err := WriteDefaultAgentConfig(path); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default configuration at %s\n", path)
		return
	}

	if *serviceCmd != "" {
		handleServiceCommand(*serviceCmd, *configPath)
		return
	}

	var mode oneShot
	switch {
	case *discoverOnce:
		mode = oneShotDiscover
	case *collectOnce:
		mode = oneShotCollect
	case *syncOnce:
		mode = oneShotSync
	case *registerOnce:
		mode = oneShotRegister
	case *setSerial:
		mode = oneShotSetSerial
	}
	if mode != "" {
		os.Exit(runOnce(*configPath, mode, flag.Args()))
	}

	if !service.Interactive() {
		runAsService(*configPath)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := runInteractive(ctx, *configPath, false); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger. File output is skipped when toFile is false.
func newLogger(cfg *AgentConfig, isService, toFile bool) *logger.Logger {
	logDir := ""
	if toFile {
		logDir = cfg.Logging.Dir
		if logDir == "" {
			if dir, err := config.GetLogDirectory(isService); err == nil {
				logDir = dir
			}
		}
	}
	log := logger.New(logger.LevelFromString(cfg.Logging.Level), logDir, 1000)
	log.SetRotationPolicy(logger.RotationPolicy{Enabled: true, MaxSizeMB: 20, MaxFiles: 5})
	if isService {
		log.SetConsole(nil)
	}
	return log
}

// runInteractive runs the scheduled agent until ctx is canceled.
func runInteractive(ctx context.Context, configFlag string, isService bool) error {
	cfg, configPath, err := loadConfigOrDefault(configFlag)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := newLogger(cfg, isService, true)
	defer log.Close()
	if configPath == "" {
		log.Warn("No config file found, running with defaults and environment overrides")
	} else {
		log.Info("Loaded configuration", "path", configPath)
	}
	log.Info("printrelay agent starting", "version", Version, "commit", GitCommit, "server", cfg.Server.URL)

	p, err := newPipeline(ctx, cfg, log, isService)
	if err != nil {
		log.Error("Startup failed", "error", err)
		return err
	}
	defer p.Close()

	if cfg.Metrics.Listen != "" {
		go p.serveMetrics(ctx, cfg.Metrics.Listen)
	}

	if err := p.identity.EnsureRegistered(ctx); err != nil {
		log.Warn("Initial registration failed, retrying before each sync", "error", err)
	} else {
		_ = p.runConfigRefresh(ctx)
	}

	sched, err := p.schedule()
	if err != nil {
		return err
	}
	sched.Start()
	_ = sched.RunNow(taskDiscovery)
	_ = sched.RunNow(taskSync)

	<-ctx.Done()
	log.Info("Shutdown requested, waiting for running passes")
	stopCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		log.Warn("Passes still running at shutdown", "error", err)
	}
	log.Info("printrelay agent stopped")
	return nil
}

type oneShot string

const (
	oneShotDiscover  oneShot = "discover"
	oneShotCollect   oneShot = "collect"
	oneShotSync      oneShot = "sync"
	oneShotRegister  oneShot = "register"
	oneShotSetSerial oneShot = "set-serial"
)

// runOnce runs a single operation against the local store and returns the
// process exit code.
func runOnce(configFlag string, mode oneShot, args []string) int {
	cfg, _, err := loadConfigOrDefault(configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		return 1
	}
	if mode == oneShotSetSerial && len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: -set-serial IP SERIAL")
		return 2
	}

	log := newLogger(cfg, false, false)
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := newPipeline(ctx, cfg, log, false)
	if err != nil {
		log.Error("Startup failed", "error", err)
		return 1
	}
	defer p.Close()

	switch mode {
	case oneShotDiscover:
		err = p.runDiscovery(ctx)
	case oneShotCollect:
		err = p.runCollect(ctx)
	case oneShotSync:
		r, syncErr := p.syncer.RunPass(ctx)
		fmt.Printf("delivered %d of %d, %d remaining\n", r.Delivered, r.Attempted, r.Remaining)
		err = syncErr
	case oneShotRegister:
		err = p.identity.Register(ctx)
		if err == nil {
			fmt.Printf("registered as %s\n", p.identity.AgentID())
		}
	case oneShotSetSerial:
		err = setDeviceSerial(ctx, p, args[0], args[1])
	}
	if err != nil {
		log.Error("Operation failed", "mode", string(mode), "error", err)
		return 1
	}
	return 0
}

// setDeviceSerial overrides and locks the serial of the device at ip, queuing
// an update for the aggregator.
func setDeviceSerial(ctx context.Context, p *pipeline, ip, serial string) error {
	device, err := p.store.ManualOverride(ctx, ip, commonstorage.FieldSerial, serial, p.envelopes.Update())
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("no device registered at %s", ip)
	}
	if err != nil {
		return err
	}
	fmt.Printf("device %d (%s) serial set to %s and locked\n", device.ID, device.Address, device.Serial)
	return nil
}
