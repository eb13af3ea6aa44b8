// Package daemon implements the probe process lifecycle.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"firestige.xyz/hsprobe/internal/command"
	"firestige.xyz/hsprobe/internal/config"
	"firestige.xyz/hsprobe/internal/log"
	"firestige.xyz/hsprobe/internal/metrics"
	"firestige.xyz/hsprobe/internal/probe"
	"firestige.xyz/hsprobe/internal/sysstats"
)

// Daemon manages the probe process lifecycle.
type Daemon struct {
	// Configuration
	config     *config.ProbeConfig
	configPath string
	socketPath string
	pidFile    string

	// Core components
	engine        *probe.Engine
	cmdHandler    *command.CommandHandler
	udsServer     *command.UDSServer            // nil if control disabled
	kafkaConsumer *command.KafkaCommandConsumer // nil if kafka control disabled
	kafkaDone     chan struct{}
	metricsServer *metrics.Server // nil if metrics disabled

	// Lifecycle management
	ctx          context.Context
	cancel       context.CancelFunc
	engineErr    chan error
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	stopOnce     sync.Once
	sigChan      chan os.Signal
}

// New loads the configuration at configPath. Non-empty socketPath and pidFile
// override the control settings of the file.
func New(configPath, socketPath, pidFile string) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	d := NewWithConfig(cfg, socketPath, pidFile)
	d.configPath = configPath
	return d, nil
}

// NewWithConfig creates a daemon for an already validated configuration.
func NewWithConfig(cfg *config.ProbeConfig, socketPath, pidFile string) *Daemon {
	if socketPath == "" {
		socketPath = cfg.Control.Socket
	}
	if pidFile == "" {
		pidFile = cfg.Control.PIDFile
	}
	d := &Daemon{
		config:       cfg,
		socketPath:   socketPath,
		pidFile:      pidFile,
		engineErr:    make(chan error, 1),
		shutdownChan: make(chan struct{}),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// Start opens the devices and starts the probe and the control plane.
func (d *Daemon) Start() error {
	// 1. Initialize logging system
	if err := d.initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"version": command.Version,
		"config":  d.configPath,
		"socket":  d.socketPath,
		"devices": len(d.config.Devices),
	}).Info("starting hsprobe")

	// 2. Build the probe; any device or template failure is fatal
	if err := d.buildEngine(); err != nil {
		return err
	}

	// 3. Write PID file
	if err := d.writePIDFile(); err != nil {
		d.abortStart()
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// 4. Start metrics server
	if err := d.startMetrics(); err != nil {
		d.abortStart()
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 5. Start the event loop
	go func() {
		d.engineErr <- d.engine.Run(d.ctx)
	}()

	// 6. Command handler, shutdown via daemon_shutdown
	d.cmdHandler = command.NewCommandHandler(d.engine, d.engine)
	d.cmdHandler.SetShutdownFunc(func() {
		log.GetLogger().Info("shutdown triggered via daemon_shutdown command")
		d.TriggerShutdown()
	})

	// 7. UDS server for CLI control
	if d.config.Control.Enabled {
		d.udsServer = command.NewUDSServer(d.socketPath, d.cmdHandler)
		go func() {
			if err := d.udsServer.Start(d.ctx); err != nil && err != context.Canceled {
				log.GetLogger().WithError(err).Error("control socket failed")
			}
		}()
	}

	// 8. Kafka remote console (non-fatal)
	if d.config.Control.Kafka.Enabled {
		if err := d.startKafkaConsumer(); err != nil {
			log.GetLogger().WithError(err).Error("failed to start kafka command consumer")
		}
	}

	log.GetLogger().Info("hsprobe started")
	return nil
}

func (d *Daemon) buildEngine() error {
	settings, err := probe.SettingsFromConfig(d.config)
	if err != nil {
		return fmt.Errorf("invalid probe settings: %w", err)
	}
	specs, err := openDevices(d.config)
	if err != nil {
		return fmt.Errorf("failed to open devices: %w", err)
	}

	opts := []probe.Option{}
	if collector, err := sysstats.New(); err != nil {
		log.GetLogger().WithError(err).Warn("probe statistics unavailable")
	} else {
		opts = append(opts, probe.WithStatsCollector(collector))
	}

	d.engine, err = probe.NewEngine(settings, specs, opts...)
	if err != nil {
		closeDevices(specs)
		return fmt.Errorf("failed to create probe: %w", err)
	}
	return nil
}

// abortStart releases what Start acquired before the event loop ran.
func (d *Daemon) abortStart() {
	d.cancel()
	d.engine.Close()
	d.stopMetrics()
	if err := d.removePIDFile(); err != nil {
		log.GetLogger().WithError(err).Warn("error removing PID file")
	}
}

// Stop performs graceful shutdown of all components. Safe to call more than once.
func (d *Daemon) Stop() {
	d.stopOnce.Do(d.stop)
}

func (d *Daemon) stop() {
	log.GetLogger().Info("initiating graceful shutdown")

	// 1. Cancel the context: consumers stop taking commands, the event loop flushes
	// and closes every device.
	d.cancel()

	// 2. Kafka reader is closed once its fetch loop has returned
	if d.kafkaConsumer != nil {
		<-d.kafkaDone
		if err := d.kafkaConsumer.Stop(); err != nil {
			log.GetLogger().WithError(err).Error("error stopping kafka consumer")
		}
	}

	// 3. Wait for the final flush
	if d.engine != nil {
		select {
		case <-d.engine.Done():
		case <-time.After(10 * time.Second):
			log.GetLogger().Warn("probe did not stop within 10s")
		}
	}

	// 4. Control socket
	if d.udsServer != nil {
		if err := d.udsServer.Stop(); err != nil {
			log.GetLogger().WithError(err).Error("error stopping control socket")
		}
	}

	// 5. Metrics server
	d.stopMetrics()

	// 6. Unregister signal handler
	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	// 7. Remove PID file
	if err := d.removePIDFile(); err != nil {
		log.GetLogger().WithError(err).Error("error removing PID file")
	}

	log.GetLogger().Info("hsprobe stopped")
}

// Run blocks until shutdown. Shutdown is triggered by SIGTERM/SIGINT, the
// daemon_shutdown command, or the end of every offline source. SIGHUP reloads the
// log settings.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	log.GetLogger().Info("hsprobe running, waiting for signals or commands")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				log.GetLogger().WithField("signal", sig).Info("received shutdown signal")
				d.Stop()
				return nil
			case syscall.SIGHUP:
				if err := d.Reload(); err != nil {
					log.GetLogger().WithError(err).Error("failed to reload config")
				}
			}

		case <-d.shutdownChan:
			log.GetLogger().Info("shutdown triggered by command")
			d.Stop()
			return nil

		case err := <-d.engineErr:
			// Offline sources exhausted.
			d.Stop()
			return err
		}
	}
}

// Reload re-reads the configuration file. Only the log settings take effect; other
// changes are reported and need a restart. Runtime probe settings are changed with
// the console instead.
func (d *Daemon) Reload() error {
	if d.configPath == "" {
		return fmt.Errorf("no configuration file to reload")
	}
	log.GetLogger().WithField("path", d.configPath).Info("reloading configuration")

	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	var requiresRestart []string
	if len(newConfig.Devices) != len(d.config.Devices) {
		requiresRestart = append(requiresRestart, "devices")
	}
	if newConfig.Export.Collector != d.config.Export.Collector || newConfig.Export.Transport != d.config.Export.Transport {
		requiresRestart = append(requiresRestart, "export")
	}
	if newConfig.Metrics.Listen != d.config.Metrics.Listen {
		requiresRestart = append(requiresRestart, "metrics.listen")
	}

	d.config.Log = newConfig.Log
	if err := d.initLogging(); err != nil {
		return fmt.Errorf("failed to reinitialize logging: %w", err)
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"level":            d.config.Log.Level,
		"format":           d.config.Log.Format,
		"requires_restart": requiresRestart,
	}).Info("configuration reloaded")
	return nil
}

// TriggerShutdown requests a graceful shutdown of Run.
func (d *Daemon) TriggerShutdown() {
	d.shutdownOnce.Do(func() { close(d.shutdownChan) })
}

// Engine returns the probe, nil before Start.
func (d *Daemon) Engine() *probe.Engine { return d.engine }

func (d *Daemon) initLogging() error {
	if err := log.Init(d.config.Log); err != nil {
		return err
	}
	log.GetLogger().WithFields(map[string]interface{}{
		"level":  d.config.Log.Level,
		"format": d.config.Log.Format,
	}).Debug("logging initialized")
	return nil
}

// startKafkaConsumer starts the remote console consumer in the background.
func (d *Daemon) startKafkaConsumer() error {
	consumer, err := command.NewKafkaCommandConsumer(d.config.Control.Kafka, d.probeName(), d.cmdHandler)
	if err != nil {
		return err
	}
	d.kafkaConsumer = consumer
	d.kafkaDone = make(chan struct{})

	go func() {
		defer close(d.kafkaDone)
		if err := consumer.Start(d.ctx); err != nil && err != context.Canceled {
			log.GetLogger().WithError(err).Error("kafka command consumer stopped with error")
		}
	}()
	return nil
}

// probeName is the target name matched by remote commands.
func (d *Daemon) probeName() string {
	if name := d.config.Location.ProbeName; name != "" {
		return name
	}
	host, err := os.Hostname()
	if err != nil {
		return "hsprobe"
	}
	return host
}

func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		log.GetLogger().Debug("metrics server disabled")
		return nil
	}
	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	return d.metricsServer.Start(d.ctx)
}

func (d *Daemon) stopMetrics() {
	if d.metricsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.metricsServer.Stop(ctx); err != nil {
		log.GetLogger().WithError(err).Error("error stopping metrics server")
	}
	d.metricsServer = nil
}

func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}
	pid := os.Getpid()
	if err := os.WriteFile(d.pidFile, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.pidFile, err)
	}
	log.GetLogger().WithFields(map[string]interface{}{"path": d.pidFile, "pid": pid}).Debug("PID file written")
	return nil
}

func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}
	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.pidFile, err)
	}
	return nil
}
