package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dbehnke/reflector-nexus/pkg/acl"
	"github.com/dbehnke/reflector-nexus/pkg/config"
	"github.com/dbehnke/reflector-nexus/pkg/database"
	"github.com/dbehnke/reflector-nexus/pkg/logger"
	"github.com/dbehnke/reflector-nexus/pkg/metrics"
	"github.com/dbehnke/reflector-nexus/pkg/mqtt"
	"github.com/dbehnke/reflector-nexus/pkg/reflector"
	"github.com/dbehnke/reflector-nexus/pkg/report"
	"github.com/dbehnke/reflector-nexus/pkg/web"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	validate := flag.Bool("validate", false, "Validate configuration and exit")
	hashPassword := flag.String("hash-password", "", "Print the web.password_hash value for a password and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Reflector-Nexus %s (%s, built %s)\n", version, commit, buildTime)
		os.Exit(0)
	}

	if *hashPassword != "" {
		hash, err := web.HashPassword(*hashPassword)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *validate {
		fmt.Println("Configuration is valid")
		os.Exit(0)
	}

	output, closeLog, err := logOutput(cfg.Logging.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: output,
	})
	web.SetVersionInfo(version, commit, buildTime)

	log.Info("Starting Reflector-Nexus",
		logger.String("version", version),
		logger.String("build_time", buildTime),
		logger.String("config_file", *configFile))

	if err := run(cfg, log); err != nil {
		log.Error("Reflector-Nexus failed", logger.Error(err))
		closeLog()
		os.Exit(1)
	}
	log.Info("Reflector-Nexus stopped")
}

// logOutput returns stdout, teed to path when one is configured
func logOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}
	var once sync.Once
	return io.MultiWriter(os.Stdout, f), func() { once.Do(func() { _ = f.Close() }) }, nil
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var wg sync.WaitGroup

	accessList, err := acl.Load(cfg.ACL.Path, log)
	if err != nil {
		return fmt.Errorf("failed to load access list: %w", err)
	}

	sinks := report.Fanout{
		report.NewWebhook(report.WebhookConfig{
			Enabled: cfg.Reporter.Enabled,
			Host:    cfg.Reporter.Host,
			Port:    cfg.Reporter.Port,
			Timeout: time.Duration(cfg.Reporter.Timeout) * time.Second,
		}, log),
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
		sinks = append(sinks, collector)
	}

	if collector != nil && cfg.Metrics.Prometheus.Enabled {
		metricsServer := metrics.NewPrometheusServer(
			metrics.PrometheusConfig{
				Enabled: cfg.Metrics.Prometheus.Enabled,
				Port:    cfg.Metrics.Prometheus.Port,
				Path:    cfg.Metrics.Prometheus.Path,
			},
			collector,
			log,
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metricsServer.Start(ctx); err != nil && err != context.Canceled {
				log.Error("Prometheus metrics server error", logger.Error(err))
			}
		}()
	}

	var mqttPublisher *mqtt.Publisher
	if cfg.MQTT.Enabled {
		mqttPublisher = mqtt.New(
			mqtt.Config{
				Enabled:     cfg.MQTT.Enabled,
				Broker:      cfg.MQTT.Broker,
				TopicPrefix: cfg.MQTT.TopicPrefix,
				ClientID:    cfg.MQTT.ClientID,
				Username:    cfg.MQTT.Username,
				Password:    cfg.MQTT.Password,
				QoS:         cfg.MQTT.QoS,
				Retained:    cfg.MQTT.Retained,
			},
			log,
		)
		// A broker that is down at startup is not fatal; MQTT reports are
		// dropped instead.
		if err := mqttPublisher.Start(ctx); err != nil {
			log.Error("MQTT publisher error", logger.Error(err))
		}
		defer mqttPublisher.Stop()
		sinks = append(sinks, mqttPublisher)
	}

	var calls web.CallStore
	if cfg.Database.Enabled {
		db, err := database.NewDB(database.Config{Path: cfg.Database.Path}, log)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Warn("Failed to close database", logger.Error(err))
			}
		}()

		repo := db.Calls()
		calls = repo
		recorder := database.NewCallRecorder(repo, database.RecorderConfig{
			Retention: time.Duration(cfg.Database.RetentionDays) * 24 * time.Hour,
		}, log)
		recorder.Start(ctx)
		defer recorder.Wait()
		sinks = append(sinks, recorder)
	}

	manager := reflector.NewManager()
	var server *web.Server
	if cfg.Web.Enabled {
		server = web.NewServer(cfg.Web, manager, calls, log)
		sinks = append(sinks, server.GetHub())
	}

	engines := buildEngines(cfg, engineDeps{
		acl:       accessList,
		reporter:  sinks,
		collector: collector,
		log:       log,
	})
	if len(engines) == 0 {
		log.Warn("No reflectors enabled")
	}
	for _, e := range engines {
		manager.Register(e)
	}

	if server != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Start(ctx); err != nil && err != context.Canceled {
				log.Error("Web server error", logger.Error(err))
			}
		}()
	}

	failed := runEngines(ctx, engines, &wg, log)

	log.Info("Reflector-Nexus initialized",
		logger.String("server_name", cfg.Server.Name),
		logger.Int("reflectors", len(engines)))

	var runErr error
	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal",
			logger.String("signal", sig.String()))
	case runErr = <-failed:
	}

	cancel()
	for _, e := range engines {
		e.Stop()
	}
	wg.Wait()
	return runErr
}
