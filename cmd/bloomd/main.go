package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dd0wney/bloomd/pkg/adminhttp"
	"github.com/dd0wney/bloomd/pkg/audit"
	"github.com/dd0wney/bloomd/pkg/backup"
	"github.com/dd0wney/bloomd/pkg/config"
	"github.com/dd0wney/bloomd/pkg/logging"
	"github.com/dd0wney/bloomd/pkg/manager"
	"github.com/dd0wney/bloomd/pkg/metrics"
	"github.com/dd0wney/bloomd/pkg/protocol"
	"github.com/dd0wney/bloomd/pkg/server"
	"github.com/dd0wney/bloomd/pkg/workerpool"
)

func main() {
	configPath := flag.String("config", "", "Path to bloomd.yaml config file")
	port := flag.Int("port", 0, "TCP port (overrides config)")
	udpPort := flag.Int("udp-port", 0, "UDP port (overrides config)")
	dataDir := flag.String("data", "", "Data directory (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("bloomd: config error: %v", err)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *udpPort != 0 {
		cfg.UDPPort = *udpPort
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	logger := logging.NewJSONLogger(os.Stdout, cfg.LogLevelParsed())
	logger.Info("bloomd starting", logging.String("data_dir", cfg.DataDir),
		logging.Int("port", cfg.Port), logging.Int("udp_port", cfg.UDPPort))

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("bloomd: cannot create data dir: %v", err)
	}

	metricsRegistry := metrics.NewRegistry()
	pool, err := workerpool.NewWorkerPool(cfg.Workers)
	if err != nil {
		log.Fatalf("bloomd: worker pool: %v", err)
	}
	pool.OnPanic(func(r any) {
		logger.Error("worker pool task panicked", logging.Any("recovered", r))
	})

	defaults := manager.Defaults{
		InitialCapacity:      cfg.InitialCapacity,
		DefaultProbability:   cfg.DefaultProbability,
		ScaleSize:            cfg.ScaleSize,
		ProbabilityReduction: cfg.ProbabilityReduction,
	}
	mgr := manager.New(cfg.DataDir, defaults, pool, logger, metricsRegistry)

	if cfg.AuditDSN != "" {
		sink, err := audit.NewPGSink(context.Background(), cfg.AuditDSN)
		if err != nil {
			logger.Error("audit sink unavailable, continuing without it", logging.Error(err))
		} else {
			mgr.SetAuditSink(sink)
			defer sink.Close()
		}
	}

	if cfg.BackupBucket != "" {
		uploader, err := backup.NewUploader(context.Background(), cfg.BackupBucket, cfg.BackupPrefix)
		if err != nil {
			logger.Error("backup uploader unavailable, continuing without it", logging.Error(err))
		} else {
			mgr.SetBackupUploader(uploader)
		}
	}

	startedAt := time.Now()
	if err := mgr.Discover(); err != nil {
		logger.Error("discovery failed", logging.Error(err))
	}

	tcpSrv, err := protocol.NewTCPServer(fmt.Sprintf(":%d", cfg.Port), mgr, logger, metricsRegistry, 5*time.Minute)
	if err != nil {
		log.Fatalf("bloomd: tcp listen: %v", err)
	}
	go func() {
		if err := tcpSrv.Serve(); err != nil {
			logger.Error("tcp server stopped", logging.Error(err))
		}
	}()

	udpSrv, err := protocol.NewUDPServer(fmt.Sprintf(":%d", cfg.UDPPort), mgr, logger, metricsRegistry)
	if err != nil {
		log.Fatalf("bloomd: udp listen: %v", err)
	}
	go func() {
		if err := udpSrv.Serve(); err != nil {
			logger.Error("udp server stopped", logging.Error(err))
		}
	}()

	schedCtx, cancelSched := context.WithCancel(context.Background())
	sched := manager.NewScheduler(mgr, cfg.FlushInterval(), cfg.ColdInterval(), logger)
	go func() {
		if err := sched.Run(schedCtx); err != nil {
			logger.Error("scheduler stopped", logging.Error(err))
		}
	}()

	components := []server.Shutdownable{tcpSrv, udpSrv, mgr, schedulerShutdown{cancelSched}}

	if cfg.AdminAddr != "" {
		adminSrv, err := adminhttp.New(cfg.AdminAddr, cfg.AdminJWTSecret, mgr, metricsRegistry, logger)
		if err != nil {
			log.Fatalf("bloomd: admin http: %v", err)
		}
		go func() {
			if err := adminSrv.ListenAndServe(); err != nil {
				logger.Error("admin http server stopped", logging.Error(err))
			}
		}()
		components = append(components, adminSrv)
	}

	metricsRegistry.RefreshSystemMetrics(startedAt)

	gs := server.NewGracefulServer(components...)
	gs.Run(30 * time.Second)
}

// schedulerShutdown adapts the scheduler's context-cancel function to
// server.Shutdownable so it's stopped in the same ordered sweep as the
// network listeners.
type schedulerShutdown struct {
	cancel context.CancelFunc
}

func (s schedulerShutdown) Shutdown(ctx context.Context) error {
	s.cancel()
	return nil
}
