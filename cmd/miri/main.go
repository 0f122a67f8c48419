package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/badumbatish/miri/internal/config"
	"github.com/badumbatish/miri/internal/kernel"
	"github.com/badumbatish/miri/internal/logging"
	"github.com/badumbatish/miri/internal/monitoring"
	"github.com/badumbatish/miri/internal/socket"
	"github.com/badumbatish/miri/internal/trace"
)

func main() {
	cfg := config.LoadOrDefault()

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	metrics := monitoring.NewMetrics(nil)
	tracer := trace.NewRecorder(1024)
	machine := kernel.New(cfg, logger,
		kernel.WithMetrics(metrics),
		kernel.WithTracer(tracer),
	)

	if cfg.Metrics.Enabled {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			logger.Info("Serving metrics", zap.String("addr", cfg.Metrics.Addr))
			if err := http.ListenAndServe(cfg.Metrics.Addr, nil); err != nil {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	if err := selfCheck(machine, logger); err != nil {
		logger.Fatal("Self-check failed", zap.Error(err))
	}

	if dump, err := tracer.DumpJSON(); err == nil {
		logger.Debug("Syscall trace", zap.ByteString("events", dump))
	}

	if !cfg.Metrics.Enabled {
		return
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down")
}

// selfCheck exercises a socketpair end to end: transfer, drain, half-close,
// end-of-file and broken pipe.
func selfCheck(m *kernel.Machine, logger *logging.Logger) error {
	const tid = 0

	sv0, sv1, err := m.Socketpair(tid, socket.AFUnix, socket.SockStream|socket.SockNonblock, 0)
	if err != nil {
		return err
	}

	msg := []byte("hello through the pair")
	n, err := m.Write(tid, sv0, msg)
	if err != nil {
		return err
	}
	logger.Info("Wrote", zap.Int("bytes", n), zap.Uint32("fd", uint32(sv0)))

	buf := make([]byte, 64)
	n, err = m.Read(tid, sv1, buf)
	if err != nil {
		return err
	}
	logger.Info("Read", zap.Int("bytes", n), zap.ByteString("data", buf[:n]))

	if err := m.Close(tid, sv0); err != nil {
		return err
	}
	n, err = m.Read(tid, sv1, buf)
	if err != nil {
		return err
	}
	logger.Info("Read after peer close", zap.Int("bytes", n)) // 0 = end-of-file

	return m.Close(tid, sv1)
}
