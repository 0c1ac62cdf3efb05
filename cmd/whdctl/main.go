// Command whdctl brings up a WHD core driver instance and serves its
// read-only status surface until interrupted.
//
// Uses structured JSON logging via slog, signal.NotifyContext for
// graceful shutdown, config.Load() feeding the adapter/core wiring, and
// deferred cleanup on every exit path.
package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/Infineon/whd-expansion/internal/config"
	"github.com/Infineon/whd-expansion/internal/statusapi"
	"github.com/Infineon/whd-expansion/internal/telemetry"
	"github.com/Infineon/whd-expansion/internal/whd/driver"
	"github.com/Infineon/whd-expansion/internal/whd/pmkid"
	"github.com/Infineon/whd-expansion/internal/whd/whdtest"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("whdctl starting")

	cfg := config.Load()
	telemetry.InitMetrics()

	shutdownTracer, err := telemetry.InitTracer()
	if err != nil {
		slog.Error("tracer init failed, continuing without tracing", "error", err)
		shutdownTracer = func(context.Context) error { return nil }
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			slog.Error("tracer shutdown error", "error", err)
		}
	}()

	cache, err := pmkid.Open(cfg.PmkidCachePath, 64)
	if err != nil {
		slog.Error("pmkid cache open failed", "error", err, "path", cfg.PmkidCachePath)
		os.Exit(1)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			slog.Error("pmkid cache close error", "error", err)
		}
	}()

	// No real SDIO/SPI transport ships in this module (platform bus I/O
	// is out of scope for a host driver core); whdtest's scriptable fake
	// stands in for the transport when no real radio is attached.
	bus := whdtest.NewBus()
	pool := whdtest.NewBufferPool()
	events := whdtest.NewEventSource()

	d, err := driver.New(driver.Config{
		Bus:                bus,
		BufferPool:         pool,
		EventSource:        events,
		ChipID:             cfg.ChipIDOverride,
		IoctlTimeout:       cfg.IoctlBusTimeout,
		EventTableCapacity: 256,
		PmkidCache:         cache,
	})
	if err != nil {
		slog.Error("driver init failed", "error", err)
		os.Exit(1)
	}

	if err := d.SetUp(ctx); err != nil {
		slog.Error("driver set_up failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := d.SetDown(context.Background()); err != nil {
			slog.Error("driver set_down error", "error", err)
		}
	}()

	mac := net.HardwareAddr{0x00, 0x0a, 0xf5, 0x00, 0x00, 0x01}
	if _, err := d.AddInterface(cfg.Interface, 0, 0, mac); err != nil {
		slog.Error("add_interface failed", "error", err, "interface", cfg.Interface)
		os.Exit(1)
	}

	status := statusapi.New(cfg.StatusAddr, d)
	slog.Info("whdctl ready", "interface", cfg.Interface, "status_addr", cfg.StatusAddr)
	if err := status.Run(ctx); err != nil {
		slog.Error("status surface exited with error", "error", err)
		os.Exit(1)
	}

	slog.Info("whdctl shutting down")
}
