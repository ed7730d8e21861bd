// Copyright 2025 Helio Display Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/heliowm/helio-core/pkg/clock"
	"github.com/heliowm/helio-core/pkg/config"
	"github.com/heliowm/helio-core/pkg/display"
	"github.com/heliowm/helio-core/pkg/eventthread"
	"github.com/heliowm/helio-core/pkg/layerhistory"
	"github.com/heliowm/helio-core/pkg/logger"
	"github.com/heliowm/helio-core/pkg/metrics"
	"github.com/heliowm/helio-core/pkg/policy"
	"github.com/heliowm/helio-core/pkg/scheduler"
	"github.com/heliowm/helio-core/pkg/sentry"
	"github.com/heliowm/helio-core/pkg/thermal"
	"github.com/heliowm/helio-core/pkg/version"
	"github.com/heliowm/helio-core/pkg/watchdog"
)

const (
	appWorkDuration  = 10 * time.Millisecond
	appReadyDuration = 5 * time.Millisecond
	sfWorkDuration   = 8 * time.Millisecond
	sfReadyDuration  = 4 * time.Millisecond
)

func main() {
	logger.Initialize()
	log := logger.For(logger.ComponentCore)
	log.Infof("Starting helio-core %s...", version.GetAppVersion())

	configPath := os.Getenv("HELIO_CONFIG")
	if configPath == "" {
		configPath = "/etc/helio/helio-core.yaml"
	}

	cfg, err := config.NewFileConfigManagerWithBackoff(configPath).Load()
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "failed to load config: %v", err)
		os.Exit(1)
	}

	sentry.InitSentry(version.GetAppVersion(), cfg.SentryDSN)
	defer sentry.Flush()
	defer func() { _ = logger.Sync() }()

	metricsServer := metrics.SetupMetricsEndpoint(fmt.Sprintf(":%d", cfg.MetricsPort))

	modes := make([]display.RefreshRate, 0, len(cfg.Display.Modes))
	for _, mode := range cfg.Display.Modes {
		modes = append(modes, display.NewRefreshRate(display.ModeID(mode.ID), display.Fps(mode.Fps)))
	}

	configs, err := policy.NewSimpleConfigs(modes, cfg.Display.SupportsFrameRateOverride)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "failed to build policy: %v", err)
		os.Exit(1)
	}

	clk := clock.NewSystemClock()
	history := layerhistory.NewInMemoryHistory()
	host := newSimulatedHost(configs, clk, logger.For("SimulatedHost"))

	sched := scheduler.New(clk, configs, history, host, scheduler.Options{
		SupportKernelTimer:        cfg.Scheduler.SupportKernelTimer,
		UseContentDetection:       cfg.Scheduler.UseContentDetection,
		IdleTimerInterval:         time.Duration(cfg.Scheduler.IdleTimerMs) * time.Millisecond,
		TouchTimerInterval:        time.Duration(cfg.Scheduler.TouchTimerMs) * time.Millisecond,
		DisplayPowerTimerInterval: time.Duration(cfg.Scheduler.DisplayPowerTimerMs) * time.Millisecond,
		ShowPredictedVsync:        cfg.Debug.ShowPredictedVsync,
		TraceVsync:                cfg.Debug.TraceVsync,
	})
	host.bind(sched)

	wd := watchdog.New(time.Duration(configs.GetCurrentRefreshRate().VsyncPeriod))

	appHandle := sched.CreateConnection("app", eventthread.NewTokenManager(),
		appWorkDuration, appReadyDuration, wd.NoteVsyncDispatched)
	sfHandle := sched.CreateConnection("appSf", nil, sfWorkDuration, sfReadyDuration, nil)
	host.setAppHandle(appHandle)

	for _, handle := range []scheduler.ConnectionHandle{appHandle, sfHandle} {
		sched.OnHotplugReceived(handle, true)
		sched.OnScreenAcquired(handle)
	}

	var thermalMonitor *thermal.Monitor
	if len(cfg.Thermal.Steps) > 0 {
		steps := make([]thermal.Step, 0, len(cfg.Thermal.Steps))
		for _, step := range cfg.Thermal.Steps {
			steps = append(steps, thermal.Step{
				AboveCelsius: step.AboveCelsius,
				CapFps:       display.Fps(step.CapFps),
			})
		}
		thermalMonitor = thermal.NewMonitor(steps, cfg.Thermal.SensorKey, sched.UpdateThermalFps)
		thermalMonitor.Start()
	}

	if cfg.SimulateDisplay {
		host.start()
		sched.ResyncToHardwareVsync(true, configs.GetCurrentRefreshRate().VsyncPeriod, false)
	}

	debugServer := newDebugServer(cfg.DebugPort, sched)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := debugServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		_ = debugServer.Shutdown(shutdownCtx)
		_ = metricsServer.Shutdown(shutdownCtx)

		return nil
	})

	log.Info("helio-core running")

	if err := group.Wait(); err != nil {
		sentry.ReportIssuef(sentry.IssueTypeError, log, "server error: %v", err)
	}

	log.Info("Shutting down...")

	if thermalMonitor != nil {
		thermalMonitor.Stop()
	}
	if cfg.SimulateDisplay {
		host.stop()
	}
	wd.Stop()
	sched.Stop()

	log.Info("helio-core stopped")
}

// newDebugServer exposes the scheduler's diagnostic snapshot.
func newDebugServer(port int, sched *scheduler.Scheduler) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	router.GET("/debug/scheduler", func(c *gin.Context) {
		dump, err := sched.Dump()
		if err != nil {
			c.String(http.StatusInternalServerError, "dump failed: %v", err)

			return
		}

		c.Data(http.StatusOK, "application/json", dump)
	})

	router.GET("/debug/vsync", func(c *gin.Context) {
		c.String(http.StatusOK, "%s", sched.DumpVsync())
	})

	return &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		Handler:     router,
		ReadTimeout: 5 * time.Second,
	}
}
