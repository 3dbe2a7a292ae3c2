package main

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dyike/CortexQuant/config"
	"github.com/dyike/CortexQuant/internal/logger"
	"github.com/dyike/CortexQuant/internal/metrics"
	"github.com/dyike/CortexQuant/internal/service"
	"github.com/dyike/CortexQuant/pkg/app"
	"github.com/dyike/CortexQuant/pkg/bridge"
)

var (
	sdkMu sync.Mutex
	sdk   struct {
		runtime *app.Runtime
		service *service.Service
	}
)

// initialize builds the runtime rooted at workDir, merging configJSON over
// the stored config.
func initialize(workDir, configJSON string) error {
	sdkMu.Lock()
	defer sdkMu.Unlock()

	if sdk.runtime != nil {
		sdk.runtime.Close()
	}

	log, err := logger.New(false)
	if err != nil {
		return err
	}
	mgr, err := config.NewManager(
		config.WithConfigDir(workDir),
		config.WithInitialConfig(config.DefaultConfigWithRoot(workDir)),
		config.WithLogger(log.Named("config")),
	)
	if err != nil {
		return err
	}
	if configJSON != "" {
		if err := mgr.UpdateFromJSON(configJSON); err != nil {
			return err
		}
	}

	rt, err := app.NewRuntime(mgr,
		app.WithBuilder(app.NewEngineBuilder(log, metrics.New())),
		app.WithNotifier(bridge.Notify),
		app.WithLogger(log.Named("runtime")),
	)
	if err != nil {
		return err
	}
	sdk.runtime = rt
	sdk.service = service.New(rt, filepath.Join(mgr.Get().DataDir, "history"),
		service.WithLogger(log.Named("service")))
	return nil
}

func updateConfig(jsonStr string) error {
	sdkMu.Lock()
	defer sdkMu.Unlock()
	if sdk.runtime == nil {
		return fmt.Errorf("sdk is not initialized")
	}
	return sdk.runtime.UpdateConfigJSON(jsonStr)
}

func dispatch(method, params string) string {
	sdkMu.Lock()
	svc := sdk.service
	sdkMu.Unlock()
	if svc == nil {
		svc = service.New(nil, "")
	}
	return svc.Dispatch(method, params)
}
