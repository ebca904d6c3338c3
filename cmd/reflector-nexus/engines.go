package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/dbehnke/reflector-nexus/pkg/acl"
	"github.com/dbehnke/reflector-nexus/pkg/config"
	"github.com/dbehnke/reflector-nexus/pkg/logger"
	"github.com/dbehnke/reflector-nexus/pkg/m17"
	"github.com/dbehnke/reflector-nexus/pkg/metrics"
	"github.com/dbehnke/reflector-nexus/pkg/nxdn"
	"github.com/dbehnke/reflector-nexus/pkg/p25"
	"github.com/dbehnke/reflector-nexus/pkg/reflector"
	"github.com/dbehnke/reflector-nexus/pkg/report"
	"github.com/dbehnke/reflector-nexus/pkg/ysf"
)

// engineDeps are the collaborators shared by every protocol engine
type engineDeps struct {
	acl       *acl.Store
	reporter  report.Sink
	collector *metrics.Collector
	log       *logger.Logger
}

// buildEngines creates an engine for every enabled protocol, in the order
// P25, NXDN, YSF, M17
func buildEngines(cfg *config.Config, deps engineDeps) []*reflector.Engine {
	var engines []*reflector.Engine

	add := func(rc config.ReflectorConfig, adapter reflector.Adapter) {
		if !rc.Enabled {
			return
		}
		opts := reflector.Options{
			Config:   engineConfig(rc),
			ACL:      deps.acl,
			Reporter: deps.reporter,
			Logger:   deps.log,
		}
		if deps.collector != nil {
			opts.Metrics = deps.collector
			opts.Observer = deps.collector.Observer(adapter.Name())
		}
		engines = append(engines, reflector.New(adapter, opts))
	}

	r := cfg.Reflectors
	add(r.P25.ReflectorConfig, p25.New())
	add(r.NXDN.ReflectorConfig, nxdn.New(r.NXDN.TargetGroup))
	add(r.YSF.ReflectorConfig, ysf.New(ysf.Identity{
		ID:          r.YSF.ID,
		Name:        r.YSF.Name,
		Description: r.YSF.Description,
	}))
	add(r.M17.ReflectorConfig, m17.New(m17.Config{
		Designator:     r.M17.Reflector,
		Modules:        r.M17.EnabledModules(),
		EnforceModules: r.M17.ACL,
	}))
	return engines
}

// runEngines runs every engine until ctx is done. An engine that cannot
// bind is logged and stays stopped while the others keep serving. The
// returned channel receives an error once no engine is left to start.
func runEngines(ctx context.Context, engines []*reflector.Engine, wg *sync.WaitGroup, log *logger.Logger) <-chan error {
	failed := make(chan error, 1)

	var mu sync.Mutex
	remaining := len(engines)
	for _, e := range engines {
		wg.Add(1)
		go func(e *reflector.Engine) {
			defer wg.Done()
			err := e.Run(ctx)
			if err == nil {
				return
			}
			log.Error("Reflector failed to start",
				logger.String("mode", e.Mode().String()),
				logger.Error(err))

			mu.Lock()
			remaining--
			last := remaining == 0
			mu.Unlock()
			if last {
				failed <- fmt.Errorf("no reflector could start: %w", err)
			}
		}(e)
	}
	return failed
}

func engineConfig(rc config.ReflectorConfig) reflector.Config {
	return reflector.Config{
		Host:         rc.Host,
		Port:         rc.Port,
		Debug:        rc.Debug,
		ACL:          rc.ACL,
		Timeout:      rc.PeerTimeout(),
		ReapInterval: rc.SweepInterval(),
	}
}
