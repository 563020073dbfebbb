package app

import (
	"fmt"

	"github.com/grafana/dskit/middleware"
	"github.com/grafana/dskit/modules"
	"github.com/grafana/dskit/server"
	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lanot/goesrecover/goesdb/backend/lustre"
	"github.com/lanot/goesrecover/goesdb/backend/s3"
	"github.com/lanot/goesrecover/goesdb/pool"
	"github.com/lanot/goesrecover/modules/frontend"
	"github.com/lanot/goesrecover/modules/processor"
	"github.com/lanot/goesrecover/modules/registry"
	"github.com/lanot/goesrecover/pkg/util/log"
)

// The various modules that make up goesrecover.
const (
	Server    string = "server"
	Store     string = "store"
	Processor string = "processor"
	Frontend  string = "frontend"
	All       string = "all"
)

func (t *App) initServer() (services.Service, error) {
	t.cfg.Server.MetricsNamespace = metricsNamespace
	t.cfg.Server.ExcludeRequestInLog = true
	t.cfg.Server.HTTPMiddleware = []middleware.Interface{httpGzipMiddleware()}

	prometheus.MustRegister(&t.cfg)

	DisableSignalHandling(&t.cfg.Server)

	server, err := server.New(t.cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to create server %w", err)
	}

	servicesToWaitFor := func() []services.Service {
		svs := []services.Service(nil)
		for m, s := range t.serviceMap {
			// Server should not wait for itself.
			if m != Server {
				svs = append(svs, s)
			}
		}
		return svs
	}

	t.server = server
	s := NewServerService(server, servicesToWaitFor)

	return s, nil
}

func (t *App) initStore() (services.Service, error) {
	store, err := registry.New(&t.cfg.Registry, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create query registry %w", err)
	}
	t.store = store

	return services.NewIdleService(nil, func(error) error {
		return t.store.Close()
	}), nil
}

func (t *App) initProcessor() (services.Service, error) {
	discoverer := lustre.NewDiscoverer(&t.cfg.Lustre, log.Logger)

	reader, err := s3.NewReader(&t.cfg.S3, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 reader %w", err)
	}

	t.pool = pool.NewPool(&t.cfg.Pool)

	proc, err := processor.New(t.cfg.Processor, t.store, discoverer, reader, t.pool, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create processor %w", err)
	}
	t.processor = proc

	return t.processor, nil
}

func (t *App) initFrontend() (services.Service, error) {
	// The admission gate judges free space where the processor writes.
	t.cfg.Frontend.DownloadPath = t.cfg.Processor.DownloadPath

	f, err := frontend.New(t.cfg.Frontend, t.store, t.processor, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create frontend %w", err)
	}
	t.frontend = f

	t.frontend.Register(t.server.HTTP)

	return services.NewIdleService(nil, nil), nil
}

func (t *App) setupModuleManager() error {
	mm := modules.NewManager(log.Logger)

	mm.RegisterModule(Server, t.initServer, modules.UserInvisibleModule)
	mm.RegisterModule(Store, t.initStore, modules.UserInvisibleModule)
	mm.RegisterModule(Processor, t.initProcessor)
	mm.RegisterModule(Frontend, t.initFrontend)
	mm.RegisterModule(All, nil)

	deps := map[string][]string{
		Server:    nil,
		Store:     nil,
		Processor: {Store, Server},
		Frontend:  {Store, Processor, Server},
		All:       {Frontend, Processor},
	}

	for mod, targets := range deps {
		if err := mm.AddDependency(mod, targets...); err != nil {
			return err
		}
	}

	t.moduleManager = mm

	return nil
}
