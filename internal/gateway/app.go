package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/tightlines/internal/gateway/config"
	"github.com/dmitrijs2005/tightlines/internal/logging"
)

// App runs the cache gateway: install, activate, then serve until shutdown.
type App struct {
	config  *config.Config
	logger  logging.Logger
	engine  *Engine
	handler *Handler
}

func NewApp(c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout)

	origin, err := url.Parse(c.Origin)
	if err != nil {
		return nil, err
	}

	manifest := make([]string, 0, len(c.PrecacheRoutes))
	for _, route := range c.PrecacheRoutes {
		ref, err := url.Parse(route)
		if err != nil {
			return nil, err
		}
		manifest = append(manifest, origin.ResolveReference(ref).String())
	}

	engine := New(c.Version, DefaultRules(origin.Hostname()), NewStore(),
		NewNetworkFetcher(&http.Client{Timeout: 30 * time.Second}), manifest, logger)

	handler, err := NewHandler(engine, c.Origin, logger)
	if err != nil {
		return nil, err
	}

	return &App{config: c, logger: logger, engine: engine, handler: handler}, nil
}

func (a *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (a *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	a.logger.Info(ctx, "starting gateway", "version", a.config.Version, "addr", a.config.ListenAddr)

	a.initSignalHandler(cancelFunc)

	// A failed pre-population only aborts the install; the current
	// generation keeps serving and the next start retries it.
	if err := a.engine.Install(ctx); err != nil {
		a.logger.Warn(ctx, "install incomplete", "error", err.Error())
	} else {
		a.engine.Activate(ctx)
	}

	server := &http.Server{Addr: a.config.ListenAddr, Handler: a.handler}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error(ctx, "server error", "error", err.Error())
			cancelFunc()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error(shutdownCtx, "shutdown error", "error", err.Error())
	}
	wg.Wait()

	a.logger.Info(context.Background(), "gateway stopped")
}
