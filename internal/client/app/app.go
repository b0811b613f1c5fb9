// Package app wires the sync client: local mirror database, remote store
// client, connectivity watcher and the trip-log synchronizer.
package app

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/tightlines/internal/client/client"
	"github.com/dmitrijs2005/tightlines/internal/client/config"
	"github.com/dmitrijs2005/tightlines/internal/client/connectivity"
	"github.com/dmitrijs2005/tightlines/internal/client/models"
	"github.com/dmitrijs2005/tightlines/internal/client/services"
	"github.com/dmitrijs2005/tightlines/internal/logging"

	_ "modernc.org/sqlite"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	apiClient   client.Client
	watcher     *connectivity.Watcher
	tripService services.TripService
}

func NewApp(c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout)

	ctx := context.Background()

	repos, err := client.InitDatabase(ctx, c.DatabaseDSN)
	if err != nil {
		logger.Error(ctx, "error initializing database", "error", err.Error())
		return nil, err
	}

	apiClient := client.NewHTTPClient(c.EndpointURL)
	watcher := connectivity.NewWatcher(apiClient, c.OnlineCheckInterval, logger)

	ts := services.NewTripService(apiClient, repos.Records, repos.Metadata,
		func() bool { return watcher.State().Online }, logger)

	return &App{
		config:      c,
		logger:      logger,
		apiClient:   apiClient,
		watcher:     watcher,
		tripService: ts,
	}, nil
}

func (a *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// reportSyncState logs the badge values after a sweep: the aggregate sweep
// status plus the owner's record counts per sync status.
func (a *App) reportSyncState(ctx context.Context) {
	counts, err := a.tripService.Counts(ctx, a.config.OwnerID)
	if err != nil {
		a.logger.Error(ctx, "error counting records", "error", err.Error())
		return
	}
	a.logger.Info(ctx, "sync state",
		"status", string(a.tripService.Status()),
		"synced", counts[models.StatusSynced],
		"pending", counts[models.StatusPending],
		"offline", counts[models.StatusOffline])
}

func (a *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	a.logger.Info(ctx, "starting sync client", "owner", a.config.OwnerID)

	a.initSignalHandler(cancelFunc)

	// Every offline→online edge drains the unsynced backlog.
	a.watcher.OnChange(func(s connectivity.State) {
		if !s.Online {
			return
		}
		go func() {
			// Re-load so the remote subscription opens now that the store
			// is reachable.
			if _, err := a.tripService.Load(ctx, a.config.OwnerID); err != nil {
				a.logger.Error(ctx, "error loading local mirror", "error", err.Error())
			}
			if err := a.tripService.Sync(ctx, a.config.OwnerID); err != nil {
				a.logger.Error(ctx, "sweep failed", "error", err.Error())
			}
			a.reportSyncState(ctx)
		}()
	})

	if _, err := a.tripService.Load(ctx, a.config.OwnerID); err != nil {
		a.logger.Error(ctx, "error loading local mirror", "error", err.Error())
	}
	a.reportSyncState(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.watcher.Run(ctx)
	}()

	<-ctx.Done()
	a.tripService.Close()
	_ = a.apiClient.Close()
	wg.Wait()

	a.logger.Info(context.Background(), "sync client stopped")
}
