// Package wire provides dependency injection for the flowctl
// application. It creates singleton services with lazy initialization.
package wire

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"sync"

	"github.com/example/flowctl/internal/adapters/console"
	"github.com/example/flowctl/internal/adapters/sim"
	"github.com/example/flowctl/internal/adapters/sqlite"
	"github.com/example/flowctl/internal/app"
	"github.com/example/flowctl/internal/config"
	"github.com/example/flowctl/internal/db"
	"github.com/example/flowctl/internal/ports/primary"
	"github.com/example/flowctl/internal/ports/secondary"
)

var (
	runService     primary.RunService
	historyService primary.HistoryService
	once           sync.Once
)

// RunService returns the singleton RunService instance.
func RunService() primary.RunService {
	once.Do(initServices)
	return runService
}

// HistoryService returns the singleton HistoryService instance.
func HistoryService() primary.HistoryService {
	once.Do(initServices)
	return historyService
}

// initServices initializes all services and their dependencies.
// This is called once via sync.Once.
func initServices() {
	database, err := db.GetDB()
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	runRepo := sqlite.NewRunRepository(database)
	historyRepo := sqlite.NewHistoryRepository(database)
	operator := console.New()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	runService = app.NewRunService(runRepo, historyRepo, operator, newInstrument, logger)
	historyService = app.NewHistoryService(runRepo, historyRepo)
}

// newInstrument is the instrument factory for the CLI. Only the
// simulated instrument ships in this binary; hardware control lives in
// the instrument vendor's service.
func newInstrument(cfg *config.Config, simulate bool) (secondary.Instrument, error) {
	if !simulate {
		return nil, fmt.Errorf("hardware control is not built into this binary, run with --simulate")
	}
	ins := sim.New(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	ins.Barrels = cfg.Method.BarrelsPerLane
	return ins, nil
}
