package wire

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyang/call-dispatch/internal/adapter/memory"
	pgdb "github.com/alanyang/call-dispatch/internal/adapter/postgres"
	pgagent "github.com/alanyang/call-dispatch/internal/adapter/postgres/agent"
	pgeventbus "github.com/alanyang/call-dispatch/internal/adapter/postgres/eventbus"
	pgidem "github.com/alanyang/call-dispatch/internal/adapter/postgres/idempotency"
	pglocker "github.com/alanyang/call-dispatch/internal/adapter/postgres/locker"
	"github.com/alanyang/call-dispatch/internal/adapter/postgres/migrations"
	pgtask "github.com/alanyang/call-dispatch/internal/adapter/postgres/task"
	"github.com/alanyang/call-dispatch/internal/adapter/spreadsheet"
	"github.com/alanyang/call-dispatch/internal/config"
	"github.com/alanyang/call-dispatch/internal/domain/event"
	"github.com/alanyang/call-dispatch/internal/metrics"
	portagent "github.com/alanyang/call-dispatch/internal/port/agent"
	porteventbus "github.com/alanyang/call-dispatch/internal/port/eventbus"
	portidem "github.com/alanyang/call-dispatch/internal/port/idempotency"
	portlocker "github.com/alanyang/call-dispatch/internal/port/locker"
	porttask "github.com/alanyang/call-dispatch/internal/port/task"

	agentsvc "github.com/alanyang/call-dispatch/internal/service/agent"
	distsvc "github.com/alanyang/call-dispatch/internal/service/distributor"
	"github.com/alanyang/call-dispatch/internal/service/rebalance"
	tasksvc "github.com/alanyang/call-dispatch/internal/service/task"

	"github.com/alanyang/call-dispatch/internal/transport"
	mcptransport "github.com/alanyang/call-dispatch/internal/transport/mcp"
)

// App holds the top-level resources needed to run and gracefully stop the server.
type App struct {
	// Pool is nil in memory mode.
	Pool   *pgxpool.Pool
	Server *http.Server
	Purger portidem.Purger
}

type idempotencyStore interface {
	portidem.Store
	portidem.Purger
}

type adapters struct {
	agents      portagent.Repository
	tasks       porttask.Repository
	locker      portlocker.AdvisoryLocker
	bus         porteventbus.EventBus
	idempotency idempotencyStore
}

// Build is the composition root: the only place concrete types are wired to their
// interface dependencies. Without DATABASE_URL everything runs in process.
func Build(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	// ── Storage ──────────────────────────────────────────────────────────────
	var (
		pool *pgxpool.Pool
		ad   adapters
	)
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, running on in-memory storage")
		ad = adapters{
			agents:      memory.NewAgentRepository(),
			tasks:       memory.NewTaskRepository(),
			locker:      memory.NewLocker(),
			bus:         memory.NewEventBus(),
			idempotency: memory.NewCache(),
		}
	} else {
		pool, err = pgdb.Connect(ctx, cfg.DatabaseURL, pgdb.PoolOptions{
			MaxConns:    cfg.DBMaxConns,
			Listeners:   int32(len(event.Channels)),
			PingTimeout: 5 * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		if cfg.AutoMigrate {
			if err := migrations.Apply(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("applying migrations: %w", err)
			}
		}
		ad = adapters{
			agents:      pgagent.New(pool),
			tasks:       pgtask.New(pool),
			locker:      pglocker.New(pool, pglocker.WithWaitTimeout(time.Duration(cfg.LockWaitSeconds)*time.Second)),
			bus:         pgeventbus.New(pool),
			idempotency: pgidem.New(pool),
		}
	}

	// ── Metrics ──────────────────────────────────────────────────────────────
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder, err := metrics.NewPrometheus(promReg, "dispatch")
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	// ── Services ─────────────────────────────────────────────────────────────
	rebalanceSvc := rebalance.NewService(ad.agents, ad.tasks, ad.locker, ad.bus, recorder)
	agentSvcInstance := agentsvc.NewService(ad.agents, rebalanceSvc, ad.locker, ad.bus)
	taskSvcInstance := tasksvc.NewService(tasksvc.Deps{
		Repo:        ad.tasks,
		AgentRepo:   ad.agents,
		Distributor: distsvc.NewService(ad.agents, cfg.Options.Distribution()),
		Locker:      ad.locker,
		Idempotency: ad.idempotency,
		Bus:         ad.bus,
		Metrics:     recorder,
		ReadRows:    spreadsheet.Read,
		Limits:      cfg.Options.Intake(),
	})

	mcpServer := mcptransport.New(mcptransport.NewSessionRegistry(), agentSvcInstance, taskSvcInstance, rebalanceSvc)

	// ── Transport ─────────────────────────────────────────────────────────────
	router := transport.NewRouter(
		ctx,
		agentSvcInstance,
		taskSvcInstance,
		rebalanceSvc,
		mcpServer,
		promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
		ad.bus,
	)
	router.MaxMultipartMemory = cfg.Options.MaxFileSizeBytes

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	slog.Info("application wired",
		"port", cfg.Port,
		"storage", storageName(pool),
		"max_tasks_per_agent", cfg.Options.MaxTasksPerAgent,
	)

	return &App{
		Pool:   pool,
		Server: server,
		Purger: ad.idempotency,
	}, nil
}

func storageName(pool *pgxpool.Pool) string {
	if pool == nil {
		return "memory"
	}
	return "postgres"
}
