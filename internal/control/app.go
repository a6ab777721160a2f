package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/verdict/internal/bank"
	"github.com/vietddude/verdict/internal/core/config"
	"github.com/vietddude/verdict/internal/core/domain"
	"github.com/vietddude/verdict/internal/core/task"
	"github.com/vietddude/verdict/internal/core/worker"
	"github.com/vietddude/verdict/internal/infra/llm/cooldown"
	"github.com/vietddude/verdict/internal/infra/llm/provider"
	"github.com/vietddude/verdict/internal/infra/llm/routing"
	redisclient "github.com/vietddude/verdict/internal/infra/redis"
	"github.com/vietddude/verdict/internal/infra/storage"
	"github.com/vietddude/verdict/internal/infra/storage/file"
	"github.com/vietddude/verdict/internal/infra/storage/postgres"
	"github.com/vietddude/verdict/internal/processing/essay"
	"github.com/vietddude/verdict/internal/processing/health"
	"github.com/vietddude/verdict/internal/processing/runner"
	"github.com/vietddude/verdict/internal/processing/verify"
)

// App wires the backend chain, stores, banks and pipelines together.
type App struct {
	cfg      *config.AppConfig
	registry *cooldown.Registry
	adapters []*provider.Adapter
	executor *routing.Executor

	statements *bank.StatementBank
	materials  *bank.MaterialBank
	examples   *bank.ExampleBank

	verification *runner.Runner
	generation   *runner.Runner

	pruner  *worker.Pruner
	monitor *health.Monitor
	server  *health.Server

	db      *postgres.DB
	redis   *redisclient.Client
	closers []io.Closer
	log     *slog.Logger
}

// New builds the application. Nothing runs until Start.
func New(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	a := &App{cfg: cfg, log: slog.Default()}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	// 1. Cooldown registry
	var store cooldown.Store
	switch cfg.Cooldowns.Backend {
	case "redis":
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		a.redis = client
		store = cooldown.NewRedisStore(client, cfg.Cooldowns.RedisKey)
		a.log.Info("Using Redis cooldown store", "key", cfg.Cooldowns.RedisKey)
	default:
		store = cooldown.NewFileStore(cfg.Cooldowns.Path)
		a.log.Info("Using file cooldown store", "path", cfg.Cooldowns.Path)
	}
	a.registry = cooldown.NewRegistry(ctx, store)

	// 2. Backend chain
	profiles, skipped := cfg.ResolveChain(os.Getenv)
	for _, err := range skipped {
		a.log.Warn("Skipping chain entry", "reason", err)
	}
	policy := provider.CooldownPolicy{Default: cfg.Cooldowns.Default, Max: cfg.Cooldowns.MaxCooldown}
	backends := make([]routing.Backend, 0, len(profiles))
	monitored := make([]health.Backend, 0, len(profiles))
	for _, p := range profiles {
		client, err := a.buildClient(p)
		if err != nil {
			a.log.Warn("Skipping chain entry", "profile", p.Name, "error", err)
			continue
		}
		adapter := provider.NewAdapter(client, a.registry, policy)
		a.adapters = append(a.adapters, adapter)
		backends = append(backends, adapter)
		monitored = append(monitored, adapter)
		a.log.Info("Backend added to chain", "profile", p.Name, "backend", client.Identity().Key())
	}
	if len(backends) == 0 {
		a.log.Warn("No usable backends configured; backend checks will fail")
	}
	a.executor = routing.NewExecutor(backends, a.registry, routing.Config{
		Buffer:           cfg.Executor.Buffer,
		MaxWait:          cfg.Executor.MaxWait,
		FallbackWait:     cfg.Executor.FallbackWait,
		UnavailablePause: cfg.Executor.UnavailablePause,
		Tick:             cfg.Executor.Tick,
	})

	// 3. Banks
	var err error
	if a.statements, err = bank.LoadStatements(cfg.Data.StatementBank); err != nil {
		return nil, err
	}
	if a.materials, err = bank.LoadMaterials(cfg.Data.Materials); err != nil {
		return nil, err
	}
	if a.examples, err = bank.LoadExamples(cfg.Data.Examples); err != nil {
		return nil, err
	}

	// 4. Work-item storage
	verifyRepo, essayRepo, err := a.openRepos(ctx)
	if err != nil {
		return nil, err
	}

	verifyStore, err := task.Open(ctx, verifyRepo, domain.ItemKindVerification,
		[]string{domain.CheckExact, domain.CheckFuzzy, domain.CheckKnowledge})
	if err != nil {
		return nil, err
	}
	essayStore, err := task.Open(ctx, essayRepo, domain.ItemKindGeneration, []string{domain.CheckEssay})
	if err != nil {
		return nil, err
	}

	// 5. Pipelines
	a.verification = runner.New(verifyStore,
		verify.NewExactCheck(a.statements),
		verify.NewFuzzyCheck(a.statements, a.executor),
		verify.NewKnowledgeCheck(a.executor),
	)
	a.generation = runner.New(essayStore, essay.NewGenerator(a.executor, a.materials, a.examples))
	a.pruner = worker.NewPruner(cfg.Data.Retention, verifyStore, essayStore)

	// 6. HTTP surface
	a.monitor = health.NewMonitor(monitored, a.registry)
	if a.db != nil {
		a.monitor.WithStorage(a.db)
	}
	a.server = health.NewServer(a.monitor, map[domain.ItemKind]health.ItemService{
		domain.ItemKindVerification: a.verification,
		domain.ItemKindGeneration:   a.generation,
	}, health.Options{Port: cfg.Server.Port, CORSOrigins: cfg.Server.CORSOrigins})

	ok = true
	return a, nil
}

func (a *App) buildClient(p config.ResolvedProfile) (provider.Client, error) {
	var opts []provider.HTTPOption
	if p.Endpoint != "" {
		opts = append(opts, provider.WithBaseURL(p.Endpoint))
	}
	opts = append(opts, provider.WithTimeout(p.Timeout))

	switch p.Provider {
	case "gemini":
		return provider.NewGeminiClient(p.Model, p.Credential, opts...), nil
	case "openai":
		return provider.NewOpenAIClient(p.Model, p.Credential, opts...), nil
	case "grpc":
		client, err := provider.NewGRPCClient(p.Model, p.Endpoint, p.Credential)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client)
		return client, nil
	}
	return nil, fmt.Errorf("unknown provider type %q", p.Provider)
}

func (a *App) openRepos(ctx context.Context) (storage.ItemRepository, storage.ItemRepository, error) {
	if a.cfg.Database.URL == "" {
		a.log.Info("Using file item storage", "dir", a.cfg.Data.Dir)
		return file.NewItemRepo(filepath.Join(a.cfg.Data.Dir, "statements.json")),
			file.NewItemRepo(filepath.Join(a.cfg.Data.Dir, "essays.json")), nil
	}

	db, err := postgres.NewDB(ctx, a.cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init db: %w", err)
	}
	a.db = db
	if err := db.Migrate(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to migrate db: %w", err)
	}
	a.log.Info("Using PostgreSQL item storage")
	return postgres.NewItemRepo(db, domain.ItemKindVerification),
		postgres.NewItemRepo(db, domain.ItemKindGeneration), nil
}

// Verification returns the statement verification pipeline.
func (a *App) Verification() *runner.Runner { return a.verification }

// Generation returns the essay generation pipeline.
func (a *App) Generation() *runner.Runner { return a.generation }

// Pipeline returns the runner for kind.
func (a *App) Pipeline(kind domain.ItemKind) (*runner.Runner, bool) {
	switch kind {
	case domain.ItemKindVerification:
		return a.verification, true
	case domain.ItemKindGeneration:
		return a.generation, true
	}
	return nil, false
}

func (a *App) Statements() *bank.StatementBank { return a.statements }
func (a *App) Materials() *bank.MaterialBank   { return a.materials }
func (a *App) Examples() *bank.ExampleBank     { return a.examples }
func (a *App) Registry() *cooldown.Registry    { return a.registry }
func (a *App) Monitor() *health.Monitor        { return a.monitor }

// Chain returns the usable backends in preference order.
func (a *App) Chain() []domain.BackendIdentity { return a.executor.Chain() }

// Start resumes unfinished checks and starts the HTTP server.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.server.Start(); err != nil {
			a.log.Error("HTTP server failed", "error", err)
		}
	}()

	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	a.verification.Resume(ctx)
	a.generation.Resume(ctx)
	go a.pruner.Start(ctx)

	a.log.Info("Verdict started", "port", a.cfg.Server.Port, "backends", len(a.adapters))
	return nil
}

// Stop shuts the server down, cancels running checks and releases
// connections. Cancelled checks resume on the next Start.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping Verdict...")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.server.Stop(gctx) })
	g.Go(func() error { a.verification.Shutdown(); return nil })
	g.Go(func() error { a.generation.Shutdown(); return nil })
	err := g.Wait()

	return errors.Join(err, a.close())
}

// Close releases connections without touching the server. Use it for
// one-shot commands that never called Start.
func (a *App) Close() error {
	if a.verification != nil {
		a.verification.Shutdown()
	}
	if a.generation != nil {
		a.generation.Shutdown()
	}
	return a.close()
}

func (a *App) close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	a.closers = nil
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
			errs = append(errs, err)
		}
		a.redis = nil
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
		a.db = nil
	}
	return errors.Join(errs...)
}
