// Command screend serves the screening engine over HTTP: session
// lifecycle, response submission, and report retrieval, backed by the
// configured session store.
package main

// #region imports
import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/psycheos/screening-engine/internal/bank"
	"github.com/psycheos/screening-engine/internal/cipher"
	"github.com/psycheos/screening-engine/internal/config"
	"github.com/psycheos/screening-engine/internal/httpapi"
	"github.com/psycheos/screening-engine/internal/orchestrator"
	"github.com/psycheos/screening-engine/internal/policy"
	"github.com/psycheos/screening-engine/internal/session"
)

// #endregion

const sweepEvery = 10 * time.Minute

// #region main

func main() {
	configPath := flag.String("config", "", "config file (default screening.yaml when present)")
	addr := flag.String("addr", "", "listen address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}

	store, sqlite, err := openStore(cfg)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()
	mgr := session.NewManager(store)

	b, err := bank.Load()
	if err != nil {
		log.Fatalf("failed to load question bank: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop, route, construct := buildPolicies(ctx, cfg, b)
	orch := orchestrator.New(b, stop, route, construct, orchestrator.DefaultConfig())

	opts := []httpapi.Option{httpapi.WithSessionTTL(cfg.SessionTTL)}
	if sqlite != nil {
		opts = append(opts, httpapi.WithAudit(sqlite))
	}
	api := httpapi.NewServer(mgr, orch, opts...)

	go sweepExpired(ctx, mgr)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.Handler(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("[HTTP] listening on %s (store: %s)", srv.Addr, cfg.Store)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Fatalf("server error: %v", err)

	case sig := <-shutdown:
		log.Printf("[HTTP] shutting down (signal: %v)", sig)
		cancel()

		// Give outstanding requests a deadline for completion.
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[HTTP] graceful shutdown incomplete: %v", err)
			if err := srv.Close(); err != nil {
				log.Printf("[HTTP] close: %v", err)
			}
		}
		log.Println("[HTTP] stopped")
	}
}

// openStore builds the configured session store. The second return is
// non-nil only for sqlite, which also carries the audit and probe
// tables.
func openStore(cfg config.Config) (session.Store, *session.SQLiteStore, error) {
	switch cfg.Store {
	case "sqlite":
		st, err := session.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil
	case "memory":
		return session.NewMemoryStore(), nil, nil
	case "redis":
		opts := []session.Option{session.WithTTL(cfg.SessionTTL)}
		if cfg.EncryptionKey != "" {
			c, err := cipher.New(cfg.EncryptionKey)
			if err != nil {
				return nil, nil, fmt.Errorf("encryption key: %w", err)
			}
			opts = append(opts, session.WithCipher(c))
		}
		st := session.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, opts...)
		return st, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// sweepExpired drops sessions past their TTL on a fixed interval.
func sweepExpired(ctx context.Context, mgr *session.Manager) {
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := mgr.ExpireStale(ctx, now)
			if err != nil {
				log.Printf("[SWEEP] expire: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("[SWEEP] expired %d sessions", n)
			}
		}
	}
}

// #endregion

// #region policies

func buildPolicies(ctx context.Context, cfg config.Config, b *bank.Bank) (orchestrator.StopPolicy, orchestrator.RoutingPolicy, orchestrator.ConstructionPolicy) {
	if cfg.GenAIKey == "" {
		return policy.NewDeltaStop(), policy.NewRuleRouter(), policy.BankConstructor{Bank: b}
	}
	specs := policy.DefaultSpecs()
	if cfg.RouterModel != "" {
		for _, role := range []policy.Role{policy.RoleStop, policy.RoleRouter} {
			spec := specs[role]
			spec.Model = cfg.RouterModel
			specs[role] = spec
		}
	}
	if cfg.ConstructorModel != "" {
		spec := specs[policy.RoleConstruct]
		spec.Model = cfg.ConstructorModel
		specs[policy.RoleConstruct] = spec
	}
	client, err := policy.NewClient(ctx, cfg.GenAIKey, specs)
	if err != nil {
		log.Printf("model policies unavailable (%v), using deterministic set", err)
		return policy.NewDeltaStop(), policy.NewRuleRouter(), policy.BankConstructor{Bank: b}
	}
	return policy.ModelStop{Client: client}, policy.ModelRouter{Client: client}, policy.ModelConstructor{Client: client}
}

// #endregion
