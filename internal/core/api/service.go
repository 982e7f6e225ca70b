// Package api provides the gRPC scrub service for claimscrub.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/solatis/claimscrub/internal/core/config"
	"github.com/solatis/claimscrub/internal/core/db"
	"github.com/solatis/claimscrub/internal/core/metrics"
	"github.com/solatis/claimscrub/internal/rules"
	"github.com/solatis/claimscrub/internal/types"
)

// ScrubService implements ScrubServiceServer.
// Thin orchestration layer delegating to the rules engine and the store.
type ScrubService struct {
	engine       *rules.Engine
	store        *db.Store
	cfg          *config.ScrubAPIConfig
	metrics      *metrics.Metrics
	logger       *slog.Logger
	jsonlMutexes map[string]*sync.Mutex
	mutexLock    sync.Mutex
}

// NewScrubService creates service instance with dependencies.
// Auto-creates the reports directory if not exists.
func NewScrubService(engine *rules.Engine, store *db.Store, cfg *config.ScrubAPIConfig, m *metrics.Metrics, logger *slog.Logger) (*ScrubService, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if m == nil {
		return nil, fmt.Errorf("metrics cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	reportsDir := filepath.Join(cfg.DataDir, "reports")
	if err := os.MkdirAll(reportsDir, 0755); err != nil {
		return nil, err
	}

	return &ScrubService{
		engine:       engine,
		store:        store,
		cfg:          cfg,
		metrics:      m,
		logger:       logger,
		jsonlMutexes: make(map[string]*sync.Mutex),
	}, nil
}

// Reload reads every stored rule into the engine. Archived rules are
// skipped by the engine; invalid rules are logged and skipped, so a bad
// rule never takes the service down.
func (s *ScrubService) Reload(ctx context.Context) error {
	stored, err := s.store.ListRules(ctx)
	if err != nil {
		return err
	}
	if err := s.engine.Load(stored); err != nil {
		s.logger.Warn("rule set loaded with errors", "error", err)
	}

	active := 0
	for _, r := range s.engine.Snapshot().Rules {
		if r.Status == types.StatusActive {
			active++
		}
	}
	s.metrics.RulesLoaded.Set(float64(active))
	return nil
}

// getJSONLMutex returns mutex for given filename, creating if not exists.
// Per-file mutex protects concurrent appends to the same daily JSONL file.
func (s *ScrubService) getJSONLMutex(filename string) *sync.Mutex {
	s.mutexLock.Lock()
	defer s.mutexLock.Unlock()

	if _, ok := s.jsonlMutexes[filename]; !ok {
		s.jsonlMutexes[filename] = &sync.Mutex{}
	}
	return s.jsonlMutexes[filename]
}

// errTenantMissing is returned when a handler runs without the auth
// interceptor having set a tenant.
var errTenantMissing = errors.New("missing tenant_id in context")
