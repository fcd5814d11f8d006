package flags

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gatekit/gatekit/internal/shared"
)

const (
	cacheKeyPrefix  = "flags:enabled:"
	defaultCacheTTL = time.Minute
)

// RepositoryPort defines data access for flags.
type RepositoryPort interface {
	GetFlag(ctx context.Context, name string) (Flag, error)
	ListFlags(ctx context.Context) ([]Flag, error)
	CreateFlag(ctx context.Context, flag Flag) (Flag, error)
	SetFlag(ctx context.Context, flag Flag) (Flag, error)
	DeleteFlag(ctx context.Context, name string) error
}

// Service handles flag business logic. Enabled lookups go through Redis so
// hot-path checks skip the database; writes invalidate the cached entry.
type Service struct {
	repo   RepositoryPort
	cache  *redis.Client
	ttl    time.Duration
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService builds a Service instance. The cache client may be nil, in
// which case every lookup hits the repository.
func NewService(repo RepositoryPort, cache *redis.Client, ttl time.Duration, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Service{repo: repo, cache: cache, ttl: ttl, audit: audit, logger: logger}
}

// IsEnabled reports whether the named flag is on. Unknown flags are off.
func (s *Service) IsEnabled(ctx context.Context, name string) (bool, error) {
	if s.cache != nil {
		val, err := s.cache.Get(ctx, cacheKeyPrefix+name).Result()
		if err == nil {
			return val == "1", nil
		}
		if !errors.Is(err, redis.Nil) && s.logger != nil {
			s.logger.Warn("flag cache read", slog.String("flag", name), slog.Any("error", err))
		}
	}

	flag, err := s.repo.GetFlag(ctx, name)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	s.cacheEnabled(ctx, flag)
	return flag.Enabled, nil
}

// Get fetches a flag by name.
func (s *Service) Get(ctx context.Context, name string) (Flag, error) {
	return s.repo.GetFlag(ctx, name)
}

// List returns all flags.
func (s *Service) List(ctx context.Context) ([]Flag, error) {
	return s.repo.ListFlags(ctx)
}

// Create validates and inserts a new flag.
func (s *Service) Create(ctx context.Context, name, description string, enabled bool) (Flag, error) {
	name = strings.TrimSpace(name)
	if !shared.ValidName(name) {
		return Flag{}, shared.Validationf("flag name %q must be a lowercase token with dashes", name)
	}
	created, err := s.repo.CreateFlag(ctx, Flag{Name: name, Description: strings.TrimSpace(description), Enabled: enabled})
	if err != nil {
		return Flag{}, err
	}
	s.cacheEnabled(ctx, created)
	s.recordAudit(ctx, "flag.create", created)
	return created, nil
}

// Set updates a flag and refreshes its cached state.
func (s *Service) Set(ctx context.Context, name, description string, enabled bool) (Flag, error) {
	updated, err := s.repo.SetFlag(ctx, Flag{Name: name, Description: strings.TrimSpace(description), Enabled: enabled})
	if err != nil {
		return Flag{}, err
	}
	s.cacheEnabled(ctx, updated)
	s.recordAudit(ctx, "flag.set", updated)
	return updated, nil
}

// Delete removes a flag and drops its cache entry.
func (s *Service) Delete(ctx context.Context, name string) error {
	if err := s.repo.DeleteFlag(ctx, name); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Del(ctx, cacheKeyPrefix+name).Err(); err != nil && s.logger != nil {
			s.logger.Warn("flag cache delete", slog.String("flag", name), slog.Any("error", err))
		}
	}
	s.recordAudit(ctx, "flag.delete", Flag{Name: name})
	return nil
}

func (s *Service) cacheEnabled(ctx context.Context, flag Flag) {
	if s.cache == nil {
		return
	}
	val := "0"
	if flag.Enabled {
		val = "1"
	}
	if err := s.cache.Set(ctx, cacheKeyPrefix+flag.Name, val, s.ttl).Err(); err != nil && s.logger != nil {
		s.logger.Warn("flag cache write", slog.String("flag", flag.Name), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, action string, flag Flag) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "flag",
		EntityID: flag.Name,
		Meta:     map[string]any{"enabled": flag.Enabled},
	}
	if err := s.audit.Record(ctx, log); err != nil && s.logger != nil {
		s.logger.Warn("record audit log", slog.Any("error", err))
	}
}
