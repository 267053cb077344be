package session

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/mlionhart/hartmart/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Service loads and stores cart sessions through a read-through cache. Cache
// failures are logged and never fail a request.
type Service struct {
	repo  Repository
	cache Cache
	log   *zap.Logger
	sfg   singleflight.Group

	// writes bump their stripe's generation; a cache fill computed from an
	// older generation is dropped
	fillMu [64]sync.Mutex
	gens   [64]uint64
}

func NewService(repo Repository, cache Cache, log *zap.Logger) *Service {
	if cache == nil {
		cache = NoopCache{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, cache: cache, log: log}
}

// Load returns the items saved for sessionID. An unknown session is an empty
// cart.
func (s *Service) Load(ctx context.Context, sessionID string) ([]domain.LineItem, error) {
	v, err, _ := s.sfg.Do(sessionID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, sessionID)
		if err == nil {
			return cart.Items, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.log.Warn("cache get error", zap.String("session_id", sessionID), zap.Error(err))
		}

		gen := s.generation(sessionID)
		cart, err = s.repo.Get(ctx, sessionID)
		if errors.Is(err, ErrSessionNotFound) {
			return []domain.LineItem(nil), nil
		}
		if err != nil {
			return nil, err
		}

		s.fill(ctx, sessionID, cart, gen)
		return cart.Items, nil
	})
	if err != nil {
		return nil, err
	}
	// callers sharing a flight must not share a backing array
	return domain.CopyItems(v.([]domain.LineItem)), nil
}

func (s *Service) Save(ctx context.Context, sessionID string, items []domain.LineItem) error {
	if err := s.repo.Upsert(ctx, &Cart{SessionID: sessionID, Items: items}); err != nil {
		s.log.Error("repo upsert cart session error", zap.String("session_id", sessionID), zap.Error(err))
		return err
	}
	s.invalidate(ctx, sessionID)
	return nil
}

// Clear drops the session. Clearing an unknown session is not an error.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	if err := s.repo.Delete(ctx, sessionID); err != nil && !errors.Is(err, ErrSessionNotFound) {
		s.log.Error("repo delete cart session error", zap.String("session_id", sessionID), zap.Error(err))
		return err
	}
	s.invalidate(ctx, sessionID)
	return nil
}

func (s *Service) stripe(sessionID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return int(h.Sum32() % uint32(len(s.gens)))
}

func (s *Service) generation(sessionID string) uint64 {
	i := s.stripe(sessionID)
	s.fillMu[i].Lock()
	defer s.fillMu[i].Unlock()
	return s.gens[i]
}

// fill caches cart unless a write to the session happened after gen was
// read. The check and the Set share the lock invalidate takes, so a fill can
// never land after the invalidation of a newer write.
func (s *Service) fill(ctx context.Context, sessionID string, cart *Cart, gen uint64) {
	i := s.stripe(sessionID)
	s.fillMu[i].Lock()
	defer s.fillMu[i].Unlock()
	if s.gens[i] != gen {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := s.cache.Set(ctx, sessionID, cart); err != nil {
		s.log.Warn("cache set error", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *Service) invalidate(ctx context.Context, sessionID string) {
	i := s.stripe(sessionID)
	s.fillMu[i].Lock()
	defer s.fillMu[i].Unlock()
	s.gens[i]++

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, sessionID); err != nil {
		s.log.Warn("cache invalidate error", zap.String("session_id", sessionID), zap.Error(err))
	}
}
