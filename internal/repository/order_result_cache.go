package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/bot-service/internal/entity"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultOrderResultCacheTTL = 10 * time.Minute

// CachedOrderStore puts a redis read-through cache in front of another
// OrderStore. The cache is best effort; the wrapped store stays the source
// of truth.
type CachedOrderStore struct {
	next   entity.OrderStore
	client redis.UniversalClient
	ttl    time.Duration
}

func NewCachedOrderStore(next entity.OrderStore, client redis.UniversalClient, ttl time.Duration) *CachedOrderStore {
	if ttl <= 0 {
		ttl = defaultOrderResultCacheTTL
	}

	return &CachedOrderStore{next: next, client: client, ttl: ttl}
}

func (s *CachedOrderStore) Save(ctx context.Context, result entity.OrderResult) error {
	if err := s.next.Save(ctx, result); err != nil {
		return err
	}

	s.put(ctx, result)
	return nil
}

func (s *CachedOrderStore) Query(ctx context.Context, uniqID string) (*entity.OrderResult, error) {
	raw, err := s.client.Get(ctx, orderResultCacheKey(uniqID)).Bytes()
	switch {
	case err == nil:
		var result entity.OrderResult
		if err := json.Unmarshal(raw, &result); err == nil {
			return &result, nil
		}
	case !errors.Is(err, redis.Nil):
		logrus.WithField("uniq_id", uniqID).WithError(err).Warn("order result cache read failed")
	}

	result, err := s.next.Query(ctx, uniqID)
	if err != nil {
		return nil, err
	}

	s.put(ctx, *result)
	return result, nil
}

func (s *CachedOrderStore) put(ctx context.Context, result entity.OrderResult) {
	payload, err := json.Marshal(result)
	if err != nil {
		return
	}

	if err := s.client.Set(ctx, orderResultCacheKey(result.UniqID), payload, s.ttl).Err(); err != nil {
		logrus.WithField("uniq_id", result.UniqID).WithError(err).Warn("order result cache write failed")
	}
}

func orderResultCacheKey(uniqID string) string {
	return fmt.Sprintf("bot-service:order-result:%s", uniqID)
}
