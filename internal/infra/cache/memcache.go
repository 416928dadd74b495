package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/pkg/errors"

	"github.com/totegamma/portfolio/internal/domain"
)

const keyPrefix = "portfolio:casestudy:"

// Memcache stores published case studies in memcached.
type Memcache struct {
	client *memcache.Client
	ttl    time.Duration
}

func NewMemcache(client *memcache.Client, ttl time.Duration) *Memcache {
	return &Memcache{client: client, ttl: ttl}
}

func (m *Memcache) Get(ctx context.Context, id string) (domain.CaseStudy, bool, error) {
	item, err := m.client.Get(keyPrefix + id)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return domain.CaseStudy{}, false, nil
	}
	if err != nil {
		return domain.CaseStudy{}, false, errors.Wrap(err, "memcache get")
	}

	var cs domain.CaseStudy
	if err := json.Unmarshal(item.Value, &cs); err != nil {
		// stale encoding; drop it
		_ = m.client.Delete(keyPrefix + id)
		return domain.CaseStudy{}, false, nil
	}
	return cs, true, nil
}

func (m *Memcache) item(cs domain.CaseStudy) (*memcache.Item, error) {
	value, err := json.Marshal(cs)
	if err != nil {
		return nil, errors.Wrap(err, "encode cached case study")
	}
	return &memcache.Item{
		Key:        keyPrefix + cs.ID,
		Value:      value,
		Expiration: m.expiration(),
	}, nil
}

// expiration rounds the ttl up to whole seconds. memcached reads 0 as never
// expire, so a positive ttl is at least one second.
func (m *Memcache) expiration() int32 {
	if m.ttl <= 0 {
		return 0
	}
	return int32((m.ttl + time.Second - 1) / time.Second)
}

// Add stores cs unless an entry already exists.
func (m *Memcache) Add(ctx context.Context, cs domain.CaseStudy) error {
	item, err := m.item(cs)
	if err != nil {
		return err
	}
	err = m.client.Add(item)
	if errors.Is(err, memcache.ErrNotStored) {
		return nil
	}
	return errors.Wrap(err, "memcache add")
}

func (m *Memcache) Set(ctx context.Context, cs domain.CaseStudy) error {
	item, err := m.item(cs)
	if err != nil {
		return err
	}
	return errors.Wrap(m.client.Set(item), "memcache set")
}
