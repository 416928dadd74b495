package cache

import (
	"context"
	"encoding/json"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/totegamma/portfolio/internal/domain"
)

// Local is an in-process cache used when no memcached server is configured.
// Entries are held encoded, like in memcached, so callers never share
// slices with the cache.
type Local struct {
	c *gocache.Cache
}

func NewLocal(ttl time.Duration) *Local {
	return &Local{c: gocache.New(ttl, 2*ttl)}
}

func (l *Local) Get(ctx context.Context, id string) (domain.CaseStudy, bool, error) {
	v, ok := l.c.Get(id)
	if !ok {
		return domain.CaseStudy{}, false, nil
	}

	var cs domain.CaseStudy
	if err := json.Unmarshal(v.([]byte), &cs); err != nil {
		l.c.Delete(id)
		return domain.CaseStudy{}, false, nil
	}
	return cs, true, nil
}

// Add stores cs unless an entry already exists.
func (l *Local) Add(ctx context.Context, cs domain.CaseStudy) error {
	value, err := json.Marshal(cs)
	if err != nil {
		return errors.Wrap(err, "encode cached case study")
	}
	// an existing entry is not an error
	_ = l.c.Add(cs.ID, value, gocache.DefaultExpiration)
	return nil
}

func (l *Local) Set(ctx context.Context, cs domain.CaseStudy) error {
	value, err := json.Marshal(cs)
	if err != nil {
		return errors.Wrap(err, "encode cached case study")
	}
	l.c.SetDefault(cs.ID, value)
	return nil
}
