package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

const (
	KindDetail  = "detail"
	KindList    = "list"
	KindHistory = "history"
)

// Key identifies one cached upstream read. Scope is the user the read was
// made for; list reads leave ID empty.
type Key struct {
	Scope  string
	Domain string
	Kind   string
	ID     string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Scope, k.Domain, k.Kind, k.ID)
}

// QueryCache keeps encoded upstream read results in an LRU.
type QueryCache struct {
	lru *lru.Cache[Key, []byte]
	log *logrus.Entry
}

func New(size int) (*QueryCache, error) {
	if size <= 0 {
		size = 1024
	}
	l, err := lru.New[Key, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("create query cache: %w", err)
	}
	return &QueryCache{lru: l, log: logrus.WithField("component", "query_cache")}, nil
}

func (c *QueryCache) Get(key Key) ([]byte, bool) {
	return c.lru.Get(key)
}

func (c *QueryCache) Set(key Key, value []byte) {
	c.lru.Add(key, value)
}

func (c *QueryCache) Len() int {
	return c.lru.Len()
}

func (c *QueryCache) Purge() {
	c.lru.Purge()
}

// InvalidateEntity drops every cached read of the entity across all scopes,
// plus the lists of its domain. Sub-resource types such as
// "shipment_comment" invalidate their parent domain.
func (c *QueryCache) InvalidateEntity(entityType, entityID string) int {
	domain := DomainOf(entityType)
	removed := 0
	for _, key := range c.lru.Keys() {
		if key.Domain != domain {
			continue
		}
		if key.ID == "" || key.ID == entityID {
			if c.lru.Remove(key) {
				removed++
			}
		}
	}

	c.log.WithFields(logrus.Fields{
		"entity_type": entityType,
		"entity_id":   entityID,
		"removed":     removed,
	}).Debug("invalidated cached queries")
	return removed
}

// DomainOf maps an entity type to the cache domain holding its reads.
func DomainOf(entityType string) string {
	domain, _, _ := strings.Cut(entityType, "_")
	return domain
}

// ReadThrough returns the cached value for key, or calls load and caches
// its result.
func ReadThrough[T any](ctx context.Context, c *QueryCache, key Key, load func(context.Context) (T, error)) (T, error) {
	var value T
	if raw, ok := c.Get(key); ok {
		if err := json.Unmarshal(raw, &value); err == nil {
			return value, nil
		}
		c.lru.Remove(key)
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}

	if raw, err := json.Marshal(value); err == nil {
		c.Set(key, raw)
	} else {
		c.log.WithError(err).WithField("key", key.String()).Warn("could not cache query result")
	}
	return value, nil
}
