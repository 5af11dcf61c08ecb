// Copyright (c) 2023 The Grafana Zabbix Datasource Authors.
// SPDX-License-Identifier: Apache-2.0

package metadata

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// APICaller is the authenticated call surface the cache fetches
// through, satisfied by *client.Session.
type APICaller interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
}

// Cache serves metadata queries from a TTL cache in front of the API.
// The key is the method name plus its exact parameter set, so the same
// method scoped to different ids occupies distinct entries. A lookup
// after expiry is a miss and triggers exactly one upstream fetch even
// under concurrent callers.
type Cache struct {
	client  APICaller
	ttl     time.Duration
	logger  *zap.Logger
	timeNow func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
	group   singleflight.Group

	hits   prometheus.Counter
	misses prometheus.Counter
}

type cacheEntry struct {
	value      json.RawMessage
	expiration time.Time
}

// CacheOptions control optional cache behavior.
type CacheOptions struct {
	// TimeNow is used to determine expiry, defaults to time.Now.
	TimeNow func() time.Time
	// Registerer receives hit/miss counters when set.
	Registerer prometheus.Registerer
}

// NewCache creates a metadata cache with the given TTL. A zero TTL
// disables caching entirely: every lookup is a miss.
func NewCache(client APICaller, ttl time.Duration, logger *zap.Logger, opts *CacheOptions) *Cache {
	if opts == nil {
		opts = &CacheOptions{}
	}
	if opts.TimeNow == nil {
		opts.TimeNow = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{
		client:  client,
		ttl:     ttl,
		logger:  logger,
		timeNow: opts.TimeNow,
		entries: make(map[string]cacheEntry),
	}
	if opts.Registerer != nil {
		c.hits = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zabbix_metadata_cache_hits_total",
			Help: "Number of metadata lookups served from cache.",
		})
		c.misses = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zabbix_metadata_cache_misses_total",
			Help: "Number of metadata lookups that required an API fetch.",
		})
		opts.Registerer.MustRegister(c.hits, c.misses)
	}
	return c
}

// fetch returns the cached reply for method+params, issuing at most
// one API call per distinct key while the entry is absent or expired.
func (c *Cache) fetch(ctx context.Context, method string, params any) (json.RawMessage, error) {
	keyBytes, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	key := method + ":" + string(keyBytes)

	if value, ok := c.lookup(key); ok {
		if c.hits != nil {
			c.hits.Inc()
		}
		return value, nil
	}
	if c.misses != nil {
		c.misses.Inc()
	}

	value, err, shared := c.group.Do(key, func() (any, error) {
		// a concurrent caller may have refreshed the entry already
		if value, ok := c.lookup(key); ok {
			return value, nil
		}
		result, err := c.client.Call(ctx, method, params)
		if err != nil {
			return nil, err
		}
		c.store(key, result)
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("shared in-flight metadata fetch", zap.String("method", method))
	}
	return value.(json.RawMessage), nil
}

func (c *Cache) lookup(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.timeNow().After(entry.expiration) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.value, true
}

func (c *Cache) store(key string, value json.RawMessage) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{value: value, expiration: c.timeNow().Add(c.ttl)}
	c.mu.Unlock()
}

// Purge drops every cached entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// AllGroups fetches every host group with at least one real host.
func (c *Cache) AllGroups(ctx context.Context) ([]Group, error) {
	params := map[string]any{
		"output":     []string{"name"},
		"sortfield":  "name",
		"real_hosts": true,
	}
	result, err := c.fetch(ctx, "hostgroup.get", params)
	if err != nil {
		return nil, err
	}
	var groups []Group
	err = json.Unmarshal(result, &groups)
	return groups, err
}

// AllHosts fetches hosts scoped to the given group ids.
func (c *Cache) AllHosts(ctx context.Context, groupIDs []string) ([]Host, error) {
	params := map[string]any{
		"output":    []string{"name", "host"},
		"sortfield": "name",
		"groupids":  groupIDs,
	}
	result, err := c.fetch(ctx, "host.get", params)
	if err != nil {
		return nil, err
	}
	var hosts []Host
	err = json.Unmarshal(result, &hosts)
	return hosts, err
}

// AllApps fetches applications scoped to the given host ids.
func (c *Cache) AllApps(ctx context.Context, hostIDs []string) ([]Application, error) {
	params := map[string]any{
		"output":  "extend",
		"hostids": hostIDs,
	}
	result, err := c.fetch(ctx, "application.get", params)
	if err != nil {
		return nil, err
	}
	var apps []Application
	err = json.Unmarshal(result, &apps)
	return apps, err
}

// AllItems fetches items scoped to host ids, or to application ids
// when no hosts are given. The value kind restricts value_type at the
// remote query stage.
func (c *Cache) AllItems(ctx context.Context, hostIDs, appIDs []string, kind ValueKind) ([]Item, error) {
	filter := map[string]any{}
	if types := kind.ValueTypes(); types != nil {
		filter["value_type"] = types
	}
	params := map[string]any{
		"output":      []string{"itemid", "name", "key_", "value_type", "hostid", "status", "state"},
		"sortfield":   "name",
		"webitems":    true,
		"filter":      filter,
		"selectHosts": []string{"hostid", "name"},
	}
	if len(hostIDs) > 0 {
		params["hostids"] = hostIDs
	} else {
		params["applicationids"] = appIDs
	}
	result, err := c.fetch(ctx, "item.get", params)
	if err != nil {
		return nil, err
	}
	var items []Item
	err = json.Unmarshal(result, &items)
	return items, err
}
