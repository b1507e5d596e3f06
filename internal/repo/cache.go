package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	valkey "github.com/valkey-io/valkey-go"

	"github.com/kamipay/pixrouter/internal/metrics"
	"github.com/kamipay/pixrouter/internal/rules"
	"github.com/kamipay/pixrouter/internal/types"
)

// DefaultCacheTTL bounds staleness of cached repository reads. Rule-set edits
// go live on the next recompile after expiry at the latest.
const DefaultCacheTTL = 300 * time.Second

// CacheConfig configures the Valkey-backed repository cache.
type CacheConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	// Prefix namespaces keys so several environments can share a server.
	Prefix string
	// TTLs default to DefaultCacheTTL when zero.
	TTLRuleSet  time.Duration
	TTLRules    time.Duration
	TTLGateways time.Duration
}

// Cache is a read-through cache over another repository. Lookups that miss
// fall through and populate the cache; cache errors are logged at warn and
// degrade to direct reads, never failing a compilation. GetRuleSetByID is
// deliberately not cached: it serves explicit recompiles of a chosen set,
// which must see the database.
type Cache struct {
	inner    rules.Repository
	client   valkey.Client
	cfg      CacheConfig
	logger   *slog.Logger
	recorder *metrics.Recorder
}

// NewCache connects to Valkey and wraps inner. The connection is verified
// with a ping so a misconfigured address fails at startup, not mid-compile.
func NewCache(inner rules.Repository, cfg CacheConfig, logger *slog.Logger, recorder *metrics.Recorder) (*Cache, error) {
	if cfg.Address == "" {
		return nil, errors.New("cache: address required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TTLRuleSet <= 0 {
		cfg.TTLRuleSet = DefaultCacheTTL
	}
	if cfg.TTLRules <= 0 {
		cfg.TTLRules = DefaultCacheTTL
	}
	if cfg.TTLGateways <= 0 {
		cfg.TTLGateways = DefaultCacheTTL
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "pixrouter"
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:       []string{cfg.Address},
		Username:          cfg.Username,
		Password:          cfg.Password,
		SelectDB:          cfg.DB,
		AlwaysRESP2:       true,
		ForceSingleClient: true,
		DisableCache:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}

	return &Cache{inner: inner, client: client, cfg: cfg, logger: logger, recorder: recorder}, nil
}

// Close releases the Valkey connection.
func (c *Cache) Close() {
	c.client.Close()
}

func (c *Cache) key(suffix string) string {
	return c.cfg.Prefix + ":" + suffix
}

// lookup returns the raw cached payload, or nil on miss. Errors degrade to a
// miss.
func (c *Cache) lookup(ctx context.Context, key string) []byte {
	start := time.Now()
	resp := c.client.Do(ctx, c.client.B().Get().Key(key).Build())
	if err := resp.Error(); err != nil {
		if errors.Is(err, valkey.Nil) {
			c.recorder.ObserveCacheLookup(metrics.CacheMiss, time.Since(start))
			return nil
		}
		c.logger.Warn("cache lookup failed, falling through", slog.String("key", key), slog.Any("error", err))
		c.recorder.ObserveCacheLookup(metrics.CacheError, time.Since(start))
		return nil
	}
	payload, err := resp.AsBytes()
	if err != nil {
		c.logger.Warn("cache payload unreadable, falling through", slog.String("key", key), slog.Any("error", err))
		c.recorder.ObserveCacheLookup(metrics.CacheError, time.Since(start))
		return nil
	}
	c.recorder.ObserveCacheLookup(metrics.CacheHit, time.Since(start))
	return payload
}

func (c *Cache) store(ctx context.Context, key string, value any, ttl time.Duration) {
	payload, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache encode failed", slog.String("key", key), slog.Any("error", err))
		return
	}
	start := time.Now()
	cmd := c.client.B().Set().Key(key).Value(string(payload)).Px(ttl).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		c.logger.Warn("cache store failed", slog.String("key", key), slog.Any("error", err))
		c.recorder.ObserveCacheStore(metrics.CacheError, time.Since(start))
		return
	}
	c.recorder.ObserveCacheStore(metrics.CacheStored, time.Since(start))
}

// Invalidate drops the cached reads. Call it after activating or editing a
// rule set so the next compile sees fresh data immediately.
func (c *Cache) Invalidate(ctx context.Context, ruleSetID int64) {
	keys := []string{
		c.key("active_ruleset"),
		c.key(fmt.Sprintf("rules:%d", ruleSetID)),
		c.key("gateways"),
	}
	if err := c.client.Do(ctx, c.client.B().Del().Key(keys...).Build()).Error(); err != nil {
		c.logger.Warn("cache invalidate failed", slog.Any("error", err))
	}
}

func (c *Cache) GetActiveRuleSet(ctx context.Context) (*types.RuleSet, error) {
	key := c.key("active_ruleset")
	if payload := c.lookup(ctx, key); payload != nil {
		var rs types.RuleSet
		if err := json.Unmarshal(payload, &rs); err == nil {
			return &rs, nil
		}
		c.logger.Warn("cache decode failed, falling through", slog.String("key", key))
	}
	rs, err := c.inner.GetActiveRuleSet(ctx)
	if err != nil || rs == nil {
		return rs, err
	}
	c.store(ctx, key, rs, c.cfg.TTLRuleSet)
	return rs, nil
}

func (c *Cache) GetRuleSetByID(ctx context.Context, id int64) (*types.RuleSet, error) {
	return c.inner.GetRuleSetByID(ctx, id)
}

func (c *Cache) GetRulesForRuleSet(ctx context.Context, ruleSetID int64) ([]types.Rule, error) {
	key := c.key(fmt.Sprintf("rules:%d", ruleSetID))
	if payload := c.lookup(ctx, key); payload != nil {
		var rulesList []types.Rule
		if err := json.Unmarshal(payload, &rulesList); err == nil {
			return rulesList, nil
		}
		c.logger.Warn("cache decode failed, falling through", slog.String("key", key))
	}
	rulesList, err := c.inner.GetRulesForRuleSet(ctx, ruleSetID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, rulesList, c.cfg.TTLRules)
	return rulesList, nil
}

func (c *Cache) GetGatewaysMap(ctx context.Context) (map[string]types.GatewayConfig, error) {
	key := c.key("gateways")
	if payload := c.lookup(ctx, key); payload != nil {
		var gateways map[string]types.GatewayConfig
		if err := json.Unmarshal(payload, &gateways); err == nil {
			return gateways, nil
		}
		c.logger.Warn("cache decode failed, falling through", slog.String("key", key))
	}
	gateways, err := c.inner.GetGatewaysMap(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, gateways, c.cfg.TTLGateways)
	return gateways, nil
}
