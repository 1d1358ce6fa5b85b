package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/colosseo-ops/acquirer/x/lifecycle"
)

var _ Store = (*Redis)(nil)

// releaseScript deletes the claim only when the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis implements Store over a single multiplexed go-redis client. The
// client is cheap to share; all operations may be issued concurrently.
// Mutual exclusion for claims is delegated entirely to SET NX EX.
type Redis struct {
	client *redis.Client
	cfg    Config
	log    zerolog.Logger
	now    func() time.Time
}

// New connects to the coordination store and verifies the link with a
// bounded ping.
func New(cfg Config, log zerolog.Logger) (*Redis, error) {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultPrefix
	}
	if cfg.MaxAlertQueue <= 0 {
		cfg.MaxAlertQueue = DefaultConfig().MaxAlertQueue
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, transportErr("connect", err)
	}

	s := &Redis{
		client: client,
		cfg:    cfg,
		log:    log.With().Str("component", "store").Logger(),
		now:    time.Now,
	}
	s.log.Info().Str("addr", cfg.Addr).Msg("coordination store connected")
	return s, nil
}

// NewWithClient wraps an existing client; used by tests.
func NewWithClient(client *redis.Client, cfg Config, log zerolog.Logger) *Redis {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultPrefix
	}
	if cfg.MaxAlertQueue <= 0 {
		cfg.MaxAlertQueue = DefaultConfig().MaxAlertQueue
	}
	return &Redis{
		client: client,
		cfg:    cfg,
		log:    log.With().Str("component", "store").Logger(),
		now:    time.Now,
	}
}

func (s *Redis) key(parts ...string) string {
	return s.cfg.KeyPrefix + strings.Join(parts, ":")
}

// === Claims ===

func (s *Redis) TryClaim(ctx context.Context, resourceID, token string, ttl time.Duration) (bool, error) {
	key := s.key("cart_claim", resourceID)

	won, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, transportErr("try_claim", err)
	}

	if won {
		s.log.Debug().Str("resource_id", resourceID).Msg("claim acquired")
	} else {
		s.log.Debug().Str("resource_id", resourceID).Msg("claim lost, already held")
	}
	return won, nil
}

func (s *Redis) Release(ctx context.Context, resourceID, token string) (bool, error) {
	key := s.key("cart_claim", resourceID)

	n, err := releaseScript.Run(ctx, s.client, []string{key}, token).Int64()
	if err != nil {
		return false, transportErr("release", err)
	}

	released := n > 0
	if released {
		s.log.Debug().Str("resource_id", resourceID).Msg("claim released")
	}
	return released, nil
}

func (s *Redis) ClaimHolder(ctx context.Context, resourceID string) (string, error) {
	token, err := s.client.Get(ctx, s.key("cart_claim", resourceID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", transportErr("claim_holder", err)
	}
	return token, nil
}

// === Lifecycle snapshots ===

func (s *Redis) SaveState(ctx context.Context, targetID string, state lifecycle.State) error {
	payload, err := lifecycle.Marshal(state)
	if err != nil {
		return serializationErr("save_state", err)
	}

	if err := s.client.Set(ctx, s.key("state", targetID), payload, StateTTL).Err(); err != nil {
		return transportErr("save_state", err)
	}
	return nil
}

func (s *Redis) LoadState(ctx context.Context, targetID string) (lifecycle.State, error) {
	payload, err := s.client.Get(ctx, s.key("state", targetID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, transportErr("load_state", err)
	}

	state, err := lifecycle.Unmarshal(payload)
	if err != nil {
		return nil, serializationErr("load_state", err)
	}
	return state, nil
}

// === Sessions ===

func (s *Redis) SaveSession(ctx context.Context, sessionID, blob string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key("session", sessionID), blob, ttl).Err(); err != nil {
		return transportErr("save_session", err)
	}
	return nil
}

func (s *Redis) LoadSession(ctx context.Context, sessionID string) (string, error) {
	blob, err := s.client.Get(ctx, s.key("session", sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", transportErr("load_session", err)
	}
	return blob, nil
}

// === Time-series metrics ===

// labelString renders labels deterministically so (name, label-set) always
// maps to one key. Names and values are escaped; a value containing the
// pair separators cannot collide two distinct label sets onto one key.
func labelString(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, url.QueryEscape(k)+"="+url.QueryEscape(labels[k]))
	}
	return strings.Join(pairs, ",")
}

// metricKey escapes the series name too, keeping it clear of the key
// namespace separator.
func (s *Redis) metricKey(name string, labels map[string]string) string {
	return s.key("metric", url.QueryEscape(name), labelString(labels))
}

func (s *Redis) RecordMetric(ctx context.Context, name string, value float64, labels map[string]string) error {
	key := s.metricKey(name, labels)
	ts := s.now().UnixMilli()

	// Member embeds the timestamp so equal values at different instants
	// stay distinct in the sorted set.
	member := fmt.Sprintf("%d:%s", ts, strconv.FormatFloat(value, 'g', -1, 64))

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(ts), Member: member})
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(ts-MetricWindow.Milliseconds(), 10))
	if _, err := pipe.Exec(ctx); err != nil {
		return transportErr("record_metric", err)
	}
	return nil
}

func (s *Redis) GetMetrics(ctx context.Context, name string, labels map[string]string, since time.Time) ([]MetricSample, error) {
	key := s.metricKey(name, labels)

	members, err := s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, transportErr("get_metrics", err)
	}

	samples := make([]MetricSample, 0, len(members))
	for _, m := range members {
		tsStr, valStr, ok := strings.Cut(m, ":")
		if !ok {
			return nil, serializationErr("get_metrics", fmt.Errorf("malformed sample %q", m))
		}
		ts, terr := strconv.ParseInt(tsStr, 10, 64)
		val, verr := strconv.ParseFloat(valStr, 64)
		if terr != nil || verr != nil {
			return nil, serializationErr("get_metrics", fmt.Errorf("malformed sample %q", m))
		}
		samples = append(samples, MetricSample{Timestamp: time.UnixMilli(ts).UTC(), Value: val})
	}
	return samples, nil
}

// === Alert queue ===

func (s *Redis) QueueAlert(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return serializationErr("queue_alert", err)
	}

	key := s.key("alerts")
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, payload)
	// Cap the queue; entries past the cap are the oldest and get dropped.
	pipe.LTrim(ctx, key, 0, s.cfg.MaxAlertQueue-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return transportErr("queue_alert", err)
	}

	s.log.Info().
		Str("level", string(alert.Level)).
		Str("target", alert.Target).
		Msg("alert queued")
	return nil
}

func (s *Redis) DequeueAlert(ctx context.Context) (*Alert, error) {
	payload, err := s.client.RPop(ctx, s.key("alerts")).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, transportErr("dequeue_alert", err)
	}

	var alert Alert
	if err := json.Unmarshal(payload, &alert); err != nil {
		return nil, serializationErr("dequeue_alert", err)
	}
	return &alert, nil
}

// === Proxy health ===

func (s *Redis) UpdateProxyHealth(ctx context.Context, proxyURL string, success bool, latencyMS int64) error {
	key := s.key("proxy", proxyURL)

	field := "error_count"
	if success {
		field = "success_count"
	}

	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, key, field, 1)
	pipe.HSet(ctx, key,
		"last_used", s.now().UTC().Format(time.RFC3339),
		"last_latency_ms", strconv.FormatInt(latencyMS, 10),
	)
	pipe.Expire(ctx, key, ProxyWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		return transportErr("update_proxy_health", err)
	}
	return nil
}

func (s *Redis) GetProxyHealth(ctx context.Context, proxyURL string) (ProxyHealth, error) {
	data, err := s.client.HGetAll(ctx, s.key("proxy", proxyURL)).Result()
	if err != nil {
		return ProxyHealth{}, transportErr("get_proxy_health", err)
	}

	h := ProxyHealth{ProxyURL: proxyURL, HealthScore: 1.0}
	h.SuccessCount, _ = strconv.ParseInt(data["success_count"], 10, 64)
	h.ErrorCount, _ = strconv.ParseInt(data["error_count"], 10, 64)
	h.LastLatencyMS, _ = strconv.ParseInt(data["last_latency_ms"], 10, 64)
	if raw, ok := data["last_used"]; ok {
		if t, perr := time.Parse(time.RFC3339, raw); perr == nil {
			h.LastUsed = t
		}
	}

	if total := h.SuccessCount + h.ErrorCount; total > 0 {
		h.HealthScore = float64(h.SuccessCount) / float64(total)
	}
	return h, nil
}

// === Lifecycle of the client itself ===

func (s *Redis) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return transportErr("ping", err)
	}
	return nil
}

func (s *Redis) Close() error {
	return s.client.Close()
}
