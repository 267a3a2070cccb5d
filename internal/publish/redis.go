// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package publish pushes resolved run configs to Redis, where distributed
// sampler workers pick them up.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	xglog "github.com/ManuGH/runcfg/internal/log"
	"github.com/ManuGH/runcfg/internal/metrics"
	"github.com/ManuGH/runcfg/internal/runconfig"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// HistoryLength is the number of published configs kept in the list.
const HistoryLength = 100

// DefaultPrefix is used when Config.Prefix is empty.
const DefaultPrefix = "runcfg"

// ErrNotPublished is returned by Fetch when nothing was published yet.
var ErrNotPublished = errors.New("publish: no run config published")

// Config holds the Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Message is the JSON document stored in Redis.
type Message struct {
	Source      string          `json:"source"`
	Digest      string          `json:"digest"`
	Model       string          `json:"model"`
	Stages      []string        `json:"stages"`
	PublishedAt time.Time       `json:"publishedAt"`
	Run         json.RawMessage `json:"run"`
}

// SamplerState summarises what sampler workers have written.
type SamplerState struct {
	Trajectories int64 `json:"trajectories"`
	HasWeights   bool  `json:"hasWeights"`
}

// Publisher writes run configs under a key prefix.
type Publisher struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
	now    func() time.Time
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	p := NewWithClient(client, cfg.Prefix)
	p.logger.Info().
		Str(xglog.FieldEvent, "publish.connected").
		Str(xglog.FieldRedisAddr, cfg.Addr).
		Int("db", cfg.DB).
		Str("prefix", p.prefix).
		Msg("connected to Redis")
	return p, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Publisher{
		client: client,
		prefix: prefix,
		logger: xglog.WithComponent("publish"),
		now:    time.Now,
	}
}

// CurrentKey holds the latest published config.
func (p *Publisher) CurrentKey() string { return p.prefix + "_run_config" }

// HistoryKey is the list of published configs, oldest first.
func (p *Publisher) HistoryKey() string { return p.prefix + "_run_configs" }

// Publish stores res as the current config and appends it to the history
// list. Invalid results are rejected.
func (p *Publisher) Publish(ctx context.Context, res *runconfig.Result) (*Message, error) {
	if err := res.Err(); err != nil {
		metrics.IncPublish(false)
		return nil, err
	}
	body, err := res.Run.Encode(runconfig.FormatJSON)
	if err != nil {
		metrics.IncPublish(false)
		return nil, fmt.Errorf("encode run config: %w", err)
	}

	msg := &Message{
		Source:      res.Source,
		Digest:      res.Digest,
		Model:       res.Model(),
		Stages:      res.Run.StageNames(),
		PublishedAt: p.now().UTC(),
		Run:         json.RawMessage(body),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		metrics.IncPublish(false)
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, p.CurrentKey(), data, 0)
		pipe.RPush(ctx, p.HistoryKey(), data)
		pipe.LTrim(ctx, p.HistoryKey(), -HistoryLength, -1)
		return nil
	})
	metrics.IncPublish(err == nil)
	if err != nil {
		p.logger.Warn().Err(err).Str(xglog.FieldEvent, "publish.failed").Str(xglog.FieldPath, res.Source).Msg("redis publish failed")
		return nil, fmt.Errorf("publish %s: %w", res.Source, err)
	}

	p.logger.Info().
		Str(xglog.FieldEvent, "publish.done").
		Str(xglog.FieldPath, res.Source).
		Str(xglog.FieldDigest, res.Digest).
		Str("key", p.CurrentKey()).
		Msg("run config published")
	return msg, nil
}

// Fetch reads the current config back.
func (p *Publisher) Fetch(ctx context.Context) (*Message, error) {
	data, err := p.client.Get(ctx, p.CurrentKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotPublished
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", p.CurrentKey(), err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", p.CurrentKey(), err)
	}
	return &msg, nil
}

// History returns up to n published configs, newest first.
func (p *Publisher) History(ctx context.Context, n int) ([]Message, error) {
	if n <= 0 || n > HistoryLength {
		n = HistoryLength
	}
	items, err := p.client.LRange(ctx, p.HistoryKey(), int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.HistoryKey(), err)
	}
	out := make([]Message, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		var msg Message
		if err := json.Unmarshal([]byte(items[i]), &msg); err != nil {
			return nil, fmt.Errorf("decode %s entry: %w", p.HistoryKey(), err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// Sampler reports the trajectory backlog and whether critic weights are
// present for the sampler configuration.
func (p *Publisher) Sampler(ctx context.Context, sp *runconfig.SamplerParams) (SamplerState, error) {
	var state SamplerState
	n, err := p.client.LLen(ctx, runconfig.TrajectoriesKey).Result()
	if err != nil {
		return state, fmt.Errorf("read %s: %w", runconfig.TrajectoriesKey, err)
	}
	state.Trajectories = n

	exists, err := p.client.Exists(ctx, sp.WeightsKey()).Result()
	if err != nil {
		return state, fmt.Errorf("read %s: %w", sp.WeightsKey(), err)
	}
	state.HasWeights = exists > 0
	return state, nil
}

// Ping checks the connection.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
