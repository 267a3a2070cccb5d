// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package runconfig

import (
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/ManuGH/runcfg/internal/validate"
	"gopkg.in/yaml.v3"
)

// Sampler modes.
const (
	SamplerModeInfer = "infer"
	SamplerModeTrain = "train"
)

// Sampler defaults.
const (
	DefaultNumActions        = 1
	DefaultBufferSize        = 10_000
	DefaultHistoryLen        = 1
	DefaultWeightsSyncPeriod = 1
	DefaultEpisodeLimit      = int64(1<<32 - 2)
	DefaultEpsInit           = 1.0
	DefaultEpsFinal          = 0.05
	DefaultAnnealingSteps    = int64(1_000_000)

	// seedBase is added to the sampler id to derive its seed.
	seedBase = 42
)

// TrajectoriesKey is the Redis list samplers push finished episodes to.
const TrajectoriesKey = "trajectories"

// SamplerParams configures the off-policy sampler workers that feed the
// shared trajectory store. Defaults are applied for absent keys.
type SamplerParams struct {
	Mode              string
	NumActions        int
	BufferSize        int
	HistoryLen        int
	WeightsSyncPeriod int
	EpisodeLimit      int64
	ForceStore        bool
	Seeds             []int64
	Exploration       Exploration
	Redis             SamplerRedis
}

// Exploration is the linear epsilon-greedy annealing schedule.
type Exploration struct {
	EpsInit        float64
	EpsFinal       float64
	AnnealingSteps int64
}

type SamplerRedis struct {
	Addr   string
	Prefix string
}

type rawSampler struct {
	Mode              *string         `yaml:"mode"`
	NumActions        *int            `yaml:"num_actions"`
	BufferSize        *int            `yaml:"buffer_size"`
	HistoryLen        *int            `yaml:"history_len"`
	WeightsSyncPeriod *int            `yaml:"weights_sync_period"`
	EpisodeLimit      *int64          `yaml:"episode_limit"`
	ForceStore        *bool           `yaml:"force_store"`
	Seeds             []int64         `yaml:"seeds"`
	Exploration       *rawExploration `yaml:"exploration"`
	Redis             *rawRedis       `yaml:"redis"`
	Extra             map[string]any  `yaml:",inline"`
}

type rawExploration struct {
	EpsInit        *float64       `yaml:"eps_init"`
	EpsFinal       *float64       `yaml:"eps_final"`
	AnnealingSteps *int64         `yaml:"annealing_steps"`
	Extra          map[string]any `yaml:",inline"`
}

type rawRedis struct {
	Addr   string         `yaml:"addr"`
	Prefix string         `yaml:"prefix"`
	Extra  map[string]any `yaml:",inline"`
}

// DefaultSamplerParams returns sampler settings with every default applied.
func DefaultSamplerParams() SamplerParams {
	return SamplerParams{
		Mode:              SamplerModeInfer,
		NumActions:        DefaultNumActions,
		BufferSize:        DefaultBufferSize,
		HistoryLen:        DefaultHistoryLen,
		WeightsSyncPeriod: DefaultWeightsSyncPeriod,
		EpisodeLimit:      DefaultEpisodeLimit,
		Exploration: Exploration{
			EpsInit:        DefaultEpsInit,
			EpsFinal:       DefaultEpsFinal,
			AnnealingSteps: DefaultAnnealingSteps,
		},
	}
}

func decodeSampler(n *yaml.Node, strict bool, v *validate.Validator) *SamplerParams {
	var raw rawSampler
	before := len(v.Errors())
	decodeBlock(KeySamplerParams, n, &raw, v)
	if len(v.Errors()) > before {
		return nil
	}

	p := DefaultSamplerParams()
	if raw.Mode != nil {
		p.Mode = *raw.Mode
	}
	if raw.NumActions != nil {
		p.NumActions = *raw.NumActions
	}
	if raw.BufferSize != nil {
		p.BufferSize = *raw.BufferSize
	}
	if raw.HistoryLen != nil {
		p.HistoryLen = *raw.HistoryLen
	}
	if raw.WeightsSyncPeriod != nil {
		p.WeightsSyncPeriod = *raw.WeightsSyncPeriod
	}
	if raw.EpisodeLimit != nil {
		p.EpisodeLimit = *raw.EpisodeLimit
	}
	if raw.ForceStore != nil {
		p.ForceStore = *raw.ForceStore
	}
	p.Seeds = raw.Seeds

	reportExtra(v, strict, KeySamplerParams, n, raw.Extra)
	if raw.Exploration != nil {
		if raw.Exploration.EpsInit != nil {
			p.Exploration.EpsInit = *raw.Exploration.EpsInit
		}
		if raw.Exploration.EpsFinal != nil {
			p.Exploration.EpsFinal = *raw.Exploration.EpsFinal
		}
		if raw.Exploration.AnnealingSteps != nil {
			p.Exploration.AnnealingSteps = *raw.Exploration.AnnealingSteps
		}
		_, en := mappingValue(n, "exploration")
		reportExtra(v, strict, KeySamplerParams+".exploration", en, raw.Exploration.Extra)
	}
	if raw.Redis != nil {
		p.Redis = SamplerRedis{Addr: raw.Redis.Addr, Prefix: raw.Redis.Prefix}
		_, rn := mappingValue(n, "redis")
		reportExtra(v, strict, KeySamplerParams+".redis", rn, raw.Redis.Extra)
	}
	return &p
}

func reportExtra(v *validate.Validator, strict bool, path string, n *yaml.Node, extra map[string]any) {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		line, col := 0, 0
		if kn, _ := mappingValue(n, k); kn != nil {
			line, col = kn.Line, kn.Column
		}
		v.Report(strict, path+"."+k, "unknown key", nil, line, col)
	}
}

func validateSampler(p *SamplerParams, n *yaml.Node, v *validate.Validator) {
	at := func(key string) (int, int) {
		if kn, _ := mappingValue(n, key); kn != nil {
			return kn.Line, kn.Column
		}
		if n != nil {
			return n.Line, n.Column
		}
		return 0, 0
	}
	field := func(key string) string { return KeySamplerParams + "." + key }

	if p.Mode != SamplerModeInfer && p.Mode != SamplerModeTrain {
		l, c := at("mode")
		v.AddErrorAt(field("mode"), fmt.Sprintf("must be one of [%s %s]", SamplerModeInfer, SamplerModeTrain), p.Mode, l, c)
	}
	if p.NumActions < 1 {
		l, c := at("num_actions")
		v.AddErrorAt(field("num_actions"), "must be at least 1", p.NumActions, l, c)
	}
	if p.BufferSize <= 0 {
		l, c := at("buffer_size")
		v.AddErrorAt(field("buffer_size"), "must be positive", p.BufferSize, l, c)
	}
	if p.HistoryLen < 1 {
		l, c := at("history_len")
		v.AddErrorAt(field("history_len"), "must be at least 1", p.HistoryLen, l, c)
	}
	if p.WeightsSyncPeriod < 1 {
		l, c := at("weights_sync_period")
		v.AddErrorAt(field("weights_sync_period"), "must be at least 1", p.WeightsSyncPeriod, l, c)
	}
	if p.EpisodeLimit <= 0 {
		l, c := at("episode_limit")
		v.AddErrorAt(field("episode_limit"), "must be positive", p.EpisodeLimit, l, c)
	}

	e := p.Exploration
	l, c := at("exploration")
	if e.EpsFinal < 0 || e.EpsFinal > e.EpsInit || e.EpsInit > 1 {
		v.AddErrorAt(field("exploration"),
			fmt.Sprintf("need 0 <= eps_final <= eps_init <= 1, got eps_init=%g eps_final=%g", e.EpsInit, e.EpsFinal),
			nil, l, c)
	}
	if e.AnnealingSteps <= 0 {
		v.AddErrorAt(field("exploration.annealing_steps"), "must be positive", e.AnnealingSteps, l, c)
	}
}

// Seed returns the base seed of sampler id.
func (p *SamplerParams) Seed(id int) int64 {
	return seedBase + int64(id)
}

// EpsilonDelta is the per-step decrease of epsilon.
func (p *SamplerParams) EpsilonDelta() float64 {
	e := p.Exploration
	if e.AnnealingSteps <= 0 {
		return 0
	}
	return (e.EpsInit - e.EpsFinal) / float64(e.AnnealingSteps)
}

// Epsilon returns the exploration rate after steps actions.
func (p *SamplerParams) Epsilon(steps int64) float64 {
	e := p.Exploration
	eps := e.EpsInit - float64(steps)*p.EpsilonDelta()
	if eps < e.EpsFinal {
		return e.EpsFinal
	}
	return eps
}

// StoresEpisodes reports whether finished episodes go to the trajectory store.
func (p *SamplerParams) StoresEpisodes() bool {
	return p.Mode != SamplerModeInfer || p.ForceStore
}

// SyncWeights reports whether critic weights are reloaded before episode.
func (p *SamplerParams) SyncWeights(episode int64) bool {
	if p.WeightsSyncPeriod <= 0 {
		return false
	}
	return episode%int64(p.WeightsSyncPeriod) == 0
}

// Done reports whether the episode loop stops at episode.
func (p *SamplerParams) Done(episode int64) bool {
	return episode >= p.EpisodeLimit
}

// WeightsKey is the Redis key holding the serialized critic weights.
func (p *SamplerParams) WeightsKey() string {
	return p.Redis.Prefix + "_critic_weights"
}

// LogDir returns the per-sampler log directory under logdir.
func (p *SamplerParams) LogDir(logdir string, id int, now time.Time) string {
	return SamplerLogDir(logdir, p.Mode, id, now)
}

// SamplerLogDir formats <logdir>/sampler-<mode>-<id>-<stamp>. The stamp
// repeats the minutes after the seconds and ends with microseconds.
func SamplerLogDir(logdir, mode string, id int, now time.Time) string {
	stamp := now.Format("06-01-02-15-04-05-04") + fmt.Sprintf("-%06d", now.Nanosecond()/1000)
	return path.Join(logdir, fmt.Sprintf("sampler-%s-%d-%s", mode, id, stamp))
}

// SamplerStep is one point of a sampler plan.
type SamplerStep struct {
	Step    int64   `json:"step" yaml:"step"`
	Epsilon float64 `json:"epsilon" yaml:"epsilon"`
}

// SamplerPlan summarises the derived behaviour of one sampler worker.
type SamplerPlan struct {
	ID             int           `json:"id" yaml:"id"`
	Mode           string        `json:"mode" yaml:"mode"`
	Seed           int64         `json:"seed" yaml:"seed"`
	StoresEpisodes bool          `json:"storesEpisodes" yaml:"stores_episodes"`
	EpsilonDelta   float64       `json:"epsilonDelta" yaml:"epsilon_delta"`
	Schedule       []SamplerStep `json:"schedule" yaml:"schedule"`
	SyncEpisodes   []int64       `json:"syncEpisodes" yaml:"sync_episodes"`
	EpisodeLimit   int64         `json:"episodeLimit" yaml:"episode_limit"`
	LogDir         string        `json:"logDir,omitempty" yaml:"log_dir,omitempty"`
	WeightsKey     string        `json:"weightsKey,omitempty" yaml:"weights_key,omitempty"`
}

// Plan evaluates the schedule of sampler id at the given step counts and
// lists the weight-sync episodes among the first episodes.
func (p *SamplerParams) Plan(id int, steps []int64, episodes int64, logdir string, now time.Time) SamplerPlan {
	plan := SamplerPlan{
		ID:             id,
		Mode:           p.Mode,
		Seed:           p.Seed(id),
		StoresEpisodes: p.StoresEpisodes(),
		EpsilonDelta:   p.EpsilonDelta(),
		EpisodeLimit:   p.EpisodeLimit,
	}
	for _, s := range steps {
		plan.Schedule = append(plan.Schedule, SamplerStep{Step: s, Epsilon: p.Epsilon(s)})
	}
	// Weights are loaded when the sampler starts, so episode 1 never syncs.
	for ep := int64(2); ep <= episodes && !p.Done(ep); ep++ {
		if p.SyncWeights(ep) {
			plan.SyncEpisodes = append(plan.SyncEpisodes, ep)
		}
	}
	if logdir != "" {
		plan.LogDir = p.LogDir(logdir, id, now)
	}
	if p.Redis.Addr != "" {
		plan.WeightsKey = p.WeightsKey()
	}
	return plan
}
