// Package inspector 记录每次规则评估的诊断信息，不影响评估结果
package inspector

import (
	"context"
	"sync"
	"time"
)

// RuleRecord 单条规则的评估记录
type RuleRecord struct {
	Rule      string                 `json:"rule"`
	Triggered bool                   `json:"triggered"`
	Score     float64                `json:"score"`
	Reason    string                 `json:"reason"`
	Guarded   bool                   `json:"guarded"`
	Evidence  map[string]interface{} `json:"evidence,omitempty"`
}

// Summary 一次评估的完整诊断记录
type Summary struct {
	EventID    string                 `json:"event_id"`
	Chain      string                 `json:"chain,omitempty"`
	Token      string                 `json:"token,omitempty"`
	StartedAt  time.Time              `json:"started_at"`
	DurationMs int64                  `json:"duration_ms"`
	Skips      []string               `json:"skips,omitempty"`
	Rules      []RuleRecord           `json:"rules,omitempty"`
	Snapshot   map[string]interface{} `json:"snapshot,omitempty"`
	Score      float64                `json:"score"`
	Tier       string                 `json:"tier"`
	Triggered  []string               `json:"triggered,omitempty"`
}

// Sink 诊断记录的去向，实现不得阻塞
type Sink interface {
	Write(ctx context.Context, summary *Summary)
}

// Inspector 创建评估会话；nil Inspector 产生 nil Session
type Inspector struct {
	sinks []Sink
	now   func() time.Time
}

func New(sinks ...Sink) *Inspector {
	return &Inspector{sinks: sinks, now: time.Now}
}

func (i *Inspector) NewSession(eventID string) *Session {
	if i == nil || len(i.sinks) == 0 {
		return nil
	}
	return &Session{
		inspector: i,
		summary: Summary{
			EventID:   eventID,
			StartedAt: i.now(),
			Snapshot:  make(map[string]interface{}),
		},
	}
}

// Session 单次评估的记录器，所有方法对 nil 接收者安全
type Session struct {
	mu        sync.Mutex
	inspector *Inspector
	summary   Summary
	finished  bool
}

func (s *Session) SetToken(chain, token string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.summary.Chain, s.summary.Token = chain, token
	s.mu.Unlock()
}

func (s *Session) RecordRule(r RuleRecord) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.summary.Rules = append(s.summary.Rules, r)
	s.mu.Unlock()
}

func (s *Session) RecordSkip(reason string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.summary.Skips = append(s.summary.Skips, reason)
	s.mu.Unlock()
}

// SetSnapshot 记录评估时可用的数据
func (s *Session) SetSnapshot(key string, value interface{}) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.summary.Snapshot[key] = value
	s.mu.Unlock()
}

// Finish 只生效一次
func (s *Session) Finish(ctx context.Context, score float64, tier string, triggered []string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	s.summary.Score = score
	s.summary.Tier = tier
	s.summary.Triggered = append([]string(nil), triggered...)
	s.summary.DurationMs = s.inspector.now().Sub(s.summary.StartedAt).Milliseconds()
	summary := s.summary
	s.mu.Unlock()

	for _, sink := range s.inspector.sinks {
		sink.Write(ctx, &summary)
	}
}
