package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topics  []string
	batches [][]AggregatedLogEntry
	err     error
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

func TestCollectorFoldsRepeats(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, Topic: "logs", Publisher: pub})
	defer c.Close()

	for i := 0; i < 3; i++ {
		c.AddLog("error", "order failed", map[string]interface{}{"instrument": "SBER"}, "usecase/order.go:10")
	}
	c.AddLog("error", "order failed", map[string]interface{}{"instrument": "GAZP"}, "usecase/order.go:10")
	assert.Equal(t, 2, c.Pending())

	c.Flush(context.Background())
	require.Equal(t, 1, pub.count())
	assert.Equal(t, []string{"logs"}, pub.topics)

	counts := map[interface{}]int{}
	for _, e := range pub.batches[0] {
		counts[e.Fields["instrument"]] = e.Count
	}
	assert.Equal(t, map[interface{}]int{"SBER": 3, "GAZP": 1}, counts)
	assert.Zero(t, c.Pending())
}

func TestCollectorFlushesOnThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Publisher: pub})
	defer c.Close()

	c.AddLog("warn", "a", nil, "x")
	c.AddLog("warn", "b", nil, "x")

	assert.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestCollectorReportsPublishErrors(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	var dropped int
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		Publisher:      pub,
		OnPublishError: func(_ error, n int) { dropped = n },
	})
	defer c.Close()

	c.AddLog("error", "a", nil, "x")
	c.Flush(context.Background())
	assert.Equal(t, 1, dropped)
}

func TestLoggerFeedsCollector(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, Topic: "logs", Publisher: pub})

	l.Info("ignored")
	l.Warn("slow", String("route", "/api/stats"))
	l.With(String("component", "collector")).Error("boom", Error(errors.New("x")))

	l.RemoveCollector()
	require.Equal(t, 1, pub.count())
	levels := map[string]bool{}
	for _, e := range pub.batches[0] {
		levels[e.Level] = true
	}
	assert.Equal(t, map[string]bool{"warn": true, "error": true}, levels)
}

func TestCollectorReachesEarlierChildrenButNotDetached(t *testing.T) {
	pub := &capturePublisher{}
	root := Nop()
	child := root.With(String("component", "feed"))
	detached := root.Detached()
	root.AddCollector(&CollectionConfig{TimeInterval: time.Hour, Publisher: pub})

	child.Warn("reconnecting")
	detached.Warn("log batch dropped")

	root.RemoveCollector()
	require.Equal(t, 1, pub.count())
	require.Len(t, pub.batches[0], 1)
	assert.Equal(t, "reconnecting", pub.batches[0][0].Message)

	child.Error("after removal")
	assert.Equal(t, 1, pub.count())
}
