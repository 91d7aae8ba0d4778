// Package capability tracks the synthesis nodes on the bus and the voices each
// one serves.
package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/loqalabs/loqa-kana/internal/bus"
	"github.com/loqalabs/loqa-kana/internal/config"
	"github.com/loqalabs/loqa-kana/internal/protocol"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type Registry struct {
	cfg       config.NodeConfig
	voice     protocol.Voice
	log       *slog.Logger
	bus       *bus.Client
	mu        sync.RWMutex
	nodes     map[string]*protocol.NodeInfo
	heartbeat *time.Ticker
	cancel    context.CancelFunc
	subs      []*nats.Subscription
	meter     metric.Meter
	now       func() time.Time
}

// NewRegistry subscribes to node traffic, announces this node and starts the
// heartbeat.
func NewRegistry(ctx context.Context, cfg config.NodeConfig, voice protocol.Voice, busClient *bus.Client, log *slog.Logger) (*Registry, error) {
	ctx, cancel := context.WithCancel(ctx)
	r := &Registry{
		cfg:    cfg,
		voice:  voice,
		log:    log.With(slog.String("component", "capability-registry")),
		bus:    busClient,
		nodes:  make(map[string]*protocol.NodeInfo),
		meter:  otel.Meter("github.com/loqalabs/loqa-kana/capability"),
		cancel: cancel,
		now:    time.Now,
	}

	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}

	if err := r.subscribe(); err != nil {
		r.cancel()
		return nil, err
	}

	r.heartbeat = time.NewTicker(time.Duration(cfg.HeartbeatInterval) * time.Millisecond)
	go r.runHeartbeat(ctx)
	go r.monitorHealth(ctx)

	if err := r.announce(); err != nil {
		r.log.Warn("failed to announce node", slog.String("error", err.Error()))
	}

	return r, nil
}

func (r *Registry) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.heartbeat != nil {
		r.heartbeat.Stop()
	}
	for _, sub := range r.subs {
		_ = sub.Drain()
	}
}

func (r *Registry) subscribe() error {
	conn := r.bus.Conn()
	handlers := []struct {
		subject string
		handler nats.MsgHandler
	}{
		{protocol.SubjectNodeAnnounce, r.handleAnnounce},
		{protocol.SubjectNodeHeartbeat + ".*", r.handleHeartbeat},
		{protocol.SubjectNodeList, r.handleList},
	}
	for _, h := range handlers {
		sub, err := conn.Subscribe(h.subject, h.handler)
		if err != nil {
			for _, s := range r.subs {
				_ = s.Unsubscribe()
			}
			return fmt.Errorf("subscribe %s: %w", h.subject, err)
		}
		r.subs = append(r.subs, sub)
	}
	return nil
}

func (r *Registry) runHeartbeat(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.heartbeat.C:
			if err := r.publishHeartbeat(); err != nil {
				r.log.Warn("failed to publish heartbeat", slog.String("error", err.Error()))
			}
		}
	}
}

func (r *Registry) monitorHealth(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.evaluateHealth()
		}
	}
}

func (r *Registry) announce() error {
	msg := protocol.NodeAnnouncement{
		NodeID:    r.cfg.ID,
		Voice:     r.voice,
		Timestamp: r.now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	r.updateNode(msg.NodeID, &msg.Voice, msg.Timestamp)
	return r.bus.Conn().Publish(protocol.SubjectNodeAnnounce, payload)
}

func (r *Registry) publishHeartbeat() error {
	msg := protocol.NodeHeartbeat{NodeID: r.cfg.ID, Timestamp: r.now().UTC()}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	r.updateNode(msg.NodeID, nil, msg.Timestamp)
	return r.bus.Conn().Publish(protocol.SubjectNodeHeartbeat+"."+r.cfg.ID, payload)
}

func (r *Registry) handleAnnounce(msg *nats.Msg) {
	var announcement protocol.NodeAnnouncement
	if err := json.Unmarshal(msg.Data, &announcement); err != nil {
		r.log.Warn("invalid announce message", slog.String("error", err.Error()))
		return
	}
	if announcement.NodeID == "" || announcement.NodeID == r.cfg.ID {
		return
	}
	if announcement.Timestamp.IsZero() {
		announcement.Timestamp = r.now().UTC()
	}
	known := r.updateNode(announcement.NodeID, &announcement.Voice, announcement.Timestamp)
	if !known {
		// Newcomers only learn about existing nodes from their announcements.
		if err := r.announce(); err != nil {
			r.log.Warn("failed to re-announce node", slog.String("error", err.Error()))
		}
	}
}

func (r *Registry) handleHeartbeat(msg *nats.Msg) {
	var hb protocol.NodeHeartbeat
	if err := json.Unmarshal(msg.Data, &hb); err != nil {
		r.log.Warn("invalid heartbeat message", slog.String("error", err.Error()))
		return
	}
	if hb.NodeID == "" || hb.NodeID == r.cfg.ID {
		return
	}
	if hb.Timestamp.IsZero() {
		hb.Timestamp = r.now().UTC()
	}
	r.updateNode(hb.NodeID, nil, hb.Timestamp)
}

func (r *Registry) handleList(msg *nats.Msg) {
	payload, err := json.Marshal(r.Query(nil))
	if err != nil {
		r.log.Warn("failed to marshal node list", slog.String("error", err.Error()))
		return
	}
	if err := msg.Respond(payload); err != nil {
		r.log.Warn("failed to answer node list", slog.String("error", err.Error()))
	}
}

// updateNode records a sighting and reports whether the node was already known.
func (r *Registry) updateNode(nodeID string, voice *protocol.Voice, timestamp time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[nodeID]
	if !ok {
		node = &protocol.NodeInfo{ID: nodeID}
		r.nodes[nodeID] = node
	}
	if voice != nil {
		node.Voice = *voice
	}
	node.LastSeen = timestamp
	node.Healthy = true
	return ok
}

func (r *Registry) evaluateHealth() {
	r.mu.Lock()
	defer r.mu.Unlock()

	timeout := time.Duration(r.cfg.HeartbeatTimeout) * time.Millisecond
	now := r.now()
	for _, node := range r.nodes {
		if now.Sub(node.LastSeen) > timeout {
			node.Healthy = false
		}
	}
}

// Healthy reports whether this node still considers itself alive.
func (r *Registry) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	node, ok := r.nodes[r.cfg.ID]
	return ok && node.Healthy
}

// Query returns the nodes accepted by filter, ordered by id.
func (r *Registry) Query(filter func(protocol.NodeInfo) bool) []protocol.NodeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := []protocol.NodeInfo{}
	for _, node := range r.nodes {
		n := *node
		n.Voice.Speakers = slices.Clone(node.Voice.Speakers)
		if filter == nil || filter(n) {
			results = append(results, n)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results
}

func (r *Registry) initMetrics() error {
	if r.meter == nil {
		return nil
	}
	nodeGauge, err := r.meter.Int64ObservableGauge("loqa.nodes.healthy", metric.WithDescription("Healthy synthesis nodes"))
	if err != nil {
		return err
	}
	speakerGauge, err := r.meter.Int64ObservableGauge("loqa.nodes.speakers", metric.WithDescription("Distinct speakers served by healthy nodes"))
	if err != nil {
		return err
	}
	_, err = r.meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		nodes, speakers := r.snapshotCounts()
		obs.ObserveInt64(nodeGauge, nodes)
		obs.ObserveInt64(speakerGauge, speakers)
		return nil
	}, nodeGauge, speakerGauge)
	return err
}

func (r *Registry) snapshotCounts() (int64, int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var nodes int64
	speakers := map[int]struct{}{}
	for _, node := range r.nodes {
		if !node.Healthy {
			continue
		}
		nodes++
		for _, s := range node.Voice.Speakers {
			speakers[s] = struct{}{}
		}
	}
	return nodes, int64(len(speakers))
}

// WithSpeaker keeps healthy nodes that serve speaker. A node with an empty
// speaker list accepts any speaker.
func WithSpeaker(speaker int) func(protocol.NodeInfo) bool {
	return func(node protocol.NodeInfo) bool {
		if !node.Healthy {
			return false
		}
		return len(node.Voice.Speakers) == 0 || slices.Contains(node.Voice.Speakers, speaker)
	}
}
