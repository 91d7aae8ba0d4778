package capability

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/loqa-kana/internal/bus"
	"github.com/loqalabs/loqa-kana/internal/config"
	"github.com/loqalabs/loqa-kana/internal/natsserver"
	"github.com/loqalabs/loqa-kana/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func connect(t *testing.T) *bus.Client {
	t.Helper()
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1, StoreDir: t.TempDir()}, newLogger())
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	client, err := bus.Connect(context.Background(), config.BusConfig{Servers: []string{srv.ClientURL()}, ConnectTimeout: 2000}, newLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func newRegistry(t *testing.T, client *bus.Client, id string, speakers ...int) *Registry {
	t.Helper()
	cfg := config.NodeConfig{ID: id, HeartbeatInterval: 50, HeartbeatTimeout: 500}
	voice := protocol.Voice{Speakers: speakers, SampleRate: 24000, Segmenter: "kana", Acoustic: "mock"}
	r, err := NewRegistry(context.Background(), cfg, voice, client, newLogger())
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestRegistriesDiscoverEachOther(t *testing.T) {
	client := connect(t)
	a := newRegistry(t, client, "node-a", 0, 1)
	b := newRegistry(t, client, "node-b", 2)

	waitFor(t, func() bool { return len(a.Query(nil)) == 2 && len(b.Query(nil)) == 2 })

	if !a.Healthy() || !b.Healthy() {
		t.Fatal("both registries should report healthy")
	}
	nodes := a.Query(WithSpeaker(2))
	if len(nodes) != 1 || nodes[0].ID != "node-b" || nodes[0].Voice.SampleRate != 24000 {
		t.Fatalf("unexpected speaker lookup %+v", nodes)
	}
	if got := b.Query(WithSpeaker(9)); len(got) != 0 {
		t.Fatalf("expected no node for speaker 9, got %+v", got)
	}
}

func TestNodeListReply(t *testing.T) {
	client := connect(t)
	newRegistry(t, client, "node-a", 3)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	raw, err := client.Request(ctx, protocol.SubjectNodeList, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var nodes []protocol.NodeInfo
	if err := json.Unmarshal(raw, &nodes); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(nodes) != 1 || nodes[0].ID != "node-a" || nodes[0].Voice.Speakers[0] != 3 {
		t.Fatalf("unexpected node list %+v", nodes)
	}
}

func TestEvaluateHealthMarksStaleNodes(t *testing.T) {
	client := connect(t)
	r := newRegistry(t, client, "node-a")
	r.Close()

	r.updateNode("node-z", &protocol.Voice{Speakers: []int{1}}, time.Now().Add(-time.Minute))
	r.evaluateHealth()

	stale := r.Query(func(n protocol.NodeInfo) bool { return n.ID == "node-z" })
	if len(stale) != 1 || stale[0].Healthy {
		t.Fatalf("expected node-z unhealthy, got %+v", stale)
	}
	if got := r.Query(WithSpeaker(1)); len(got) != 0 {
		t.Fatalf("unhealthy nodes must not serve speakers, got %+v", got)
	}
	nodes, speakers := r.snapshotCounts()
	if nodes != 1 || speakers != 0 {
		t.Fatalf("unexpected counts %d nodes %d speakers", nodes, speakers)
	}
}
