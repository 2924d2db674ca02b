package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rickgao/plantclient/internal/bridge"
	"github.com/rickgao/plantclient/internal/plant"
	"github.com/rickgao/plantclient/internal/writer"
)

// PlantSource reports per-plant counters. *client.Client implements it.
type PlantSource interface {
	Stats() map[plant.InfraType]plant.Stats
}

// WriterSource reports bar writer counters.
type WriterSource interface {
	Stats() writer.WriterMetrics
}

// BridgeSource reports bridge counters.
type BridgeSource interface {
	Stats() bridge.Stats
}

// PlantSnapshot is one plant's entry in a Snapshot.
type PlantSnapshot struct {
	State             string `json:"state"`
	Reconnects        uint64 `json:"reconnects"`
	Reconnecting      bool   `json:"reconnecting"`
	Subscriptions     int    `json:"subscriptions"`
	HeartbeatSeconds  int64  `json:"heartbeat_seconds"`
	InboundDepth      int    `json:"inbound_depth"`
	InboundCapacity   int    `json:"inbound_capacity"`
	InboundReceived   int64  `json:"inbound_received"`
	InboundProcessed  int64  `json:"inbound_processed"`
	InboundGrows      int    `json:"inbound_grows"`
}

// WriterSnapshot is the bar writer's entry in a Snapshot.
type WriterSnapshot struct {
	Inserts   int64 `json:"inserts"`
	Conflicts int64 `json:"conflicts"`
	Errors    int64 `json:"errors"`
	Flushes   int64 `json:"flushes"`
}

// BridgeSnapshot is the bridge's entry in a Snapshot.
type BridgeSnapshot struct {
	Published int64 `json:"published"`
	Errors    int64 `json:"errors"`
}

// Snapshot is everything collected at one instant.
type Snapshot struct {
	Time   time.Time                `json:"time"`
	Plants map[string]PlantSnapshot `json:"plants,omitempty"`
	Writer *WriterSnapshot          `json:"writer,omitempty"`
	Bridge *BridgeSnapshot          `json:"bridge,omitempty"`
}

// Collector gathers snapshots from registered sources. Sources may be
// registered while serving.
type Collector struct {
	mu     sync.RWMutex
	plants PlantSource
	writer WriterSource
	bridge BridgeSource

	now func() time.Time
}

// NewCollector creates a collector for plants, which may be nil.
func NewCollector(plants PlantSource) *Collector {
	return &Collector{plants: plants, now: time.Now}
}

// SetWriter registers the bar writer.
func (c *Collector) SetWriter(w WriterSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer = w
}

// SetBridge registers the NATS bridge.
func (c *Collector) SetBridge(b BridgeSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bridge = b
}

// Collect takes a snapshot.
func (c *Collector) Collect() Snapshot {
	c.mu.RLock()
	plants, w, b := c.plants, c.writer, c.bridge
	c.mu.RUnlock()

	snap := Snapshot{Time: c.now().UTC()}

	if plants != nil {
		stats := plants.Stats()
		snap.Plants = make(map[string]PlantSnapshot, len(stats))
		for infra, st := range stats {
			snap.Plants[infra.String()] = PlantSnapshot{
				State:            st.State.String(),
				Reconnects:       st.Reconnects,
				Reconnecting:     st.Reconnecting,
				Subscriptions:    st.Subscriptions,
				HeartbeatSeconds: int64(st.HeartbeatInterval / time.Second),
				InboundDepth:     st.Inbound.Len,
				InboundCapacity:  st.Inbound.Capacity,
				InboundReceived:  st.Inbound.Pushed,
				InboundProcessed: st.Inbound.Popped,
				InboundGrows:     st.Inbound.Grows,
			}
		}
	}

	if w != nil {
		m := w.Stats()
		snap.Writer = &WriterSnapshot{
			Inserts:   m.Inserts,
			Conflicts: m.Conflicts,
			Errors:    m.Errors,
			Flushes:   m.Flushes,
		}
	}

	if b != nil {
		s := b.Stats()
		snap.Bridge = &BridgeSnapshot{Published: s.Published, Errors: s.Errors}
	}

	return snap
}

// ServeHTTP writes the current snapshot as JSON.
func (c *Collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(c.Collect())
}
