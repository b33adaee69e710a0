package aggregate

import (
	"sync"
	"sync/atomic"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/fxsml/goaggregate/message"
)

const (
	stateOpen int32 = iota
	stateCompleting
	stateCompleted
)

// group is the in-flight aggregation state of one correlation key.
// Fields other than state are guarded by mu.
type group struct {
	mu    sync.Mutex
	state atomic.Int32

	key      string
	result   *message.Exchange
	size     int
	total    int
	created  time.Time
	updated  time.Time
	timeout  time.Duration
	deadline time.Time
}

func (g *group) open() bool {
	return g.state.Load() == stateOpen
}

// repository is the group state table.
type repository struct {
	mu     sync.Mutex
	groups map[string]*group
}

func newRepository() *repository {
	return &repository{groups: make(map[string]*group)}
}

// getOrCreate returns the open group for key, creating it if absent.
func (r *repository) getOrCreate(key string, now time.Time) *group {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.groups[key]; ok {
		return g
	}
	g := &group{key: key, total: -1, created: now, updated: now}
	r.groups[key] = g
	return g
}

func (r *repository) get(key string) (*group, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[key]
	return g, ok
}

// remove deletes key only while it still maps to g.
func (r *repository) remove(key string, g *group) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.groups[key]; ok && cur == g {
		delete(r.groups, key)
		return true
	}
	return false
}

func (r *repository) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.groups))
	for k := range r.groups {
		keys = append(keys, k)
	}
	return keys
}

func (r *repository) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups)
}

// closedKeys is a bounded, insertion-ordered cache of closed correlation keys.
// The oldest key is evicted when the capacity is exceeded.
type closedKeys struct {
	mu       sync.Mutex
	keys     *orderedmap.OrderedMap[string, struct{}]
	capacity int
}

func newClosedKeys(capacity int) *closedKeys {
	return &closedKeys{keys: orderedmap.New[string, struct{}](), capacity: capacity}
}

func (c *closedKeys) add(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys.Set(key, struct{}{})
	for c.keys.Len() > c.capacity {
		oldest := c.keys.Oldest()
		c.keys.Delete(oldest.Key)
	}
}

func (c *closedKeys) contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.keys.Get(key)
	return ok
}

func (c *closedKeys) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keys.Len()
}

func (c *closedKeys) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = orderedmap.New[string, struct{}]()
}
