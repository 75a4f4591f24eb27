// Package thread implements the per-booking thread engine: the local message
// cache fed by the change-feed subscriber and polling reconciler, and the
// optimistic send pipeline. The cache is the single source of truth consumers
// read; both delivery channels and the sender funnel into it.
package thread

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"guardline/internal/domain/message"
	"guardline/internal/ports"
)

// AckTimeout bounds how long a persisted "sending" entry stays resumable
// across a reload before it is re-marked failed.
const AckTimeout = 15 * time.Second

// entry pairs a cached message with its local insertion sequence number.
// The sequence breaks created_at ties so display order is stable regardless
// of which channel delivered a message first. sentAt is set only for entries
// inserted while still "sending"; it anchors the acknowledgment window across
// snapshot reloads.
type entry struct {
	msg    *message.Message
	seq    uint64
	sentAt time.Time
}

// Cache is the per-thread message cache. All mutations are serialized by the
// mutex; apply is idempotent so the at-least-once feed and the poll can both
// write through it without coordination.
type Cache struct {
	bookingID  string
	slot       ports.ThreadSlot // optional durable snapshot target
	ackTimeout time.Duration

	mu      sync.Mutex
	byID    map[string]*entry
	order   []*entry
	nextSeq uint64

	// onUpdate fires after every successful mutation, outside the lock
	onUpdate func()
}

// NewCache constructs an empty cache for one booking. slot may be nil; then
// snapshots are skipped. onUpdate may be nil.
func NewCache(bookingID string, slot ports.ThreadSlot, onUpdate func()) *Cache {
	return &Cache{
		bookingID:  bookingID,
		slot:       slot,
		ackTimeout: AckTimeout,
		byID:       make(map[string]*entry),
		onUpdate:   onUpdate,
	}
}

// Apply upserts a message by id. A duplicate id is a no-op except that a
// changed delivery status is taken over; the body of an existing entry is
// never touched. Returns true when the cache content changed.
func (c *Cache) Apply(ctx context.Context, m *message.Message) bool {
	c.mu.Lock()
	changed := c.applyLocked(m)
	var blob []byte
	if changed {
		blob = c.snapshotBlobLocked()
	}
	c.mu.Unlock()

	if changed {
		c.persist(ctx, blob)
		c.notify()
	}
	return changed
}

// ReplaceOptimistic swaps a pending temp entry for its confirmed counterpart.
// The confirmed message takes over the temp entry's insertion sequence so the
// display position is preserved. Unknown temp ids fall back to a plain apply:
// the feed or the poll may have delivered the confirmed message first.
func (c *Cache) ReplaceOptimistic(ctx context.Context, tempID string, confirmed *message.Message) {
	c.mu.Lock()

	old, ok := c.byID[tempID]
	if !ok {
		c.applyLocked(confirmed)
	} else if existing, dup := c.byID[confirmed.ID]; dup {
		// confirmed copy already arrived via feed/poll: drop the temp entry
		existing.msg.DeliveryStatus = message.DeliverySent
		c.removeLocked(tempID)
	} else {
		cp := confirmed.Clone()
		cp.DeliveryStatus = message.DeliverySent
		old.msg = cp
		delete(c.byID, tempID)
		c.byID[cp.ID] = old
		c.sortLocked()
	}

	blob := c.snapshotBlobLocked()
	c.mu.Unlock()

	c.persist(ctx, blob)
	c.notify()
}

// MarkFailed tags a pending entry as failed. The entry stays visible so the
// consumer can retry; it is never silently dropped.
func (c *Cache) MarkFailed(ctx context.Context, tempID string) {
	c.mu.Lock()
	e, ok := c.byID[tempID]
	if ok && e.msg.DeliveryStatus != message.DeliveryFailed {
		e.msg.DeliveryStatus = message.DeliveryFailed
	} else {
		ok = false
	}
	var blob []byte
	if ok {
		blob = c.snapshotBlobLocked()
	}
	c.mu.Unlock()

	if ok {
		c.persist(ctx, blob)
		c.notify()
	}
}

// Drop removes a failed temp entry (used when the consumer retries a send,
// which starts over with a fresh temp id).
func (c *Cache) Drop(ctx context.Context, tempID string) {
	c.mu.Lock()
	_, ok := c.byID[tempID]
	if ok {
		c.removeLocked(tempID)
	}
	var blob []byte
	if ok {
		blob = c.snapshotBlobLocked()
	}
	c.mu.Unlock()

	if ok {
		c.persist(ctx, blob)
		c.notify()
	}
}

// Reconcile merges the authoritative message set from the store into the
// cache: union by id, server entries upserted, optimistic temp entries left
// alone (they are outside the authoritative set by construction).
func (c *Cache) Reconcile(ctx context.Context, authoritative []*message.Message) {
	c.mu.Lock()
	changed := false
	for _, m := range authoritative {
		if c.applyLocked(m) {
			changed = true
		}
	}
	var blob []byte
	if changed {
		blob = c.snapshotBlobLocked()
	}
	c.mu.Unlock()

	if changed {
		c.persist(ctx, blob)
		c.notify()
	}
}

// Snapshot returns the ordered thread as defensive copies.
func (c *Cache) Snapshot() []*message.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*message.Message, len(c.order))
	for i, e := range c.order {
		out[i] = e.msg.Clone()
	}
	return out
}

// Len returns the number of cached messages.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// ----- durable snapshot -----

// snapshotEntry is the persisted wire form of one cached message.
type snapshotEntry struct {
	ID             string    `json:"id"`
	SenderType     string    `json:"sender_type"`
	SenderID       string    `json:"sender_id"`
	Body           string    `json:"body"`
	Kind           string    `json:"message_kind"`
	IsSystem       bool      `json:"is_system"`
	InvoiceJSON    []byte    `json:"invoice_data,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	DeliveryStatus string    `json:"delivery_status"`
	Seq            uint64    `json:"seq"`
	SentAt         time.Time `json:"sent_at,omitzero"`
}

type snapshot struct {
	BookingID string          `json:"booking_id"`
	SavedAt   time.Time       `json:"saved_at"`
	Messages  []snapshotEntry `json:"messages"`
}

// LoadFromSlot restores the cache from its durable snapshot, if one exists.
// In-flight "sending" entries cannot be acknowledged anymore (their submit
// goroutine died with the previous process): entries whose acknowledgment
// window has already passed are re-marked failed immediately, the rest get a
// timer that fails them when the remainder of their window lapses.
func (c *Cache) LoadFromSlot(ctx context.Context) error {
	if c.slot == nil {
		return nil
	}

	blob, err := c.slot.Load(ctx, c.bookingID)
	if err != nil {
		if err == ports.ErrSlotEmpty {
			return nil
		}
		return err
	}

	var snap snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		// corrupt snapshot: start empty, the reconciler rebuilds history
		return nil
	}

	type pending struct {
		id        string
		remaining time.Duration
	}
	var unacked []pending

	c.mu.Lock()
	for _, se := range snap.Messages {
		m, err := se.toMessage(c.bookingID)
		if err != nil {
			continue
		}
		e := &entry{msg: m, seq: se.Seq}
		if m.DeliveryStatus == message.DeliverySending {
			// older snapshots carry no per-entry send time; fall back to
			// the snapshot age, which only over-estimates freshness
			e.sentAt = se.SentAt
			if e.sentAt.IsZero() {
				e.sentAt = snap.SavedAt
			}
			if age := time.Since(e.sentAt); age > c.ackTimeout {
				m.DeliveryStatus = message.DeliveryFailed
			} else {
				unacked = append(unacked, pending{id: m.ID, remaining: c.ackTimeout - age})
			}
		}
		c.byID[m.ID] = e
		c.order = append(c.order, e)
		if se.Seq >= c.nextSeq {
			c.nextSeq = se.Seq + 1
		}
	}
	c.sortLocked()
	c.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	for _, p := range unacked {
		id := p.id
		time.AfterFunc(p.remaining, func() { c.expirePending(detached, id) })
	}

	c.notify()
	return nil
}

// expirePending fails a restored in-flight entry once its acknowledgment
// window has lapsed. A no-op when the entry settled or vanished in the
// meantime.
func (c *Cache) expirePending(ctx context.Context, tempID string) {
	c.mu.Lock()
	e, ok := c.byID[tempID]
	if ok && e.msg.DeliveryStatus == message.DeliverySending {
		e.msg.DeliveryStatus = message.DeliveryFailed
	} else {
		ok = false
	}
	var blob []byte
	if ok {
		blob = c.snapshotBlobLocked()
	}
	c.mu.Unlock()

	if ok {
		c.persist(ctx, blob)
		c.notify()
	}
}

// ----- internals (c.mu held) -----

func (c *Cache) applyLocked(m *message.Message) bool {
	if existing, ok := c.byID[m.ID]; ok {
		// idempotent upsert: only a changed delivery status is taken over
		if m.DeliveryStatus.Valid() && existing.msg.DeliveryStatus != m.DeliveryStatus {
			existing.msg.DeliveryStatus = m.DeliveryStatus
			return true
		}
		return false
	}

	e := &entry{msg: m.Clone(), seq: c.nextSeq}
	if e.msg.DeliveryStatus == message.DeliverySending {
		e.sentAt = time.Now().UTC()
	}
	c.nextSeq++
	c.byID[m.ID] = e
	c.order = append(c.order, e)
	c.sortLocked()
	return true
}

func (c *Cache) removeLocked(id string) {
	e, ok := c.byID[id]
	if !ok {
		return
	}
	delete(c.byID, id)
	for i, o := range c.order {
		if o == e {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// sortLocked keeps the display order: ascending created_at, ties broken by
// local insertion sequence (never by id string).
func (c *Cache) sortLocked() {
	sort.SliceStable(c.order, func(i, j int) bool {
		a, b := c.order[i], c.order[j]
		if a.msg.CreatedAt.Equal(b.msg.CreatedAt) {
			return a.seq < b.seq
		}
		return a.msg.CreatedAt.Before(b.msg.CreatedAt)
	})
}

func (c *Cache) snapshotBlobLocked() []byte {
	snap := snapshot{
		BookingID: c.bookingID,
		SavedAt:   time.Now().UTC(),
		Messages:  make([]snapshotEntry, 0, len(c.order)),
	}
	for _, e := range c.order {
		se, err := fromMessage(e.msg, e.seq)
		if err != nil {
			continue
		}
		se.SentAt = e.sentAt
		snap.Messages = append(snap.Messages, se)
	}

	blob, err := json.Marshal(snap)
	if err != nil {
		return nil
	}
	return blob
}

func (c *Cache) persist(ctx context.Context, blob []byte) {
	if c.slot == nil || blob == nil {
		return
	}
	// best-effort: a lost snapshot only costs reload continuity
	_ = c.slot.Save(ctx, c.bookingID, blob)
}

func (c *Cache) notify() {
	if c.onUpdate != nil {
		c.onUpdate()
	}
}
