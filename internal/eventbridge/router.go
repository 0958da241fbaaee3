package eventbridge

import (
	"sync"
)

const (
	defaultMailboxCapacity = 16
	defaultBacklogLimit    = 16
	defaultDedupeWindow    = 1024
)

// RouterOption customizes Router construction.
type RouterOption func(*Router)

// Router delivers acks to per-worker mailboxes with buffering, deduplication,
// and bounded channel semantics.
type Router struct {
	mu           sync.RWMutex
	subscribers  map[int]map[*mailbox]struct{}
	backlog      map[int][]StepAck
	recentIDs    map[string]struct{}
	recentOrder  []string
	channelSize  int
	backlogLimit int
	dedupeWindow int
	logger       Logger
}

// Subscription represents an active worker subscription.
type Subscription struct {
	Acks   <-chan StepAck
	cancel func()
}

// Close terminates the subscription.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// NewRouter constructs a router with sane defaults.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		subscribers:  map[int]map[*mailbox]struct{}{},
		backlog:      map[int][]StepAck{},
		recentIDs:    map[string]struct{}{},
		recentOrder:  make([]string, 0, defaultDedupeWindow),
		channelSize:  defaultMailboxCapacity,
		backlogLimit: defaultBacklogLimit,
		dedupeWindow: defaultDedupeWindow,
		logger:       nopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// RouterWithLogger injects a logger for drop/diagnostic messages.
func RouterWithLogger(logger Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// RouterWithMailboxCapacity overrides the buffered channel size per worker.
func RouterWithMailboxCapacity(cap int) RouterOption {
	return func(r *Router) {
		if cap > 0 {
			r.channelSize = cap
		}
	}
}

// RouterWithBacklogLimit overrides the backlog size for pre-subscription buffering.
func RouterWithBacklogLimit(limit int) RouterOption {
	return func(r *Router) {
		if limit > 0 {
			r.backlogLimit = limit
		}
	}
}

// RouterWithDedupeWindow controls how many recent event IDs are retained.
func RouterWithDedupeWindow(size int) RouterOption {
	return func(r *Router) {
		if size > 0 {
			r.dedupeWindow = size
		}
	}
}

// Subscribe registers for acks addressed to worker.
func (r *Router) Subscribe(worker int) Subscription {
	box := newMailbox(r.channelSize, r.logger)
	var backlog []StepAck
	r.mu.Lock()
	if r.subscribers[worker] == nil {
		r.subscribers[worker] = map[*mailbox]struct{}{}
	}
	r.subscribers[worker][box] = struct{}{}
	if existing := r.backlog[worker]; len(existing) > 0 {
		backlog = append(backlog, existing...)
		delete(r.backlog, worker)
	}
	r.mu.Unlock()
	for _, ack := range backlog {
		box.deliver(ack)
	}
	return Subscription{
		Acks: box.channel(),
		cancel: func() {
			r.removeMailbox(worker, box)
		},
	}
}

// HandleAck satisfies the AckProcessor interface.
func (r *Router) HandleAck(ack StepAck) error {
	r.Route(ack)
	return nil
}

// Route delivers the ack to the worker's mailbox or buffers it when nobody
// is listening yet.
func (r *Router) Route(ack StepAck) {
	if ack.EventID != "" && r.isDuplicate(ack.EventID) {
		r.logger.Printf("eventbridge: duplicate ack %s for chef %d ignored", ack.EventID, ack.WorkerID)
		return
	}
	r.mu.RLock()
	boxes := r.snapshotMailboxes(ack.WorkerID)
	r.mu.RUnlock()
	if len(boxes) == 0 {
		r.bufferAck(ack)
		return
	}
	for _, box := range boxes {
		box.deliver(ack)
	}
}

func (r *Router) snapshotMailboxes(worker int) []*mailbox {
	live := r.subscribers[worker]
	if len(live) == 0 {
		return nil
	}
	items := make([]*mailbox, 0, len(live))
	for box := range live {
		items = append(items, box)
	}
	return items
}

func (r *Router) removeMailbox(worker int, box *mailbox) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if boxes := r.subscribers[worker]; boxes != nil {
		delete(boxes, box)
		if len(boxes) == 0 {
			delete(r.subscribers, worker)
		}
	}
	box.close()
}

func (r *Router) bufferAck(ack StepAck) {
	r.mu.Lock()
	defer r.mu.Unlock()
	queue := r.backlog[ack.WorkerID]
	if len(queue) >= r.backlogLimit {
		queue = queue[1:]
		r.logger.Printf("eventbridge: backlog drop for chef %d (limit %d)", ack.WorkerID, r.backlogLimit)
	}
	r.backlog[ack.WorkerID] = append(queue, ack)
}

func (r *Router) isDuplicate(eventID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.recentIDs[eventID]; ok {
		return true
	}
	r.recentIDs[eventID] = struct{}{}
	r.recentOrder = append(r.recentOrder, eventID)
	if len(r.recentOrder) > r.dedupeWindow {
		oldest := r.recentOrder[0]
		r.recentOrder = r.recentOrder[1:]
		delete(r.recentIDs, oldest)
	}
	return false
}

type mailbox struct {
	mu     sync.Mutex
	ch     chan StepAck
	logger Logger
	closed bool
}

func newMailbox(capacity int, logger Logger) *mailbox {
	if capacity <= 0 {
		capacity = defaultMailboxCapacity
	}
	return &mailbox{ch: make(chan StepAck, capacity), logger: logger}
}

func (m *mailbox) channel() <-chan StepAck {
	return m.ch
}

// deliver never blocks: when the mailbox is full the oldest ack is dropped,
// since a chef only ever waits for its most recent step.
func (m *mailbox) deliver(ack StepAck) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	for {
		select {
		case m.ch <- ack:
			return
		default:
		}
		select {
		case oldest := <-m.ch:
			m.logger.Printf("eventbridge: dropped ack chef=%d step=%d (mailbox overflow)", oldest.WorkerID, oldest.StepIndex)
		default:
		}
	}
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.ch)
}
