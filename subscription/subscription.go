package subscription

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"tarefasplus/domain"
)

// Querier returns the full, ordered task list of an owner.
type Querier interface {
	Query(ctx context.Context, owner string) ([]domain.Task, error)
}

// Hub consumes change notices from Redis and fans them out to the live
// subscriptions of the affected owner.
type Hub struct {
	rc      *redis.Client
	channel string
	store   Querier
	logger  *log.Logger
	resync  time.Duration

	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}

	readyOnce sync.Once
	ready     chan struct{}
}

// NewHub creates a hub listening on channel. A positive resync interval makes
// every subscription re-query periodically even without notices.
func NewHub(rc *redis.Client, channel string, store Querier, resync time.Duration, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Hub{
		rc:      rc,
		channel: channel,
		store:   store,
		logger:  logger,
		resync:  resync,
		subs:    map[string]map[*Subscription]struct{}{},
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the hub listens on the updates channel.
func (h *Hub) Ready() <-chan struct{} {
	return h.ready
}

// Run listens for change notices until ctx is done, reconnecting when the
// pub/sub channel closes.
func (h *Hub) Run(ctx context.Context) {
	for {
		sub := h.rc.Subscribe(ctx, h.channel)
		if _, err := sub.Receive(ctx); err != nil {
			_ = sub.Close()
			if ctx.Err() != nil {
				return
			}
			h.logger.WithError(err).WithField("channel", h.channel).Error("unable to subscribe to updates")
			if !sleep(ctx, time.Second) {
				return
			}
			continue
		}
		// notices may have been missed while disconnected
		h.pokeAll()
		h.readyOnce.Do(func() { close(h.ready) })

		ch := sub.Channel()
	consume:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break consume
				}
				var n domain.Notice
				if err := sonic.Unmarshal([]byte(msg.Payload), &n); err != nil {
					h.logger.Errorf("unable to parse change notice: %v", err)
					continue
				}
				h.dispatch(n)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		h.logger.Error("pubsub channel closed, reconnecting")
		if !sleep(ctx, time.Second) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (h *Hub) dispatch(n domain.Notice) {
	if n.Collection != "" && n.Collection != domain.Collection {
		return
	}
	if n.UserID == "" {
		h.pokeAll()
		return
	}
	h.mu.Lock()
	for s := range h.subs[n.UserID] {
		s.poke()
	}
	h.mu.Unlock()
}

func (h *Hub) pokeAll() {
	h.mu.Lock()
	for _, set := range h.subs {
		for s := range set {
			s.poke()
		}
	}
	h.mu.Unlock()
}

func (h *Hub) add(s *Subscription) {
	h.mu.Lock()
	set, ok := h.subs[s.owner]
	if !ok {
		set = map[*Subscription]struct{}{}
		h.subs[s.owner] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	if set, ok := h.subs[s.owner]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.owner)
		}
	}
	h.mu.Unlock()
}

// Subscribe establishes a live query over owner's tasks. push receives the
// whole current list once on establishment and again after every change;
// receivers must replace their state with it. An empty owner establishes
// nothing and yields domain.ErrNoOwner.
func (h *Hub) Subscribe(ctx context.Context, owner string, push func([]domain.Task)) (*Subscription, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, domain.ErrNoOwner
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		owner:  owner,
		hub:    h,
		push:   push,
		wake:   make(chan struct{}, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	h.add(s)
	go s.run(ctx)
	return s, nil
}

// Subscription is a cancelable live query bound to one owner.
type Subscription struct {
	owner  string
	hub    *Hub
	push   func([]domain.Task)
	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// Owner returns the identity the subscription filters on.
func (s *Subscription) Owner() string {
	return s.owner
}

// Close stops the subscription. No push happens after Close returns.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

// Done is closed once the subscription stopped delivering.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// poke schedules a refetch; pending pokes coalesce.
func (s *Subscription) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.done)
	defer s.hub.remove(s)

	var tick <-chan time.Time
	if s.hub.resync > 0 {
		ticker := time.NewTicker(s.hub.resync)
		defer ticker.Stop()
		tick = ticker.C
	}

	s.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
			s.refresh(ctx)
		case <-tick:
			s.refresh(ctx)
		}
	}
}

func (s *Subscription) refresh(ctx context.Context) {
	tasks, err := s.hub.store.Query(ctx, s.owner)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.hub.logger.WithError(err).WithField("owner", s.owner).Error("live query failed")
		return
	}
	s.push(tasks)
}
