package dashboard

import (
	"context"
	"errors"
	"sync"

	"tarefasplus/domain"
	"tarefasplus/share"
	"tarefasplus/subscription"
)

// ErrClosed is returned by intents issued after the session was closed.
var ErrClosed = errors.New("session closed")

// Session binds one owner's view: the live subscription feeding a TaskList,
// the Editor, and the mutation engine. All view state is owned by a single
// event loop; snapshot pushes and user intents are queued and run in order.
// OnChange callbacks run on a separate notifier goroutine, so they may call
// back into the Session.
type Session struct {
	hub    *subscription.Hub
	engine Mutator
	sharer *share.Sharer

	// loop state
	owner    string
	list     TaskList
	editor   Editor
	onChange func([]domain.Task)

	events chan func()
	quit   chan struct{}
	done   chan struct{}

	notifyMu   sync.Mutex
	notices    []notification
	notifyWake chan struct{}

	subMu     sync.Mutex
	sub       *subscription.Subscription
	closeOnce sync.Once
}

// NewSession starts the event loop and, when owner is known, the live
// subscription. An empty owner defers the subscription until SetOwner.
func NewSession(ctx context.Context, hub *subscription.Hub, engine Mutator, sharer *share.Sharer, owner string) (*Session, error) {
	s := &Session{
		hub:    hub,
		engine: engine,
		sharer: sharer,
		events:     make(chan func(), 64),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		notifyWake: make(chan struct{}, 1),
	}
	go s.loop()
	go s.notifier()
	if err := s.SetOwner(ctx, owner); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.events:
			fn()
		case <-s.quit:
			return
		}
	}
}

func (s *Session) post(fn func()) bool {
	select {
	case s.events <- fn:
		return true
	case <-s.quit:
		return false
	}
}

// do runs fn on the loop and waits for it.
func (s *Session) do(fn func()) bool {
	ran := make(chan struct{})
	if !s.post(func() {
		fn()
		close(ran)
	}) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-s.done:
		return false
	}
}

// SetOwner binds the session to owner. A different owner releases the current
// subscription and clears the list before subscribing again; an empty owner
// only releases.
func (s *Session) SetOwner(ctx context.Context, owner string) error {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if s.sub != nil && s.sub.Owner() == owner {
		return nil
	}
	if s.sub != nil {
		s.sub.Close()
		s.sub = nil
	}
	if !s.do(func() {
		s.owner = owner
		s.list.replace(nil)
		s.editor.Cancel()
	}) {
		return ErrClosed
	}
	if owner == "" {
		return nil
	}
	sub, err := s.hub.Subscribe(ctx, owner, s.deliver(owner))
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

func (s *Session) deliver(owner string) func([]domain.Task) {
	return func(tasks []domain.Task) {
		s.post(func() {
			if s.owner != owner {
				return
			}
			s.list.replace(tasks)
			if s.onChange != nil {
				s.notify(s.onChange, s.list.Tasks())
			}
		})
	}
}

type notification struct {
	fn    func([]domain.Task)
	tasks []domain.Task
}

// notify queues a callback for the notifier without blocking the loop.
func (s *Session) notify(fn func([]domain.Task), tasks []domain.Task) {
	s.notifyMu.Lock()
	s.notices = append(s.notices, notification{fn: fn, tasks: tasks})
	s.notifyMu.Unlock()
	select {
	case s.notifyWake <- struct{}{}:
	default:
	}
}

// notifier runs OnChange callbacks in delivery order, off the loop.
func (s *Session) notifier() {
	for {
		select {
		case <-s.quit:
			return
		case <-s.notifyWake:
		}
		s.notifyMu.Lock()
		batch := s.notices
		s.notices = nil
		s.notifyMu.Unlock()
		for _, n := range batch {
			select {
			case <-s.quit:
				return
			default:
			}
			n.fn(n.tasks)
		}
	}
}

// OnChange registers fn to run after every applied snapshot. Callbacks run
// one at a time in snapshot order, outside the loop; fn may call any Session
// method, Close included.
func (s *Session) OnChange(fn func([]domain.Task)) {
	s.do(func() { s.onChange = fn })
}

// Owner returns the identity the session is bound to.
func (s *Session) Owner() string {
	var owner string
	s.do(func() { owner = s.owner })
	return owner
}

// Tasks returns the current list.
func (s *Session) Tasks() []domain.Task {
	var tasks []domain.Task
	s.do(func() { tasks = s.list.Tasks() })
	return tasks
}

// Form returns the current form state.
func (s *Session) Form() Form {
	var f Form
	s.do(func() { f = s.editor.Form() })
	return f
}

func (s *Session) SetInput(text string) {
	s.do(func() { s.editor.SetInput(text) })
}

func (s *Session) SetPublic(v bool) {
	s.do(func() { s.editor.SetPublic(v) })
}

// Edit selects task id for editing. It reports false when the task is not in
// the current list, in which case nothing changes.
func (s *Session) Edit(id string) bool {
	var ok bool
	s.do(func() { ok = s.editor.Select(id, &s.list) })
	return ok
}

// CancelEdit returns the form to create mode.
func (s *Session) CancelEdit() {
	s.do(func() { s.editor.Cancel() })
}

// Submit creates or updates a task from the form. The mutation runs outside
// the loop so pushes keep flowing; the form is reset only on success.
func (s *Session) Submit(ctx context.Context) error {
	var (
		f     Form
		ok    bool
		owner string
	)
	if !s.do(func() {
		f, ok = s.editor.pending()
		owner = s.owner
	}) {
		return ErrClosed
	}
	if !ok {
		return nil
	}
	err := dispatch(ctx, s.engine, owner, f)
	s.do(func() { s.editor.settle(err) })
	return err
}

// Delete removes task id.
func (s *Session) Delete(ctx context.Context, id string) error {
	return s.engine.Delete(ctx, id)
}

// Share copies the share link of task id and returns it.
func (s *Session) Share(ctx context.Context, id string) (string, error) {
	if s.sharer == nil {
		return "", errors.New("sharing is not configured")
	}
	return s.sharer.Share(ctx, id)
}

// Close releases the subscription and stops the loop.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.subMu.Lock()
		if s.sub != nil {
			s.sub.Close()
			s.sub = nil
		}
		s.subMu.Unlock()
		close(s.quit)
		<-s.done
	})
}
