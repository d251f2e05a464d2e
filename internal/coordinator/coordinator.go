package coordinator

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/bridge"
	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/codegen"
	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/middleware"
	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/models"
	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/store"
	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/watcher"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
)

/*
The coordinator is the hub of three-way sync. Every change - from the canvas
session, from a watched file, or from the runtime session - funnels into the
per-document loop, which serializes mutation: apply to the store, regenerate
the representations the change did not come from, and rebroadcast to every
participant except the originator. One loop per document means documents
never contend with each other; one queue per loop means an element's changes
apply in strictly increasing revision order.
*/

// Journal is what the coordinator needs from the change journal.
type Journal interface {
	Record(ev *models.ChangeEvent, status, detail string)
}

// Options configures a Coordinator.
type Options struct {
	WorkspaceDir string
	QueueSize    int
	BacklogSize  int
	GracePeriod  time.Duration
}

func (o *Options) defaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 128
	}
	if o.BacklogSize <= 0 {
		o.BacklogSize = 256
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = 30 * time.Second
	}
}

// Coordinator owns the per-document registry of sync loops and attached
// sessions. It replaces any notion of a global "current document": every
// loop handle lives in the registry and nowhere else.
type Coordinator struct {
	store   *store.Store
	gen     *codegen.Generator
	watch   *watcher.Watcher
	journal Journal
	opts    Options

	mu    sync.Mutex
	loops map[string]*loop

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Loop states, visible for introspection and tests.
const (
	StateIdle         = "idle"
	StateApplying     = "applying"
	StateRegenerating = "regenerating"
	StateBroadcasting = "broadcasting"
)

type loop struct {
	docID string
	queue chan *models.ChangeEvent

	mu       sync.Mutex
	state    string
	closed   bool
	sessions map[bridge.Session]bool
	backlogs map[models.Origin]*bridge.Backlog
	grace    *time.Timer
}

// New creates a coordinator. Call Start before attaching sessions.
func New(st *store.Store, gen *codegen.Generator, w *watcher.Watcher, j Journal, opts Options) *Coordinator {
	opts.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:   st,
		gen:     gen,
		watch:   w,
		journal: j,
		opts:    opts,
		loops:   make(map[string]*loop),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins consuming file watcher events.
func (c *Coordinator) Start() {
	log.Println("🔄 Starting synchronization coordinator...")
	c.wg.Add(1)
	go c.watchLoop()
	log.Println("✓ Synchronization coordinator started")
}

// Shutdown tears down every document loop, letting in-flight cycles finish.
func (c *Coordinator) Shutdown() {
	log.Println("🛑 Shutting down coordinator...")
	c.cancel()

	c.mu.Lock()
	loops := make([]*loop, 0, len(c.loops))
	for _, l := range c.loops {
		loops = append(loops, l)
	}
	c.loops = make(map[string]*loop)
	c.mu.Unlock()

	for _, l := range loops {
		l.mu.Lock()
		if !l.closed {
			l.closed = true
			close(l.queue)
		}
		for s := range l.sessions {
			s.Close()
		}
		l.mu.Unlock()
	}

	c.wg.Wait()
	log.Println("✓ Coordinator shutdown complete")
}

// Attach registers a live session with its document's loop, starts the loop
// if needed, replays the participant's backlog, and sends the current
// document state so a fresh client starts fully synchronized.
func (c *Coordinator) Attach(s bridge.Session) error {
	doc, err := c.store.Get(s.DocumentID())
	if err != nil {
		return err
	}

	l, err := c.ensureLoop(doc)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.sessions[s] = true
	if l.grace != nil {
		l.grace.Stop()
		l.grace = nil
	}
	bl := l.backlogs[s.Participant()]
	l.mu.Unlock()

	log.Printf("  Session %s (%s) joined document %s", s.ID(), s.Participant(), s.DocumentID())

	c.sendInitialState(s, doc)
	if bl != nil && bl.Len() > 0 {
		go c.replay(s, bl)
	}
	return nil
}

// Detach removes a session. When a document's session set stays empty past
// the grace period, its loop is torn down; the grace window tolerates
// editor reloads and transient disconnects.
func (c *Coordinator) Detach(s bridge.Session) {
	c.mu.Lock()
	l := c.loops[s.DocumentID()]
	c.mu.Unlock()
	if l == nil {
		return
	}

	l.mu.Lock()
	delete(l.sessions, s)
	empty := len(l.sessions) == 0
	if empty && l.grace == nil {
		l.grace = time.AfterFunc(c.opts.GracePeriod, func() { c.reap(l) })
	}
	l.mu.Unlock()

	log.Printf("  Session %s left document %s", s.ID(), s.DocumentID())
}

// Submit enqueues a change for its document's loop (FIFO). It returns an
// error if the document does not exist, its loop is torn down, or the queue
// is full.
func (c *Coordinator) Submit(ev *models.ChangeEvent) error {
	doc, err := c.store.Get(ev.DocumentID)
	if err != nil {
		return err
	}
	l, err := c.ensureLoop(doc)
	if err != nil {
		return err
	}

	// The send happens under l.mu: reap and Shutdown close the queue under
	// the same lock, so the closed check and the send are atomic and a send
	// on a closed queue cannot happen. The send is non-blocking, so holding
	// the lock here never stalls a cycle.
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("document %s loop is shut down", ev.DocumentID)
	}
	select {
	case l.queue <- ev:
		return nil
	default:
		return fmt.Errorf("document %s queue is full", ev.DocumentID)
	}
}

// State reports a document loop's current cycle phase (StateIdle when no
// loop is running).
func (c *Coordinator) State(documentID string) string {
	c.mu.Lock()
	l := c.loops[documentID]
	c.mu.Unlock()
	if l == nil {
		return StateIdle
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// HandleChange implements bridge.Handler.
func (c *Coordinator) HandleChange(s bridge.Session, ev *models.ChangeEvent) {
	if err := c.Submit(ev); err != nil {
		s.Send(models.ErrorMessage(err, ev.ElementID))
	}
}

// HandleDisconnect implements bridge.Handler.
func (c *Coordinator) HandleDisconnect(s bridge.Session) {
	c.Detach(s)
}

func (c *Coordinator) ensureLoop(doc *models.DesignDocument) (*loop, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// After Shutdown no new loop may start: c.wg.Wait() may already have
	// returned, so a wg.Add here would race it.
	if c.ctx.Err() != nil {
		return nil, fmt.Errorf("coordinator is shut down")
	}

	if l, ok := c.loops[doc.ID]; ok {
		return l, nil
	}

	cssPath, htmlPath := c.gen.Files(doc)
	if err := c.watch.Allow(c.abs(cssPath), c.abs(htmlPath)); err != nil {
		return nil, fmt.Errorf("failed to watch generated files: %w", err)
	}

	l := &loop{
		docID: doc.ID,
		queue: make(chan *models.ChangeEvent, c.opts.QueueSize),
		state: StateIdle,
		sessions: make(map[bridge.Session]bool),
		backlogs: map[models.Origin]*bridge.Backlog{
			models.OriginCanvas:  bridge.NewBacklog(c.opts.BacklogSize),
			models.OriginRuntime: bridge.NewBacklog(c.opts.BacklogSize),
		},
	}
	// A loop starts with no sessions. If none attaches before the grace
	// period runs out (a loop spun up by a file event or a REST submit),
	// it is torn down the same way as after the last detach.
	l.grace = time.AfterFunc(c.opts.GracePeriod, func() { c.reap(l) })
	c.loops[doc.ID] = l

	c.wg.Add(1)
	go c.run(l)
	return l, nil
}

// reap tears down a loop whose session set stayed empty for the whole grace
// period. The queue is closed, not abandoned: the run loop drains what is
// left so no accepted change is ever half-processed.
func (c *Coordinator) reap(l *loop) {
	l.mu.Lock()
	if len(l.sessions) > 0 || l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	c.mu.Lock()
	delete(c.loops, l.docID)
	c.mu.Unlock()

	if doc, err := c.store.Get(l.docID); err == nil {
		cssPath, htmlPath := c.gen.Files(doc)
		c.watch.Disallow(c.abs(cssPath), c.abs(htmlPath))
	}
	log.Printf("  Document %s loop reaped after grace period", l.docID)
}

func (c *Coordinator) run(l *loop) {
	defer c.wg.Done()
	for ev := range l.queue {
		c.cycle(l, ev)
	}
}

// cycle is one full pass of the state machine:
// Idle -> Applying -> Regenerating -> Broadcasting -> Idle.
func (c *Coordinator) cycle(l *loop, ev *models.ChangeEvent) {
	ctx, span := middleware.StartSpan(c.ctx, "Coordinator.Cycle",
		attribute.String("document.id", ev.DocumentID),
		attribute.String("element.id", ev.ElementID),
		attribute.String("origin", string(ev.Origin)),
		attribute.String("operation", string(ev.Operation)),
	)
	defer span.End()
	defer l.setState(StateIdle)

	// A fresh element gets its stable binding before it is stored; from
	// then on the binding never changes.
	if ev.Operation == models.OpCreate && ev.Payload != nil && ev.Payload.Binding == nil {
		if doc, derr := c.store.Get(ev.DocumentID); derr == nil {
			ev.Payload.Binding = c.gen.BindingFor(doc, ev.ElementID)
		}
	}

	// Applying: the store is the single gatekeeper for validation and the
	// revision check.
	l.setState(StateApplying)
	doc, err := c.store.Apply(ctx, ev)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		c.journal.Record(ev, "rejected", err.Error())
		// The rejected payload goes back to the originator so its UI can
		// show what failed; other participants are unaffected.
		c.sendTo(l, ev.Origin, models.ErrorMessage(err, ev.ElementID))
		if code := models.CodeOf(err); code == models.CodePersistence {
			log.Printf("❌ Document %s is read-only after persistence failure", ev.DocumentID)
		}
		return
	}
	c.journal.Record(ev, "applied", "")

	// The broadcast payload carries the stored element (normalized, with
	// its stable binding), not the raw client payload.
	if ev.Operation != models.OpDelete && !ev.IsTokenUpdate() {
		if el := doc.Element(ev.ElementID); el != nil {
			ev.Payload = el
		}
	}

	// Regenerating: skip when the file itself originated the change, both
	// to avoid a write loop and because the file already says this.
	if ev.Origin != models.OriginFile {
		l.setState(StateRegenerating)
		if err := c.regenerate(ctx, doc, ev); err != nil {
			middleware.AddSpanError(ctx, err)
			log.Printf("⚠️  %v (keeping last-known-good fragments)", err)
			// Generation problems are a canvas-side diagnostic, never a
			// coordinator crash.
			c.sendTo(l, models.OriginCanvas, models.ErrorMessage(err, ev.ElementID))
		}
	}

	// Broadcasting: everyone but the originator, plus an ack back to the
	// originator itself.
	l.setState(StateBroadcasting)
	msg := models.ChangeMessage(ev)
	for _, participant := range []models.Origin{models.OriginCanvas, models.OriginRuntime} {
		if participant == ev.Origin {
			continue
		}
		c.deliver(l, participant, msg)
	}
	c.sendTo(l, ev.Origin, models.AckMessage(ev))
}

// regenerate renders the document and rewrites owned regions in the
// generated files, stamping each write so the watcher recognizes it.
func (c *Coordinator) regenerate(ctx context.Context, doc *models.DesignDocument, ev *models.ChangeEvent) error {
	removed := map[string]bool{}
	if ev.Operation == models.OpDelete {
		removed[ev.ElementID] = true
	}

	cssPath, htmlPath := c.gen.Files(doc)
	for _, target := range []struct {
		rel string
		syn codegen.Syntax
	}{
		{cssPath, codegen.SyntaxCSS},
		{htmlPath, codegen.SyntaxHTML},
	} {
		regions, err := c.gen.Regions(doc, target.syn, target.rel)
		if err != nil {
			return err
		}

		abs := c.abs(target.rel)
		existing := ""
		if data, rerr := os.ReadFile(abs); rerr == nil {
			existing = string(data)
		}

		merged := codegen.Merge(existing, regions, removed, target.syn)
		if merged == existing {
			continue
		}

		c.watch.Stamp(abs, []byte(merged))
		if err := writeFileRetry(ctx, abs, []byte(merged)); err != nil {
			return &models.GenerationFailure{Path: target.rel, Err: err}
		}
		middleware.AddSpanEvent(ctx, "file.written", attribute.String("path", target.rel))
	}
	return nil
}

// sendTo delivers a message to every session of one participant kind.
// Send failures here are deliberate no-ops beyond logging: acks and error
// reports are not replayable state.
func (c *Coordinator) sendTo(l *loop, participant models.Origin, msg *models.WireMessage) {
	for _, s := range l.sessionsOf(participant) {
		if err := s.Send(msg); err != nil {
			log.Printf("⚠️  Failed to send to session %s: %v", s.ID(), err)
		}
	}
}

// deliver sends a change to a participant, falling back to its replay
// backlog when no session is connected or the send fails.
func (c *Coordinator) deliver(l *loop, participant models.Origin, msg *models.WireMessage) {
	sessions := l.sessionsOf(participant)
	if len(sessions) == 0 {
		l.backlog(participant).Put(msg)
		return
	}
	for _, s := range sessions {
		if err := s.Send(msg); err != nil {
			log.Printf("⚠️  Send to %s session %s failed, buffering: %v", participant, s.ID(), err)
			l.backlog(participant).Put(msg)
		}
	}
}

// replay drains a backlog into a freshly attached session, retrying each
// message with bounded exponential backoff before giving up and re-buffering.
func (c *Coordinator) replay(s bridge.Session, bl *bridge.Backlog) {
	msgs := bl.Drain()
	log.Printf("  Replaying %d buffered change(s) to session %s", len(msgs), s.ID())

	for i, msg := range msgs {
		send := func() error { return s.Send(msg) }
		policy := backoff.WithContext(replayPolicy(), c.ctx)
		if err := backoff.Retry(send, policy); err != nil {
			// Re-buffer the whole undelivered tail, failed message
			// included, so nothing drained is lost.
			for _, m := range msgs[i:] {
				bl.Put(m)
			}
			log.Printf("⚠️  Replay to session %s failed: %v", s.ID(), err)
			return
		}
	}
}

// sendInitialState pushes the whole committed document to a new session as
// create events, so the client reconstructs state without a separate fetch.
func (c *Coordinator) sendInitialState(s bridge.Session, doc *models.DesignDocument) {
	if len(doc.Tokens) > 0 {
		s.Send(&models.WireMessage{
			Type:       models.WireTypeChange,
			Origin:     models.OriginFile,
			DocumentID: doc.ID,
			Operation:  models.OpUpdate,
			Tokens:     doc.Tokens,
			Revision:   doc.Revision,
		})
	}
	for _, el := range doc.Elements {
		s.Send(&models.WireMessage{
			Type:       models.WireTypeChange,
			Origin:     el.Origin,
			DocumentID: doc.ID,
			ElementID:  el.ID,
			Operation:  models.OpCreate,
			Payload:    el,
			Revision:   el.Revision,
		})
	}
}

func (c *Coordinator) abs(rel string) string {
	return filepath.Join(c.opts.WorkspaceDir, filepath.FromSlash(rel))
}

func (l *loop) setState(state string) {
	l.mu.Lock()
	l.state = state
	l.mu.Unlock()
}

func (l *loop) sessionsOf(participant models.Origin) []bridge.Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []bridge.Session
	for s := range l.sessions {
		if s.Participant() == participant {
			out = append(out, s)
		}
	}
	return out
}

func (l *loop) backlog(participant models.Origin) *bridge.Backlog {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.backlogs[participant]
}

func writeFileRetry(ctx context.Context, path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	write := func() error { return os.WriteFile(path, data, 0o644) }
	return backoff.Retry(write, backoff.WithContext(writePolicy(), ctx))
}

func writePolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Second
	return b
}

func replayPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 10 * time.Second
	return b
}
