// Package pipeline runs the capture → landmark → classification loop.
//
// A Controller owns one session at a time. Each session has its own camera
// source, landmark extractor and inference gate; starting a new session
// always releases the previous one first. Labels returned by the classifier
// land in a fixed-size rolling window that observers see as snapshots.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"facecapture/internal/logger"
	"facecapture/internal/model"
	"facecapture/internal/service/capture"
	"facecapture/internal/service/landmark"
)

// DefaultWindowSize is the number of labels kept when Options.WindowSize is unset.
const DefaultWindowSize = 4

// Classifier maps a landmark set to a label.
type Classifier interface {
	Classify(ctx context.Context, set model.LandmarkSet) (model.Label, error)
}

// Options wires a Controller to its collaborators.
type Options struct {
	// NewSource builds a fresh frame source for every session.
	NewSource func() capture.Source
	// NewExtractor builds a fresh landmark extractor for every session.
	NewExtractor func(ctx context.Context) (landmark.Extractor, error)
	Classifier   Classifier

	WindowSize int

	// OnWindowChange receives the window after every accepted label.
	OnWindowChange func(window []model.Label)
	// OnError receives acquisition, extraction, classification and device errors.
	OnError func(err error)

	Logger *logger.Logger
}

type session struct {
	id        string
	ctx       context.Context
	cancel    context.CancelFunc
	source    capture.Source
	extractor landmark.Extractor
	gate      *Gate
	fatalErr  error // device failure reported before the session was ready

	releaseOnce sync.Once
	releaseErr  error
}

type subscriber struct {
	id int
	fn func(Snapshot)
}

// Controller is the pipeline state machine. All methods are safe for
// concurrent use. Observers must not call Start, Stop or Restart from
// inside a callback.
type Controller struct {
	opts   Options
	logger *logger.Logger

	// opMu serializes Start, Stop and Restart.
	opMu sync.Mutex

	mu          sync.Mutex
	state       State
	reason      string
	lastErr     string
	window      *Window
	stats       Stats
	session     *session
	updatedAt   time.Time
	seq         uint64
	subscribers []subscriber
	nextSubID   int

	// emitMu orders delivery to observers.
	emitMu      sync.Mutex
	lastEmitted uint64
}

// New creates an idle controller.
func New(opts Options) (*Controller, error) {
	if opts.NewSource == nil {
		return nil, errors.New("pipeline: NewSource must be set")
	}
	if opts.NewExtractor == nil {
		return nil, errors.New("pipeline: NewExtractor must be set")
	}
	if opts.Classifier == nil {
		return nil, errors.New("pipeline: Classifier must be set")
	}
	if opts.WindowSize <= 0 {
		opts.WindowSize = DefaultWindowSize
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewDiscard()
	}

	return &Controller{
		opts:      opts,
		logger:    opts.Logger,
		state:     StateIdle,
		window:    NewWindow(opts.WindowSize),
		updatedAt: time.Now(),
	}, nil
}

// Start acquires the camera and extractor and begins processing frames.
// ctx bounds acquisition only; the session runs until Stop. Starting a
// Ready controller is a no-op.
func (c *Controller) Start(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.start(ctx)
}

// Stop ends the current session and releases the camera. Results that
// arrive afterwards are discarded. Stopping an idle or stopped controller
// is a no-op.
func (c *Controller) Stop() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.stop()
}

// Restart stops the current session, if any, and starts a new one.
func (c *Controller) Restart(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.stop(); err != nil {
		c.logger.Warning("Restart: releasing previous session: %v", err)
	}
	return c.start(ctx)
}

// Snapshot returns the current view of the controller.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers fn to receive a snapshot after every change and
// returns a function that removes it.
func (c *Controller) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSubID++
	id := c.nextSubID
	c.subscribers = append(c.subscribers, subscriber{id: id, fn: fn})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, sub := range c.subscribers {
			if sub.id == id {
				c.subscribers = append(c.subscribers[:i:i], c.subscribers[i+1:]...)
				return
			}
		}
	}
}

func (c *Controller) start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateReady {
		c.mu.Unlock()
		return nil
	}
	prev := c.session
	c.mu.Unlock()

	// The previous camera must be fully released before a new acquisition.
	if err := c.release(prev); err != nil {
		c.logger.Warning("Releasing session %s: %v", prev.id, err)
	}

	s := &session{id: uuid.NewString()}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.gate = NewGate(func(ctx context.Context, set model.LandmarkSet) {
		c.classify(s, ctx, set)
	})

	c.mu.Lock()
	c.session = s
	c.window = NewWindow(c.opts.WindowSize)
	c.stats = Stats{}
	c.lastErr = ""
	c.reason = ""
	c.state = StateStarting
	c.publishLocked(false, nil)

	c.logger.Info("🎬 Session %s starting", s.id)

	err := c.acquire(ctx, s)

	// s.fatalErr holds a device fatal reported while Starting. It is read
	// under the same lock that enters Ready.
	c.mu.Lock()
	if err == nil {
		err = s.fatalErr
	}
	if err == nil {
		c.state = StateReady
		c.publishLocked(false, nil)

		c.logger.Info("✅ Session %s ready", s.id)
		return nil
	}
	c.mu.Unlock()

	if relErr := c.release(s); relErr != nil {
		c.logger.Warning("Releasing failed session %s: %v", s.id, relErr)
	}

	c.mu.Lock()
	c.state = StateFailed
	c.reason = err.Error()
	c.lastErr = err.Error()
	c.publishLocked(false, err)

	c.logger.Error("Session %s failed to start: %v", s.id, err)
	return err
}

func (c *Controller) acquire(ctx context.Context, s *session) error {
	extractor, err := c.opts.NewExtractor(ctx)
	if err != nil {
		return errors.Wrap(err, "create landmark extractor")
	}
	s.extractor = extractor

	s.source = c.opts.NewSource()
	onFrame := func(ctx context.Context, frame model.Frame) {
		c.handleFrame(s, ctx, frame)
	}
	onFatal := func(err error) {
		c.handleFatal(s, err)
	}
	if err := s.source.Start(s.ctx, onFrame, onFatal); err != nil {
		return errors.Wrap(err, "start camera")
	}
	return nil
}

func (c *Controller) stop() error {
	c.mu.Lock()
	if c.state == StateIdle || c.state == StateStopped {
		c.mu.Unlock()
		return nil
	}
	s := c.session
	c.state = StateStopped
	c.reason = ""
	c.publishLocked(false, nil)

	err := c.release(s)
	if s != nil {
		c.logger.Info("🛑 Session %s stopped", s.id)
	}
	return err
}

// release cancels the session and frees its camera and extractor. Safe to
// call more than once; later calls wait for the first to finish.
func (c *Controller) release(s *session) error {
	if s == nil {
		return nil
	}

	s.releaseOnce.Do(func() {
		s.cancel()

		var firstErr error
		if s.source != nil {
			if err := s.source.Stop(); err != nil {
				firstErr = errors.Wrap(err, "stop camera")
			}
		}
		if s.extractor != nil {
			if err := s.extractor.Close(); err != nil && firstErr == nil {
				firstErr = errors.Wrap(err, "close landmark extractor")
			}
		}
		s.releaseErr = firstErr
	})
	return s.releaseErr
}

// activeLocked reports whether s is the running session. Callers hold c.mu.
func (c *Controller) activeLocked(s *session) bool {
	return c.session == s && c.state == StateReady
}

func (c *Controller) handleFrame(s *session, ctx context.Context, frame model.Frame) {
	c.mu.Lock()
	if !c.activeLocked(s) {
		c.mu.Unlock()
		return
	}
	c.stats.FramesSeen++
	c.mu.Unlock()

	set, err := s.extractor.Extract(ctx, frame)
	if err != nil {
		if ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		if !c.activeLocked(s) {
			c.mu.Unlock()
			return
		}
		c.stats.ExtractionErrors++
		c.lastErr = err.Error()
		c.publishLocked(false, errors.Wrapf(err, "extract landmarks from frame %d", frame.Seq))

		c.logger.Warning("Session %s: landmark extraction failed: %v", s.id, err)
		return
	}

	if set == nil {
		c.mu.Lock()
		if c.activeLocked(s) {
			c.stats.ExtractionMisses++
		}
		c.mu.Unlock()
		return
	}

	s.gate.Submit(ctx, *set)
}

func (c *Controller) classify(s *session, ctx context.Context, set model.LandmarkSet) {
	label, err := c.opts.Classifier.Classify(ctx, set)

	c.mu.Lock()
	if !c.activeLocked(s) {
		if c.session == s {
			c.stats.LateDiscarded++
		}
		c.mu.Unlock()
		c.logger.Info("Session %s: discarding result that arrived after stop", s.id)
		return
	}

	if err != nil {
		c.stats.ClassifyErrors++
		c.lastErr = err.Error()
		c.publishLocked(false, err)

		c.logger.Warning("Session %s: emotion detection error: %v", s.id, err)
		return
	}

	c.stats.Classified++
	c.window.Push(label)
	c.publishLocked(true, nil)
}

func (c *Controller) handleFatal(s *session, err error) {
	c.mu.Lock()
	if c.session == s && c.state == StateStarting {
		s.fatalErr = err
		c.mu.Unlock()
		return
	}
	if !c.activeLocked(s) {
		c.mu.Unlock()
		return
	}
	c.state = StateFailed
	c.reason = err.Error()
	c.lastErr = err.Error()
	c.publishLocked(false, err)

	c.logger.Error("Session %s failed: %v", s.id, err)

	// The source calls onFatal from its own goroutine and Stop waits for
	// that goroutine, so release elsewhere.
	go func() {
		if relErr := c.release(s); relErr != nil {
			c.logger.Warning("Releasing failed session %s: %v", s.id, relErr)
		}
	}()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:     c.state,
		Reason:    c.reason,
		Window:    c.window.Snapshot(),
		LastError: c.lastErr,
		Stats:     c.stats,
		UpdatedAt: c.updatedAt,
		seq:       c.seq,
	}
	if c.session != nil {
		snap.SessionID = c.session.id
		snap.InFlight = c.session.gate.Busy()
		snap.Stats.Submitted = c.session.gate.Submitted()
		snap.Stats.Dropped = c.session.gate.Dropped()
	}
	return snap
}

// publishLocked records a change and notifies observers. It must be called
// with c.mu held and returns with c.mu released.
func (c *Controller) publishLocked(windowChanged bool, err error) {
	c.seq++
	c.updatedAt = time.Now()
	snap := c.snapshotLocked()
	subs := make([]subscriber, len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()

	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	// A newer change may already have been delivered.
	if snap.seq > c.lastEmitted {
		c.lastEmitted = snap.seq
		for _, sub := range subs {
			view := snap
			view.Window = cloneLabels(snap.Window)
			sub.fn(view)
		}
	}

	if windowChanged && c.opts.OnWindowChange != nil {
		c.opts.OnWindowChange(cloneLabels(snap.Window))
	}
	if err != nil && c.opts.OnError != nil {
		c.opts.OnError(err)
	}
}

func cloneLabels(labels []model.Label) []model.Label {
	out := make([]model.Label, len(labels))
	copy(out, labels)
	return out
}
