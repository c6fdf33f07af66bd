package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"facecapture/internal/model"
	"facecapture/internal/service/capture"
	"facecapture/internal/service/landmark"
)

const waitTimeout = 2 * time.Second

func makeSet(t *testing.T, x float64) model.LandmarkSet {
	t.Helper()

	points := make([]model.Point, model.DefaultLandmarkCount)
	for i := range points {
		points[i] = model.Point{X: x, Y: 0.5, Z: 0}
	}
	set, err := model.NewLandmarkSet(points, model.DefaultLandmarkCount)
	require.NoError(t, err)
	return set
}

// deviceRecorder tracks acquisitions of the shared camera.
type deviceRecorder struct {
	devices *capture.Devices

	mu      sync.Mutex
	live    int
	maxLive int
	events  []string
}

func newDeviceRecorder() *deviceRecorder {
	return &deviceRecorder{devices: capture.NewDevices()}
}

func (r *deviceRecorder) acquire(target string) error {
	if err := r.devices.Acquire(target); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live++
	if r.live > r.maxLive {
		r.maxLive = r.live
	}
	r.events = append(r.events, "acquire")
	return nil
}

func (r *deviceRecorder) release(target string) {
	r.mu.Lock()
	r.live--
	r.events = append(r.events, "release")
	r.mu.Unlock()
	r.devices.Release(target)
}

func (r *deviceRecorder) snapshot() (live, maxLive int, events []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live, r.maxLive, append([]string(nil), r.events...)
}

// fakeSource is a capture.Source driven by the test.
type fakeSource struct {
	rec      *deviceRecorder
	startErr error

	// fatal is reported once Start has succeeded, from a new goroutine
	// when fatalAsync is set.
	fatal      error
	fatalAsync bool

	mu       sync.Mutex
	acquired bool
	ctx      context.Context
	onFrame  capture.FrameFunc
	onFatal  capture.FatalFunc
	seq      uint64
}

func (s *fakeSource) Start(ctx context.Context, onFrame capture.FrameFunc, onFatal capture.FatalFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.rec.acquire("0"); err != nil {
		return err
	}
	if s.startErr != nil {
		// partial initialisation must not leak the device
		s.rec.release("0")
		return s.startErr
	}
	s.acquired = true
	s.ctx = ctx
	s.onFrame = onFrame
	s.onFatal = onFatal

	if s.fatal != nil {
		if s.fatalAsync {
			go onFatal(s.fatal)
		} else {
			onFatal(s.fatal)
		}
	}
	return nil
}

func (s *fakeSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.acquired {
		return nil
	}
	s.acquired = false
	s.rec.release("0")
	return nil
}

func (s *fakeSource) isAcquired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquired
}

// emit delivers one frame synchronously, as the camera goroutine would.
func (s *fakeSource) emit() bool {
	s.mu.Lock()
	if !s.acquired {
		s.mu.Unlock()
		return false
	}
	s.seq++
	frame := model.Frame{Seq: s.seq, Timestamp: time.Now(), Width: 640, Height: 480}
	ctx, onFrame := s.ctx, s.onFrame
	s.mu.Unlock()

	onFrame(ctx, frame)
	return true
}

func (s *fakeSource) fail(err error) {
	s.mu.Lock()
	onFatal := s.onFatal
	s.mu.Unlock()
	onFatal(err)
}

type fakeExtractor struct {
	extract func(frame model.Frame) (*model.LandmarkSet, error)
	closed  int32
}

func (e *fakeExtractor) Extract(ctx context.Context, frame model.Frame) (*model.LandmarkSet, error) {
	return e.extract(frame)
}

func (e *fakeExtractor) Close() error {
	atomic.AddInt32(&e.closed, 1)
	return nil
}

func (e *fakeExtractor) isClosed() bool {
	return atomic.LoadInt32(&e.closed) > 0
}

type classifyResult struct {
	label model.Label
	err   error
}

// fakeClassifier blocks every call until the test resolves it.
type fakeClassifier struct {
	calls     chan model.LandmarkSet
	results   chan classifyResult
	count     int32
	finished  int32
	ignoreCtx bool
}

func newFakeClassifier() *fakeClassifier {
	return &fakeClassifier{
		calls:   make(chan model.LandmarkSet, 16),
		results: make(chan classifyResult),
	}
}

func (f *fakeClassifier) Classify(ctx context.Context, set model.LandmarkSet) (model.Label, error) {
	atomic.AddInt32(&f.count, 1)
	defer atomic.AddInt32(&f.finished, 1)
	f.calls <- set

	if f.ignoreCtx {
		r := <-f.results
		return r.label, r.err
	}
	select {
	case r := <-f.results:
		return r.label, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *fakeClassifier) invocations() int {
	return int(atomic.LoadInt32(&f.count))
}

func (f *fakeClassifier) returned() int {
	return int(atomic.LoadInt32(&f.finished))
}

func (f *fakeClassifier) waitCall(t *testing.T) model.LandmarkSet {
	t.Helper()
	select {
	case set := <-f.calls:
		return set
	case <-time.After(waitTimeout):
		t.Fatal("classifier was not called")
		return model.LandmarkSet{}
	}
}

func (f *fakeClassifier) resolve(t *testing.T, label model.Label, err error) {
	t.Helper()
	select {
	case f.results <- classifyResult{label: label, err: err}:
	case <-time.After(waitTimeout):
		t.Fatal("no classification waiting to be resolved")
	}
}

// harness wires a Controller to fakes.
type harness struct {
	t          *testing.T
	rec        *deviceRecorder
	classifier *fakeClassifier
	ctrl       *Controller

	mu         sync.Mutex
	startErr   error
	fatal      error
	fatalAsync bool
	extract    func(frame model.Frame) (*model.LandmarkSet, error)
	sources    []*fakeSource
	extractors []*fakeExtractor
	windows    [][]model.Label
	errs       []error
}

func newHarness(t *testing.T, windowSize int) *harness {
	t.Helper()

	h := &harness{
		t:          t,
		rec:        newDeviceRecorder(),
		classifier: newFakeClassifier(),
	}
	set := makeSet(t, 0.1)
	h.extract = func(model.Frame) (*model.LandmarkSet, error) { return &set, nil }

	ctrl, err := New(Options{
		NewSource: func() capture.Source {
			h.mu.Lock()
			defer h.mu.Unlock()
			src := &fakeSource{rec: h.rec, startErr: h.startErr, fatal: h.fatal, fatalAsync: h.fatalAsync}
			h.sources = append(h.sources, src)
			return src
		},
		NewExtractor: func(ctx context.Context) (landmark.Extractor, error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			ext := &fakeExtractor{extract: func(frame model.Frame) (*model.LandmarkSet, error) {
				h.mu.Lock()
				fn := h.extract
				h.mu.Unlock()
				return fn(frame)
			}}
			h.extractors = append(h.extractors, ext)
			return ext, nil
		},
		Classifier: h.classifier,
		WindowSize: windowSize,
		OnWindowChange: func(window []model.Label) {
			h.mu.Lock()
			h.windows = append(h.windows, window)
			h.mu.Unlock()
		},
		OnError: func(err error) {
			h.mu.Lock()
			h.errs = append(h.errs, err)
			h.mu.Unlock()
		},
	})
	require.NoError(t, err)
	h.ctrl = ctrl

	t.Cleanup(func() { ctrl.Stop() })
	return h
}

func (h *harness) setStartErr(err error) {
	h.mu.Lock()
	h.startErr = err
	h.mu.Unlock()
}

// setStartFatal makes later sources report err right after a successful Start.
func (h *harness) setStartFatal(err error, async bool) {
	h.mu.Lock()
	h.fatal = err
	h.fatalAsync = async
	h.mu.Unlock()
}

func (h *harness) setExtract(fn func(frame model.Frame) (*model.LandmarkSet, error)) {
	h.mu.Lock()
	h.extract = fn
	h.mu.Unlock()
}

func (h *harness) source(i int) *fakeSource {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sources[i]
}

func (h *harness) latest() *fakeSource {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sources[len(h.sources)-1]
}

func (h *harness) windowEvents() [][]model.Label {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]model.Label(nil), h.windows...)
}

func (h *harness) reportedErrors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errs...)
}

func (h *harness) start() {
	h.t.Helper()
	require.NoError(h.t, h.ctrl.Start(context.Background()))
	require.Equal(h.t, StateReady, h.ctrl.Snapshot().State)
}

// classifyOnce pushes one frame through and resolves it with label.
func (h *harness) classifyOnce(label model.Label) {
	h.t.Helper()

	before := h.ctrl.Snapshot().Stats.Classified
	require.True(h.t, h.latest().emit())
	h.classifier.waitCall(h.t)
	h.classifier.resolve(h.t, label, nil)
	h.waitIdle(func(s Snapshot) bool { return s.Stats.Classified == before+1 })
}

// waitIdle waits until cond holds and no request is outstanding.
func (h *harness) waitIdle(cond func(Snapshot) bool) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		s := h.ctrl.Snapshot()
		return !s.InFlight && cond(s)
	}, waitTimeout, 5*time.Millisecond)
}
