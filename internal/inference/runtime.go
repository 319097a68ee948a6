package inference

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/taskcouncil/engine/internal/errors"
	"github.com/taskcouncil/engine/internal/ids"
)

// Config tunes the runtime's concurrency limits (spec §5, §6).
type Config struct {
	BackendInboxCapacity int
	InferenceTimeout      time.Duration
}

// Runtime is the InferenceRuntime of spec §4.1: it owns model handles via
// its owner goroutines and serves inference requests through the
// Registry. Runtime itself is safe for concurrent use; InferenceClient
// wraps a *Runtime to give async callers a cheap, copyable handle.
type Runtime struct {
	cfg      Config
	log      *zap.Logger
	registry *Registry

	backendsMu sync.RWMutex
	backends   map[BackendTag]Backend

	sharedMu     sync.Mutex
	sharedOwners map[BackendTag]*owner // one shared owner per non-exclusive backend tag

	breakersMu sync.Mutex
	breakers   map[BackendTag]*gobreaker.CircuitBreaker

	ownersMu sync.Mutex
	owners   []*owner // every owner ever started, exclusive or shared, for Close

	refCounter atomic.Uint64
}

// NewRuntime constructs an empty Runtime. Backends must be registered via
// RegisterBackend before models of their tag can be loaded.
func NewRuntime(cfg Config, log *zap.Logger) *Runtime {
	if cfg.BackendInboxCapacity <= 0 {
		cfg.BackendInboxCapacity = 256
	}
	if cfg.InferenceTimeout <= 0 {
		cfg.InferenceTimeout = 60 * time.Second
	}
	return &Runtime{
		cfg:          cfg,
		log:          log,
		registry:     newRegistry(),
		backends:     make(map[BackendTag]Backend),
		sharedOwners: make(map[BackendTag]*owner),
		breakers:     make(map[BackendTag]*gobreaker.CircuitBreaker),
	}
}

// RegisterBackend makes a backend family available to LoadModel.
func (r *Runtime) RegisterBackend(b Backend) {
	r.backendsMu.Lock()
	defer r.backendsMu.Unlock()
	r.backends[b.Tag()] = b

	r.breakersMu.Lock()
	defer r.breakersMu.Unlock()
	r.breakers[b.Tag()] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "inference-backend-" + string(b.Tag()),
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
}

func (r *Runtime) backend(tag BackendTag) (Backend, bool) {
	r.backendsMu.RLock()
	defer r.backendsMu.RUnlock()
	b, ok := r.backends[tag]
	return b, ok
}

func (r *Runtime) nextModelRef() ids.ModelRef {
	return ids.ModelRef(r.refCounter.Add(1))
}

// Registry exposes the read-only registry for health/inspection
// (e.g. the worker pool checking whether a step's ModelRef is still
// loaded before dispatch).
func (r *Runtime) Registry() *Registry { return r.registry }

// LoadModel loads desc and returns its capability token (spec §4.1).
// Identical descriptors (by Hash) resolve to the same ModelRef as long as
// that ref is still live.
func (r *Runtime) LoadModel(ctx context.Context, desc ModelDescriptor) (ids.ModelRef, error) {
	hash := desc.Hash()
	if ref, ok := r.registry.lookupByHash(hash); ok && r.registry.Loaded(ref) {
		return ref, nil
	}

	backend, ok := r.backend(desc.Backend)
	if !ok {
		return 0, errors.Newf(errors.KindBadRequest, "no backend registered for tag %q", desc.Backend)
	}

	own := r.ownerFor(backend)
	replyTo := make(chan loadReply, 1)
	msg := inferenceMessage{kind: msgLoad, loadDesc: desc, loadReplyTo: replyTo}

	select {
	case own.inbox <- msg:
	default:
		return 0, errors.New(errors.KindOverloaded, "backend inbox full")
	}

	select {
	case rep := <-replyTo:
		if rep.err != nil {
			return 0, rep.err
		}
		return rep.ref, nil
	case <-ctx.Done():
		return 0, errors.Wrap(errors.KindTimeout, "load_model cancelled", ctx.Err())
	}
}

// ownerFor returns the owner goroutine that will hold a newly loaded
// model's handle: a fresh dedicated one for exclusive backends, or the
// lazily-created shared one otherwise.
func (r *Runtime) ownerFor(backend Backend) *owner {
	if backend.Exclusive() {
		own := newOwner(uuid.NewString(), backend, r.cfg.BackendInboxCapacity, r)
		r.trackOwner(own)
		go own.run()
		return own
	}

	r.sharedMu.Lock()
	defer r.sharedMu.Unlock()
	if own, ok := r.sharedOwners[backend.Tag()]; ok {
		return own
	}
	own := newOwner(string(backend.Tag())+"-shared", backend, r.cfg.BackendInboxCapacity, r)
	r.sharedOwners[backend.Tag()] = own
	r.trackOwner(own)
	go own.run()
	return own
}

func (r *Runtime) trackOwner(o *owner) {
	r.ownersMu.Lock()
	r.owners = append(r.owners, o)
	r.ownersMu.Unlock()
}

// Close stops every owner goroutine the runtime has ever started,
// exclusive and shared alike, by closing their inboxes. It does not wait
// for in-flight calls to finish; callers that need a clean drain should
// unload every model first. Close is intended for process shutdown and
// for tests that need a leak-free teardown.
func (r *Runtime) Close() {
	r.ownersMu.Lock()
	owners := r.owners
	r.owners = nil
	r.ownersMu.Unlock()

	for _, o := range owners {
		o.close()
	}
}

// UnloadModel removes ref from the registry (spec §4.1). Subsequent
// enqueues for ref fail immediately with KindModelNotFound.
func (r *Runtime) UnloadModel(ctx context.Context, ref ids.ModelRef) error {
	ep, ok := r.registry.lookup(ref)
	if !ok {
		return errors.New(errors.KindModelNotFound, "unload: model not loaded")
	}
	replyTo := make(chan InferenceResult)
	msg := inferenceMessage{kind: msgUnload, modelRef: ref, replyTo: replyTo}
	select {
	case ep.inbox <- msg:
	case <-ctx.Done():
		return errors.Wrap(errors.KindTimeout, "unload_model cancelled", ctx.Err())
	}
	select {
	case <-replyTo:
		return nil
	case <-ctx.Done():
		return errors.Wrap(errors.KindTimeout, "unload_model cancelled", ctx.Err())
	}
}

// EnqueueInference asynchronously dispatches req to its model's owner and
// returns a Future (spec §4.1). It fails fast — without a Future — when
// the model is unknown or the owner's inbox is saturated
// (spec §5 Backpressure).
func (r *Runtime) EnqueueInference(ctx context.Context, req InferenceRequest) (*Future, error) {
	ep, ok := r.registry.lookup(req.Model)
	if !ok {
		return nil, errors.New(errors.KindModelNotFound, "enqueue_inference: model not loaded")
	}

	deadline := time.Now().Add(r.cfg.InferenceTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	token := &cancelToken{}
	replyCh := make(chan InferenceResult, 1)
	msg := inferenceMessage{
		id:       uuid.New(),
		modelRef: req.Model,
		request:  req,
		replyTo:  replyCh,
		deadline: deadline,
		cancel:   token,
	}

	select {
	case ep.inbox <- msg:
	default:
		return nil, errors.New(errors.KindOverloaded, "backend inbox full")
	}

	return &Future{resultCh: replyCh, token: token, deadline: deadline}, nil
}

// handleOwnerCrash is invoked (from the owner's own recover path) when an
// owner goroutine panics. It removes the owner's models from the
// registry, drains any messages still queued for it, and — for shared
// owners only — asks the backend's circuit breaker whether a replacement
// may be spawned (spec §4.1 Failure model: "A supervisor may restart a
// crashed backend").
func (r *Runtime) handleOwnerCrash(o *owner) {
	removed := r.registry.unregisterOwner(o.id)
	r.log.Warn("backend crashed; models unloaded", zap.String("owner", o.id), zap.Int("models_removed", len(removed)))

	drainLoop:
	for {
		select {
		case msg := <-o.inbox:
			if msg.kind == msgInference {
				msg.replyTo <- InferenceResult{Status: ResultCrashed}
			} else if msg.kind == msgLoad {
				msg.loadReplyTo <- loadReply{err: errors.New(errors.KindBackendCrashed, "owner crashed before load completed")}
			} else if msg.kind == msgUnload {
				close(msg.replyTo)
			}
		default:
			break drainLoop
		}
	}

	if o.backend.Exclusive() {
		return // each exclusive owner is one-shot; caller must LoadModel again
	}

	r.sharedMu.Lock()
	defer r.sharedMu.Unlock()
	if r.sharedOwners[o.backend.Tag()] != o {
		return // already replaced by a concurrent crash/restart
	}
	delete(r.sharedOwners, o.backend.Tag())

	r.breakersMu.Lock()
	breaker := r.breakers[o.backend.Tag()]
	r.breakersMu.Unlock()

	_, err := breaker.Execute(func() (any, error) {
		replacement := newOwner(string(o.backend.Tag())+"-shared", o.backend, r.cfg.BackendInboxCapacity, r)
		r.trackOwner(replacement)
		go replacement.run()
		r.sharedOwners[o.backend.Tag()] = replacement
		return nil, nil
	})
	if err != nil {
		r.log.Error("supervisor declined to restart backend (circuit open)", zap.String("backend", string(o.backend.Tag())), zap.Error(err))
	}
}

// loadContext and inferenceContext give owner-goroutine callbacks a
// context bounded by the runtime's configured timeout when the caller
// didn't supply a tighter one via the message deadline.
func (r *Runtime) loadContext() context.Context {
	ctx, _ := context.WithTimeout(context.Background(), r.cfg.InferenceTimeout) //nolint:govet // cancel intentionally unused; bounded by timeout
	return ctx
}

func (r *Runtime) inferenceContext(deadline time.Time) context.Context {
	if deadline.IsZero() {
		return context.Background()
	}
	ctx, _ := context.WithDeadline(context.Background(), deadline) //nolint:govet
	return ctx
}
