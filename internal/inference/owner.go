package inference

import (
	goruntime "runtime"
	"time"

	"go.uber.org/zap"

	"github.com/taskcouncil/engine/internal/errors"
	"github.com/taskcouncil/engine/internal/ids"
)

// owner is one owner goroutine: it holds a thread-local (never shared)
// table of native handles and drains its inbox FIFO (spec §4.1 Ordering).
// For an exclusive backend it locks itself to its OS thread for its
// entire lifetime — the Go-idiomatic realization of "a dedicated OS
// thread that owns a set of model handles" (spec §9).
type owner struct {
	id      string
	backend Backend
	inbox   chan inferenceMessage
	handles map[ids.ModelRef]NativeHandle
	rt      *Runtime
	log     *zap.Logger
}

func newOwner(id string, backend Backend, capacity int, rt *Runtime) *owner {
	return &owner{
		id:      id,
		backend: backend,
		inbox:   make(chan inferenceMessage, capacity),
		handles: make(map[ids.ModelRef]NativeHandle),
		rt:      rt,
		log:     rt.log.With(zap.String("owner", id), zap.String("backend", string(backend.Tag()))),
	}
}

// run is the owner goroutine's body. It must only ever be started with
// `go o.run()`.
func (o *owner) run() {
	if o.backend.Exclusive() {
		goruntime.LockOSThread()
		defer goruntime.UnlockOSThread()
	}
	defer o.recoverCrash()

	for msg := range o.inbox {
		o.handle(msg)
	}
}

// recoverCrash converts an owner-goroutine panic into the registry
// cleanup and inbox-draining behavior spec §4.1's Failure model
// describes, instead of letting it take down the process.
func (o *owner) recoverCrash() {
	r := recover()
	if r == nil {
		return
	}
	o.log.Error("owner goroutine panicked; treating as backend crash", zap.Any("panic", r))
	o.rt.handleOwnerCrash(o)
}

func (o *owner) handle(msg inferenceMessage) {
	switch msg.kind {
	case msgLoad:
		o.handleLoad(msg)
	case msgUnload:
		o.handleUnload(msg)
	default:
		o.handleInference(msg)
	}
}

func (o *owner) handleLoad(msg inferenceMessage) {
	handle, err := o.backend.Load(o.rt.loadContext(), msg.loadDesc)
	if err != nil {
		msg.loadReplyTo <- loadReply{err: errors.Wrap(errors.KindModelLoadFailed, "backend load failed", err)}
		return
	}
	ref := o.rt.nextModelRef()
	o.handles[ref] = handle
	o.rt.registry.register(ref, msg.loadDesc.Hash(), ownerEndpoint{ownerID: o.id, inbox: o.inbox})
	msg.loadReplyTo <- loadReply{ref: ref}
}

func (o *owner) handleUnload(msg inferenceMessage) {
	if h, ok := o.handles[msg.modelRef]; ok {
		o.backend.Unload(h)
		delete(o.handles, msg.modelRef)
	}
	o.rt.registry.unregister(msg.modelRef)
	close(msg.replyTo)
}

func (o *owner) handleInference(msg inferenceMessage) {
	start := time.Now()

	handle, ok := o.handles[msg.modelRef]
	if !ok {
		o.reply(msg, InferenceResult{Status: ResultNotFound, Elapsed: time.Since(start)})
		return
	}
	if msg.cancel != nil && msg.cancel.isTripped() {
		o.reply(msg, InferenceResult{Status: ResultCancelled, Elapsed: time.Since(start)})
		return
	}
	if !msg.deadline.IsZero() && time.Now().After(msg.deadline) {
		o.reply(msg, InferenceResult{Status: ResultTimeout, Elapsed: time.Since(start)})
		return
	}

	ctx := o.rt.inferenceContext(msg.deadline)
	result, err := o.backend.Invoke(ctx, handle, msg.request)
	result.Elapsed = time.Since(start)
	if err != nil {
		o.log.Warn("backend invoke failed", zap.Error(err))
		result.Status = ResultOverload
	} else if result.Status == "" {
		result.Status = ResultOK
	}
	o.reply(msg, result)
}

// reply sends without blocking the owner loop forever if the caller
// already walked away; the reply channel is always created with buffer 1
// (see Runtime.EnqueueInference), so this never blocks.
func (o *owner) reply(msg inferenceMessage, result InferenceResult) {
	msg.replyTo <- result
}

// close ends the owner goroutine by closing its inbox, which lets the
// range loop in run() return and the deferred thread-unlock (if any) run.
// Safe to call at most once per owner.
func (o *owner) close() {
	close(o.inbox)
}
