package inference

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/taskcouncil/engine/internal/ids"
)

// cancelToken is the shared cancellation flag named in spec §4.1's
// InferenceMessage shape. Dropping a Future's context trips it; the owner
// goroutine checks it before starting native inference, never mid-call
// (spec §4.1 Cancellation: "A native call already in flight is not
// aborted").
type cancelToken struct {
	tripped atomic.Bool
}

func (c *cancelToken) trip()       { c.tripped.Store(true) }
func (c *cancelToken) isTripped() bool { return c.tripped.Load() }

// inferenceMessage is the wire shape of the owner goroutine's inbox
// (spec §4.1's InferenceMessage). loadReply/unload are internal request
// kinds riding the same inbox so load/unload serialize FIFO with ordinary
// inference calls on a shared owner, matching "within a single owner
// thread, messages are handled FIFO" (spec §4.1 Ordering).
type inferenceMessage struct {
	id       uuid.UUID
	modelRef ids.ModelRef
	request  InferenceRequest
	replyTo  chan InferenceResult
	deadline time.Time // zero means no deadline
	cancel   *cancelToken

	// load/unload control messages (modelRef / replyTo reused; request is
	// ignored for these).
	kind        messageKind
	loadDesc    ModelDescriptor
	loadReplyTo chan loadReply
}

type messageKind int

const (
	msgInference messageKind = iota
	msgLoad
	msgUnload
)

type loadReply struct {
	ref ModelRef
	err error
}

// ModelRef re-exports ids.ModelRef so callers of this package rarely need
// to import internal/ids directly for the common case.
type ModelRef = ids.ModelRef
