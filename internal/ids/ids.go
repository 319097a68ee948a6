// Package ids defines the engine's opaque identifier types (spec §3):
// TaskId (128-bit), ModelRef (64-bit capability token), and StepID. All
// three are plain value types — copyable, comparable, safe to send across
// goroutines — carrying no pointer to anything thread-confined.
package ids

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// TaskId is an opaque, stable, copyable 128-bit task identifier. The zero
// value is not a valid task id; use NewTaskID.
type TaskId struct {
	hi uint64
	lo uint64
}

// NewTaskID mints a fresh TaskId backed by a random UUIDv4. Callers never
// see the UUID representation; TaskId is opaque by contract.
func NewTaskID() TaskId {
	u := uuid.New()
	return TaskId{
		hi: binary.BigEndian.Uint64(u[0:8]),
		lo: binary.BigEndian.Uint64(u[8:16]),
	}
}

// Zero reports whether this is the zero-value (invalid) TaskId.
func (t TaskId) Zero() bool { return t.hi == 0 && t.lo == 0 }

func (t TaskId) String() string {
	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], t.hi)
	binary.BigEndian.PutUint64(b[8:16], t.lo)
	u, err := uuid.FromBytes(b[:])
	if err != nil {
		return fmt.Sprintf("task-%016x%016x", t.hi, t.lo)
	}
	return u.String()
}

// MarshalText implements encoding.TextMarshaler so TaskId round-trips
// through JSON/YAML as its canonical string form (used by the storage
// collaborator's persist/load round-trip, spec §8).
func (t TaskId) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TaskId) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return fmt.Errorf("ids: invalid TaskId %q: %w", text, err)
	}
	b, _ := u.MarshalBinary()
	t.hi = binary.BigEndian.Uint64(b[0:8])
	t.lo = binary.BigEndian.Uint64(b[8:16])
	return nil
}

// ParseTaskID parses the canonical string form produced by String.
func ParseTaskID(s string) (TaskId, error) {
	var t TaskId
	err := t.UnmarshalText([]byte(s))
	return t, err
}

// ModelRef is an opaque, copyable capability token identifying a loaded
// model (spec §3): holding one grants the right to enqueue inference but
// conveys no access to the underlying native handle. The zero value is
// the invalid/unset ref.
type ModelRef uint64

// Zero reports whether this is the invalid/unset ModelRef.
func (m ModelRef) Zero() bool { return m == 0 }

func (m ModelRef) String() string { return fmt.Sprintf("model-%016x", uint64(m)) }

// StepID uniquely identifies an ExecutionStep within a single
// ExecutionPlan (spec §3). Step ids are assigned by the planner and are
// stable strings so plans serialize deterministically (spec §8,
// "deterministic planning").
type StepID string

func (s StepID) String() string { return string(s) }
