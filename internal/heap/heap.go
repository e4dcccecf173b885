// Package heap implements the precise, incremental tracing collector that
// backs every managed allocation in the interpreter. It mirrors the
// Object/Marked/Next bookkeeping sketched by the register VM it was lifted
// from, but actually drives a mark-sweep cycle instead of leaving every
// object to leak for the process lifetime.
package heap

// Color is the tri-color abstraction used by the incremental collector.
type Color uint8

const (
	White Color = iota // candidate for collection this cycle
	Gray                // reachable, children not yet traced
	Black               // reachable, children traced
)

// Object is the intrusive header every managed allocation embeds. The
// collector never touches the allocation's domain fields directly; it only
// walks Next and flips color.
type Object struct {
	color Color
	next  *Object
	kind  string // diagnostic name, e.g. "table", "string"
}

// Kind returns the diagnostic name supplied at allocation time.
func (o *Object) Kind() string { return o.kind }

// Tag constructs the embeddable Object header for a new allocation, e.g.
// heap.Object: heap.Tag("string") in a composite literal.
func Tag(kind string) Object { return Object{kind: kind} }

// Traceable is implemented by every heap-allocated type. Trace must report
// every managed reference the object currently holds; a reference left
// unreported may be collected out from under a live object.
type Traceable interface {
	Header() *Object
	Trace(t *Tracer)
}

// Tracer receives the outgoing references of an object being traced.
type Tracer struct {
	h *Heap
}

// Mark registers ref as reachable from the object currently being traced.
// A nil ref (no value held in that slot) is ignored.
func (t *Tracer) Mark(ref Traceable) {
	if ref == nil {
		return
	}
	t.h.shade(ref)
}

// Heap owns every managed allocation and the state of the current GC cycle.
type Heap struct {
	all       *Object // intrusive singly-linked list of every live allocation
	gray      []Traceable
	cycling   bool // a mark phase is in progress (roots already grayed)
	allocated int
	freed     int
	cycles    int
}

// New returns an empty heap with no allocations and no cycle in progress.
func New() *Heap {
	return &Heap{}
}

// Register links a freshly allocated object into the heap's object list.
// Objects are allocated black while a cycle is in progress so that a
// reference stored into an already-black container via the write barrier
// is never mistaken for garbage before the next cycle starts.
func Register[T Traceable](h *Heap, obj T) T {
	hdr := obj.Header()
	hdr.next = h.all
	h.all = hdr
	if h.cycling {
		hdr.color = Black
	} else {
		hdr.color = White
	}
	h.allocated++
	return obj
}

// shade queues ref for tracing, graying it first if it is a normal,
// color-tracked allocation. Some Traceable values passed to Step/Collect
// are pseudo-roots with no allocation of their own (Header() == nil) — the
// VM itself is one, see interp.root — and carry no color state to flip;
// those are queued unconditionally so their children still get traced.
func (h *Heap) shade(ref Traceable) {
	hdr := ref.Header()
	if hdr == nil {
		h.gray = append(h.gray, ref)
		return
	}
	if hdr.color == White {
		hdr.color = Gray
		h.gray = append(h.gray, ref)
	}
}

// WriteBarrier must be called whenever a mutation stores ref into a
// heap-resident container (a table slot, an upvalue cell, a closure's
// upvalue list). If a mark phase is in progress the newly-reachable
// object is grayed immediately, preserving the strong tri-color invariant
// without requiring every write site to know about GC phases.
func (h *Heap) WriteBarrier(ref Traceable) {
	if !h.cycling || ref == nil {
		return
	}
	h.shade(ref)
}

// Step performs one bounded unit of collector work rooted at root.
//
//  1. If no cycle is in progress, the root is queued for tracing and a new
//     cycle begins.
//  2. One gray object is popped, blackened, and its children grayed. A
//     popped object with no header of its own (a pseudo-root like the VM,
//     which is never itself collected) skips the color flip and is traced
//     as-is.
//  3. When the gray queue drains, the heap is swept: white objects are
//     unlinked (and thus eligible for Go's own GC to reclaim), survivors
//     flip back to white for the next cycle.
func (h *Heap) Step(root Traceable) {
	if !h.cycling {
		h.cycling = true
		h.shade(root)
	}

	if len(h.gray) > 0 {
		obj := h.gray[len(h.gray)-1]
		h.gray = h.gray[:len(h.gray)-1]
		if hdr := obj.Header(); hdr != nil {
			hdr.color = Black
		}
		obj.Trace(&Tracer{h: h})
		return
	}

	h.sweep()
}

// sweep walks the full object list once the gray queue is empty, dropping
// every white node and resetting survivors to white for the next cycle.
func (h *Heap) sweep() {
	var kept *Object
	var tail *Object
	for o := h.all; o != nil; {
		next := o.next
		if o.color == White {
			h.freed++
		} else {
			o.color = White
			o.next = nil
			if kept == nil {
				kept = o
				tail = o
			} else {
				tail.next = o
				tail = o
			}
		}
		o = next
	}
	h.all = kept
	h.cycling = false
	h.cycles++
}

// Collect runs Step to completion: one full mark phase plus the sweep.
// Useful for tests and for the driver's --stats mode (via VM.Collect).
func (h *Heap) Collect(root Traceable) {
	h.Step(root) // starts the cycle (grays root)
	for h.cycling {
		h.Step(root)
	}
}

// Stats summarizes collector activity for diagnostics.
type Stats struct {
	Allocated int
	Freed     int
	Live      int
	Cycles    int
}

func (h *Heap) Stat() Stats {
	live := 0
	for o := h.all; o != nil; o = o.next {
		live++
	}
	return Stats{Allocated: h.allocated, Freed: h.freed, Live: live, Cycles: h.cycles}
}

// LeakAll abandons the heap without a final sweep, matching the driver's
// leak_all fast-exit mode: nothing is walked or freed, Go's own process
// teardown reclaims everything.
func (h *Heap) LeakAll() {
	h.all = nil
	h.gray = nil
}
