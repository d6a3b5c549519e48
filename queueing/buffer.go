// Package queueing provides FIFO buffers that can be observed by hooks and
// by the monitoring server.
package queueing

import (
	"log"
	"sync"

	"github.com/nxsim/nxsim/hooking"
)

// HookPosBufPush marks when an element is pushed into the buffer.
var HookPosBufPush = &hooking.HookPos{Name: "Buffer Push"}

// HookPosBufPop marks when an element is popped from the buffer.
var HookPosBufPop = &hooking.HookPos{Name: "Buffer Pop"}

// A Buffer is a FIFO queue for anything.
type Buffer interface {
	hooking.Named
	hooking.Hookable

	CanPush() bool
	Push(e interface{})
	Pop() interface{}
	Peek() interface{}
	Capacity() int
	Size() int

	// Clear removes all elements in the buffer.
	Clear()
}

// NewBuffer creates a default buffer object.
func NewBuffer(name string, capacity int) Buffer {
	return &bufferImpl{
		name:     name,
		capacity: capacity,
	}
}

type bufferImpl struct {
	hooking.HookableBase

	name     string
	capacity int
	elements []interface{}
}

func (b *bufferImpl) Name() string {
	return b.name
}

func (b *bufferImpl) CanPush() bool {
	return len(b.elements) < b.capacity
}

func (b *bufferImpl) Push(e interface{}) {
	if len(b.elements) >= b.capacity {
		log.Panic("buffer overflow")
	}

	b.elements = append(b.elements, e)

	if b.NumHooks() > 0 {
		b.InvokeHook(hooking.HookCtx{
			Domain: b,
			Pos:    HookPosBufPush,
			Item:   e,
		})
	}
}

func (b *bufferImpl) Pop() interface{} {
	if len(b.elements) == 0 {
		return nil
	}

	e := b.elements[0]
	b.elements = b.elements[1:]

	if b.NumHooks() > 0 {
		b.InvokeHook(hooking.HookCtx{
			Domain: b,
			Pos:    HookPosBufPop,
			Item:   e,
		})
	}

	return e
}

func (b *bufferImpl) Peek() interface{} {
	if len(b.elements) == 0 {
		return nil
	}

	return b.elements[0]
}

func (b *bufferImpl) Capacity() int {
	return b.capacity
}

func (b *bufferImpl) Size() int {
	return len(b.elements)
}

func (b *bufferImpl) Clear() {
	b.elements = nil
}

// A ConcurrentBuffer is a Buffer that is safe to use from multiple
// goroutines. The GPU submission queue uses one: the guest-facing side
// pushes, the worker goroutine pops.
type ConcurrentBuffer struct {
	mu    sync.Mutex
	inner Buffer
}

// NewConcurrentBuffer creates a thread-safe buffer.
func NewConcurrentBuffer(name string, capacity int) *ConcurrentBuffer {
	return &ConcurrentBuffer{inner: NewBuffer(name, capacity)}
}

// Name returns the name of the buffer.
func (b *ConcurrentBuffer) Name() string {
	return b.inner.Name()
}

// AcceptHook registers a hook with the underlying buffer.
func (b *ConcurrentBuffer) AcceptHook(hook hooking.Hook) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.inner.AcceptHook(hook)
}

// CanPush checks if the buffer has space left.
func (b *ConcurrentBuffer) CanPush() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.inner.CanPush()
}

// Push adds an element to the back of the buffer.
func (b *ConcurrentBuffer) Push(e interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.inner.Push(e)
}

// Pop removes the front element, returning nil when empty.
func (b *ConcurrentBuffer) Pop() interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.inner.Pop()
}

// Peek returns the front element without removing it.
func (b *ConcurrentBuffer) Peek() interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.inner.Peek()
}

// Capacity returns the maximum number of elements the buffer can hold.
func (b *ConcurrentBuffer) Capacity() int {
	return b.inner.Capacity()
}

// Size returns the number of elements currently in the buffer.
func (b *ConcurrentBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.inner.Size()
}

// Clear removes all elements in the buffer.
func (b *ConcurrentBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.inner.Clear()
}
