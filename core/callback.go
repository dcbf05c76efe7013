package core

import (
	"sync"

	"defylink/protocol"
)

// Listener receives a dispatched packet. The packet is only valid for the
// duration of the call.
type Listener func(p *protocol.Packet)

// Handle identifies one binding so it can be removed later
type Handle uint32

type binding struct {
	handle Handle
	fn     Listener
}

// Callbacks maps packet commands to ordered listener lists.
// Lists are copy-on-write so Call can run without holding the lock while
// listeners bind or unbind.
type Callbacks struct {
	mu         sync.RWMutex
	listeners  map[protocol.Command][]binding
	nextHandle Handle
}

// NewCallbacks creates an empty registry
func NewCallbacks() *Callbacks {
	return &Callbacks{
		listeners:  make(map[protocol.Command][]binding),
		nextHandle: 1,
	}
}

// Bind appends fn to the listeners of cmd
func (c *Callbacks) Bind(cmd protocol.Command, fn Listener) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.nextHandle
	c.nextHandle++

	old := c.listeners[cmd]
	list := make([]binding, len(old), len(old)+1)
	copy(list, old)
	c.listeners[cmd] = append(list, binding{handle: h, fn: fn})
	return h
}

// Unbind removes a binding. Returns false if h was not bound to cmd.
func (c *Callbacks) Unbind(cmd protocol.Command, h Handle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.listeners[cmd]
	for i, b := range old {
		if b.handle != h {
			continue
		}
		if len(old) == 1 {
			delete(c.listeners, cmd)
			return true
		}
		list := make([]binding, 0, len(old)-1)
		list = append(list, old[:i]...)
		list = append(list, old[i+1:]...)
		c.listeners[cmd] = list
		return true
	}
	return false
}

// Call invokes every listener bound to cmd, in bind order, on the calling
// goroutine. A command with no listeners is a no-op. Panics propagate.
func (c *Callbacks) Call(cmd protocol.Command, p *protocol.Packet) {
	c.mu.RLock()
	list := c.listeners[cmd]
	c.mu.RUnlock()

	for _, b := range list {
		b.fn(p)
	}
}

// Count returns the number of listeners bound to cmd
func (c *Callbacks) Count(cmd protocol.Command) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.listeners[cmd])
}
