package worker

import (
	"log"
	"strings"
	"time"
)

// pendingEntry is one in-flight task awaiting its response: a one-shot
// completion handler plus the timeout handle armed for it.
type pendingEntry struct {
	onComplete func(Response)
	timer      *time.Timer
}

// Channel correlates task ids to pending completion handlers. It turns a
// fire-and-forget message into an awaitable result.
//
// Channel is NOT safe for concurrent use on its own; the Pool serializes
// every access behind its mutex.
type Channel struct {
	pending map[string]*pendingEntry
}

func NewChannel() *Channel {
	return &Channel{
		pending: make(map[string]*pendingEntry),
	}
}

// Register stores a one-shot handler for the given task id. At most one
// pending entry may exist per id; re-registering replaces the old entry.
func (c *Channel) Register(taskID string, onComplete func(Response)) {
	c.pending[taskID] = &pendingEntry{onComplete: onComplete}
}

// AttachTimer associates a timeout handle with an already-registered id, so
// that resolving the entry can disarm it.
func (c *Channel) AttachTimer(taskID string, t *time.Timer) {
	if entry, ok := c.pending[taskID]; ok {
		entry.timer = t
	}
}

// Resolve invokes the handler for taskID exactly once and removes the entry.
// Resolving an unknown (already completed or timed out) id is a logged no-op:
// late responses are dropped, never double-delivered.
func (c *Channel) Resolve(taskID string, resp Response) bool {
	entry, ok := c.pending[taskID]
	if !ok {
		log.Printf("[WARN] dropping response for unknown task %s", taskID)
		return false
	}
	delete(c.pending, taskID)
	if entry.timer != nil {
		entry.timer.Stop()
	}
	entry.onComplete(resp)
	return true
}

// Remove deletes the entry without invoking its handler. Returns whether an
// entry existed. Used by the timeout path, which reports failure itself.
func (c *Channel) Remove(taskID string) bool {
	entry, ok := c.pending[taskID]
	if !ok {
		return false
	}
	delete(c.pending, taskID)
	if entry.timer != nil {
		entry.timer.Stop()
	}
	return true
}

// IDsWithPrefix returns the ids of all pending entries owned by the given
// worker type, per the task-id naming scheme.
func (c *Channel) IDsWithPrefix(prefix string) []string {
	var ids []string
	for id := range c.pending {
		if strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Len reports the number of in-flight entries.
func (c *Channel) Len() int {
	return len(c.pending)
}
