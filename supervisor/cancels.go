package supervisor

import "sync"

// CancelSet tracks the jobs whose cancellation has been requested. Strategy
// checkpoints consult it through the Monitor.
type CancelSet struct {
	mu    sync.Mutex
	flags map[string]struct{}
}

// NewCancelSet returns an empty CancelSet.
func NewCancelSet() *CancelSet {
	return &CancelSet{flags: make(map[string]struct{})}
}

// Add marks the job as cancel-requested.
func (c *CancelSet) Add(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flags[jobID] = struct{}{}
}

// Remove clears the cancel flag for the job.
func (c *CancelSet) Remove(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.flags, jobID)
}

// Has reports whether cancellation was requested for the job.
func (c *CancelSet) Has(jobID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.flags[jobID]
	return ok
}

// Len returns the number of outstanding cancel flags.
func (c *CancelSet) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.flags)
}
