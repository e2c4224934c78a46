package tasksync

import (
	"sync"
	"sync/atomic"

	"github.com/yukikurage/task-management-client/internal/models"
)

// snapshot is never modified after it is published.
type snapshot struct {
	tasks []models.Task
	index map[string]int
}

func newSnapshot(tasks []models.Task) *snapshot {
	s := &snapshot{
		tasks: tasks,
		index: make(map[string]int, len(tasks)),
	}
	for i, task := range tasks {
		s.index[task.ID] = i
	}
	return s
}

// Collection is the local task cache. Readers load an immutable snapshot;
// writers build a new one and swap it in, so a reader never sees a
// half-applied change.
type Collection struct {
	writeMu sync.Mutex
	current atomic.Pointer[snapshot]
}

func NewCollection() *Collection {
	c := &Collection{}
	c.current.Store(newSnapshot(nil))
	return c
}

// Tasks returns a copy of the collection in its current order.
func (c *Collection) Tasks() []models.Task {
	return c.Filter(nil)
}

// Filter returns the tasks matching keep, preserving collection order.
// A nil keep matches everything.
func (c *Collection) Filter(keep func(models.Task) bool) []models.Task {
	snap := c.current.Load()
	out := make([]models.Task, 0, len(snap.tasks))
	for _, task := range snap.tasks {
		if keep == nil || keep(task) {
			out = append(out, task.Clone())
		}
	}
	return out
}

func (c *Collection) Get(id string) (models.Task, bool) {
	snap := c.current.Load()
	i, ok := snap.index[id]
	if !ok {
		return models.Task{}, false
	}
	return snap.tasks[i].Clone(), true
}

func (c *Collection) Len() int {
	return len(c.current.Load().tasks)
}

// Replace swaps in a whole new collection. Later duplicates of an id win.
func (c *Collection) Replace(tasks []models.Task) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	next := make([]models.Task, 0, len(tasks))
	seen := make(map[string]int, len(tasks))
	for _, task := range tasks {
		if i, ok := seen[task.ID]; ok {
			next[i] = task.Clone()
			continue
		}
		seen[task.ID] = len(next)
		next = append(next, task.Clone())
	}
	c.current.Store(newSnapshot(next))
}

// Upsert replaces the task with the same id in place, or appends it.
func (c *Collection) Upsert(task models.Task) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	prev := c.current.Load()
	next := make([]models.Task, len(prev.tasks), len(prev.tasks)+1)
	copy(next, prev.tasks)
	if i, ok := prev.index[task.ID]; ok {
		next[i] = task.Clone()
	} else {
		next = append(next, task.Clone())
	}
	c.current.Store(newSnapshot(next))
}

// Remove deletes the task with id. An unknown id leaves the collection as is.
func (c *Collection) Remove(id string) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	prev := c.current.Load()
	i, ok := prev.index[id]
	if !ok {
		return false
	}
	next := make([]models.Task, 0, len(prev.tasks)-1)
	next = append(next, prev.tasks[:i]...)
	next = append(next, prev.tasks[i+1:]...)
	c.current.Store(newSnapshot(next))
	return true
}
