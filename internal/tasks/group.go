// Package tasks tracks background units of work.
package tasks

import (
	"context"
	"sync"
)

// Task is one unit of work started by a Group.
type Task struct {
	id     uint64
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Cancel requests the task to stop. It does not wait.
func (t *Task) Cancel() {
	t.cancel()
}

// Done is closed once the task function has returned and the task has left
// its group.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes and returns its error.
func (t *Task) Wait() error {
	<-t.done
	return t.err
}

// Group spawns tasks, tracks the live ones and cancels one or all of them.
// A task stays registered until its function returns.
type Group struct {
	ctx context.Context

	mu    sync.Mutex
	next  uint64
	tasks map[uint64]*Task
}

// NewGroup creates a group whose tasks run under contexts derived from ctx.
func NewGroup(ctx context.Context) *Group {
	return &Group{
		ctx:   ctx,
		tasks: make(map[uint64]*Task),
	}
}

// Go runs fn in a new goroutine with a cancellable context.
func (g *Group) Go(fn func(ctx context.Context) error) *Task {
	ctx, cancel := context.WithCancel(g.ctx)

	g.mu.Lock()
	g.next++
	t := &Task{id: g.next, cancel: cancel, done: make(chan struct{})}
	g.tasks[t.id] = t
	g.mu.Unlock()

	go func() {
		defer close(t.done)
		defer cancel()
		t.err = fn(ctx)

		g.mu.Lock()
		delete(g.tasks, t.id)
		g.mu.Unlock()
	}()
	return t
}

// Cancel stops t and waits for it to finish.
func (g *Group) Cancel(t *Task) error {
	t.Cancel()
	return t.Wait()
}

// CancelAll cancels every live task, waiting for them when wait is set.
func (g *Group) CancelAll(wait bool) {
	tasks := g.snapshot()
	for _, t := range tasks {
		t.Cancel()
	}
	if wait {
		for _, t := range tasks {
			<-t.done
		}
	}
}

// Wait blocks until every task live at the time of the call has finished.
func (g *Group) Wait() {
	for _, t := range g.snapshot() {
		<-t.done
	}
}

// Len returns the number of live tasks.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tasks)
}

func (g *Group) snapshot() []*Task {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Task, 0, len(g.tasks))
	for _, t := range g.tasks {
		out = append(out, t)
	}
	return out
}
