package renderer

import (
	"fmt"
	"sort"
	"sync"
)

// Stage names the point of the frame at which a command list runs.
type Stage int

const (
	// StageAfterOpaque runs after opaque geometry has been drawn.
	StageAfterOpaque Stage = iota

	// StageAfterTransparent runs after transparent geometry has been drawn.
	StageAfterTransparent
)

func (s Stage) String() string {
	switch s {
	case StageAfterOpaque:
		return "after_opaque"
	case StageAfterTransparent:
		return "after_transparent"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// CommandSink accepts command lists for submission at a render stage.
type CommandSink interface {
	// AddCommandList queues list to run at stage. Lists in the same stage run in ascending
	// order; ties keep insertion order.
	//
	// Parameters:
	//   - list: the command list
	//   - stage: the render stage
	//   - order: the position within the stage
	AddCommandList(list *CommandList, stage Stage, order int)
}

type queuedList struct {
	list  *CommandList
	stage Stage
	order int
}

// StageQueue is the host-side CommandSink. It collects the lists submitted during a frame
// and executes them on a Renderer in stage order.
type StageQueue struct {
	mu    sync.Mutex
	lists []queuedList
}

var _ CommandSink = &StageQueue{}

// NewStageQueue creates an empty StageQueue.
func NewStageQueue() *StageQueue {
	return &StageQueue{}
}

func (q *StageQueue) AddCommandList(list *CommandList, stage Stage, order int) {
	if list == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lists = append(q.lists, queuedList{list: list, stage: stage, order: order})
}

// Len returns the number of queued lists.
func (q *StageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lists)
}

// Clear drops all queued lists without executing them.
func (q *StageQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lists = q.lists[:0]
}

// Flush executes every queued list on r in stage order and empties the queue. Execution
// stops at the first error.
//
// Parameters:
//   - r: the renderer that executes the lists
//
// Returns:
//   - error: the first execution error, if any
func (q *StageQueue) Flush(r Renderer) error {
	q.mu.Lock()
	lists := append([]queuedList(nil), q.lists...)
	q.lists = q.lists[:0]
	q.mu.Unlock()

	sort.SliceStable(lists, func(i, j int) bool {
		if lists[i].stage != lists[j].stage {
			return lists[i].stage < lists[j].stage
		}
		return lists[i].order < lists[j].order
	})
	for _, ql := range lists {
		if err := r.Execute(ql.list); err != nil {
			return fmt.Errorf("execute %q at %s: %w", ql.list.Label(), ql.stage, err)
		}
	}
	return nil
}
