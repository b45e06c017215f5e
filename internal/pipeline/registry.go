package pipeline

import (
	"sync"

	"github.com/cleaveav/cleave/internal/errors"
	"github.com/cleaveav/cleave/internal/worker"
)

// registry is the append-only completion map, id to result. Workers and
// the decode thread write; assembly reads the re-serialized view after the
// run drains.
type registry struct {
	mu      sync.Mutex
	results map[int]worker.Result
}

func newRegistry() *registry {
	return &registry{results: make(map[int]worker.Result)}
}

func (r *registry) record(res worker.Result) {
	r.mu.Lock()
	r.results[res.ChunkID] = res
	r.mu.Unlock()
}

// inOrder returns the recorded results in chunk id order. Chunks that never
// reported were dropped during cancellation and are marked as such.
func (r *registry) inOrder(total int) []worker.Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]worker.Result, total)
	for i := 0; i < total; i++ {
		if res, ok := r.results[i]; ok {
			out[i] = res
		} else {
			out[i] = worker.Result{ChunkID: i, Err: errors.NewCancelledError()}
		}
	}
	return out
}
