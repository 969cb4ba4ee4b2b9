// Package worker implements the parallel block validation coordinator. A
// fixed pool of validation workers races candidate blocks against private
// forks of the UTXO cache; the first to finish successfully commits and
// the losers observe a cooperative cancellation flag. An auxiliary pool of
// script-check goroutines fans signature verification out within a
// transaction.
package worker

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/membercoin/membercoin/foundation/blockchain/chain"
	"github.com/membercoin/membercoin/foundation/blockchain/database"
)

// Config tunes the worker pools. Zero values pick the defaults.
type Config struct {
	// Workers is the number of block validation workers. The default is
	// half the cores.
	Workers int

	// ScriptWorkers is the size of the auxiliary script-check pool. Zero
	// runs script checks inline.
	ScriptWorkers int
}

// Worker manages the validation workflows for the blockchain.
type Worker struct {
	state     *chain.State
	evHandler chain.EventHandler
	wg        sync.WaitGroup
	shut      chan struct{}
	tasks     chan *task
	scripts   *scriptPool

	mu       sync.Mutex
	inflight map[database.Hash][]*task
}

// task is one block validation in flight.
type task struct {
	block  *database.Block
	node   *chain.BlockNode
	cancel atomic.Bool
	done   chan error
}

// Run creates a worker and starts up all the background processes.
func Run(state *chain.State, cfg Config) *Worker {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU() / 2
		if workers < 1 {
			workers = 1
		}
	}

	w := Worker{
		state:     state,
		evHandler: state.EvHandler(),
		shut:      make(chan struct{}),
		tasks:     make(chan *task, workers*4),
		inflight:  make(map[database.Hash][]*task),
		scripts:   newScriptPool(cfg.ScriptWorkers),
	}

	w.wg.Add(workers)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	for i := 0; i < workers; i++ {
		go func() {
			defer w.wg.Done()
			hasStarted <- true
			w.validationOperations()
		}()
	}

	for i := 0; i < workers; i++ {
		<-hasStarted
	}

	w.evHandler("worker: Run: %d validation workers, %d script workers", workers, cfg.ScriptWorkers)
	return &w
}

// Shutdown brings the coordinator to quiescence: intake stops, every
// in-flight validation is cancelled and joined, and the coins cache is
// flushed only after the last worker is gone.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	close(w.shut)

	w.mu.Lock()
	for _, tasks := range w.inflight {
		for _, t := range tasks {
			t.cancel.Store(true)
		}
	}
	w.mu.Unlock()

	w.wg.Wait()

	// Catch any submission that slipped into the queue while the workers
	// were exiting so its submitter unblocks.
	w.drainTasks()
	w.scripts.shutdown()

	if err := w.state.FlushCoins(); err != nil {
		w.evHandler("worker: shutdown: flush: ERROR: %s", err)
	}
}

// =============================================================================

// SubmitBlock schedules a block for validation and waits for the outcome.
// A block that loses a validation race to a sibling is not an error; it
// stays in the index as a candidate.
func (w *Worker) SubmitBlock(block *database.Block) error {
	select {
	case <-w.shut:
		return chain.Errorf(chain.Canceled, "node is shutting down")
	default:
	}

	node, err := w.state.PrepareBlock(block)
	if err != nil {
		return err
	}

	t := task{
		block: block,
		node:  node,
		done:  make(chan error, 1),
	}

	w.mu.Lock()
	w.inflight[block.Header.PrevHash] = append(w.inflight[block.Header.PrevHash], &t)
	w.mu.Unlock()

	select {
	case w.tasks <- &t:
	case <-w.shut:
		w.unregister(&t)
		return chain.Errorf(chain.Canceled, "node is shutting down")
	}

	return <-t.done
}

// validationOperations consumes validation tasks until shutdown.
func (w *Worker) validationOperations() {
	w.evHandler("worker: validationOperations: G started")
	defer w.evHandler("worker: validationOperations: G completed")

	for {
		select {
		case t := <-w.tasks:
			t.done <- w.runValidation(t)
		case <-w.shut:
			w.drainTasks()
			return
		}
	}
}

// drainTasks fails any queued tasks during shutdown so submitters unblock.
func (w *Worker) drainTasks() {
	for {
		select {
		case t := <-w.tasks:
			w.unregister(t)
			t.done <- chain.Errorf(chain.Canceled, "node is shutting down")
		default:
			return
		}
	}
}

// runValidation validates one block against a private fork and races for
// the commit.
func (w *Worker) runValidation(t *task) error {
	defer w.unregister(t)

	cancel := func() bool {
		return t.cancel.Load()
	}

	tip, fork := w.state.ForkForValidation()

	// A block that doesn't extend the current tip can't race; it takes
	// the serial activation path under the committer lock.
	if tip == nil || t.block.Header.PrevHash != tip.Hash {
		return w.serialFallback(t)
	}

	undo, err := w.state.ValidateAtTip(t.block, tip, fork, cancel, w.scripts.run)
	switch {
	case err == nil:
		w.state.MarkValid(t.node)

	case chain.IsKind(err, chain.Canceled):
		// A sibling committed first. Not an error: the block stays a
		// candidate in the index.
		w.evHandler("worker: runValidation: block[%s] canceled, fork discarded", t.node.Hash)
		return nil

	case err == chain.ErrStaleTip:
		return w.serialFallback(t)

	default:
		w.state.MarkInvalid(t.node, err)
		return err
	}

	if err := w.state.CommitValidated(t.node, fork, undo, t.block); err != nil {
		if err == chain.ErrStaleTip {
			// Lost the commit race after finishing. The fork is abandoned
			// and the serial path decides whether this block still wins
			// on work.
			w.evHandler("worker: runValidation: block[%s] lost commit race", t.node.Hash)
			return w.serialFallback(t)
		}
		return err
	}

	// Commit won: quit every sibling racing for the same parent.
	w.cancelSiblings(t)
	return nil
}

// serialFallback routes a block through the serial activation path, which
// handles reorgs and already-settled races.
func (w *Worker) serialFallback(t *task) error {
	if t.cancel.Load() {
		return nil
	}
	return w.state.ProcessBlock(t.block)
}

// cancelSiblings sets the cooperative cancellation flag on every other
// in-flight validation that shares this task's parent.
func (w *Worker) cancelSiblings(t *task) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sibling := range w.inflight[t.block.Header.PrevHash] {
		if sibling != t {
			sibling.cancel.Store(true)
		}
	}
}

// unregister drops the task from the in-flight table.
func (w *Worker) unregister(t *task) {
	w.mu.Lock()
	defer w.mu.Unlock()

	siblings := w.inflight[t.block.Header.PrevHash]
	for i, sibling := range siblings {
		if sibling == t {
			w.inflight[t.block.Header.PrevHash] = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	if len(w.inflight[t.block.Header.PrevHash]) == 0 {
		delete(w.inflight, t.block.Header.PrevHash)
	}
}
