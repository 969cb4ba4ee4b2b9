package worker

import "sync"

// scriptPool is the auxiliary pool of goroutines that script checks fan
// out across. Within a transaction the checks run unordered, but the
// runner joins every check before returning, so a transaction is never
// judged valid with verifications outstanding.
type scriptPool struct {
	jobs chan scriptJob
	wg   sync.WaitGroup
}

type scriptJob struct {
	fn  func() error
	res chan<- error
}

// newScriptPool starts the pool. A size of zero disables fan-out and the
// runner executes checks inline.
func newScriptPool(size int) *scriptPool {
	p := scriptPool{}

	if size <= 0 {
		return &p
	}

	p.jobs = make(chan scriptJob, size*4)
	p.wg.Add(size)

	for i := 0; i < size; i++ {
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				job.res <- job.fn()
			}
		}()
	}

	return &p
}

// run executes a batch of checks and returns the first failure after all
// of them have joined.
func (p *scriptPool) run(checks []func() error) error {
	if p.jobs == nil {
		for _, check := range checks {
			if err := check(); err != nil {
				return err
			}
		}
		return nil
	}

	res := make(chan error, len(checks))
	for _, check := range checks {
		p.jobs <- scriptJob{fn: check, res: res}
	}

	var firstErr error
	for range checks {
		if err := <-res; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// shutdown stops the pool after in-flight jobs complete.
func (p *scriptPool) shutdown() {
	if p.jobs == nil {
		return
	}
	close(p.jobs)
	p.wg.Wait()
}
