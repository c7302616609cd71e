package worker

// Job is a single-shot unit of work.  The pool invokes it at most once, on
// exactly one worker, and observes no return value.  Callers that need a
// result must build their own completion signal into the closure.
type Job func()

// Message is the payload carried by the dispatch queue.  It is a closed sum
// type: the only implementations are Work and Terminate, and the unexported
// marker method prevents other packages from adding variants.
type Message interface {
	message()
}

// Work asks the receiving worker to run Job.
type Work struct {
	// ID correlates the submission across log lines.
	ID  string
	Job Job
}

// Terminate asks the receiving worker to exit its loop.  Shutdown sends
// exactly one per worker.
type Terminate struct{}

func (Work) message()      {}
func (Terminate) message() {}
