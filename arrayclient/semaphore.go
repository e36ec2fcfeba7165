package arrayclient

// requestSemaphore bounds the number of array requests this Client has in
// flight at once, independent of retryablehttp's own transport-level
// concurrency, so a burst of orchestrator calls against one array can't
// starve its connection pool the way an unbounded fan-out would.
type requestSemaphore struct {
	channel chan struct{}
}

func newRequestSemaphore(permits int) *requestSemaphore {
	return &requestSemaphore{channel: make(chan struct{}, permits)}
}

func (s *requestSemaphore) Acquire() { s.channel <- struct{}{} }

func (s *requestSemaphore) Release() { <-s.channel }
