package broker

import "context"

// runMain is the Main stage (spec.md §4.3): single-consumer event loop that
// dispatches commands, owns the Queue Store and Location Index, and never
// blocks on network I/O. It returns once mainQueue is closed and drained.
func (s *Server) runMain(ctx context.Context) {
	for {
		item, ok := s.mainQueue.Pop(ctx)
		if !ok {
			return
		}
		ev, ok := item.payload.(mainEvent)
		if !ok {
			continue
		}
		s.handleFrame(ev)
	}
}
