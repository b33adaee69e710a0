package aggregate

import "sync/atomic"

// Statistics is a snapshot of aggregator counters.
type Statistics struct {
	// TotalIn counts units received, including those rejected for their correlation key.
	TotalIn int64
	// TotalCompleted counts groups completed and submitted, excluding discards.
	TotalCompleted       int64
	CompletedBySize      int64
	CompletedByPredicate int64
	CompletedByStrategy  int64
	CompletedByTimeout   int64
	CompletedByInterval  int64
	CompletedByForce     int64
	// Discarded counts groups dropped without output.
	Discarded int64
}

type stats struct {
	totalIn     atomic.Int64
	completed   atomic.Int64
	bySize      atomic.Int64
	byPredicate atomic.Int64
	byStrategy  atomic.Int64
	byTimeout   atomic.Int64
	byInterval  atomic.Int64
	byForce     atomic.Int64
	discarded   atomic.Int64
}

func (s *stats) complete(cause CompletedBy) {
	s.completed.Add(1)
	switch cause {
	case CompletedBySize:
		s.bySize.Add(1)
	case CompletedByPredicate:
		s.byPredicate.Add(1)
	case CompletedByStrategy:
		s.byStrategy.Add(1)
	case CompletedByTimeout:
		s.byTimeout.Add(1)
	case CompletedByInterval:
		s.byInterval.Add(1)
	case CompletedByForce:
		s.byForce.Add(1)
	}
}

func (s *stats) snapshot() Statistics {
	return Statistics{
		TotalIn:              s.totalIn.Load(),
		TotalCompleted:       s.completed.Load(),
		CompletedBySize:      s.bySize.Load(),
		CompletedByPredicate: s.byPredicate.Load(),
		CompletedByStrategy:  s.byStrategy.Load(),
		CompletedByTimeout:   s.byTimeout.Load(),
		CompletedByInterval:  s.byInterval.Load(),
		CompletedByForce:     s.byForce.Load(),
		Discarded:            s.discarded.Load(),
	}
}

func (s *stats) reset() {
	for _, c := range []*atomic.Int64{
		&s.totalIn, &s.completed, &s.bySize, &s.byPredicate, &s.byStrategy,
		&s.byTimeout, &s.byInterval, &s.byForce, &s.discarded,
	} {
		c.Store(0)
	}
}
