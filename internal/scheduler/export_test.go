package scheduler

// SetBatchSize shrinks ListDue pages so tests can cross page boundaries.
func (p *Pass) SetBatchSize(n int) { p.batchSize = n }
