package builder

// InsertionPlanner is a reference implementation used only by tests to
// validate P5's ±1-window midpoint rule against a concrete list of
// transactions, independent of internal/useropbundler.InsertionIndex's
// own unit tests.
type InsertionPlanner struct{}

// Plan returns the index a single bundler transaction would occupy
// among regularTxCount ordinary transactions, applying the same
// floor(finalN/2) rule as useropbundler.InsertionIndex: the bundler tx
// counts toward the final block, so finalN is regularTxCount+1.
func (InsertionPlanner) Plan(regularTxCount int) int {
	finalN := regularTxCount + 1
	return finalN / 2
}
