package database

// SetReindexBatchSize changes the Reindex batch size and returns a function
// restoring the previous value.
func SetReindexBatchSize(n int) func() {
	old := reindexBatchSize
	reindexBatchSize = n
	return func() { reindexBatchSize = old }
}
