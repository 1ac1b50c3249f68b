package pool

// Pool bundles the in-memory coordination state shared by the dispatcher and
// the schedulers: health registry, lock table, and the single-flight refresh
// service. Created at server start, torn down with the process.
type Pool struct {
	Health  *HealthRegistry
	Locks   *LockTable
	Refresh *RefreshService
}

// New assembles a pool. disableLock skips all per-credential locking.
func New(refresh *RefreshService, disableLock bool) *Pool {
	return &Pool{
		Health:  NewHealthRegistry(),
		Locks:   NewLockTable(disableLock),
		Refresh: refresh,
	}
}
