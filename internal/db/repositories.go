package db

// Repositories provides access to all database repositories
type Repositories struct {
	KV       *KVRepository
	Settings *SettingsRepository
	Counters *CounterRepository
}

// NewRepositories creates a new repository collection
func NewRepositories(db *DB) *Repositories {
	return &Repositories{
		KV:       NewKVRepository(db),
		Settings: NewSettingsRepository(db),
		Counters: NewCounterRepository(db),
	}
}
