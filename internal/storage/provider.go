package storage

import "renderpull/internal/ports"

// Provider is the frame store contract used by the engine, the worker and the
// status API. It is an alias to ports.StorageProvider to keep call-sites simple.
type Provider = ports.StorageProvider
