package storage

import "vidproc/internal/ports"

// Gateway is the storage contract used by the HTTP handler and the worker.
// It is an alias to ports.StorageGateway to keep call-sites simple.
type Gateway = ports.StorageGateway
