package store

import (
	"fmt"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// Options carries whatever the selected backend needs.
type Options struct {
	FilePath string
	Redis    *redis.Client
	App      core.App
}

// New creates the repository for backend.
func New(backend Backend, opts Options) (TicketRepository, error) {
	switch backend {
	case BackendMemory:
		return NewMemoryStore(), nil

	case BackendFile:
		if opts.FilePath == "" {
			return nil, fmt.Errorf("file ticket store needs a path")
		}
		return NewFileStore(opts.FilePath)

	case BackendRedis:
		if opts.Redis == nil {
			return nil, fmt.Errorf("redis ticket store needs REDIS_URL")
		}
		return NewRedisStore(opts.Redis), nil

	case BackendPocketBase:
		if opts.App == nil {
			return nil, fmt.Errorf("pocketbase ticket store needs an app")
		}
		return NewPocketBaseStore(opts.App), nil

	default:
		return nil, fmt.Errorf("unsupported ticket store %q (want one of %v)", backend, SupportedBackends())
	}
}

// SupportedBackends returns the backend names New accepts.
func SupportedBackends() []Backend {
	return []Backend{BackendMemory, BackendFile, BackendRedis, BackendPocketBase}
}
