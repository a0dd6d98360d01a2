package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	logging "github.com/ipfs/go-log"

	"github.com/blockberries/distledger/engine"
)

var log = logging.Logger("client")

// Errors
var (
	ErrNotBound = errors.New("no server bound for qualifier")
)

// binder maps replica qualifiers to addresses resolved through a directory.
// A lookup that finds nothing leaves the previous binding in place.
type binder struct {
	mu       sync.Mutex
	dir      engine.Directory
	service  string
	bindings map[string]string
}

func newBinder(dir engine.Directory, service string) *binder {
	return &binder{
		dir:      dir,
		service:  service,
		bindings: make(map[string]string),
	}
}

// Bind resolves qualifier again and returns the address now in use
func (b *binder) Bind(ctx context.Context, qualifier string) (string, error) {
	address, ok, err := b.dir.Lookup(ctx, b.service, qualifier)

	b.mu.Lock()
	defer b.mu.Unlock()
	prior, bound := b.bindings[qualifier]

	if err != nil || !ok {
		if bound {
			log.Debugw("lookup empty, keeping binding", "service", b.service, "qualifier", qualifier,
				"address", prior, "err", err)
			return prior, nil
		}
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrNotBound, qualifier, err)
		}
		return "", fmt.Errorf("%w: %s", ErrNotBound, qualifier)
	}

	if prior != address {
		log.Debugw("bound server", "service", b.service, "qualifier", qualifier, "address", address)
	}
	b.bindings[qualifier] = address
	return address, nil
}

// Address returns the bound address for qualifier, binding on first use
func (b *binder) Address(ctx context.Context, qualifier string) (string, error) {
	b.mu.Lock()
	address, ok := b.bindings[qualifier]
	b.mu.Unlock()
	if ok {
		return address, nil
	}
	return b.Bind(ctx, qualifier)
}
