package client

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/absmach/fedsim/pkg/errors"
)

// Pool is the registry of participants, keyed by client id. Registration
// happens before any round starts; after that the pool is read-only, so
// sampling and lookup take the lock only to guard against misuse.
type Pool struct {
	mu      sync.RWMutex
	proxies map[string]Proxy
}

func NewPool() *Pool {
	return &Pool{
		proxies: make(map[string]Proxy),
	}
}

func (p *Pool) Register(proxy Proxy) error {
	if proxy.ID() == "" {
		return errors.ErrEmptyKey
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.proxies[proxy.ID()]; ok {
		return errors.ErrDuplicateClient
	}
	p.proxies[proxy.ID()] = proxy

	return nil
}

func (p *Pool) Get(id string) (Proxy, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	proxy, ok := p.proxies[id]
	if !ok {
		return nil, errors.ErrUnknownClient
	}

	return proxy, nil
}

func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.proxies)
}

// IDs returns all registered client ids in lexical order.
func (p *Pool) IDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]string, 0, len(p.proxies))
	for id := range p.proxies {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

// Sample selects ceil(fraction * size) clients, at least one when fraction is
// positive and the pool is non-empty. Selection is a seeded shuffle over the
// sorted id list, so identical pool contents and seed always produce the
// identical set regardless of map iteration order. The returned ids are
// sorted for stable logging.
func (p *Pool) Sample(fraction float64, seed int64) []string {
	ids := p.IDs()
	if len(ids) == 0 || fraction <= 0 {
		return nil
	}
	if fraction > 1 {
		fraction = 1
	}

	n := int(math.Ceil(fraction * float64(len(ids))))
	if n < 1 {
		n = 1
	}
	if n > len(ids) {
		n = len(ids)
	}

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})

	selected := ids[:n]
	sort.Strings(selected)

	return selected
}
