// Package cache keeps the last computed response per query key. Entries are
// dropped explicitly when the data behind them changes; nothing expires by time.
package cache

import (
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

const sep = "|"

// Key builds a company-scoped cache key. Every key starts with the company
// prefix so a single InvalidatePrefix(CompanyPrefix(code)) clears the company.
func Key(companyCode string, parts ...string) string {
	var b strings.Builder
	b.WriteString(CompanyPrefix(companyCode))
	for i, p := range parts {
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteString(p)
	}
	return b.String()
}

const companyTag = "company:"

// CompanyPrefix is the prefix shared by every key of one company.
func CompanyPrefix(companyCode string) string {
	return companyTag + companyCode + sep
}

// companyScope returns the company prefix a key or prefix belongs to, or "".
func companyScope(key string) string {
	rest, ok := strings.CutPrefix(key, companyTag)
	if !ok {
		return ""
	}
	i := strings.Index(rest, sep)
	if i < 0 {
		return ""
	}
	return key[:len(companyTag)+i+len(sep)]
}

// generation identifies the invalidations a load started after.
type generation struct {
	global  uint64
	company uint64
}

// Store is a size-bounded LRU keyed by strings. It is safe for concurrent use.
//
// Every InvalidatePrefix bumps a generation: the company's when the prefix is
// company scoped, the global one otherwise. Fetch only stores a loaded value
// if no invalidation touching its key ran while it was loading.
type Store struct {
	lru *lru.Cache

	mu     sync.Mutex
	global uint64
	gens   map[string]uint64
}

func New(size int) (*Store, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	return &Store{lru: c, gens: make(map[string]uint64)}, nil
}

// generationLocked must be called with s.mu held.
func (s *Store) generationLocked(key string) generation {
	return generation{global: s.global, company: s.gens[companyScope(key)]}
}

func (s *Store) generation(key string) generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generationLocked(key)
}

// setIfCurrent stores v unless an invalidation covering key ran since gen.
func (s *Store) setIfCurrent(key string, v any, gen generation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generationLocked(key) != gen {
		return false
	}
	s.lru.Add(key, v)
	return true
}

func (s *Store) Get(key string) (any, bool) {
	return s.lru.Get(key)
}

func (s *Store) Set(key string, v any) {
	s.lru.Add(key, v)
}

// InvalidatePrefix removes every entry whose key starts with prefix and
// returns how many were removed.
func (s *Store) InvalidatePrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if scope := companyScope(prefix); scope != "" {
		s.gens[scope]++
	} else {
		s.global++
	}

	n := 0
	for _, k := range s.lru.Keys() {
		if ks, ok := k.(string); ok && strings.HasPrefix(ks, prefix) {
			if s.lru.Remove(ks) {
				n++
			}
		}
	}
	return n
}

func (s *Store) Len() int {
	return s.lru.Len()
}

// Fetch returns the cached value for key when present with type T, otherwise
// it calls load and returns its result. A successful result is stored unless
// the key was invalidated while load ran, since it may predate that write.
func Fetch[T any](s *Store, key string, load func() (T, error)) (T, error) {
	if s == nil {
		return load()
	}
	if v, ok := s.Get(key); ok {
		if t, ok := v.(T); ok {
			return t, nil
		}
	}
	gen := s.generation(key)
	v, err := load()
	if err != nil {
		return v, err
	}
	s.setIfCurrent(key, v, gen)
	return v, nil
}
