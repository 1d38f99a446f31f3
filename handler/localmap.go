package handler

import (
	"context"
	"sync"
)

// localMap is an in-process Map, for single-node engines and tests.
// It implements the same narrow contract as *rmap.Map so Registry code
// is identical whether or not Redis-backed replication is configured.
type localMap struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewLocalMap constructs a Map with no cross-process replication.
func NewLocalMap() Map {
	return &localMap{m: make(map[string]string)}
}

func (l *localMap) Set(_ context.Context, key, value string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev := l.m[key]
	l.m[key] = value
	return prev, nil
}

func (l *localMap) Get(key string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.m[key]
	return v, ok
}

func (l *localMap) Delete(_ context.Context, key string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev := l.m[key]
	delete(l.m, key)
	return prev, nil
}

func (l *localMap) Keys() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	keys := make([]string, 0, len(l.m))
	for k := range l.m {
		keys = append(keys, k)
	}
	return keys
}
