package embedding

import (
	"container/list"
	"crypto/md5"
	"encoding/hex"
	"sync"
	"time"
)

// localLRU is a simple in-process LRU with TTL.
type localLRU struct {
	mu   sync.Mutex
	cap  int
	list *list.List               // front = most recent
	m    map[string]*list.Element // key -> element
}

type lruEntry struct {
	key string
	vec []float32
	exp time.Time
}

func newLocalLRU(capacity int) *localLRU {
	if capacity <= 0 {
		capacity = 1024
	}
	return &localLRU{cap: capacity, list: list.New(), m: make(map[string]*list.Element, capacity)}
}

func (l *localLRU) Get(key string) ([]float32, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.m[key]; ok {
		ent := el.Value.(lruEntry)
		if ent.exp.After(time.Now()) {
			l.list.MoveToFront(el)
			return ent.vec, true
		}
		// expired: remove
		l.list.Remove(el)
		delete(l.m, key)
	}
	return nil, false
}

func (l *localLRU) Set(key string, v []float32, ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.m[key]; ok {
		el.Value = lruEntry{key: key, vec: v, exp: time.Now().Add(ttl)}
		l.list.MoveToFront(el)
		return
	}
	el := l.list.PushFront(lruEntry{key: key, vec: v, exp: time.Now().Add(ttl)})
	l.m[key] = el
	if l.list.Len() > l.cap {
		lru := l.list.Back()
		if lru != nil {
			ent := lru.Value.(lruEntry)
			delete(l.m, ent.key)
			l.list.Remove(lru)
		}
	}
}

func makeKey(model, text string) string {
	h := md5.Sum([]byte(model + "|" + text))
	return "emb:" + hex.EncodeToString(h[:])
}
