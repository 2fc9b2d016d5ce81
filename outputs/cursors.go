package outputs

import (
	"sync"

	"github.com/Nuvalence/kinesis-quality-toolkit/framework/helpers"
)

// CursorMap maps partition IDs to the resumption token returned by the most recent fetch
// from that partition. An empty token means the partition has been closed and fully read.
//
// Entries are never removed, so a partition that disappears from the stream keeps its last
// token for the lifetime of the reader.
type CursorMap struct {
	tokens map[string]string
	lock   sync.RWMutex
}

func NewCursorMap() *CursorMap {
	return &CursorMap{tokens: make(map[string]string)}
}

// Get returns the token stored for the partition, and false if there is none.
func (m *CursorMap) Get(partition string) (string, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	token, ok := m.tokens[partition]
	return token, ok
}

// Put stores the token for the partition, replacing any previous token.
func (m *CursorMap) Put(partition, token string) {
	m.lock.Lock()
	m.tokens[partition] = token
	m.lock.Unlock()
}

// PutAll stores every token in the map atomically.
func (m *CursorMap) PutAll(tokens map[string]string) {
	m.lock.Lock()
	for partition, token := range tokens {
		m.tokens[partition] = token
	}
	m.lock.Unlock()
}

func (m *CursorMap) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.tokens)
}

// Partitions returns the IDs of every partition that has a token, in ascending order.
func (m *CursorMap) Partitions() []string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return helpers.SortedKeys(m.tokens)
}
