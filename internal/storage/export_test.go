package storage

// PutRaw stores an already-encoded payload, bypassing validation.
func (m *MemoryStore) PutRaw(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
}
