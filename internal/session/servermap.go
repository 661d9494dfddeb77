package session

import "sync"

// ServerMap associates client endpoints with the secret of the server they joined.
type ServerMap struct {
	servers map[string]string
	mu      sync.RWMutex
}

// NewServerMap returns an empty map.
func NewServerMap() *ServerMap {
	return &ServerMap{servers: make(map[string]string)}
}

// Associate records that endpoint joined the server identified by secret.
func (m *ServerMap) Associate(endpoint, secret string) {
	m.mu.Lock()
	m.servers[endpoint] = secret
	m.mu.Unlock()
}

// Lookup returns the secret associated with endpoint.
func (m *ServerMap) Lookup(endpoint string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	secret, ok := m.servers[endpoint]
	return secret, ok
}

// Forget drops the association of endpoint.
func (m *ServerMap) Forget(endpoint string) {
	m.mu.Lock()
	delete(m.servers, endpoint)
	m.mu.Unlock()
}

// ForgetServer drops every association pointing at secret and returns how many there were.
func (m *ServerMap) ForgetServer(secret string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for endpoint, s := range m.servers {
		if s == secret {
			delete(m.servers, endpoint)
			n++
		}
	}

	return n
}
