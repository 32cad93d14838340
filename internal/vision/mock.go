package vision

import (
	"context"
	"sync"
)

// Mock is a test implementation of the classifier. It returns canned
// descriptions keyed by artifact path and records every call.
type Mock struct {
	Responses map[string]string
	Err       error
	calls     []string
	mu        sync.Mutex
}

// Describe returns the scripted response for artifactPath.
func (m *Mock) Describe(_ context.Context, artifactPath string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, artifactPath)
	if m.Err != nil {
		return "", m.Err
	}
	return m.Responses[artifactPath], nil
}

// Calls returns the artifact paths classified so far.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}
