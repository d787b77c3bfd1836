package adapter

import (
	"context"
	"fmt"
	"sync"
)

// MockAdapter returns deterministic responses for local runs and tests.
type MockAdapter struct {
	mu              sync.Mutex
	responses       map[string]string
	defaultResponse string
	calls           int
	failRemaining   int
	failErr         error
}

// NewMockAdapter creates a mock adapter with a default response.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		responses:       make(map[string]string),
		defaultResponse: "mock response:",
	}
}

// NewMockAdapterWithResponses creates a mock adapter with predefined responses.
func NewMockAdapterWithResponses(responses map[string]string, defaultResponse string) *MockAdapter {
	if defaultResponse == "" {
		defaultResponse = "mock response:"
	}
	return &MockAdapter{responses: responses, defaultResponse: defaultResponse}
}

// FailFirst makes the next n Generate calls return err.
func (a *MockAdapter) FailFirst(n int, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failRemaining = n
	a.failErr = err
}

// Calls returns how many times Generate has been invoked.
func (a *MockAdapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// Name returns the adapter identifier.
func (a *MockAdapter) Name() string {
	return "mock"
}

// Models returns the list of supported mock models.
func (a *MockAdapter) Models() []string {
	return []string{"mock-1"}
}

// Generate returns a deterministic completion for the prompt.
func (a *MockAdapter) Generate(_ context.Context, model string, prompt string) (*Completion, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.calls++
	if a.failRemaining > 0 {
		a.failRemaining--
		if a.failErr != nil {
			return nil, a.failErr
		}
		return nil, &AdapterError{Status: 500, Err: fmt.Errorf("mock failure")}
	}

	if model == "" {
		model = "mock-1"
	}
	text, ok := a.responses[prompt]
	if !ok {
		text = fmt.Sprintf("%s\n%s", a.defaultResponse, prompt)
	}
	return &Completion{Text: text, Adapter: a.Name(), Model: model}, nil
}
