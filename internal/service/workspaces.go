package service

import "sync"

// Factory builds the chat service for one user.
type Factory func(email string) *ChatService

// Workspaces keeps one chat service, with its own conversation, stream
// session and chat list, per authenticated email.
type Workspaces struct {
	build Factory

	mu      sync.Mutex
	byEmail map[string]*ChatService
}

// NewWorkspaces creates an empty registry.
func NewWorkspaces(build Factory) *Workspaces {
	return &Workspaces{
		build:   build,
		byEmail: make(map[string]*ChatService),
	}
}

// For returns email's chat service, creating it on first use.
func (w *Workspaces) For(email string) *ChatService {
	w.mu.Lock()
	defer w.mu.Unlock()

	svc, ok := w.byEmail[email]
	if !ok {
		svc = w.build(email)
		w.byEmail[email] = svc
	}
	return svc
}

// StopAll cancels every running generation and returns how many there were.
func (w *Workspaces) StopAll() int {
	w.mu.Lock()
	services := make([]*ChatService, 0, len(w.byEmail))
	for _, svc := range w.byEmail {
		services = append(services, svc)
	}
	w.mu.Unlock()

	stopped := 0
	for _, svc := range services {
		if svc.Stop() {
			stopped++
		}
	}
	return stopped
}
