package onvif

import (
	"context"
	"fmt"
	"sort"
)

// HandlerFunc produces the response body fragment for one action. body is
// the raw inner markup of the request's SOAP Body. Returning a *soap.Fault
// sends that fault to the client unchanged.
type HandlerFunc func(ctx context.Context, body string) (string, error)

// Registry maps action names to handlers. Handlers are registered during
// startup; Register must not race with Dispatch.
type Registry struct {
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register binds action to h, replacing any previous handler.
func (r *Registry) Register(action string, h HandlerFunc) {
	r.handlers[action] = h
}

// Dispatch runs the handler registered for action.
func (r *Registry) Dispatch(ctx context.Context, action, body string) (string, error) {
	h, ok := r.handlers[action]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	return h(ctx, body)
}

// Actions lists the registered actions in sorted order.
func (r *Registry) Actions() []string {
	actions := make([]string, 0, len(r.handlers))
	for a := range r.handlers {
		actions = append(actions, a)
	}
	sort.Strings(actions)
	return actions
}
