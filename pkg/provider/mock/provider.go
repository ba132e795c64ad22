// Package mock provides test doubles for provider interfaces using function fields.
package mock

import (
	"context"
	"sync/atomic"

	"github.com/devagent-ai/devagent/pkg/models"
	"github.com/devagent-ai/devagent/pkg/provider"
)

var _ provider.Adapter = (*Adapter)(nil)

// Adapter is a test double for provider.Adapter.
// A nil AvailableFn reports available; set ChatFn before calling Chat.
type Adapter struct {
	ProviderName models.ProviderName
	AvailableFn  func() bool
	ChatFn       func(ctx context.Context, req models.Request) (models.Response, error)

	chatCalls atomic.Int64
}

// Name returns ProviderName.
func (a *Adapter) Name() models.ProviderName { return a.ProviderName }

// Available delegates to AvailableFn.
func (a *Adapter) Available() bool {
	if a.AvailableFn == nil {
		return true
	}
	return a.AvailableFn()
}

// Chat delegates to ChatFn.
func (a *Adapter) Chat(ctx context.Context, req models.Request) (models.Response, error) {
	a.chatCalls.Add(1)
	return a.ChatFn(ctx, req)
}

// ChatCalls reports how many times Chat was invoked.
func (a *Adapter) ChatCalls() int {
	return int(a.chatCalls.Load())
}

// Unavailable reports false from Available.
func Unavailable() bool { return false }
