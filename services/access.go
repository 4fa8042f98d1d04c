package services

import (
	"sync"
	"time"

	"github.com/marthaediazx/FheDataHub/crypto"
)

// DefaultSubmitCooldown and DefaultRequestCooldown are the intervals
// applied when an AccessConfig leaves them zero.
const (
	DefaultSubmitCooldown  = 10 * time.Second
	DefaultRequestCooldown = time.Minute
)

// AccessConfig seeds a StaticAccessController.
type AccessConfig struct {
	// Owner holds the close capability and is implicitly a provider.
	Owner crypto.PublicKey

	// Providers is the initial submission allow-list.
	Providers []crypto.PublicKey

	SubmitCooldown  time.Duration
	RequestCooldown time.Duration
}

// StaticAccessController implements protocol.AccessController with an
// in-memory allow-list managed through the admin endpoints. The owner
// identity is fixed at construction and always retains both capabilities.
type StaticAccessController struct {
	mu sync.RWMutex

	owner     crypto.PublicKey
	providers map[string]crypto.PublicKey
	paused    bool

	submitCooldown  time.Duration
	requestCooldown time.Duration
}

// NewStaticAccessController builds a controller from the config,
// applying the default cooldowns where unset.
func NewStaticAccessController(cfg AccessConfig) *StaticAccessController {
	submitCooldown := cfg.SubmitCooldown
	if submitCooldown == 0 {
		submitCooldown = DefaultSubmitCooldown
	}
	requestCooldown := cfg.RequestCooldown
	if requestCooldown == 0 {
		requestCooldown = DefaultRequestCooldown
	}

	providers := make(map[string]crypto.PublicKey, len(cfg.Providers))
	for _, pk := range cfg.Providers {
		providers[pk.String()] = pk
	}

	return &StaticAccessController{
		owner:           cfg.Owner,
		providers:       providers,
		submitCooldown:  submitCooldown,
		requestCooldown: requestCooldown,
	}
}

// IsProvider reports whether the identity is on the submission allow-list.
func (c *StaticAccessController) IsProvider(submitter crypto.PublicKey) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.owner != nil && c.owner.Equal(submitter) {
		return true
	}
	_, ok := c.providers[submitter.String()]
	return ok
}

// CanCloseBatch reports whether the identity holds the close capability.
func (c *StaticAccessController) CanCloseBatch(caller crypto.PublicKey) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.owner != nil && c.owner.Equal(caller)
}

// Paused reports whether state-changing operations are suspended.
func (c *StaticAccessController) Paused() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.paused
}

func (c *StaticAccessController) SubmitCooldown() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.submitCooldown
}

func (c *StaticAccessController) RequestCooldown() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.requestCooldown
}

// GrantProvider adds an identity to the submission allow-list.
func (c *StaticAccessController) GrantProvider(pk crypto.PublicKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[pk.String()] = pk
}

// RevokeProvider removes an identity from the submission allow-list.
// The owner cannot be revoked.
func (c *StaticAccessController) RevokeProvider(pk crypto.PublicKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.providers, pk.String())
}

// SetPaused toggles the pause switch.
func (c *StaticAccessController) SetPaused(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = paused
}

// Providers returns the current allow-list, excluding the owner.
func (c *StaticAccessController) Providers() []crypto.PublicKey {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]crypto.PublicKey, 0, len(c.providers))
	for _, pk := range c.providers {
		out = append(out, pk)
	}
	return out
}
