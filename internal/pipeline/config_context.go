// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"github.com/cfgweave/cfgweave/internal/state"
	"github.com/cfgweave/cfgweave/pkg/types"
)

type (
	// ConfigContext is handed to handlers and config types while a load
	// executes. Custom contexts embed Context, which is the only way to
	// satisfy the interface.
	ConfigContext interface {
		// Namespace returns the namespace of the config type being processed.
		Namespace() string
		// RunWithNamespace runs fn with namespace active for the context and
		// for relative state paths. The previous namespace is restored
		// afterwards.
		RunWithNamespace(namespace string, fn func() error) error
		Type() string
		Environment() string
		State() *state.State
		LoadContext() *LoadContext
		Instance(id types.TypeID) (any, error)

		base() *Context
	}

	// Context is the default ConfigContext.
	Context struct {
		namespace string
		load      *LoadContext
		state     *state.State
	}
)

// NewContext creates a Context bound to lc and st.
func NewContext(lc *LoadContext, st *state.State) *Context {
	return &Context{load: lc, state: st}
}

// ValidateContext returns ErrInvalidContext unless ctx is backed by an
// embedded, non-nil Context.
func ValidateContext(ctx ConfigContext) error {
	if ctx == nil || ctx.base() == nil {
		return ErrInvalidContext
	}
	return nil
}

// InitContext binds a custom context to lc and st.
func InitContext(ctx ConfigContext, lc *LoadContext, st *state.State) error {
	if err := ValidateContext(ctx); err != nil {
		return err
	}
	b := ctx.base()
	b.load = lc
	b.state = st
	b.namespace = ""
	return nil
}

// Namespace implements ConfigContext.
func (c *Context) Namespace() string { return c.namespace }

// RunWithNamespace implements ConfigContext.
func (c *Context) RunWithNamespace(namespace string, fn func() error) error {
	previous := c.namespace
	c.namespace = namespace
	defer func() { c.namespace = previous }()

	return c.state.UseNamespace(namespace, fn)
}

// Type implements ConfigContext.
func (c *Context) Type() string { return c.load.Type }

// Environment implements ConfigContext.
func (c *Context) Environment() string { return c.load.Environment }

// State implements ConfigContext.
func (c *Context) State() *state.State { return c.state }

// LoadContext implements ConfigContext.
func (c *Context) LoadContext() *LoadContext { return c.load }

// Instance implements ConfigContext.
func (c *Context) Instance(id types.TypeID) (any, error) { return c.load.Instance(id) }

func (c *Context) base() *Context { return c }
