// SPDX-License-Identifier: MPL-2.0

package builtin

import (
	"errors"
	"fmt"

	"dario.cat/mergo"

	"github.com/cfgweave/cfgweave/internal/pipeline"
	"github.com/cfgweave/cfgweave/internal/registry"
	"github.com/cfgweave/cfgweave/internal/state"
	"github.com/cfgweave/cfgweave/pkg/types"
)

const (
	// ValuesLocation is the location ValuesHandler scans below every root.
	ValuesLocation = "Config"

	// ValueProviderCapability identifies the ValueProvider interface.
	ValueProviderCapability types.TypeID = "builtin.ValueProvider"
	// ValuesHandlerID identifies ValuesHandler.
	ValuesHandlerID types.TypeID = "builtin.ValuesHandler"
)

// ErrNotValueProvider is returned when a resolved instance lost its
// ValueProvider implementation, e.g. through a custom container.
var ErrNotValueProvider = errors.New("instance does not provide values")

type (
	// ValueProvider is implemented by config types holding plain values.
	ValueProvider interface {
		Values() map[string]any
	}

	// ValuesHandler merges ValueProvider values into the state.
	ValuesHandler struct {
		pipeline.BaseHandler
	}

	// NotValueProviderError names the offending config type.
	NotValueProviderError struct {
		ID   types.TypeID
		Type string
	}
)

// Register adds the builtin capabilities and handlers to reg.
func Register(reg *registry.Registry) {
	registry.RegisterCapability[ValueProvider](reg, ValueProviderCapability)
	registry.Register[ValuesHandler](reg, ValuesHandlerID)
}

// Configure implements pipeline.Handler.
func (h *ValuesHandler) Configure(c *pipeline.Configurator) {
	c.RegisterLocation(ValuesLocation).RegisterInterface(ValueProviderCapability)
}

// Handle merges the values of id into the active namespace. Maps are merged
// recursively and lists are appended, so override types only need to carry
// what they change.
func (h *ValuesHandler) Handle(id types.TypeID) error {
	inst, err := h.Instance(id)
	if err != nil {
		return err
	}
	vp, ok := inst.(ValueProvider)
	if !ok {
		return &NotValueProviderError{ID: id, Type: fmt.Sprintf("%T", inst)}
	}

	st := h.Context.State()
	values := vp.Values()
	merged := make(map[string]any, len(values))
	for key, v := range values {
		next, err := mergeValue(st.Get(key, nil), v)
		if err != nil {
			return fmt.Errorf("merge %s of %s: %w", key, id, err)
		}
		merged[key] = next
	}
	st.SetMultiple(merged)
	return nil
}

// mergeValue merges next into current when both are maps or both are lists.
// Any other value replaces current.
func mergeValue(current, next any) (any, error) {
	// mergo appends slices only as map entries.
	dst := state.CloneTree(map[string]any{"v": current})
	src := state.CloneTree(map[string]any{"v": next})
	switch src["v"].(type) {
	case map[string]any:
		if _, ok := dst["v"].(map[string]any); !ok {
			return src["v"], nil
		}
	case []any:
		if _, ok := dst["v"].([]any); !ok {
			return src["v"], nil
		}
	default:
		return src["v"], nil
	}
	if err := mergo.Merge(&dst, src, mergo.WithOverride, mergo.WithAppendSlice); err != nil {
		return nil, err
	}
	return dst["v"], nil
}

func (e *NotValueProviderError) Error() string {
	return fmt.Sprintf("config type %s (%s) does not implement ValueProvider", e.ID, e.Type)
}

func (e *NotValueProviderError) Unwrap() error { return ErrNotValueProvider }
