// SPDX-License-Identifier: MPL-2.0

package pipeline

import "github.com/cfgweave/cfgweave/pkg/types"

type (
	// ConfigHandlerFilterEvent is dispatched after handlers were discovered,
	// folded and sorted. Listeners may replace Handlers.
	ConfigHandlerFilterEvent struct {
		LoadContext *LoadContext
		Handlers    []*HandlerDefinition
	}

	// ConfigDefinitionFilterEvent is dispatched after the modifiers ran for a
	// handler. Listeners may change every field before the ConfigDefinition
	// is built.
	ConfigDefinitionFilterEvent struct {
		Handler               *HandlerDefinition
		Context               ConfigContext
		ConfigClasses         []types.TypeID
		OverrideConfigClasses []types.TypeID
		ClassNamespaces       map[types.TypeID]string
	}
)
