// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"github.com/cfgweave/cfgweave/internal/pipeline"
	"github.com/cfgweave/cfgweave/internal/state"
)

type (
	// BeforeLoadEvent is dispatched before discovery starts. Listeners may
	// replace LoadContext; its Config field must stay bound to the state.
	BeforeLoadEvent struct {
		Runtime     bool
		LoadContext *pipeline.LoadContext
		Loader      *Loader
	}

	// AfterLoadEvent is dispatched once the state is complete. Listeners may
	// replace State.
	AfterLoadEvent struct {
		Runtime     bool
		Cached      bool
		LoadContext *pipeline.LoadContext
		State       *state.State
	}

	// BeforeStateCachingEvent is dispatched in full-state mode after the
	// handlers ran and before the state is written to the cache. Setting Skip
	// keeps the state out of the cache.
	BeforeStateCachingEvent struct {
		HasCache    bool
		CacheKey    string
		LoadContext *pipeline.LoadContext
		Loader      *Loader
		Skip        bool
	}

	// HandlerFinderFilterEvent is dispatched before the handler finder is
	// used. Listeners may replace Finder.
	HandlerFinderFilterEvent struct {
		Finder      pipeline.HandlerFinder
		LoadContext *pipeline.LoadContext
	}

	// ConfigFinderFilterEvent is dispatched before the config finder is used.
	// Listeners may replace Finder.
	ConfigFinderFilterEvent struct {
		Finder      pipeline.ConfigFinder
		LoadContext *pipeline.LoadContext
	}
)
