// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/cfgweave/cfgweave/internal/cache"
	"github.com/cfgweave/cfgweave/internal/dag"
	"github.com/cfgweave/cfgweave/internal/issue"
	"github.com/cfgweave/cfgweave/internal/pipeline"
	"github.com/cfgweave/cfgweave/internal/scanner"
	"github.com/cfgweave/cfgweave/internal/state"
)

const (
	// PhaseUninitialised is the phase before a load started.
	PhaseUninitialised Phase = iota
	// PhaseDiscovering covers handler and config discovery.
	PhaseDiscovering
	// PhaseExecuting covers the handler runs.
	PhaseExecuting
	// PhaseCaching covers writing the cache entry.
	PhaseCaching
	// PhaseComplete is reached once the state is final.
	PhaseComplete
)

type (
	// Phase is a step of a load.
	Phase uint8

	// run is the state of a single Load call.
	run struct {
		loader  *Loader
		lc      *pipeline.LoadContext
		runtime bool
		phase   Phase
		logger  *log.Logger
	}
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseUninitialised:
		return "uninitialised"
	case PhaseDiscovering:
		return "discovering"
	case PhaseExecuting:
		return "executing"
	case PhaseCaching:
		return "caching"
	case PhaseComplete:
		return "complete"
	default:
		return fmt.Sprintf("Phase(%d)", uint8(p))
	}
}

// Load builds the configuration state. In runtime mode only the discovered
// definitions are cached and the handlers run on every load; otherwise the
// complete state is cached and a cache hit skips discovery and execution.
func (l *Loader) Load(ctx context.Context, runtime bool) (*state.State, error) {
	st, err := l.load(ctx, runtime)
	if err != nil {
		return nil, l.actionable(err)
	}
	return st, nil
}

func (l *Loader) load(ctx context.Context, runtime bool) (*state.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lc, err := l.newLoadContext()
	if err != nil {
		return nil, err
	}
	st := state.New(l.initialState)
	cc, err := l.newContext(lc, st)
	if err != nil {
		return nil, err
	}
	lc.Config = cc

	before := &BeforeLoadEvent{Runtime: runtime, LoadContext: lc, Loader: l}
	lc.Dispatch(before)
	if before.LoadContext != nil {
		lc = before.LoadContext
	}
	if lc.Config == nil {
		lc.Config = cc
	}

	r := &run{loader: l, lc: lc, runtime: runtime, logger: lc.Log("loader")}
	r.logger.Debug("Loading configuration",
		"type", l.typ, "environment", l.environment, "runtime", runtime, "roots", len(lc.Roots))

	var cached bool
	if runtime {
		cached, err = r.loadRuntime(ctx)
	} else {
		cached, err = r.loadFull(ctx)
	}
	if err != nil {
		return nil, err
	}
	r.enter(PhaseComplete)

	after := &AfterLoadEvent{Runtime: runtime, Cached: cached, LoadContext: lc, State: lc.Config.State()}
	lc.Dispatch(after)
	return after.State, nil
}

// newLoadContext clones the registrations and expands the root patterns.
func (l *Loader) newLoadContext() (*pipeline.LoadContext, error) {
	lc := (&pipeline.LoadContext{
		Type:             l.typ,
		Environment:      l.environment,
		HandlerLocations: l.handlerLocations,
		Handlers:         l.handlers,
		Modifiers:        l.modifiers,
		Registry:         l.registry,
		Container:        l.container,
		Scanner:          l.scanner,
		Events:           l.events,
		Logger:           l.logger,
	}).Clone()

	seen := make(map[string]bool)
	for _, rp := range l.roots {
		entries, err := l.scanner.Glob(rp.pattern)
		if err != nil {
			return nil, &InvalidLocationError{Pattern: rp.pattern, Reason: err.Error()}
		}
		matched := 0
		for _, e := range entries {
			if !e.Dir || seen[e.Path] {
				continue
			}
			seen[e.Path] = true
			lc.Roots = append(lc.Roots, pipeline.RootLocation{Path: e.Path, Namespace: rp.namespace})
			matched++
		}
		if matched == 0 {
			lc.Log("loader").Debug("Root location matched no directory", "pattern", rp.pattern)
		}
	}
	return lc, nil
}

func (l *Loader) newContext(lc *pipeline.LoadContext, st *state.State) (pipeline.ConfigContext, error) {
	if l.contextFactory == nil {
		return pipeline.NewContext(lc, st), nil
	}
	cc := l.contextFactory()
	if err := pipeline.InitContext(cc, lc, st); err != nil {
		return nil, &InvalidContextTypeError{Type: fmt.Sprintf("%T", cc)}
	}
	return cc, nil
}

func (r *run) enter(p Phase) {
	r.logger.Debug("Entering phase", "from", r.phase, "to", p)
	r.phase = p
}

func (r *run) checkpoint(ctx context.Context, p Phase) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", p, err)
	}
	r.enter(p)
	return nil
}

func (r *run) loadFull(ctx context.Context) (bool, error) {
	l := r.loader
	key := l.CacheKey(false)
	st := r.lc.Config.State()

	if cached, ok, err := r.readState(key); err != nil {
		return false, err
	} else if ok {
		st.ImportFrom(cached, l.cacheMergeOptions)
		r.logger.Debug("Restored state from cache", "key", key)
		return true, nil
	}

	if err := r.checkpoint(ctx, PhaseDiscovering); err != nil {
		return false, err
	}
	defs, err := r.definitions(ctx)
	if err != nil {
		return false, err
	}
	if err := r.checkpoint(ctx, PhaseExecuting); err != nil {
		return false, err
	}
	if err := r.execute(ctx, defs); err != nil {
		return false, err
	}

	if err := r.checkpoint(ctx, PhaseCaching); err != nil {
		return false, err
	}
	ev := &BeforeStateCachingEvent{HasCache: l.cache != nil, CacheKey: key, LoadContext: r.lc, Loader: l}
	r.lc.Dispatch(ev)
	if l.cache == nil || ev.Skip {
		return false, nil
	}
	data, err := r.lc.Config.State().ToJSON()
	if err != nil {
		return false, err
	}
	if err := l.cache.Set(key, data); err != nil {
		return false, &cacheError{op: "write", key: key, err: err}
	}
	r.logger.Debug("Cached state", "key", key, "bytes", len(data))
	return false, nil
}

func (r *run) loadRuntime(ctx context.Context) (bool, error) {
	l := r.loader
	key := l.CacheKey(true)

	records, hit, err := r.readDefinitions(key)
	if err != nil {
		return false, err
	}

	var defs []*pipeline.ConfigDefinition
	if hit {
		defs = make([]*pipeline.ConfigDefinition, 0, len(records))
		for _, rec := range records {
			d, err := pipeline.Hydrate(r.lc, rec)
			if err != nil {
				return false, fmt.Errorf("restore cached definition of %s: %w", rec.Handler.Key, err)
			}
			defs = append(defs, d)
		}
		r.logger.Debug("Restored definitions from cache", "key", key, "definitions", len(defs))
	} else {
		if err := r.checkpoint(ctx, PhaseDiscovering); err != nil {
			return false, err
		}
		if defs, err = r.definitions(ctx); err != nil {
			return false, err
		}
	}

	if err := r.checkpoint(ctx, PhaseExecuting); err != nil {
		return false, err
	}
	if err := r.execute(ctx, defs); err != nil {
		return false, err
	}
	if hit || l.cache == nil {
		return hit, nil
	}

	if err := r.checkpoint(ctx, PhaseCaching); err != nil {
		return false, err
	}
	records = make([]pipeline.DehydratedDefinition, 0, len(defs))
	for _, d := range defs {
		records = append(records, d.Dehydrate())
	}
	data, err := json.Marshal(records)
	if err != nil {
		return false, fmt.Errorf("encode definitions: %w", err)
	}
	if err := l.cache.Set(key, data); err != nil {
		return false, &cacheError{op: "write", key: key, err: err}
	}
	r.logger.Debug("Cached definitions", "key", key, "definitions", len(records))
	return false, nil
}

// definitions runs the handler finder and the config finder for every
// handler found. Event listeners may swap either finder.
func (r *run) definitions(ctx context.Context) ([]*pipeline.ConfigDefinition, error) {
	hf := &HandlerFinderFilterEvent{Finder: r.loader.handlerFinder, LoadContext: r.lc}
	r.lc.Dispatch(hf)
	handlers, err := hf.Finder.Find(ctx, r.lc)
	if err != nil {
		return nil, err
	}

	cf := &ConfigFinderFilterEvent{Finder: r.loader.configFinder, LoadContext: r.lc}
	r.lc.Dispatch(cf)
	defs := make([]*pipeline.ConfigDefinition, 0, len(handlers))
	for _, h := range handlers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d, err := cf.Finder.Find(ctx, h, r.lc.Config)
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return defs, nil
}

func (r *run) execute(ctx context.Context, defs []*pipeline.ConfigDefinition) error {
	for _, d := range defs {
		r.logger.Debug("Running handler", "handler", d.Handler.Key, "configs", len(d.ConfigClasses))
		if err := d.Process(ctx); err != nil {
			return err
		}
	}
	return nil
}

// readState returns the cached state. Unreadable entries count as a miss.
func (r *run) readState(key string) (*state.State, bool, error) {
	data, ok, err := r.readEntry(key)
	if !ok || err != nil {
		return nil, false, err
	}
	cached, err := state.FromJSON(data)
	if err != nil {
		r.logger.Warn("Ignoring unreadable cache entry", "key", key, "err", err)
		return nil, false, nil
	}
	return cached, true, nil
}

// readDefinitions returns the cached definitions. Unreadable entries count as
// a miss.
func (r *run) readDefinitions(key string) ([]pipeline.DehydratedDefinition, bool, error) {
	data, ok, err := r.readEntry(key)
	if !ok || err != nil {
		return nil, false, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var records []pipeline.DehydratedDefinition
	if err := dec.Decode(&records); err != nil {
		r.logger.Warn("Ignoring unreadable cache entry", "key", key, "err", err)
		return nil, false, nil
	}
	for i := range records {
		if records[i].Handler.DefaultState != nil {
			state.NormalizeNumbers(records[i].Handler.DefaultState)
		}
	}
	return records, true, nil
}

func (r *run) readEntry(key string) ([]byte, bool, error) {
	store := r.loader.cache
	if store == nil {
		return nil, false, nil
	}
	data, err := store.Get(key)
	switch {
	case err == nil:
		return data, true, nil
	case errors.Is(err, cache.ErrNotFound):
		r.logger.Debug("Cache miss", "key", key)
		return nil, false, nil
	default:
		return nil, false, &cacheError{op: "read", key: key, err: err}
	}
}

// actionable wraps err with the operation and the suggestions that match its
// cause.
func (l *Loader) actionable(err error) error {
	ec := issue.NewErrorContext().
		WithOperation("load configuration").
		WithResource(fmt.Sprintf("%s (%s)", l.typ, l.environment))

	switch {
	case errors.Is(err, pipeline.ErrUnloadableType):
		ec.WithIssue(issue.UnloadableTypeId).WithSuggestions(
			"Register the type with registry.Register before loading",
			"Move types that are not meant to be discovered out of the config locations",
		)
	case errors.Is(err, dag.ErrCyclicDependency):
		ec.WithIssue(issue.DependencyCycleId).WithSuggestion("Check the ExecuteBefore and ExecuteAfter declarations of the handlers and the ordering of the config types")
	case errors.Is(err, pipeline.ErrDuplicateHandler):
		ec.WithIssue(issue.DuplicateHandlerId).WithSuggestion("Register every handler type only once")
	case errors.Is(err, pipeline.ErrAmbiguousHandler):
		ec.WithIssue(issue.AmbiguousHandlerId).WithSuggestions(
			"Register every handler type only once",
			"Run 'cfgweave cache clear' to rebuild the cached definitions",
		)
	case errors.Is(err, ErrInvalidLocation), errors.Is(err, scanner.ErrInvalidPattern):
		ec.WithIssue(issue.InvalidLocationId).WithSuggestion("Check the glob syntax of the root and handler locations")
	case errors.Is(err, ErrInvalidContextType), errors.Is(err, pipeline.ErrInvalidContext):
		ec.WithIssue(issue.InvalidContextId).WithSuggestion("Embed *pipeline.Context in the custom config context")
	case errors.Is(err, pipeline.ErrFilterConflict):
		ec.WithIssue(issue.FilterConflictId).WithSuggestion("Remove the capabilities listed in both the allow and the ignore list")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		ec.WithIssue(issue.LoadCancelledId)
	case errors.Is(err, errCache):
		ec.WithIssue(issue.CacheUnavailableId).WithSuggestion("Check that the cache directory is writable")
	}
	return ec.Wrap(err).BuildError()
}
