// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"maps"
	"slices"

	"github.com/charmbracelet/glamour"
)

type Id int

const (
	SettingsNotFoundId Id = iota + 1
	SettingsInvalidId
	UnloadableTypeId
	DependencyCycleId
	DuplicateHandlerId
	AmbiguousHandlerId
	InvalidLocationId
	InvalidContextId
	FilterConflictId
	CacheUnavailableId
	LoadCancelledId
)

type MarkdownMsg string

type HttpLink string

type Renderer interface {
	Render(in string, stylePath string) (string, error)
}

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink  // links to the project documentation
	extLinks []HttpLink  // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n## See also\n"
		for _, link := range i.docLinks {
			extraMd += "\n- <" + string(link) + ">"
		}
		for _, link := range i.extLinks {
			extraMd += "\n- <" + string(link) + ">"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	settingsNotFoundIssue = &Issue{
		id: SettingsNotFoundId,
		mdMsg: `
# No settings file found!

cfgweave looked for a ` + "`cfgweave.cue`" + ` file and could not find one.

## Search locations (in order of precedence):
1. The path given with ` + "`--settings`" + `
2. The current directory
3. ` + "`$XDG_CONFIG_HOME/cfgweave`" + `

## Things you can try:
- Write the default settings to the current directory:
~~~
$ cfgweave settings init
~~~`,
	}

	settingsInvalidIssue = &Issue{
		id:       SettingsInvalidId,
		extLinks: []HttpLink{"https://cuelang.org/docs/tour/"},
		mdMsg: `
# Invalid settings!

The settings file does not match the settings schema.

## Things you can try:
- Print the effective settings and compare them with the schema:
~~~
$ cfgweave settings show
~~~

- Check that ` + "`cache.driver`" + ` is one of ` + "`none`, `memory` or `file`" + `
- Check that ` + "`log_level`" + ` is one of ` + "`debug`, `info`, `warn` or `error`" + ``,
	}

	unloadableTypeIssue = &Issue{
		id: UnloadableTypeId,
		mdMsg: `
# A discovered type cannot be loaded!

Discovery found a concrete type in a config or handler location, but the
type was never registered, so no instance can be created for it.

## Things you can try:
- Register the type in an ` + "`init`" + ` function of its package:
~~~go
func init() {
	registry.Register[SiteConfig](registry.Default, "alpha.SiteConfig")
}
~~~

- Move helper types out of the config locations
- Make helper types unexported; only exported types are discovered`,
	}

	dependencyCycleIssue = &Issue{
		id: DependencyCycleId,
		mdMsg: `
# Dependency cycle detected!

Two or more handlers or config types require each other to run first.

## Example of a cycle:
~~~go
func (h *Routes) Configure(c *pipeline.Configurator) {
	c.ExecuteAfter("site.Handler")
}

func (h *Site) Configure(c *pipeline.Configurator) {
	c.ExecuteAfter("routes.Handler") // Cycle: routes -> site -> routes
}
~~~

## Things you can try:
- Review the ExecuteBefore and ExecuteAfter declarations
- Review the ConfigOrder lists of the config types
- Remove one side of the circular requirement`,
	}

	duplicateHandlerIssue = &Issue{
		id: DuplicateHandlerId,
		mdMsg: `
# Duplicate handler!

Two registered handler instances share the same key. Every handler type may
be registered only once per loader.

## Things you can try:
- Remove the second ` + "`RegisterHandler`" + ` call
- Use ` + "`RegisterAsOverrideFor`" + ` to replace a handler instead`,
	}

	ambiguousHandlerIssue = &Issue{
		id: AmbiguousHandlerId,
		mdMsg: `
# Cached definitions do not match the registered handlers!

A cached runtime definition names a handler type that matches more than one
registered handler.

## Things you can try:
- Clear the cache and load again:
~~~
$ cfgweave cache clear
~~~`,
	}

	invalidLocationIssue = &Issue{
		id:       InvalidLocationId,
		extLinks: []HttpLink{"https://github.com/bmatcuk/doublestar#patterns"},
		mdMsg: `
# Invalid location pattern!

A root or handler location is empty or is not a valid glob pattern.

## Things you can try:
- Close every ` + "`[`" + ` and ` + "`{`" + ` in the pattern
- Use ` + "`**`" + ` to match any number of directories`,
	}

	invalidContextIssue = &Issue{
		id: InvalidContextId,
		mdMsg: `
# Invalid config context!

A custom config context must embed ` + "`*pipeline.Context`" + `.

~~~go
type AppContext struct {
	*pipeline.Context
}
~~~`,
	}

	filterConflictIssue = &Issue{
		id: FilterConflictId,
		mdMsg: `
# Conflicting handler filter!

The same capability is listed as both allowed and ignored.

## Things you can try:
- Remove the capability from one of the two lists`,
	}

	cacheUnavailableIssue = &Issue{
		id: CacheUnavailableId,
		mdMsg: `
# Cache unavailable!

The cache directory could not be read or written.

## Things you can try:
- Check the permissions of the cache directory
- Point ` + "`cache.dir`" + ` at a writable directory
- Disable caching:
~~~
$ CFGWEAVE_CACHE_DRIVER=none cfgweave load
~~~`,
	}

	loadCancelledIssue = &Issue{
		id: LoadCancelledId,
		mdMsg: `
# Load cancelled!

The load was interrupted before the configuration was complete. Nothing was
written to the cache.`,
	}

	issues = map[Id]*Issue{
		settingsNotFoundIssue.Id(): settingsNotFoundIssue,
		settingsInvalidIssue.Id():  settingsInvalidIssue,
		unloadableTypeIssue.Id():   unloadableTypeIssue,
		dependencyCycleIssue.Id():  dependencyCycleIssue,
		duplicateHandlerIssue.Id(): duplicateHandlerIssue,
		ambiguousHandlerIssue.Id(): ambiguousHandlerIssue,
		invalidLocationIssue.Id():  invalidLocationIssue,
		invalidContextIssue.Id():   invalidContextIssue,
		filterConflictIssue.Id():   filterConflictIssue,
		cacheUnavailableIssue.Id(): cacheUnavailableIssue,
		loadCancelledIssue.Id():    loadCancelledIssue,
	}
)

// Values returns every issue ordered by id.
func Values() []*Issue {
	out := slices.Collect(maps.Values(issues))
	slices.SortFunc(out, func(a, b *Issue) int { return int(a.id) - int(b.id) })
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}
