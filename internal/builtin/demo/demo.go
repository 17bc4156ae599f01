// SPDX-License-Identifier: MPL-2.0

package demo

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/spf13/afero"

	"github.com/cfgweave/cfgweave/internal/builtin"
	"github.com/cfgweave/cfgweave/internal/config"
	"github.com/cfgweave/cfgweave/internal/pipeline"
	"github.com/cfgweave/cfgweave/internal/registry"
	"github.com/cfgweave/cfgweave/pkg/types"
)

const (
	// MountDir is where FS mounts the plugin tree.
	MountDir = "/demo"

	// TaggedCapability identifies the Tagged interface.
	TaggedCapability types.TypeID = "demo.Tagged"
	// TagsLocation holds the Tagged config types of a plugin.
	TagsLocation = "Tags"

	treeDir = "testdata/plugins"
)

//go:embed testdata/plugins
var tree embed.FS

type (
	// Tagged is implemented by config types contributing tags.
	Tagged interface {
		Tags() []string
	}

	// SiteConfig is shop.SiteConfig.
	SiteConfig struct{}
	// SiteOverride is shopoverride.SiteOverride.
	SiteOverride struct{}
	// FeedConfig is blog.FeedConfig.
	FeedConfig struct{}
	// PagesConfig is blog.PagesConfig.
	PagesConfig struct{}
	// PostTags is blog.PostTags.
	PostTags struct{}

	// TagsHandler is blog.TagsHandler. It is discovered from the Handlers
	// location rather than registered on the loader, and runs after
	// builtin.ValuesHandler.
	TagsHandler struct {
		pipeline.BaseHandler
		tagged int
	}
)

// Register adds the demo types to reg. reg must already hold the builtin
// registrations.
func Register(reg *registry.Registry) {
	registry.RegisterCapability[Tagged](reg, TaggedCapability)
	registry.Register[SiteConfig](reg, "shop.SiteConfig")
	registry.Register[SiteOverride](reg, "shopoverride.SiteOverride")
	registry.Register[FeedConfig](reg, "blog.FeedConfig")
	registry.Register[PagesConfig](reg, "blog.PagesConfig")
	registry.Register[PostTags](reg, "blog.PostTags")
	registry.Register[TagsHandler](reg, "blog.TagsHandler")
}

// FS returns an in-memory filesystem with the plugin tree below MountDir.
func FS() (afero.Fs, error) {
	mem := afero.NewMemMapFs()
	err := fs.WalkDir(tree, treeDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		target := path.Join(MountDir, "plugins", strings.TrimPrefix(p, treeDir))
		if d.IsDir() {
			return mem.MkdirAll(target, 0o755)
		}
		data, err := tree.ReadFile(p)
		if err != nil {
			return err
		}
		return afero.WriteFile(mem, target, data, 0o644)
	})
	if err != nil {
		return nil, fmt.Errorf("mount demo tree: %w", err)
	}
	return mem, nil
}

// Settings returns settings pointing at the mounted tree.
func Settings() *config.Settings {
	s := config.DefaultSettings()
	s.Type = "demo"
	s.Roots = []config.Root{{Path: types.FilesystemPath(path.Join(MountDir, "plugins", "*"))}}
	s.HandlerLocations = []string{"Handlers"}
	return s
}

func (*SiteConfig) Values() map[string]any {
	return map[string]any{
		"title":    "Demo Shop",
		"currency": "EUR",
		"db":       map[string]any{"host": "localhost", "port": 5432},
	}
}

func (*SiteOverride) Values() map[string]any {
	return map[string]any{"db": map[string]any{"host": "db.internal"}}
}

func (*FeedConfig) Values() map[string]any {
	return map[string]any{"feed": map[string]any{"url": "/rss", "items": 20}}
}

func (*PagesConfig) Values() map[string]any {
	return map[string]any{"pages": []any{"/", "/about"}}
}

func (*PagesConfig) ConfigOrder() (before, after []types.TypeID) {
	return []types.TypeID{"blog.FeedConfig"}, nil
}

func (*PostTags) Tags() []string { return []string{"go", "config"} }

// Configure implements pipeline.Handler.
func (h *TagsHandler) Configure(c *pipeline.Configurator) {
	c.RegisterLocation(TagsLocation).
		RegisterInterface(TaggedCapability).
		ExecuteAfter(builtin.ValuesHandlerID).
		RegisterDefaultState(map[string]any{"meta": map[string]any{"generator": "cfgweave demo"}})
}

// Prepare implements pipeline.Handler.
func (h *TagsHandler) Prepare() error {
	h.tagged = 0
	return nil
}

// Handle implements pipeline.Handler.
func (h *TagsHandler) Handle(id types.TypeID) error {
	inst, err := h.Instance(id)
	if err != nil {
		return err
	}
	tagged, ok := inst.(Tagged)
	if !ok {
		return fmt.Errorf("config type %s does not implement Tagged", id)
	}
	tags := make([]any, 0, len(tagged.Tags()))
	for _, tag := range tagged.Tags() {
		tags = append(tags, tag)
	}
	h.Context.State().MergeIntoArray("tags", tags)
	h.tagged++
	return nil
}

// Finish implements pipeline.Handler.
func (h *TagsHandler) Finish() error {
	h.Context.State().Set("meta.tagged", h.tagged)
	return nil
}
