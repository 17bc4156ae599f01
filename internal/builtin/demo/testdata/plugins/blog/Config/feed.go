package blog

// Feed is implemented by feed sources. Discovery skips interfaces.
type Feed interface {
	URL() string
}

// FeedConfig configures the RSS feed.
type FeedConfig struct{}

// PagesConfig lists the static pages and runs before FeedConfig.
type PagesConfig struct{}
