package shop

// SiteConfig holds the shop defaults.
type SiteConfig struct{}
