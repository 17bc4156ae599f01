package shopoverride

// SiteOverride points the shop at the internal database.
type SiteOverride struct{}
