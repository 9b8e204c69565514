package hermes

import "slices"

// SiteFilter decides whether a message is addressed to this service.
// An empty filter accepts every site.
type SiteFilter []string

// Accepts reports whether siteID is one of the configured sites.
func (f SiteFilter) Accepts(siteID string) bool {
	return len(f) == 0 || slices.Contains(f, siteID)
}
