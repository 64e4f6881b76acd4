package settings

// SiteItem is the typed view of one <item> of the site list.
type SiteItem struct {
	Type string
	URL  string

	// MClick is the primary gate threshold, PClick the secondary one. Both
	// are raw attribute values.
	MClick string
	PClick string

	PvqCycle    string
	ScrollX     string
	ScrollRatio string
}

// PrimaryThreshold is the accept threshold of the primary gate, defaulting
// to always-accept.
func (it SiteItem) PrimaryThreshold() int {
	return ParseInt(it.MClick, DefaultThreshold)
}

// SecondaryThreshold is the accept threshold of the secondary gate.
func (it SiteItem) SecondaryThreshold() int {
	return ParseInt(it.PClick, DefaultThreshold)
}
