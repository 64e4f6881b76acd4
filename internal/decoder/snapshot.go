package decoder

import (
	"time"

	"github.com/antchfx/xmlquery"

	"github.com/whit3rabbit/siterelay/internal/nametable"
	"github.com/whit3rabbit/siterelay/internal/settings"
)

// Snapshot is the result of one successful parse. It is shared between
// goroutines and must be treated as read-only.
type Snapshot struct {
	Settings settings.Settings

	// Sites is never nil; it is empty when the document has no site list.
	Sites *SiteList

	// QueryBlock is the opaque <mktquery> sub-tree, or nil.
	QueryBlock *xmlquery.Node

	// TimeQuery is the <tmquery> section, or nil when absent.
	TimeQuery *TimeQuery

	// Missing lists the keys that could not be found in the document.
	Missing []nametable.Key

	LoadedAt time.Time
}

// TimeQuery holds the timed query window. Attribute values are kept
// verbatim; URLs keep document order and exclude empty entries.
type TimeQuery struct {
	STime string
	ETime string
	QCnt  string
	URLs  []string
}

func newTimeQuery(node *xmlquery.Node) *TimeQuery {
	if node == nil {
		return nil
	}
	tq := &TimeQuery{
		STime: node.SelectAttr("stime"),
		ETime: node.SelectAttr("etime"),
		QCnt:  node.SelectAttr("qcnt"),
	}
	for _, q := range childElements(node, timeQueryEntry) {
		if url := q.SelectAttr("url"); url != "" {
			tq.URLs = append(tq.URLs, url)
		}
	}
	return tq
}

// cleared is returned by Current before the first successful parse.
var cleared = &Snapshot{Sites: &SiteList{}}

// SiteList is the <widelist> sub-tree. Items are addressed by position and
// converted to settings.SiteItem on demand.
type SiteList struct {
	node  *xmlquery.Node
	items []*xmlquery.Node
}

func newSiteList(node *xmlquery.Node) *SiteList {
	if node == nil {
		return &SiteList{}
	}
	return &SiteList{node: node, items: xmlquery.Find(node, "item")}
}

// Len returns the number of <item> entries.
func (l *SiteList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.items)
}

// Item returns the entry at position i.
func (l *SiteList) Item(i int) (settings.SiteItem, bool) {
	if i < 0 || i >= l.Len() {
		return settings.SiteItem{}, false
	}
	n := l.items[i]
	return settings.SiteItem{
		Type:        n.SelectAttr("type"),
		URL:         n.SelectAttr("url"),
		MClick:      n.SelectAttr("mclick"),
		PClick:      n.SelectAttr("pclick"),
		PvqCycle:    n.SelectAttr("pvqcycle"),
		ScrollX:     n.SelectAttr("scrollx"),
		ScrollRatio: n.SelectAttr("scrollratio"),
	}, true
}

// Attr returns an attribute of the <widelist> element itself, such as
// "mobileagent", "vw" or "vh".
func (l *SiteList) Attr(name string) string {
	if l == nil || l.node == nil {
		return ""
	}
	return l.node.SelectAttr(name)
}

// Node returns the underlying sub-tree, or nil.
func (l *SiteList) Node() *xmlquery.Node {
	if l == nil {
		return nil
	}
	return l.node
}
