// Package decoder fetches the remote configuration document, resolves its
// obfuscated field names and publishes an immutable Snapshot.
//
// A new Snapshot replaces the current one only when a parse fully succeeds.
// Fetch and parse failures are returned as errors and leave the previously
// published Snapshot untouched.
package decoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/whit3rabbit/siterelay/internal/nametable"
	"github.com/whit3rabbit/siterelay/internal/settings"
)

var (
	// ErrFetch reports that the document could not be retrieved or was empty.
	ErrFetch = errors.New("config fetch failed")
	// ErrParse reports a malformed document or a missing root element.
	ErrParse = errors.New("config parse failed")
	// ErrFieldMissing marks a setting absent from the document. It is never
	// returned by the decoder; missing keys are listed in Snapshot.Missing.
	ErrFieldMissing = errors.New("config field missing")
)

const (
	sectionProgram = "program"
	sectionSites   = "widelist"
	sectionQuery   = "mktquery"
	sectionClRange = "clrange"
	sectionTimeQry = "tmquery"
	timeQueryEntry = "qlist"
	clRangeEntry   = "idx"
	subPercentAttr = "subper%d"
	clRangePerAttr = "per"
	clRangeGapAttr = "gaper"
)

// Fetcher retrieves the raw document text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) (string, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, url string) (string, error) {
	return f(ctx, url)
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(d *Decoder) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithCacheFile makes the decoder write the raw text of every successfully
// parsed document to path.
func WithCacheFile(path string) Option {
	return func(d *Decoder) { d.cacheFile = path }
}

// Decoder turns documents into Snapshots.
type Decoder struct {
	fetcher   Fetcher
	names     *nametable.Table
	logger    *zap.Logger
	cacheFile string

	current atomic.Pointer[Snapshot]
}

// New creates a Decoder. fetcher may be nil if only Apply and LoadFile are used.
func New(fetcher Fetcher, names *nametable.Table, opts ...Option) *Decoder {
	d := &Decoder{
		fetcher: fetcher,
		names:   names,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Current returns the last successfully applied Snapshot, or a cleared one
// before the first success. It never returns nil.
func (d *Decoder) Current() *Snapshot {
	if s := d.current.Load(); s != nil {
		return s
	}
	return cleared
}

// FetchAndParse fetches url, parses the text and publishes the result.
func (d *Decoder) FetchAndParse(ctx context.Context, url string) (*Snapshot, error) {
	if d.fetcher == nil {
		return nil, fmt.Errorf("%w: no fetcher configured", ErrFetch)
	}
	text, err := d.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty document from %s", ErrFetch, url)
	}
	return d.Apply(text)
}

// LoadFile parses a document stored on disk and publishes the result.
func (d *Decoder) LoadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, fmt.Errorf("%w: empty document in %s", ErrFetch, path)
	}
	return d.Apply(string(data))
}

// Apply parses text and, on success, atomically replaces the current Snapshot.
func (d *Decoder) Apply(text string) (*Snapshot, error) {
	snap, err := d.Parse(text)
	if err != nil {
		d.logger.Warn("config document rejected", zap.Error(err))
		return nil, err
	}
	d.current.Store(snap)

	if len(snap.Missing) > 0 {
		d.logger.Warn("config fields missing",
			zap.Int("count", len(snap.Missing)),
			zap.Error(ErrFieldMissing))
	}
	d.logger.Info("config applied",
		zap.Int("sites", snap.Sites.Len()),
		zap.Int("bands", len(snap.Settings.Bands)),
		zap.Int("click_ranges", len(snap.Settings.ClickRanges)))

	if d.cacheFile != "" {
		if err := writeCache(d.cacheFile, text); err != nil {
			d.logger.Warn("failed to write config cache", zap.String("path", d.cacheFile), zap.Error(err))
		}
	}
	return snap, nil
}

// Parse builds a Snapshot from text without publishing it.
func (d *Decoder) Parse(text string) (*Snapshot, error) {
	doc, err := xmlquery.Parse(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	root := firstElement(doc)
	if root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrParse)
	}

	snap := &Snapshot{
		Sites:      newSiteList(childElement(root, sectionSites)),
		QueryBlock: childElement(root, sectionQuery),
		TimeQuery:  newTimeQuery(childElement(root, sectionTimeQry)),
		LoadedAt:   time.Now(),
	}

	program := childElement(root, sectionProgram)
	snap.Settings, snap.Missing = d.readProgram(program)
	return snap, nil
}

func (d *Decoder) readProgram(program *xmlquery.Node) (settings.Settings, []nametable.Key) {
	values := make(map[nametable.Key]string, len(nametable.AllKeys))
	var missing []nametable.Key

	for _, k := range nametable.AllKeys {
		v, ok := d.field(program, k)
		if !ok {
			missing = append(missing, k)
		}
		values[k] = v
	}

	s := settings.Settings{
		RefDom:     values[nametable.KeyRefDom],
		OnOff:      values[nametable.KeyOnOff],
		Bwc:        values[nametable.KeyBwc],
		CTime:      values[nametable.KeyCTime],
		CTimeDown:  values[nametable.KeyCTimeDown],
		CTimeUp:    values[nametable.KeyCTimeUp],
		STimeDown:  values[nametable.KeySTimeDown],
		STimeUp:    values[nametable.KeySTimeUp],
		MUserAgent: values[nametable.KeyMUserAgent],
		KeyCycleB:  values[nametable.KeyKeyCycleB],
		SubCycleB:  values[nametable.KeySubCycleB],
		NeoBack3:   values[nametable.KeyNeoBack3],
		Weights:    make(map[string]string, len(nametable.WeightKeys)),
	}
	for _, k := range nametable.WeightKeys {
		s.Weights[string(k)] = values[k]
	}

	s.Bands = d.readBands(program, s.SubCycleB)
	s.ClickRanges = readClickRanges(program)
	return s, missing
}

// field resolves key through the name table and reads the attribute
// verbatim from the named child of program.
func (d *Decoder) field(program *xmlquery.Node, key nametable.Key) (string, bool) {
	if program == nil || d.names == nil {
		return "", false
	}
	name, err := d.names.Resolve(key)
	if err != nil {
		d.logger.Debug("name resolution failed", zap.String("key", string(key)), zap.Error(err))
		return "", false
	}
	return lookupAttr(holder(program, name.Element), name.Attribute)
}

func (d *Decoder) readBands(program *xmlquery.Node, subCycle string) []settings.Band {
	if program == nil || d.names == nil {
		return nil
	}
	n := min(max(settings.ParseInt(subCycle, 0), 0), settings.MaxBands)
	if n == 0 {
		return nil
	}
	name, err := d.names.Resolve(nametable.KeySubCycleB)
	if err != nil {
		return nil
	}
	elem := holder(program, name.Element)

	percents := make([]string, n)
	for i := range percents {
		percents[i], _ = lookupAttr(elem, fmt.Sprintf(subPercentAttr, i+1))
	}
	return settings.BuildBands(percents)
}

func readClickRanges(program *xmlquery.Node) []settings.ClickRange {
	section := childElement(program, sectionClRange)
	if section == nil {
		return nil
	}
	var ranges []settings.ClickRange
	for _, idx := range childElements(section, clRangeEntry) {
		r := settings.ClickRange{
			Per:    settings.ParseInt(idx.SelectAttr(clRangePerAttr), 0),
			GapPer: settings.ParseInt(idx.SelectAttr(clRangeGapAttr), 0),
		}
		if r.Per > 0 && r.GapPer > 0 {
			ranges = append(ranges, r)
		}
	}
	return ranges
}

// holder returns the child of program carrying the attributes, falling back
// to program itself for documents that put them on the section directly.
func holder(program *xmlquery.Node, element string) *xmlquery.Node {
	if elem := childElement(program, element); elem != nil {
		return elem
	}
	return program
}

func firstElement(n *xmlquery.Node) *xmlquery.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			return c
		}
	}
	return nil
}

func childElement(n *xmlquery.Node, name string) *xmlquery.Node {
	if n == nil || name == "" {
		return nil
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && c.Data == name {
			return c
		}
	}
	return nil
}

func childElements(n *xmlquery.Node, name string) []*xmlquery.Node {
	var out []*xmlquery.Node
	if n == nil {
		return out
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && c.Data == name {
			out = append(out, c)
		}
	}
	return out
}

func lookupAttr(n *xmlquery.Node, name string) (string, bool) {
	if n == nil || name == "" {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func writeCache(path, text string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(text), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
