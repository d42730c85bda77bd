package document

import (
	"crypto/rand"
	"sort"
)

// SchemaVersion is the current blob schema tag.
const SchemaVersion = 1

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Document is the canonical per-device state: domains -> pages -> notes.
// The whole document is always materialized as one value; every write
// replaces the full encrypted blob.
type Document struct {
	Version int                      `json:"v"`
	Domains map[string]*DomainRecord `json:"domains"`
}

type DomainRecord struct {
	Pinned bool                   `json:"pinned"`
	Pages  map[string]*PageRecord `json:"pages"`
}

type PageRecord struct {
	Notes    []*Note   `json:"notes"`
	Theme    string    `json:"theme,omitempty"`
	Position *Position `json:"pos,omitempty"`
}

type Position struct {
	Left int `json:"left"`
	Top  int `json:"top"`
}

// Note is the unit of conflict resolution. A deleted note is kept as a
// tombstone so the deletion can propagate to other devices. Tombstones are
// never pruned, so the document grows for the lifetime of an installation.
type Note struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"ts"`
	UpdatedAt int64  `json:"uTs"`
	Deleted   bool   `json:"del"`
}

func New() *Document {
	return &Document{
		Version: SchemaVersion,
		Domains: map[string]*DomainRecord{},
	}
}

// NewNoteID returns an 8 character random id drawn from [A-Za-z0-9].
func NewNoteID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		panic("document: random source unavailable: " + err.Error())
	}
	id := make([]byte, 8)
	for i, b := range buf {
		id[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(id)
}

// EnsureDomain returns the record for domain, creating it on first write.
func (d *Document) EnsureDomain(domain string) *DomainRecord {
	if d.Domains == nil {
		d.Domains = map[string]*DomainRecord{}
	}
	rec, ok := d.Domains[domain]
	if !ok {
		rec = &DomainRecord{Pages: map[string]*PageRecord{}}
		d.Domains[domain] = rec
	}
	if rec.Pages == nil {
		rec.Pages = map[string]*PageRecord{}
	}
	return rec
}

// EnsurePage returns the page record for domain/path, creating it lazily.
// Page records are never deleted, even with all notes tombstoned.
func (d *Document) EnsurePage(domain, path string) *PageRecord {
	rec := d.EnsureDomain(domain)
	page, ok := rec.Pages[path]
	if !ok {
		page = &PageRecord{Notes: []*Note{}}
		rec.Pages[path] = page
	}
	return page
}

// Page returns the page record for domain/path or nil.
func (d *Document) Page(domain, path string) *PageRecord {
	rec, ok := d.Domains[domain]
	if !ok {
		return nil
	}
	return rec.Pages[path]
}

// FindNote returns the note with the given id on domain/path, tombstones
// included, or nil when the page or id is unknown.
func (d *Document) FindNote(domain, path, id string) *Note {
	page := d.Page(domain, path)
	if page == nil {
		return nil
	}
	for _, note := range page.Notes {
		if note.ID == id {
			return note
		}
	}
	return nil
}

// HasNoteID reports whether any page in the document holds the id. Note ids
// are unique across the whole document.
func (d *Document) HasNoteID(id string) bool {
	for _, rec := range d.Domains {
		for _, page := range rec.Pages {
			for _, note := range page.Notes {
				if note.ID == id {
					return true
				}
			}
		}
	}
	return false
}

// ActiveNotes returns the non-tombstoned notes of a page in stored order.
func (p *PageRecord) ActiveNotes() []*Note {
	notes := make([]*Note, 0, len(p.Notes))
	for _, note := range p.Notes {
		if !note.Deleted {
			notes = append(notes, note)
		}
	}
	return notes
}

type DomainSummary struct {
	Domain     string `json:"domain"`
	Pinned     bool   `json:"pinned"`
	TotalNotes int    `json:"totalNotes"`
	TotalPages int    `json:"totalPages"`
}

type PageSummary struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// Summaries lists every domain with at least one active note, sorted by name.
func (d *Document) Summaries() []DomainSummary {
	out := make([]DomainSummary, 0, len(d.Domains))
	for domain, rec := range d.Domains {
		summary := DomainSummary{Domain: domain, Pinned: rec.Pinned}
		for _, page := range rec.Pages {
			active := len(page.ActiveNotes())
			if active > 0 {
				summary.TotalPages++
				summary.TotalNotes += active
			}
		}
		if summary.TotalNotes > 0 {
			out = append(out, summary)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}

// OtherPages lists same-domain pages other than current that still carry
// active notes, sorted by path.
func (d *Document) OtherPages(domain, current string) []PageSummary {
	rec, ok := d.Domains[domain]
	if !ok {
		return nil
	}
	out := make([]PageSummary, 0, len(rec.Pages))
	for path, page := range rec.Pages {
		if path == current {
			continue
		}
		if count := len(page.ActiveNotes()); count > 0 {
			out = append(out, PageSummary{Path: path, Count: count})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
