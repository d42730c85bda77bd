package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/emrgen/pagenote/internal/compress"
	"github.com/emrgen/pagenote/internal/crypto"
	"github.com/emrgen/pagenote/internal/document"
	"github.com/emrgen/pagenote/internal/model"
	"github.com/emrgen/pagenote/internal/store"
	"github.com/sirupsen/logrus"
)

const vaultSlot = "document"

// NewDocumentService creates the canonical per-device document store. All
// mutations are full read-modify-write cycles over the encrypted blob,
// serialized by an internal lock so two overlapping cycles cannot lose an
// update.
func NewDocumentService(codec compress.Compress, codecName string, store store.Store, keys *crypto.KeyManager) *DocumentService {
	return &DocumentService{
		codec:     codec,
		codecName: codecName,
		store:     store,
		keys:      keys,
		now:       time.Now,
	}
}

type DocumentService struct {
	codec     compress.Compress
	codecName string
	store     store.Store
	keys      *crypto.KeyManager
	now       func() time.Time

	mu       sync.Mutex
	onChange func()
}

// SetChangeHook registers the callback fired after every user-originated
// save. The sync coordinator uses it to arm its debounced push. Writes made
// by the merge path bypass the hook so a pull never re-triggers a push.
func (d *DocumentService) SetChangeHook(fn func()) {
	d.mu.Lock()
	d.onChange = fn
	d.mu.Unlock()
}

// Load returns the canonical document. Absence, decryption failure and a
// corrupt payload all fall back to an empty document so the caller stays
// usable even with a broken or legacy blob; load never raises.
func (d *DocumentService) Load(ctx context.Context) *document.Document {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.load(ctx)
}

func (d *DocumentService) load(ctx context.Context) *document.Document {
	vault, err := d.store.GetVault(ctx, vaultSlot)
	if err != nil {
		if err != store.ErrVaultNotFound {
			logrus.Warnf("document load: %v", err)
		}
		return document.New()
	}
	key, err := d.keys.GetOrCreateKey(ctx)
	if err != nil {
		logrus.Warnf("document load: key unavailable: %v", err)
		return document.New()
	}
	plaintext, err := crypto.Decrypt(vault.Payload, key)
	if err != nil {
		logrus.Warnf("document load: %v, starting empty", err)
		return document.New()
	}
	codec, err := compress.ForName(vault.Compression)
	if err != nil {
		codec = d.codec
	}
	decoded, err := codec.Decode(plaintext)
	if err != nil {
		logrus.Warnf("document load: decode failed: %v, starting empty", err)
		return document.New()
	}
	doc := document.New()
	if err := json.Unmarshal(decoded, doc); err != nil {
		logrus.Warnf("document load: corrupt document: %v, starting empty", err)
		return document.New()
	}
	if doc.Domains == nil {
		doc.Domains = map[string]*document.DomainRecord{}
	}
	return doc
}

func (d *DocumentService) save(ctx context.Context, doc *document.Document, notify bool) error {
	plaintext, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	encoded, err := d.codec.Encode(plaintext)
	if err != nil {
		return err
	}
	key, err := d.keys.GetOrCreateKey(ctx)
	if err != nil {
		return err
	}
	payload, err := crypto.Encrypt(encoded, key)
	if err != nil {
		return err
	}
	err = d.store.PutVault(ctx, &model.Vault{
		Slot:        vaultSlot,
		Payload:     payload,
		Compression: d.codecName,
	})
	if err != nil {
		return err
	}
	if notify && d.onChange != nil {
		d.onChange()
	}
	return nil
}

// AddNote creates a note on domain/path with a fresh unique id, most recent
// first.
func (d *DocumentService) AddNote(ctx context.Context, domain, path, text string) (*document.Note, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	doc := d.load(ctx)
	page := doc.EnsurePage(domain, path)

	id := document.NewNoteID()
	for doc.HasNoteID(id) {
		id = document.NewNoteID()
	}
	now := d.now().UnixMilli()
	note := &document.Note{
		ID:        id,
		Text:      text,
		CreatedAt: now,
		UpdatedAt: now,
	}
	page.Notes = append([]*document.Note{note}, page.Notes...)

	if err := d.save(ctx, doc, true); err != nil {
		return nil, err
	}
	return note, nil
}

// UpdateNote rewrites the text of an existing note. An unknown page or note
// id is a silent no-op returning a nil note.
func (d *DocumentService) UpdateNote(ctx context.Context, domain, path, id, text string) (*document.Note, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	doc := d.load(ctx)
	note := doc.FindNote(domain, path, id)
	if note == nil {
		return nil, nil
	}
	note.Text = text
	note.UpdatedAt = d.nextTimestamp(note.UpdatedAt)

	if err := d.save(ctx, doc, true); err != nil {
		return nil, err
	}
	return note, nil
}

// SoftDeleteNote tombstones a note so the deletion can propagate to other
// devices. Unknown ids report false without error.
func (d *DocumentService) SoftDeleteNote(ctx context.Context, domain, path, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	doc := d.load(ctx)
	note := doc.FindNote(domain, path, id)
	if note == nil {
		return false, nil
	}
	note.Deleted = true
	note.UpdatedAt = d.nextTimestamp(note.UpdatedAt)

	if err := d.save(ctx, doc, true); err != nil {
		return false, err
	}
	return true, nil
}

func (d *DocumentService) SetPinned(ctx context.Context, domain string, pinned bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	doc := d.load(ctx)
	doc.EnsureDomain(domain).Pinned = pinned
	return d.save(ctx, doc, true)
}

func (d *DocumentService) TogglePin(ctx context.Context, domain string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	doc := d.load(ctx)
	rec := doc.EnsureDomain(domain)
	rec.Pinned = !rec.Pinned
	if err := d.save(ctx, doc, true); err != nil {
		return false, err
	}
	return rec.Pinned, nil
}

func (d *DocumentService) SetTheme(ctx context.Context, domain, path, theme string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	doc := d.load(ctx)
	doc.EnsurePage(domain, path).Theme = theme
	return d.save(ctx, doc, true)
}

func (d *DocumentService) SetPosition(ctx context.Context, domain, path string, left, top int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	doc := d.load(ctx)
	doc.EnsurePage(domain, path).Position = &document.Position{Left: left, Top: top}
	return d.save(ctx, doc, true)
}

// ListNotes returns the active notes of a page, most recent first.
func (d *DocumentService) ListNotes(ctx context.Context, domain, path string) []*document.Note {
	doc := d.Load(ctx)
	page := doc.Page(domain, path)
	if page == nil {
		return []*document.Note{}
	}
	return page.ActiveNotes()
}

func (d *DocumentService) ListDomains(ctx context.Context) []document.DomainSummary {
	return d.Load(ctx).Summaries()
}

func (d *DocumentService) OtherPages(ctx context.Context, domain, current string) []document.PageSummary {
	return d.Load(ctx).OtherPages(domain, current)
}

func (d *DocumentService) IsPinned(ctx context.Context, domain string) bool {
	rec, ok := d.Load(ctx).Domains[domain]
	return ok && rec.Pinned
}

// PageTheme returns the page-scoped theme or "" when unset; the caller
// applies the settings-level default.
func (d *DocumentService) PageTheme(ctx context.Context, domain, path string) string {
	page := d.Load(ctx).Page(domain, path)
	if page == nil {
		return ""
	}
	return page.Theme
}

func (d *DocumentService) PagePosition(ctx context.Context, domain, path string) *document.Position {
	page := d.Load(ctx).Page(domain, path)
	if page == nil {
		return nil
	}
	return page.Position
}

// MergeRemote folds a pulled document into the local one. Load, merge and
// save run under the store lock as one read-modify-write cycle, so a mutation
// landing during a pull is never overwritten by a stale merge snapshot. The
// change hook is not fired, so a pull cannot re-arm the push debounce and
// ping-pong between devices.
func (d *DocumentService) MergeRemote(ctx context.Context, remote *document.Document) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	doc := d.load(ctx)
	changed := document.Merge(doc, remote)
	if err := d.save(ctx, doc, false); err != nil {
		return false, err
	}
	return changed, nil
}

// ExportMarkdown decrypts the document and renders it as markdown.
func (d *DocumentService) ExportMarkdown(ctx context.Context) string {
	return document.ExportMarkdown(d.Load(ctx), d.now())
}

// nextTimestamp keeps per-note update timestamps strictly increasing even
// when two mutations land inside one millisecond.
func (d *DocumentService) nextTimestamp(prev int64) int64 {
	ts := d.now().UnixMilli()
	if ts <= prev {
		ts = prev + 1
	}
	return ts
}
