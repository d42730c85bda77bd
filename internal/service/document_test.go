package service

import (
	"context"
	"testing"

	"github.com/emrgen/pagenote/internal/compress"
	"github.com/emrgen/pagenote/internal/crypto"
	"github.com/emrgen/pagenote/internal/kv"
	"github.com/emrgen/pagenote/internal/model"
	"github.com/emrgen/pagenote/internal/store"
	"github.com/emrgen/pagenote/internal/tester"
	"github.com/stretchr/testify/assert"
)

func newTestDocuments(t *testing.T) (*DocumentService, store.Store, kv.Store) {
	t.Helper()
	tester.RemoveDBFile()
	tester.Setup()

	synced := tester.KV()
	docStore := store.NewGormStore(tester.TestDB())
	docs := NewDocumentService(compress.NewGZip(), "gzip", docStore, crypto.NewKeyManager(synced))
	return docs, docStore, synced
}

func TestDocumentService_AddNote(t *testing.T) {
	docs, _, _ := newTestDocuments(t)
	ctx := context.TODO()

	first, err := docs.AddNote(ctx, "example.com", "/a", "first note")
	assert.NoError(t, err)
	assert.Len(t, first.ID, 8)
	assert.Equal(t, first.CreatedAt, first.UpdatedAt)

	second, err := docs.AddNote(ctx, "example.com", "/a", "second note")
	assert.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	notes := docs.ListNotes(ctx, "example.com", "/a")
	assert.Len(t, notes, 2)
	// most recent first
	assert.Equal(t, second.ID, notes[0].ID)
	assert.Equal(t, first.ID, notes[1].ID)
}

func TestDocumentService_PersistsAcrossInstances(t *testing.T) {
	docs, docStore, synced := newTestDocuments(t)
	ctx := context.TODO()

	note, err := docs.AddNote(ctx, "example.com", "/a", "survives restart")
	assert.NoError(t, err)

	reopened := NewDocumentService(compress.NewGZip(), "gzip", docStore, crypto.NewKeyManager(synced))
	notes := reopened.ListNotes(ctx, "example.com", "/a")
	assert.Len(t, notes, 1)
	assert.Equal(t, note.ID, notes[0].ID)
	assert.Equal(t, "survives restart", notes[0].Text)
}

func TestDocumentService_StoredBlobIsEncrypted(t *testing.T) {
	docs, docStore, _ := newTestDocuments(t)
	ctx := context.TODO()

	_, err := docs.AddNote(ctx, "example.com", "/a", "very secret text")
	assert.NoError(t, err)

	vault, err := docStore.GetVault(ctx, "document")
	assert.NoError(t, err)
	assert.NotContains(t, vault.Payload, "very secret text")
	assert.Equal(t, "gzip", vault.Compression)
}

func TestDocumentService_UpdateNote(t *testing.T) {
	docs, _, _ := newTestDocuments(t)
	ctx := context.TODO()

	note, err := docs.AddNote(ctx, "example.com", "/a", "before")
	assert.NoError(t, err)

	updated, err := docs.UpdateNote(ctx, "example.com", "/a", note.ID, "after")
	assert.NoError(t, err)
	assert.Equal(t, "after", updated.Text)
	assert.Greater(t, updated.UpdatedAt, note.CreatedAt)

	missing, err := docs.UpdateNote(ctx, "example.com", "/a", "nope1234", "x")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDocumentService_SoftDeleteNote(t *testing.T) {
	docs, _, _ := newTestDocuments(t)
	ctx := context.TODO()

	note, err := docs.AddNote(ctx, "example.com", "/a", "doomed")
	assert.NoError(t, err)

	deleted, err := docs.SoftDeleteNote(ctx, "example.com", "/a", note.ID)
	assert.NoError(t, err)
	assert.True(t, deleted)
	assert.Empty(t, docs.ListNotes(ctx, "example.com", "/a"))

	// the tombstone stays in the document for merge propagation
	raw := docs.Load(ctx).FindNote("example.com", "/a", note.ID)
	assert.NotNil(t, raw)
	assert.True(t, raw.Deleted)
	assert.Greater(t, raw.UpdatedAt, raw.CreatedAt)

	missing, err := docs.SoftDeleteNote(ctx, "example.com", "/a", "nope1234")
	assert.NoError(t, err)
	assert.False(t, missing)
}

func TestDocumentService_PinAndTheme(t *testing.T) {
	docs, _, _ := newTestDocuments(t)
	ctx := context.TODO()

	assert.False(t, docs.IsPinned(ctx, "example.com"))
	assert.NoError(t, docs.SetPinned(ctx, "example.com", true))
	assert.True(t, docs.IsPinned(ctx, "example.com"))

	pinned, err := docs.TogglePin(ctx, "example.com")
	assert.NoError(t, err)
	assert.False(t, pinned)

	assert.Equal(t, "", docs.PageTheme(ctx, "example.com", "/a"))
	assert.NoError(t, docs.SetTheme(ctx, "example.com", "/a", "dark"))
	assert.Equal(t, "dark", docs.PageTheme(ctx, "example.com", "/a"))

	assert.Nil(t, docs.PagePosition(ctx, "example.com", "/a"))
	assert.NoError(t, docs.SetPosition(ctx, "example.com", "/a", 120, 40))
	pos := docs.PagePosition(ctx, "example.com", "/a")
	assert.Equal(t, 120, pos.Left)
	assert.Equal(t, 40, pos.Top)
}

func TestDocumentService_CorruptBlobStartsEmpty(t *testing.T) {
	docs, docStore, _ := newTestDocuments(t)
	ctx := context.TODO()

	err := docStore.PutVault(ctx, &model.Vault{
		Slot:        "document",
		Payload:     "not a valid blob",
		Compression: "gzip",
	})
	assert.NoError(t, err)

	doc := docs.Load(ctx)
	assert.Empty(t, doc.Domains)

	// the service stays writable after the fallback
	_, err = docs.AddNote(ctx, "example.com", "/a", "fresh start")
	assert.NoError(t, err)
	assert.Len(t, docs.ListNotes(ctx, "example.com", "/a"), 1)
}

func TestDocumentService_ChangeHook(t *testing.T) {
	docs, _, _ := newTestDocuments(t)
	ctx := context.TODO()

	fired := 0
	docs.SetChangeHook(func() { fired++ })

	_, err := docs.AddNote(ctx, "example.com", "/a", "note")
	assert.NoError(t, err)
	assert.NoError(t, docs.SetPinned(ctx, "example.com", true))
	assert.Equal(t, 2, fired)

	// merge writes stay silent so a pull cannot re-arm the push
	_, err = docs.MergeRemote(ctx, docs.Load(ctx))
	assert.NoError(t, err)
	assert.Equal(t, 2, fired)
}

func TestDocumentService_ExportMarkdown(t *testing.T) {
	docs, _, _ := newTestDocuments(t)
	ctx := context.TODO()

	_, err := docs.AddNote(ctx, "example.com", "/a", "exported note")
	assert.NoError(t, err)

	out := docs.ExportMarkdown(ctx)
	assert.Contains(t, out, "## example.com")
	assert.Contains(t, out, "- exported note")
}
