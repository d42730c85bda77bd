package document

import (
	"fmt"
	"strings"
	"time"
)

const exportTitle = "# pagenote export"

// ExportMarkdown renders the active notes of a document as a markdown
// outline with a section per domain and a bullet per note. Tombstoned notes
// and pages left with no active notes are skipped.
func ExportMarkdown(doc *Document, now time.Time) string {
	var b strings.Builder
	b.WriteString(exportTitle + "\n\n")
	fmt.Fprintf(&b, "> Exported: %s\n\n", now.Format("2006-01-02 15:04:05"))

	if doc == nil || len(doc.Domains) == 0 {
		b.WriteString("No notes yet.\n")
		return b.String()
	}

	for _, domain := range sortedKeys(doc.Domains) {
		rec := doc.Domains[domain]
		marker := ""
		if rec.Pinned {
			marker = " ⭐"
		}
		fmt.Fprintf(&b, "## %s%s\n\n", domain, marker)
		for _, path := range sortedKeys(rec.Pages) {
			active := rec.Pages[path].ActiveNotes()
			if len(active) == 0 {
				continue
			}
			fmt.Fprintf(&b, "### %s\n\n", path)
			for _, note := range active {
				created := time.UnixMilli(note.CreatedAt).Format("2006-01-02 15:04:05")
				fmt.Fprintf(&b, "- %s _(%s)_\n", note.Text, created)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
