package document

// Merge folds remote into local at note granularity and reports whether local
// changed. Conflict policy is last-writer-wins on the per-note update
// timestamp; ties keep the local copy. There is no causal history, so two
// devices with skewed clocks can mis-order a rare concurrent edit. That is an
// accepted limitation of the scheme, not something the merge tries to correct.
//
// Rules:
//   - a remote domain absent locally is adopted wholesale
//   - the pinned flag merges by logical OR (merging never un-pins)
//   - a remote page absent locally is adopted wholesale
//   - a remote note with an unknown id is appended
//   - a remote note with a known id replaces the local note only when its
//     UpdatedAt is strictly greater; this carries tombstones across devices
func Merge(local, remote *Document) bool {
	if remote == nil {
		return false
	}
	if local.Domains == nil {
		local.Domains = map[string]*DomainRecord{}
	}

	changed := false
	for _, domain := range sortedKeys(remote.Domains) {
		remoteRec := remote.Domains[domain]
		if remoteRec == nil {
			continue
		}
		localRec, ok := local.Domains[domain]
		if !ok {
			local.Domains[domain] = remoteRec
			changed = true
			continue
		}

		if remoteRec.Pinned && !localRec.Pinned {
			localRec.Pinned = true
			changed = true
		}

		if localRec.Pages == nil {
			localRec.Pages = map[string]*PageRecord{}
		}
		for _, path := range sortedKeys(remoteRec.Pages) {
			remotePage := remoteRec.Pages[path]
			if remotePage == nil {
				continue
			}
			localPage, ok := localRec.Pages[path]
			if !ok {
				localRec.Pages[path] = remotePage
				changed = true
				continue
			}
			if mergeNotes(localPage, remotePage) {
				changed = true
			}
		}
	}
	return changed
}

func mergeNotes(localPage, remotePage *PageRecord) bool {
	changed := false
	for _, remoteNote := range remotePage.Notes {
		localNote := findNote(localPage.Notes, remoteNote.ID)
		if localNote == nil {
			localPage.Notes = append(localPage.Notes, remoteNote)
			changed = true
			continue
		}
		if remoteNote.UpdatedAt > localNote.UpdatedAt {
			*localNote = *remoteNote
			changed = true
		}
	}
	return changed
}

func findNote(notes []*Note, id string) *Note {
	for _, note := range notes {
		if note.ID == id {
			return note
		}
	}
	return nil
}
