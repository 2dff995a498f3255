package document

import (
	"unicode/utf8"

	"github.com/dshills/exthost/internal/protocol"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// incrementalChanges returns edits that turn prev into next, expressed as
// incremental content changes to be applied in order. Each run of adjacent
// deletions and insertions becomes one edit. When the edits cannot be
// expressed exactly the whole text is sent instead.
func incrementalChanges(prev, next string) []protocol.TextDocumentContentChangeEvent {
	if prev == next {
		return nil
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(prev, next, false)
	diffs = dmp.DiffCleanupEfficiency(diffs)

	var changes []protocol.TextDocumentContentChangeEvent
	var pos protocol.Position // position in the partially edited text
	var pending *protocol.TextDocumentContentChangeEvent

	flush := func() {
		if pending != nil {
			changes = append(changes, *pending)
			pos = advance(pending.Range.Start, pending.Text)
			pending = nil
		}
	}

	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			flush()
			pos = advance(pos, d.Text)
		case diffmatchpatch.DiffDelete:
			if pending == nil {
				pending = &protocol.TextDocumentContentChangeEvent{Range: &protocol.Range{Start: pos, End: pos}}
			}
			pending.Range.End = advance(pending.Range.End, d.Text)
		case diffmatchpatch.DiffInsert:
			if pending == nil {
				pending = &protocol.TextDocumentContentChangeEvent{Range: &protocol.Range{Start: pos, End: pos}}
			}
			pending.Text += d.Text
		}
	}
	flush()

	if !replays(prev, next, changes) {
		return []protocol.TextDocumentContentChangeEvent{{Text: next}}
	}
	return changes
}

// advance moves pos over s.
func advance(pos protocol.Position, s string) protocol.Position {
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		s = s[size:]
		switch {
		case r == '\n':
			pos.Line++
			pos.Character = 0
		case r >= 0x10000:
			pos.Character += 2
		default:
			pos.Character++
		}
	}
	return pos
}

// replays checks that applying changes to prev yields next. Positions that
// fall between a carriage return and its line feed cannot be expressed and
// fail this check.
func replays(prev, next string, changes []protocol.TextDocumentContentChangeEvent) bool {
	text := prev
	for _, c := range changes {
		var err error
		text, err = protocol.ApplyEdit(text, *c.Range, c.Text)
		if err != nil {
			return false
		}
	}
	return text == next
}
