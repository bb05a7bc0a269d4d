package agent

import (
	"regexp"
	"strconv"

	"blissful-agent/internal/dom"
)

// Selector heuristics tied to the host page's markup live here and nowhere
// else, so a host UI update means touching this file only. Class matches
// are prefix matches because the SPA hashes its class names.
const (
	albumLinkPrefix  = "/album/"
	artistLinkPrefix = "/artist/"

	trackTitleClassPrefix  = "trackTitle"
	trackNumberClassPrefix = "trackNumber"
	trackStatusClassPrefix = "trackStatus"

	// The warning marker the host renders in a status cell when the track
	// file is absent.
	missingMarkerIcon = "exclamation-triangle"
)

// "0 / N": zero of N units present. Matched against leaf text only.
var zeroCompletionPattern = regexp.MustCompile(`^0\s*/\s*[1-9][0-9]*$`)

// Classify inspects one snapshot row and returns a candidate iff the row
// represents missing content for the given page kind. Read-only: never
// mutates the page.
func Classify(kind PageKind, row *dom.Node) *RowCandidate {
	if row == nil || row.Ref() == "" {
		return nil
	}
	switch kind {
	case PageArtist, PageWantedMissing:
		return classifyListRow(kind, row)
	case PageAlbumDetail:
		return classifyDetailRow(row)
	default:
		return nil
	}
}

// classifyListRow handles artist pages and the wanted/missing listing.
// A row is a candidate iff it links to an album detail page; it is missing
// iff the listing itself is the missing page, or a status label shows zero
// completion.
func classifyListRow(kind PageKind, row *dom.Node) *RowCandidate {
	link := row.Link(albumLinkPrefix)
	if link == nil {
		return nil
	}
	title := link.TrimmedText()
	if title == "" {
		return nil
	}

	if kind != PageWantedMissing && !hasZeroCompletion(row) {
		return nil
	}

	artist := ""
	if a := row.Link(artistLinkPrefix); a != nil {
		artist = a.TrimmedText()
	}

	return &RowCandidate{
		Kind:   kind,
		RowRef: row.Ref(),
		Title:  title,
		Artist: artist,
		Album:  title,
	}
}

// classifyDetailRow handles track rows inside one album. A row is a
// candidate iff its title cell has text; it is missing iff the status cell
// carries the warning marker.
func classifyDetailRow(row *dom.Node) *RowCandidate {
	titleCell := row.Find(func(n *dom.Node) bool { return n.HasClassPrefix(trackTitleClassPrefix) })
	if titleCell == nil {
		return nil
	}
	title := titleCell.TrimmedText()
	if title == "" {
		return nil
	}

	statusCell := row.Find(func(n *dom.Node) bool { return n.HasClassPrefix(trackStatusClassPrefix) })
	if statusCell == nil || !hasMissingMarker(statusCell) {
		return nil
	}

	return &RowCandidate{
		Kind:        PageAlbumDetail,
		RowRef:      row.Ref(),
		Title:       title,
		TrackNumber: trackNumber(row),
	}
}

func hasZeroCompletion(row *dom.Node) bool {
	return row.Find(func(n *dom.Node) bool {
		return len(n.Children) == 0 && zeroCompletionPattern.MatchString(n.TrimmedText())
	}) != nil
}

func hasMissingMarker(statusCell *dom.Node) bool {
	return statusCell.Find(func(n *dom.Node) bool {
		return n.Attr("data-icon") == missingMarkerIcon
	}) != nil
}

// trackNumber parses the ordinal cell, defaulting to 1 when absent or
// unparsable.
func trackNumber(row *dom.Node) int {
	cell := row.Find(func(n *dom.Node) bool { return n.HasClassPrefix(trackNumberClassPrefix) })
	if cell == nil {
		return 1
	}
	n, err := strconv.Atoi(cell.TrimmedText())
	if err != nil || n < 1 {
		return 1
	}
	return n
}
