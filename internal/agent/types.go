package agent

import (
	"context"

	"blissful-agent/internal/dom"
)

// PageKind identifies which host-page layout a scan is looking at.
type PageKind int

const (
	PageUnknown PageKind = iota
	// PageArtist lists one artist's albums.
	PageArtist
	// PageWantedMissing is the host's "missing content" listing; every row
	// on it is missing by definition.
	PageWantedMissing
	// PageAlbumDetail shows the tracks of a single album.
	PageAlbumDetail
)

func (k PageKind) String() string {
	switch k {
	case PageArtist:
		return "artist"
	case PageWantedMissing:
		return "wanted_missing"
	case PageAlbumDetail:
		return "album_detail"
	default:
		return "unknown"
	}
}

// AlbumMetadata is the resolved context for the album detail page currently
// being viewed. Owned exclusively by the MetadataCache.
type AlbumMetadata struct {
	Title          string
	Artist         string
	ForeignAlbumID string
	LidarrAlbumID  *int
}

// RowCandidate is a transient view over one missing row. Recomputed every
// scan, never persisted. Context fields (Artist, Album, album IDs) are
// resolved at injection time so an activation needs no further lookups.
type RowCandidate struct {
	Kind   PageKind
	RowRef string
	// Title is the display title: a track title on detail pages, an album
	// title on list pages.
	Title  string
	Artist string
	Album  string
	// TrackNumber is the ordinal on detail pages (defaulting to 1); zero on
	// list pages where no ordinal exists.
	TrackNumber    int
	AlbumForeignID string
	LidarrAlbumID  *int
}

// ControlState is the lifecycle of one injected control.
type ControlState int

const (
	StateIdle ControlState = iota
	StatePending
	StateSuccess
	StateFailure
)

func (s ControlState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateSuccess:
		return "success"
	case StateFailure:
		return "failure"
	default:
		return "invalid"
	}
}

// ControlSpec describes one control to inject: where it goes, how it is
// addressed afterwards, and the generation tag that marks the write as the
// agent's own.
type ControlSpec struct {
	Ref    string
	RowRef string
	Tag    string
	Label  string
}

// NotifyLevel styles a notification.
type NotifyLevel string

const (
	NotifySuccess NotifyLevel = "success"
	NotifyInfo    NotifyLevel = "info"
	NotifyWarning NotifyLevel = "warning"
	NotifyError   NotifyLevel = "error"
)

// Page is the minimal surface the agent needs from the host page. The
// browser package implements it against a live tab; tests implement it
// against a fake.
type Page interface {
	URL(ctx context.Context) (string, error)
	Snapshot(ctx context.Context) (*dom.Node, error)
	InjectControl(ctx context.Context, spec ControlSpec) error
	SetControlState(ctx context.Context, ref string, state ControlState) error
	RemoveControl(ctx context.Context, ref string) error
	ShowToast(ctx context.Context, level NotifyLevel, message string) error
}

// PageEvent is one event drained from the in-page hook: either a mutation
// batch or a control activation, never both.
type PageEvent struct {
	Mutation    *dom.Mutation
	ActivateRef string
}
