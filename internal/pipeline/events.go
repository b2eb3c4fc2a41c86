package pipeline

// EventKind identifies a progress notification.
type EventKind int

const (
	// EventCheckStart is sent before an item's page is fetched
	EventCheckStart EventKind = iota
	// EventUpToDate is sent when the remote version equals the recorded one
	EventUpToDate
	// EventNeedsUpdate is sent when the remote version differs
	EventNeedsUpdate
	// EventDownloading carries download progress
	EventDownloading
	// EventInstalled is sent after the file is in place and committed
	EventInstalled
	// EventFailed is sent when the item stops on an error
	EventFailed
)

var eventNames = map[EventKind]string{
	EventCheckStart:  "check-start",
	EventUpToDate:    "up-to-date",
	EventNeedsUpdate: "needs-update",
	EventDownloading: "downloading",
	EventInstalled:   "installed",
	EventFailed:      "failed",
}

func (k EventKind) String() string {
	return eventNames[k]
}

// Event is a progress notification for one item.
type Event struct {
	Kind            EventKind
	Item            string
	Version         string
	PreviousVersion string
	// Received and Total are set for EventDownloading; Total is -1 when
	// the length is unknown
	Received int64
	Total    int64
	Path     string
	Err      error
}

// Observer receives events. It may be called from several goroutines at
// once and must not block for long.
type Observer func(Event)
