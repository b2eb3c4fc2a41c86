package pipeline

import (
	"fmt"
	"time"

	"github.com/obentoo/lifter/internal/history"
)

// Status is the terminal state of one processed item.
type Status int

const (
	// StatusSkipped means the remote version equals the recorded one
	StatusSkipped Status = iota
	// StatusInstalled means a new file was installed and its version committed
	StatusInstalled
	// StatusFailed means the item stopped on an error; nothing was committed
	StatusFailed
	// StatusUpdateAvailable is reported by dry runs in place of an install
	StatusUpdateAvailable
)

var statusNames = map[Status]string{
	StatusSkipped:         "skipped",
	StatusInstalled:       "installed",
	StatusFailed:          "failed",
	StatusUpdateAvailable: "update-available",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Outcome is the result of processing one item.
type Outcome struct {
	// Item is the manifest item name
	Item string
	// Status is the terminal state
	Status Status
	// Path is the installed file, set for StatusInstalled
	Path string
	// Version is the remote version when it could be read
	Version string
	// PreviousVersion is the version recorded before this run
	PreviousVersion string
	// AssetURL is the selected download link, when one was matched
	AssetURL string
	// Err is set for StatusFailed
	Err error
	// Duration is how long the item took
	Duration time.Duration
}

// Reason returns the failure reason identifier of a failed outcome.
func (o Outcome) Reason() string {
	return ReasonName(o.Err)
}

// historyEntry converts the outcome into a ledger entry.
func (o Outcome) historyEntry(at time.Time) history.Entry {
	e := history.Entry{
		Item:            o.Item,
		Status:          o.Status.String(),
		Version:         o.Version,
		PreviousVersion: o.PreviousVersion,
		AssetURL:        o.AssetURL,
		Path:            o.Path,
		At:              at,
	}
	if o.Err != nil {
		e.Error = o.Err.Error()
	}
	return e
}

// Summary counts outcomes per status.
type Summary struct {
	Skipped         int
	Installed       int
	Failed          int
	UpdateAvailable int
}

// Summarize counts outcomes per status
func Summarize(outcomes []Outcome) Summary {
	var s Summary
	for _, o := range outcomes {
		switch o.Status {
		case StatusSkipped:
			s.Skipped++
		case StatusInstalled:
			s.Installed++
		case StatusFailed:
			s.Failed++
		case StatusUpdateAvailable:
			s.UpdateAvailable++
		}
	}
	return s
}

// Total returns the number of counted outcomes
func (s Summary) Total() int {
	return s.Skipped + s.Installed + s.Failed + s.UpdateAvailable
}
