package daemon

import (
	"time"

	"github.com/dgnsrekt/ttsproxy/internal/tts"
	"github.com/dgnsrekt/ttsproxy/internal/ttypes"
)

// SpeakRequest is the body of POST /v1/speak.
type SpeakRequest struct {
	Message        string         `json:"message"`
	Instance       string         `json:"instance,omitempty"`
	Target         string         `json:"target,omitempty"`
	Language       string         `json:"language,omitempty"`
	Options        map[string]any `json:"options,omitempty"`
	Priority       int            `json:"priority,omitempty"`
	VolumeOverride *float64       `json:"volume_override,omitempty"`
	PreRollMs      *int           `json:"pre_roll_ms,omitempty"`
	Interrupt      bool           `json:"interrupt,omitempty"`
}

// SpeakResponse acknowledges an accepted announcement.
type SpeakResponse struct {
	ID        string `json:"id"`
	Instance  string `json:"instance"`
	Target    string `json:"target"`
	QueueSize int    `json:"queue_size"`
}

// Announcement describes a queued or playing announcement.
type Announcement struct {
	ID         string    `json:"id"`
	Message    string    `json:"message"`
	Target     string    `json:"target"`
	Language   string    `json:"language,omitempty"`
	Priority   int       `json:"priority"`
	Interrupt  bool      `json:"interrupt,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Finished describes the last announcement an instance handled.
type Finished struct {
	Announcement Announcement `json:"announcement"`
	Outcome      string       `json:"outcome"`
	Completion   string       `json:"completion"`
	Error        string       `json:"error,omitempty"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at"`
}

// InstanceStatus is the transport form of tts.Status.
type InstanceStatus struct {
	Name         string         `json:"name"`
	Target       string         `json:"target"`
	State        string         `json:"state"`
	StateSince   time.Time      `json:"state_since"`
	QueueSize    int            `json:"queue_size"`
	Pending      []Announcement `json:"pending"`
	Current      *Announcement  `json:"current,omitempty"`
	LastFinished *Finished      `json:"last_finished,omitempty"`
	Ducked       []string       `json:"ducked,omitempty"`
	Processed    int64          `json:"processed"`
	Failed       int64          `json:"failed"`
}

// InstancesResponse is returned by GET /v1/instances.
type InstancesResponse struct {
	Instances []InstanceStatus `json:"instances"`
}

// ClearResponse is returned by POST /v1/instances/{name}/clear.
type ClearResponse struct {
	Instance string `json:"instance"`
	Dropped  int    `json:"dropped"`
}

// SkipResponse is returned by POST /v1/instances/{name}/skip. Skipped is
// the id of the announcement that was playing, if any.
type SkipResponse struct {
	Instance string `json:"instance"`
	Skipped  string `json:"skipped,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func convertAnnouncement(a ttypes.Announcement) Announcement {
	return Announcement{
		ID:         a.ID,
		Message:    a.Message,
		Target:     a.Target,
		Language:   a.Language,
		Priority:   a.Priority,
		Interrupt:  a.Interrupt,
		EnqueuedAt: a.EnqueuedAt,
	}
}

func convertStatus(st tts.Status) InstanceStatus {
	out := InstanceStatus{
		Name:       st.Instance,
		Target:     st.Target,
		State:      st.State.String(),
		StateSince: st.StateSince,
		QueueSize:  st.QueueSize,
		Pending:    make([]Announcement, 0, len(st.Pending)),
		Ducked:     st.Ducked,
		Processed:  st.Processed,
		Failed:     st.Failed,
	}
	for _, a := range st.Pending {
		out.Pending = append(out.Pending, convertAnnouncement(a))
	}
	if st.Current != nil {
		cur := convertAnnouncement(*st.Current)
		out.Current = &cur
	}
	if f := st.LastFinished; f != nil {
		out.LastFinished = &Finished{
			Announcement: convertAnnouncement(f.Announcement),
			Outcome:      f.Outcome.String(),
			Completion:   f.Completion.String(),
			Error:        f.Err,
			StartedAt:    f.StartedAt,
			FinishedAt:   f.FinishedAt,
		}
	}
	return out
}
