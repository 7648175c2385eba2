package collection

import "strings"

// UnknownTeam is recorded when the remote metadata carries no team name.
const UnknownTeam = "Unknown"

// Group is a remote collection node as returned by the catalog.
type Group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Team holds the subset of team metadata the engine records.
type Team struct {
	Name string `json:"name,omitempty"`
}

// Replay is the typed record of one remote replay listing entry.
type Replay struct {
	ID          string `json:"id"`
	ReplayTitle string `json:"replay_title,omitempty"`
	Title       string `json:"title,omitempty"`
	Date        string `json:"date,omitempty"`
	Blue        *Team  `json:"blue,omitempty"`
	Orange      *Team  `json:"orange,omitempty"`
}

// DisplayTitle returns the best available human title for the replay.
func (r Replay) DisplayTitle() string {
	if r.ReplayTitle != "" {
		return r.ReplayTitle
	}
	if r.Title != "" {
		return r.Title
	}
	return UnknownTeam
}

// BlueName returns the blue team name, or UnknownTeam.
func (r Replay) BlueName() string { return teamName(r.Blue) }

// OrangeName returns the orange team name, or UnknownTeam.
func (r Replay) OrangeName() string { return teamName(r.Orange) }

func teamName(t *Team) string {
	if t == nil || strings.TrimSpace(t.Name) == "" {
		return UnknownTeam
	}
	return t.Name
}

// GroupTree is the in-memory result of crawling a group hierarchy.
// A node has children or replays, never both.
type GroupTree struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Children []*GroupTree `json:"children"`
	Replays  []Replay     `json:"replays"`
}

// IsLeaf reports whether the node has no child groups.
func (t *GroupTree) IsLeaf() bool { return len(t.Children) == 0 }

// CountReplays returns the number of replays in the subtree.
func (t *GroupTree) CountReplays() int {
	n := len(t.Replays)
	for _, c := range t.Children {
		n += c.CountReplays()
	}
	return n
}

// FlatReplay is one replay together with the names of the groups above it,
// starting with the root.
type FlatReplay struct {
	Replay    Replay
	GroupPath []string
}

// ReplayMetadata is attached to stored replay objects.
type ReplayMetadata struct {
	ReplayID   string `json:"replay_id"`
	Title      string `json:"title"`
	Date       string `json:"date"`
	BlueTeam   string `json:"blue_team"`
	OrangeTeam string `json:"orange_team"`
	GroupID    string `json:"group_id"`
}

// NewReplayMetadata builds storage metadata for a replay under the given root group.
func NewReplayMetadata(r Replay, groupID string) *ReplayMetadata {
	return &ReplayMetadata{
		ReplayID:   r.ID,
		Title:      r.DisplayTitle(),
		Date:       r.Date,
		BlueTeam:   r.BlueName(),
		OrangeTeam: r.OrangeName(),
		GroupID:    groupID,
	}
}

// Map returns the metadata as string pairs, the form object stores accept.
func (m *ReplayMetadata) Map() map[string]string {
	return map[string]string{
		"replay_id":   m.ReplayID,
		"title":       m.Title,
		"date":        m.Date,
		"blue_team":   m.BlueTeam,
		"orange_team": m.OrangeTeam,
		"group_id":    m.GroupID,
	}
}

// TrackerStats summarizes the tracking store. Computed live, never cached.
type TrackerStats struct {
	Total      int   `db:"total" json:"total"`
	Downloaded int   `db:"downloaded" json:"downloaded"`
	Failed     int   `db:"failed" json:"failed"`
	Pending    int   `db:"pending" json:"pending"`
	TotalBytes int64 `db:"total_bytes" json:"total_bytes"`
}

// StorageStats summarizes stored replay objects under a prefix.
type StorageStats struct {
	Count      int   `json:"count"`
	TotalBytes int64 `json:"total_bytes"`
}

// SaveResult describes a stored replay object.
type SaveResult struct {
	Key      string
	Size     int64
	Location string // file path or object URI
}
