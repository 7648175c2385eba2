// Package seasons lists the RLCS seasons known to the collector together
// with their catalog group ids and size estimates.
package seasons

import (
	"fmt"
	"strings"
)

// AvgReplayBytes is the loose per-replay size used for estimates.
const AvgReplayBytes = 1_800_000

// LastUpdated is when the replay counts below were last checked.
const LastUpdated = "2025-12-16"

// Season is one RLCS season in the catalog.
type Season struct {
	Key            string `json:"key"`
	GroupID        string `json:"group_id"`
	Name           string `json:"name"`
	EstimatedCount int    `json:"estimated_replay_count"`
	Active         bool   `json:"is_active"`
}

// EstimatedBytes is the expected download size of the whole season.
func (s Season) EstimatedBytes() int64 {
	return int64(s.EstimatedCount) * AvgReplayBytes
}

// DefaultPrefix is where a season lands in storage unless overridden.
func (s Season) DefaultPrefix() []string {
	return []string{"replays", "rlcs", s.Key}
}

var registry = []Season{
	{Key: "21-22", GroupID: "rlcs-21-22-jl7xcwxrpc", Name: "RLCS 2021-2022", EstimatedCount: 5915},
	{Key: "22-23", GroupID: "rlcs-22-23-jjc408bdu4", Name: "RLCS 2022-2023", EstimatedCount: 15443},
	{Key: "2024", GroupID: "rlcs-2024-jsvrszynst", Name: "RLCS 2024", EstimatedCount: 7324},
	{Key: "2025", GroupID: "rlcs-2025-7ielfd7uhx", Name: "RLCS 2025", EstimatedCount: 7038},
	{Key: "2026", GroupID: "rlcs-2026-d3chsz8nje", Name: "RLCS 2026", EstimatedCount: 834, Active: true},
}

// All returns every known season, oldest first.
func All() []Season {
	out := make([]Season, len(registry))
	copy(out, registry)
	return out
}

// Keys returns the season keys, oldest first.
func Keys() []string {
	keys := make([]string, len(registry))
	for i, s := range registry {
		keys[i] = s.Key
	}
	return keys
}

// UnknownSeasonError is returned by Lookup for a key not in the registry.
type UnknownSeasonError struct {
	Key string
}

func (e *UnknownSeasonError) Error() string {
	return fmt.Sprintf("season %q not found (available: %s)", e.Key, strings.Join(Keys(), ", "))
}

// Lookup returns the season with the given key.
func Lookup(key string) (Season, error) {
	for _, s := range registry {
		if s.Key == key {
			return s, nil
		}
	}
	return Season{}, &UnknownSeasonError{Key: key}
}
