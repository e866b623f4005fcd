// Package models defines core data structures for user profiles, embeddings, queries, and ranked results.
package models

import (
	"sort"
	"strings"
	"time"
)

// PrivacyLevel controls how much of a user's location is exposed to other users.
type PrivacyLevel string

const (
	PrivacyExact       PrivacyLevel = "exact"
	PrivacyCityOnly    PrivacyLevel = "city_only"
	PrivacyStateOnly   PrivacyLevel = "state_only"
	PrivacyCountryOnly PrivacyLevel = "country_only"
	PrivacyPrivate     PrivacyLevel = "private"
)

// OrDefault returns city_only when the level is unset.
func (p PrivacyLevel) OrDefault() PrivacyLevel {
	if p == "" {
		return PrivacyCityOnly
	}
	return p
}

// Visible reports whether a user with this privacy level may appear in other users' results.
// Unknown levels are treated as private.
func (p PrivacyLevel) Visible() bool {
	switch p.OrDefault() {
	case PrivacyExact, PrivacyCityOnly, PrivacyStateOnly, PrivacyCountryOnly:
		return true
	}
	return false
}

// Coordinates is a WGS84 point in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Location is a user's declared location.
type Location struct {
	City         string       `json:"city,omitempty" yaml:"city"`
	State        string       `json:"state,omitempty" yaml:"state"`
	Country      string       `json:"country,omitempty" yaml:"country"`
	Coordinates  *Coordinates `json:"coordinates,omitempty" yaml:"coordinates"`
	PrivacyLevel PrivacyLevel `json:"privacy_level,omitempty" yaml:"privacy_level"`
}

// Languages holds the native and preferred languages of a user.
type Languages struct {
	Native    string   `json:"native,omitempty" yaml:"native"`
	Preferred []string `json:"preferred,omitempty" yaml:"preferred"`
}

// UserProfile is the read-only view of a user consumed by the retrieval engine.
type UserProfile struct {
	UserID    string    `json:"user_id" yaml:"user_id"`
	Name      string    `json:"name" yaml:"name"`
	Tags      []string  `json:"tags" yaml:"tags"`
	Location  Location  `json:"location" yaml:"location"`
	Languages Languages `json:"languages" yaml:"languages"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// NormalizeTags lowercases, trims and deduplicates tags and returns them sorted.
// Tags are a set; sorting gives every consumer the same iteration order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Normalize canonicalizes the profile in place.
func (p *UserProfile) Normalize() {
	p.UserID = strings.TrimSpace(p.UserID)
	p.Name = strings.TrimSpace(p.Name)
	p.Tags = NormalizeTags(p.Tags)
	p.Location.PrivacyLevel = p.Location.PrivacyLevel.OrDefault()
}
