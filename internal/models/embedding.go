package models

import (
	"slices"
	"time"
)

// EmbeddingMetadata is the profile snapshot stored alongside a vector.
// It is re-derived from the profile every time the vector is recomputed.
type EmbeddingMetadata struct {
	Name         string       `json:"name"`
	Tags         []string     `json:"tags"`
	City         string       `json:"city,omitempty"`
	State        string       `json:"state,omitempty"`
	Country      string       `json:"country,omitempty"`
	Coordinates  *Coordinates `json:"coordinates,omitempty"`
	PrivacyLevel PrivacyLevel `json:"privacy_level,omitempty"`
}

// MetadataFromProfile snapshots the searchable parts of a profile.
func MetadataFromProfile(p *UserProfile) EmbeddingMetadata {
	var coords *Coordinates
	if p.Location.Coordinates != nil {
		c := *p.Location.Coordinates
		coords = &c
	}
	return EmbeddingMetadata{
		Name:         p.Name,
		Tags:         NormalizeTags(p.Tags),
		City:         p.Location.City,
		State:        p.Location.State,
		Country:      p.Location.Country,
		Coordinates:  coords,
		PrivacyLevel: p.Location.PrivacyLevel.OrDefault(),
	}
}

// Equal reports whether m and o describe the same profile snapshot.
func (m EmbeddingMetadata) Equal(o EmbeddingMetadata) bool {
	if m.Name != o.Name || m.City != o.City || m.State != o.State ||
		m.Country != o.Country || m.PrivacyLevel.OrDefault() != o.PrivacyLevel.OrDefault() {
		return false
	}
	if (m.Coordinates == nil) != (o.Coordinates == nil) {
		return false
	}
	if m.Coordinates != nil && *m.Coordinates != *o.Coordinates {
		return false
	}
	return slices.Equal(m.Tags, o.Tags)
}

// ProfileEmbedding is one user's vector together with the text and metadata it was computed from.
type ProfileEmbedding struct {
	UserID      string            `json:"user_id"`
	Vector      []float32         `json:"-"`
	ProfileText string            `json:"profile_text"`
	Metadata    EmbeddingMetadata `json:"metadata"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Clone returns a deep copy so callers can hold it without sharing the vector backing array.
func (e *ProfileEmbedding) Clone() *ProfileEmbedding {
	if e == nil {
		return nil
	}
	out := *e
	out.Vector = append([]float32(nil), e.Vector...)
	out.Metadata.Tags = append([]string(nil), e.Metadata.Tags...)
	if e.Metadata.Coordinates != nil {
		c := *e.Metadata.Coordinates
		out.Metadata.Coordinates = &c
	}
	return &out
}
