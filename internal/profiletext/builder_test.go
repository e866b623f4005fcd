package profiletext

import (
	"testing"

	"github.com/hyperjump/nearby/internal/models"
)

func sampleProfile() *models.UserProfile {
	return &models.UserProfile{
		UserID: "u1",
		Name:   "Asha",
		Tags:   []string{"Cooking", "cooked", "south indian food", "bollywood", "cricket", "movies", "music", "dance", "painting"},
		Location: models.Location{
			City: "Frisco", State: "Texas", Country: "USA",
			Coordinates: &models.Coordinates{Lat: 33.15, Lng: -96.82},
		},
		Languages: models.Languages{Native: "Hindi", Preferred: []string{"English", "hindi", "Telugu"}},
	}
}

func TestBuilder_Build(t *testing.T) {
	got := NewBuilder(nil).Build(sampleProfile())
	want := "User: Asha" +
		" | Interests: Food & Cuisine: cooked, south indian food" +
		" | Entertainment: bollywood, dance, movies" +
		" | Sports: cricket" +
		" | Location: Frisco, Texas, USA" +
		" | Languages: Hindi, English"
	if got != want {
		t.Errorf("Build() =\n%q\nwant\n%q", got, want)
	}
}

func TestBuilder_Idempotent(t *testing.T) {
	b := NewBuilder(nil)
	p := sampleProfile()
	first := b.Build(p)
	for i := 0; i < 5; i++ {
		if got := b.Build(p); got != first {
			t.Fatalf("run %d differs:\n%q\n%q", i, got, first)
		}
	}
	shuffled := sampleProfile()
	shuffled.Tags = []string{"painting", "dance", "music", "movies", "cricket", "bollywood", "south indian food", "cooked", "Cooking"}
	if got := b.Build(shuffled); got != first {
		t.Errorf("tag order changed output:\n%q\n%q", got, first)
	}
}

func TestBuilder_EmptyProfile(t *testing.T) {
	b := NewBuilder(nil)
	if got := b.Build(&models.UserProfile{}); got != "" {
		t.Errorf("empty profile = %q, want empty", got)
	}
	if got := b.Build(nil); got != "" {
		t.Errorf("nil profile = %q, want empty", got)
	}
}

func TestBuilder_BucketCap(t *testing.T) {
	p := &models.UserProfile{Tags: []string{"football", "tennis", "golf", "hockey", "cricket"}}
	got := NewBuilder(nil).Build(p)
	want := "Interests: Sports: cricket, football, golf"
	if got != want {
		t.Errorf("Build() = %q, want %q", got, want)
	}
}
