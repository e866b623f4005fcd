package geoindex

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	"github.com/hyperjump/nearby/internal/models"
)

func TestBleveIndex_Within(t *testing.T) {
	idx, err := NewBleveIndex("")
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	defer idx.Close()
	ctx := context.Background()

	points := map[string]models.Coordinates{
		"frisco": {Lat: 33.1507, Lng: -96.8236},
		"plano":  {Lat: 33.0198, Lng: -96.6989},
		"austin": {Lat: 30.2672, Lng: -97.7431},
	}
	for id, c := range points {
		if err := idx.Index(ctx, id, c); err != nil {
			t.Fatal(err)
		}
	}

	ids, err := idx.Within(ctx, points["frisco"], 50, 0)
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "frisco" || ids[1] != "plano" {
		t.Errorf("Within 50km = %v, want [frisco plano]", ids)
	}

	if err := idx.Delete(ctx, "plano"); err != nil {
		t.Fatal(err)
	}
	ids, err = idx.Within(ctx, points["frisco"], 50, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "frisco" {
		t.Errorf("after delete = %v, want [frisco]", ids)
	}
}

func TestBleveIndex_Persistent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geo")
	idx, err := NewBleveIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Index(context.Background(), "u1", models.Coordinates{Lat: 1, Lng: 1}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}
	reopened, err := NewBleveIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	n, err := reopened.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Count after reopen = %d, want 1", n)
	}
}

func TestBleveIndex_EmptyWithin(t *testing.T) {
	idx, _ := NewBleveIndex("")
	defer idx.Close()
	ids, err := idx.Within(context.Background(), models.Coordinates{}, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no ids, got %v", ids)
	}
}
