package keyword

import "testing"

func TestEditDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"dune", "dune", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"dnue", "dune", 2},
		{"café", "cafe", 1},
	}
	for _, tt := range tests {
		if got := editDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("editDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestClosestTerm(t *testing.T) {
	dict := map[string]uint64{"dune": 2, "dunk": 1, "cars": 1}
	if got, ok := closestTerm("dune", dict); !ok || got != "dune" {
		t.Errorf("exact: %q, %v", got, ok)
	}
	if got, ok := closestTerm("dun", dict); !ok || got != "dune" {
		t.Errorf("tie on distance should prefer higher count, got %q", got)
	}
	if _, ok := closestTerm("interstellar", dict); ok {
		t.Error("distant term should not be suggested")
	}
}

func TestBleveIndex_Suggest(t *testing.T) {
	idx := newTestIndex(t)

	got, changed, err := idx.Suggest("intersteller")
	if err != nil {
		t.Fatal(err)
	}
	if !changed || got != "interstellar" {
		t.Errorf("Suggest = %q, %v", got, changed)
	}

	got, changed, _ = idx.Suggest("Dune")
	if changed || got != "Dune" {
		t.Errorf("known term changed: %q, %v", got, changed)
	}

	got, changed, _ = idx.Suggest("dnue mesiah")
	if !changed || got != "dune messiah" {
		t.Errorf("multi-term Suggest = %q", got)
	}
}
