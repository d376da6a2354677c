package models

import (
	"testing"
)

func TestMovieListQuery_Validate(t *testing.T) {
	tests := []struct {
		name         string
		query        *MovieListQuery
		wantErr      bool
		wantPage     int
		wantPageSize int
	}{
		{"defaults", &MovieListQuery{}, false, 1, DefaultPageSize},
		{"keeps values", &MovieListQuery{Page: 3, PageSize: 20}, false, 3, 20},
		{"caps page size", &MovieListQuery{Page: 1, PageSize: 500}, false, 1, MaxPageSize},
		{"negative genre", &MovieListQuery{GenreID: -1}, true, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.query.Page != tt.wantPage || tt.query.PageSize != tt.wantPageSize {
				t.Errorf("got page=%d size=%d", tt.query.Page, tt.query.PageSize)
			}
		})
	}
	q := &MovieListQuery{Page: 3, PageSize: 20}
	if q.Offset() != 40 {
		t.Errorf("Offset = %d", q.Offset())
	}
}

func TestValidateStruct(t *testing.T) {
	if err := ValidateStruct(&SignupRequest{Username: "neo", Email: "neo@zion.io", Password: "redpill99"}); err != nil {
		t.Errorf("valid signup rejected: %v", err)
	}
	if err := ValidateStruct(&SignupRequest{Username: "neo", Email: "not-an-email", Password: "x"}); err == nil {
		t.Error("invalid signup accepted")
	}
	if err := ValidateStruct(&LoginRequest{Password: "x"}); err == nil {
		t.Error("login without username or email accepted")
	}
	if err := ValidateStruct(&LoginRequest{Email: "neo@zion.io", Password: "x"}); err != nil {
		t.Errorf("login by email rejected: %v", err)
	}
	three, zero, negative := 3, 0, -1
	if err := ValidateStruct(&SearchRequest{Query: "", K: &three}); err == nil {
		t.Error("empty query accepted")
	}
	if err := ValidateStruct(&SearchRequest{Query: "heist", K: &zero}); err != nil {
		t.Errorf("k=0 rejected: %v", err)
	}
	if err := ValidateStruct(&SearchRequest{Query: "heist"}); err != nil {
		t.Errorf("absent k rejected: %v", err)
	}
	if err := ValidateStruct(&SearchRequest{Query: "heist", K: &negative}); err == nil {
		t.Error("negative k accepted")
	}
	if err := ValidateStruct(&PreferencesRequest{Genres: []string{"Action", ""}}); err == nil {
		t.Error("empty genre accepted")
	}
}

func TestMovieRecord_KeyAndText(t *testing.T) {
	r := &MovieRecord{Title: "Dune", Overview: "space"}
	if _, ok := r.Key(); ok {
		t.Error("record without ids should have no key")
	}
	mid := int64(7)
	r.MovieID = &mid
	if id, ok := r.Key(); !ok || id != 7 {
		t.Errorf("Key() = %d, %v", id, ok)
	}
	r.SetKey(9)
	if id, _ := r.Key(); id != 9 {
		t.Errorf("Key() after SetKey = %d", id)
	}
	if r.EmbeddingText() != "Dune space" {
		t.Errorf("EmbeddingText = %q", r.EmbeddingText())
	}
	r.Description = "desert planet"
	if r.EmbeddingText() != "Dune desert planet" {
		t.Errorf("description should win over overview, got %q", r.EmbeddingText())
	}
	if (&MovieRecord{}).EmbeddingText() != "" {
		t.Error("empty record should embed the empty string")
	}
	c := r.Clone()
	*c.ID = 100
	if *r.ID != 9 {
		t.Error("Clone should not share id pointers")
	}
}
