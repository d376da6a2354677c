package models

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

const (
	// DefaultPageSize is used when a list request omits page_size.
	DefaultPageSize = 10
	// MaxPageSize caps page_size on list requests.
	MaxPageSize = 100
)

// SignupRequest creates an account.
type SignupRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// LoginRequest identifies a user by username or email.
type LoginRequest struct {
	Username string `json:"username,omitempty" validate:"required_without=Email"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Password string `json:"password" validate:"required"`
}

// SearchRequest is a similarity search or free-text recommendation request.
type SearchRequest struct {
	Query string `json:"query" validate:"required,max=2048"`
	K     *int   `json:"k,omitempty" validate:"omitempty,gte=0"`
}

// IngestRequest carries movies to embed and index.
type IngestRequest struct {
	Movies []MovieRecord `json:"movies" validate:"required,min=1"`
}

// PreferencesRequest updates the profile signals used for recommendations.
type PreferencesRequest struct {
	Location  string   `json:"location" validate:"max=128"`
	Genres    []string `json:"genres" validate:"max=32,dive,required,max=64"`
	Languages []string `json:"languages" validate:"max=32,dive,required,max=64"`
}

// MovieListQuery holds pagination and filters for catalog listing.
type MovieListQuery struct {
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	GenreID  int64  `json:"genre_id,omitempty"`
	ActorID  int64  `json:"actor_id,omitempty"`
	Search   string `json:"search,omitempty"`
}

// Validate normalizes pagination. Returns an error for negative filters.
func (q *MovieListQuery) Validate() error {
	if q.GenreID < 0 || q.ActorID < 0 {
		return fmt.Errorf("filter ids must not be negative")
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	q.Search = strings.TrimSpace(q.Search)
	return nil
}

// Offset returns the row offset for the page.
func (q *MovieListQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// MovieListResponse is one page of catalog movies.
type MovieListResponse struct {
	Movies     []*Movie `json:"movies"`
	TotalCount int64    `json:"total_count"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
}

// FavoriteListResponse is one page of a user's favorites.
type FavoriteListResponse struct {
	Favorites  []*Favorite `json:"favorites"`
	TotalCount int64       `json:"total_count"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
}

// IngestResponse reports the outcome of an ingestion call.
type IngestResponse struct {
	Ingested  int     `json:"ingested"`
	MovieIDs  []int64 `json:"movie_ids"`
	Persisted bool    `json:"persisted"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator instance.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateStruct validates s against its `validate` tags and returns a
// single readable error listing the offending fields.
func ValidateStruct(s interface{}) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
