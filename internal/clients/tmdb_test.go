package clients

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amaumene/autopost/internal/domain"
)

func newTMDBServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) domain.PosterLookup {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(srv.Close)
	return NewTMDBClient(srv.URL, "key", "en-US", 5*time.Second)
}

func TestTMDBClient_Lookup(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		year    int
		want    string
		wantErr error
	}{
		{
			name: "year match preferred",
			body: `{"results":[{"title":"Dune","poster_path":"/old.jpg","release_date":"1984-12-14"},{"title":"Dune","poster_path":"/new.jpg","release_date":"2021-09-15"}]}`,
			year: 2021,
			want: "https://image.tmdb.org/t/p/w500/new.jpg",
		},
		{
			name: "first poster without year match",
			body: `{"results":[{"title":"Dune","poster_path":""},{"title":"Dune","poster_path":"/a.jpg","release_date":"1984-12-14"}]}`,
			year: 2030,
			want: "https://image.tmdb.org/t/p/w500/a.jpg",
		},
		{
			name:    "no results",
			body:    `{"results":[]}`,
			wantErr: domain.ErrPosterNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTMDBServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})

			got, err := client.Lookup(context.Background(), "Dune", tt.year)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Lookup() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Lookup() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTMDBClient_QueryParameters(t *testing.T) {
	var years []string
	client := newTMDBServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/search/movie" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if q.Get("api_key") != "key" || q.Get("query") != "Movie X" || q.Get("language") != "en-US" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		years = append(years, q.Get("year"))
		if q.Get("year") != "" {
			w.Write([]byte(`{"results":[]}`))
			return
		}
		w.Write([]byte(`{"results":[{"poster_path":"/x.jpg"}]}`))
	})

	got, err := client.Lookup(context.Background(), "Movie X", 2020)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got != "https://image.tmdb.org/t/p/w500/x.jpg" {
		t.Errorf("Lookup() = %s", got)
	}
	if len(years) != 2 || years[0] != "2020" || years[1] != "" {
		t.Errorf("searched years = %v, want [2020 \"\"]", years)
	}
}

func TestTMDBClient_ServerError(t *testing.T) {
	client := newTMDBServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.Lookup(context.Background(), "Dune", 2021)
	if err == nil || errors.Is(err, domain.ErrPosterNotFound) {
		t.Errorf("Lookup() error = %v, want status error", err)
	}
}
