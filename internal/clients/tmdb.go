package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/amaumene/autopost/internal/domain"
)

const tmdbImageBase = "https://image.tmdb.org/t/p/w500"

type tmdbClient struct {
	baseURL  string
	apiKey   string
	language string
	client   *http.Client
}

type tmdbSearchResult struct {
	Results []struct {
		ID          int    `json:"id"`
		Title       string `json:"title"`
		PosterPath  string `json:"poster_path"`
		ReleaseDate string `json:"release_date"`
	} `json:"results"`
}

func NewTMDBClient(baseURL, apiKey, language string, timeout time.Duration) domain.PosterLookup {
	return &tmdbClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		language: language,
		client:   &http.Client{Timeout: timeout},
	}
}

// Lookup returns the poster of the best search match. A search with a year
// that finds nothing is repeated without it.
func (c *tmdbClient) Lookup(ctx context.Context, title string, year int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(title) == "" {
		return "", domain.ErrPosterNotFound
	}

	poster, err := c.search(ctx, title, year)
	if errors.Is(err, domain.ErrPosterNotFound) && year > 0 {
		poster, err = c.search(ctx, title, 0)
	}
	return poster, err
}

func (c *tmdbClient) search(ctx context.Context, title string, year int) (string, error) {
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("query", title)
	params.Set("include_adult", "false")
	if c.language != "" {
		params.Set("language", c.language)
	}
	if year > 0 {
		params.Set("year", strconv.Itoa(year))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search/movie?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("searching tmdb: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("did not receive a 200 OK status, received %d", resp.StatusCode)
	}

	var result tmdbSearchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding tmdb response: %w", err)
	}

	return pickPoster(result, year)
}

// pickPoster prefers a result released in year, then the first result with
// a poster.
func pickPoster(result tmdbSearchResult, year int) (string, error) {
	first := ""
	for _, r := range result.Results {
		if r.PosterPath == "" {
			continue
		}
		if year > 0 && strings.HasPrefix(r.ReleaseDate, strconv.Itoa(year)) {
			return tmdbImageBase + r.PosterPath, nil
		}
		if first == "" {
			first = tmdbImageBase + r.PosterPath
		}
	}
	if first == "" {
		return "", domain.ErrPosterNotFound
	}
	return first, nil
}
