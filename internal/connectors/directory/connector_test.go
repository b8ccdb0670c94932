package directory

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/cityseed/internal/connectors"
	"github.com/custodia-labs/cityseed/internal/core/domain"
)

const listing = `{"results":[
 {"id":"p1","name":"Blue Door Cafe","category":"cafe","lat":38.7139,"lon":-9.1334,"rating":4.6,"review_count":312,"summary":"Cosy corner cafe.","updated_at":"2025-03-01T00:00:00Z"},
 {"id":"p 2","name":"Tourist Trap Tavern","category":"restaurant","rating":2.1},
 {"id":"p3","name":"Somewhere Fine","rating":3.4}
]}`

func TestParseConfig(t *testing.T) {
	_, err := ParseConfig(domain.SourceSpec{Config: map[string]string{}})
	assert.ErrorIs(t, err, ErrMissingBaseURL)

	t.Setenv("DIRECTORY_TEST_KEY", "secret")
	cfg, err := ParseConfig(domain.SourceSpec{Config: map[string]string{
		"base_url": "https://api.example.com/v1/", "api_key_env": "DIRECTORY_TEST_KEY", "page_size": "20",
	}})
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/v1", cfg.BaseURL)
	assert.Equal(t, "secret", cfg.APIKey)
	assert.Equal(t, 20, cfg.PageSize)

	_, err = ParseConfig(domain.SourceSpec{Config: map[string]string{"base_url": "x", "page_size": "-1"}})
	assert.Error(t, err)
}

func TestFetchBatch_MapsListings(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(listing))
	}))
	defer srv.Close()

	c := New("dir", &Config{BaseURL: srv.URL, APIKey: "k", PageSize: 50}, srv.Client())
	signals, err := c.FetchBatch(context.Background(), domain.Query{
		CityID: "lisbon",
		Params: map[string]string{"category": "cafe", "page": "3"},
	})
	require.NoError(t, err)
	require.Len(t, signals, 3)

	require.NotNil(t, got)
	assert.Equal(t, "/places", got.URL.Path)
	assert.Equal(t, "lisbon", got.URL.Query().Get("city"))
	assert.Equal(t, "cafe", got.URL.Query().Get("category"))
	assert.Equal(t, "3", got.URL.Query().Get("page"))
	assert.Equal(t, "Bearer k", got.Header.Get("Authorization"))

	assert.Equal(t, domain.SentimentPositive, signals[0].Sentiment)
	assert.Equal(t, "Cosy corner cafe.", signals[0].Excerpt)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), signals[0].ObservedAt)
	assert.Empty(t, signals[0].Author, "directory listings are anonymous")
	assert.Equal(t, domain.SentimentNegative, signals[1].Sentiment)
	assert.Equal(t, srv.URL+"/places/p%202", signals[1].SourceRef)
	assert.Equal(t, domain.SentimentNeutral, signals[2].Sentiment)
}

func TestFetchBatch_StatusClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		retryAfter string
		transient  bool
		delay      time.Duration
	}{
		{name: "throttled with retry-after", status: http.StatusTooManyRequests, retryAfter: "7", transient: true, delay: 7 * time.Second},
		{name: "server error", status: http.StatusBadGateway, transient: true},
		{name: "not found", status: http.StatusNotFound},
		{name: "unauthorized", status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := New("dir", &Config{BaseURL: srv.URL, PageSize: 10}, srv.Client())
			_, err := c.FetchBatch(context.Background(), domain.Query{CityID: "lisbon"})
			require.Error(t, err)
			assert.Equal(t, tt.transient, domain.IsTransient(err))
			assert.Equal(t, !tt.transient, domain.IsPermanent(err))

			var apiErr *connectors.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)

			var ra *connectors.RetryAfterError
			if tt.delay > 0 {
				require.ErrorAs(t, err, &ra)
				assert.Equal(t, tt.delay, ra.Delay)
			} else {
				assert.False(t, errors.As(err, &ra))
			}
		})
	}
}

func TestFetchBatch_MalformedBodyIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results": [`))
	}))
	defer srv.Close()

	c := New("dir", &Config{BaseURL: srv.URL, PageSize: 10}, srv.Client())
	_, err := c.FetchBatch(context.Background(), domain.Query{CityID: "lisbon"})
	assert.True(t, domain.IsPermanent(err))
}
