package archive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/cityseed/internal/core/domain"
)

const dump = `{"name":"Blue Door Cafe","category":"cafe","city":"lisbon","lat":38.7139,"lon":-9.1334,"text":"**Best** bica in town","format":"markdown","sentiment":"positive","author":"oldtimer","observed_at":"2019-05-01T10:00:00Z"}
{"name":"Porto Wine Bar","city":"porto","sentiment":"positive"}
not json at all

{"name":"Miradouro","category":"viewpoint","sentiment":"neutral","observed_at":"2018-07-04"}
{"name":"Late Line","city":"lisbon"}
`

func writeDump(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lisbon.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(dump), 0o600))
	return path
}

func TestParseConfig(t *testing.T) {
	_, err := ParseConfig(domain.SourceSpec{Config: map[string]string{}})
	assert.ErrorIs(t, err, ErrMissingLocation)

	cfg, err := ParseConfig(domain.SourceSpec{Config: map[string]string{"path": " /tmp/a.jsonl "}})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/a.jsonl", cfg.Path)
}

func TestFetchBatch_FromFile(t *testing.T) {
	path := writeDump(t)
	c := New("arch", &Config{Path: path}, nil)

	signals, err := c.FetchBatch(context.Background(), domain.Query{CityID: "lisbon", Params: map[string]string{}})
	require.NoError(t, err)
	require.Len(t, signals, 3)

	first := signals[0]
	assert.Equal(t, "Blue Door Cafe", first.RawName)
	assert.Equal(t, "Best bica in town", first.Excerpt)
	assert.Equal(t, "oldtimer", first.Author)
	assert.Equal(t, domain.SentimentPositive, first.Sentiment)
	require.NotNil(t, first.Coordinates)
	assert.Equal(t, time.Date(2019, 5, 1, 10, 0, 0, 0, time.UTC), first.ObservedAt)
	assert.Equal(t, path+"#L1", first.SourceRef)

	assert.Equal(t, "Miradouro", signals[1].RawName)
	assert.Equal(t, "lisbon", signals[1].CityID, "lines without a city inherit the query city")
	assert.Equal(t, time.Date(2018, 7, 4, 0, 0, 0, 0, time.UTC), signals[1].ObservedAt)
	assert.Equal(t, domain.SentimentUnknown, signals[2].Sentiment)
}

func TestFetchBatch_Window(t *testing.T) {
	c := New("arch", &Config{Path: writeDump(t)}, nil)

	signals, err := c.FetchBatch(context.Background(), domain.Query{CityID: "lisbon", Params: map[string]string{"offset": "1", "limit": "4"}})
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, "Miradouro", signals[0].RawName)

	_, err = c.FetchBatch(context.Background(), domain.Query{CityID: "lisbon", Params: map[string]string{"limit": "0"}})
	assert.True(t, domain.IsPermanent(err))
}

func TestFetchBatch_FromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(dump))
	}))
	defer srv.Close()

	c := New("arch", &Config{URL: srv.URL + "/dump.jsonl"}, srv.Client())
	signals, err := c.FetchBatch(context.Background(), domain.Query{CityID: "porto"})
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, "Porto Wine Bar", signals[0].RawName)
	assert.True(t, strings.HasSuffix(signals[0].SourceRef, "/dump.jsonl#L2"))
}

func TestFetchBatch_MissingFileIsPermanent(t *testing.T) {
	c := New("arch", &Config{Path: filepath.Join(t.TempDir(), "missing.jsonl")}, nil)
	_, err := c.FetchBatch(context.Background(), domain.Query{CityID: "lisbon"})
	assert.True(t, domain.IsPermanent(err))
}
