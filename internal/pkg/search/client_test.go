package search

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/airenas/vidsearch/internal/pkg/index"
	"github.com/airenas/vidsearch/internal/pkg/test"
	"github.com/airenas/vidsearch/internal/pkg/utils"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testReq struct {
	path string
	URL  string
	key  string
	body map[string][]map[string]interface{}
}

func initTestServer(t *testing.T, code int, resp string) (*Client, *[]testReq) {
	t.Helper()
	res := make([]testReq, 0)
	rLock := &sync.Mutex{}
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		rLock.Lock()
		defer rLock.Unlock()
		tr := testReq{path: req.URL.Path, URL: req.URL.String(), key: req.Header.Get("api-key")}
		b, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(b, &tr.body)
		res = append(res, tr)
		rw.WriteHeader(code)
		_, _ = rw.Write([]byte(resp))
	}))
	t.Cleanup(func() { server.Close() })
	cl, err := NewClient(Config{URL: server.URL, Index: "phrases", Key: "k1"})
	require.Nil(t, err)
	cl.httpclient = server.Client()
	cl.timeout = time.Second
	cl.backoff = func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2) }
	return cl, &res
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantURL string
		wantErr bool
	}{
		{name: "URL", cfg: Config{URL: "http://s/", Index: "i", Key: "k"},
			wantURL: "http://s/indexes/i/docs/index?api-version=2020-06-30"},
		{name: "Name", cfg: Config{Name: "olia", Index: "i", Key: "k", APIVersion: "2023-11-01"},
			wantURL: "https://olia.search.windows.net/indexes/i/docs/index?api-version=2023-11-01"},
		{name: "No URL", cfg: Config{Index: "i", Key: "k"}, wantErr: true},
		{name: "No index", cfg: Config{Name: "olia", Key: "k"}, wantErr: true},
		{name: "No key", cfg: Config{Name: "olia", Index: "i"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewClient(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewClient() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				assert.Equal(t, tt.wantURL, got.url)
			}
		})
	}
}

func TestUpload(t *testing.T) {
	cl, reqs := initTestServer(t, http.StatusOK, `{"value":[{"key":"1","status":true,"statusCode":201}]}`)

	err := cl.Upload(test.Ctx(t), []*index.Document{
		{ID: "1", Account: "a", Container: "c", Blob: "b", VideoID: "v", Index: 0, Phrase: "olia", Offset: 5},
		{ID: "2", Index: 1}})

	require.Nil(t, err)
	require.Equal(t, 1, len(*reqs))
	r := (*reqs)[0]
	assert.Equal(t, "/indexes/phrases/docs/index", r.path)
	assert.Equal(t, "k1", r.key)
	require.Equal(t, 2, len(r.body["value"]))
	d := r.body["value"][0]
	assert.Equal(t, "mergeOrUpload", d["@search.action"])
	assert.Equal(t, "1", d["id"])
	assert.Equal(t, "a", d["account"])
	assert.Equal(t, "c", d["container"])
	assert.Equal(t, "b", d["blob"])
	assert.Equal(t, "v", d["videoId"])
	assert.Equal(t, "olia", d["phrase"])
	assert.Equal(t, 5.0, d["offset"])
	assert.Equal(t, 1.0, r.body["value"][1]["index"])
}

func TestUpload_BadRequest(t *testing.T) {
	cl, reqs := initTestServer(t, http.StatusBadRequest, `{}`)

	err := cl.Upload(test.Ctx(t), []*index.Document{{ID: "1"}})

	assert.NotNil(t, err)
	assert.True(t, utils.IsPermanent(err))
	assert.Equal(t, 1, len(*reqs))
}

func TestUpload_Retries(t *testing.T) {
	cl, reqs := initTestServer(t, http.StatusServiceUnavailable, `{}`)

	err := cl.Upload(test.Ctx(t), []*index.Document{{ID: "1"}})

	assert.NotNil(t, err)
	assert.False(t, utils.IsPermanent(err))
	assert.Equal(t, 3, len(*reqs))
}

func TestUpload_PartialFailure(t *testing.T) {
	cl, reqs := initTestServer(t, http.StatusMultiStatus,
		`{"value":[{"key":"1","status":true,"statusCode":200},{"key":"2","status":false,"statusCode":400,"errorMessage":"bad"}]}`)

	err := cl.Upload(test.Ctx(t), []*index.Document{{ID: "1"}, {ID: "2"}})

	require.NotNil(t, err)
	assert.True(t, utils.IsPermanent(err))
	assert.Contains(t, err.Error(), "'2'")
	assert.Equal(t, 1, len(*reqs))
}

func TestUpload_PartialFailure_Retries(t *testing.T) {
	cl, reqs := initTestServer(t, http.StatusMultiStatus,
		`{"value":[{"key":"1","status":false,"statusCode":503,"errorMessage":"busy"}]}`)

	err := cl.Upload(test.Ctx(t), []*index.Document{{ID: "1"}})

	assert.NotNil(t, err)
	assert.Equal(t, 3, len(*reqs))
}
