//go:build integration
// +build integration

package integration

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/airenas/vidsearch/internal/pkg/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type config struct {
	notifyURL  string
	statusURL  string
	apiURL     string
	dbURL      string
	httpclient *http.Client
}

var cfg config

func TestMain(m *testing.M) {
	cfg.notifyURL = GetEnvOrFail("NOTIFY_URL")
	cfg.statusURL = GetEnvOrFail("STATUS_URL")
	cfg.apiURL = GetEnvOrFail("API_URL")
	cfg.dbURL = GetEnvOrFail("DB_URL")
	cfg.httpclient = &http.Client{Timeout: time.Second * 30}

	tCtx, cf := context.WithTimeout(context.Background(), time.Second*20)
	defer cf()
	WaitForOpenOrFail(tCtx, cfg.dbURL)
	WaitForOpenOrFail(tCtx, cfg.notifyURL)
	WaitForOpenOrFail(tCtx, cfg.statusURL)
	WaitForOpenOrFail(tCtx, cfg.apiURL)
	waitForDB(tCtx, cfg.dbURL)

	os.Exit(m.Run())
}

func TestNotifyLive(t *testing.T) {
	t.Parallel()
	test.CheckCode(t, test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.notifyURL, "/live", nil)), http.StatusOK)
}

func TestStatusLive(t *testing.T) {
	t.Parallel()
	test.CheckCode(t, test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.statusURL, "/live", nil)), http.StatusOK)
}

func TestAPILive(t *testing.T) {
	t.Parallel()
	test.CheckCode(t, test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.apiURL, "/live", nil)), http.StatusOK)
}

type statusResponse struct {
	ID        string `json:"id"`
	Phase     string `json:"phase"`
	ErrorCode string `json:"errorCode"`
}

func getStatus(t *testing.T, id string) statusResponse {
	t.Helper()
	resp := test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.statusURL, "status/"+id, nil))
	test.CheckCode(t, resp, http.StatusOK)
	return test.Decode[statusResponse](t, resp)
}

func TestStatus_Check_None(t *testing.T) {
	t.Parallel()
	st := getStatus(t, "10")
	assert.Equal(t, "NOT_FOUND", st.Phase)
	assert.Equal(t, "NOT_FOUND", st.ErrorCode)
	assert.Equal(t, "10", st.ID)
}

type eventData struct {
	URL            string `json:"url,omitempty"`
	ETag           string `json:"eTag,omitempty"`
	ValidationCode string `json:"validationCode,omitempty"`
}

type event struct {
	ID        string    `json:"id"`
	EventType string    `json:"eventType"`
	Data      eventData `json:"data"`
}

func TestEvents_Validation(t *testing.T) {
	t.Parallel()
	req := NewRequest(t, http.MethodPost, cfg.notifyURL, "/events", []event{{ID: "1",
		EventType: "Microsoft.EventGrid.SubscriptionValidationEvent", Data: eventData{ValidationCode: "olia"}}})
	resp := test.CheckCode(t, test.Invoke(t, cfg.httpclient, req), http.StatusOK)
	res := test.Decode[map[string]string](t, resp)
	assert.Equal(t, "olia", res["validationResponse"])
}

type eventsResult struct {
	Accepted int `json:"accepted"`
	Skipped  int `json:"skipped"`
}

func TestEvents_BlobCreated(t *testing.T) {
	t.Parallel()
	req := NewRequest(t, http.MethodPost, cfg.notifyURL, "/events", []event{
		{ID: "1", EventType: "Microsoft.Storage.BlobCreated",
			Data: eventData{URL: "https://acc.blob.core.windows.net/videos/it-test.mp4", ETag: "0x1"}},
		{ID: "2", EventType: "Microsoft.Storage.BlobCreated",
			Data: eventData{URL: "https://acc.blob.core.windows.net/videos/it-test.txt", ETag: "0x1"}},
	})
	resp := test.CheckCode(t, test.Invoke(t, cfg.httpclient, req), http.StatusOK)
	res := test.Decode[eventsResult](t, resp)
	assert.Equal(t, 1, res.Accepted)
	assert.Equal(t, 1, res.Skipped)
}

func TestEvents_Fail_Body(t *testing.T) {
	t.Parallel()
	req, err := http.NewRequest(http.MethodPost, cfg.notifyURL+"/events", ToReader("olia"))
	require.Nil(t, err)
	test.CheckCode(t, test.Invoke(t, cfg.httpclient, req), http.StatusBadRequest)
}
