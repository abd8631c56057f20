package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/vidsearch/internal/pkg/index"
	"github.com/airenas/vidsearch/internal/pkg/utils"
	"github.com/cenkalti/backoff/v4"
)

// DefaultAPIVersion of the search REST API
const DefaultAPIVersion = "2020-06-30"

// Config for the search client
type Config struct {
	// URL of the search service, if empty it is built from Name
	URL        string
	Name       string
	Index      string
	Key        string
	APIVersion string
}

// Client uploads documents to the search index
type Client struct {
	httpclient *http.Client
	url        string
	key        string
	timeout    time.Duration
	backoff    func() backoff.BackOff
}

// NewClient creates search index client
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSuffix(cfg.URL, "/")
	if baseURL == "" {
		if cfg.Name == "" {
			return nil, fmt.Errorf("no search service url or name")
		}
		baseURL = fmt.Sprintf("https://%s.search.windows.net", cfg.Name)
	}
	if cfg.Index == "" {
		return nil, fmt.Errorf("no index")
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("no key")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	res := &Client{key: cfg.Key, timeout: time.Minute, httpclient: &http.Client{}}
	res.url = fmt.Sprintf("%s/indexes/%s/docs/index?api-version=%s", baseURL, url.PathEscape(cfg.Index),
		url.QueryEscape(cfg.APIVersion))
	res.backoff = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	}
	goapp.Log.Info().Str("url", res.url).Msg("search index")
	return res, nil
}

type action struct {
	Action string `json:"@search.action"`
	*index.Document
}

type request struct {
	Value []action `json:"value"`
}

type itemResult struct {
	Key          string `json:"key"`
	Status       bool   `json:"status"`
	ErrorMessage string `json:"errorMessage"`
	StatusCode   int    `json:"statusCode"`
}

type response struct {
	Value []itemResult `json:"value"`
}

// Upload upserts the batch of documents by id
func (c *Client) Upload(ctx context.Context, docs []*index.Document) error {
	in := request{Value: make([]action, 0, len(docs))}
	for _, d := range docs {
		in.Value = append(in.Value, action{Action: "mergeOrUpload", Document: d})
	}
	b, err := json.Marshal(in)
	if err != nil {
		return utils.NewErrPermanent(fmt.Errorf("can't marshal: %w", err))
	}
	_, err = goapp.InvokeWithBackoff(ctx, func() (interface{}, bool, error) {
		retry, err := c.upload(ctx, b)
		return nil, retry, err
	}, c.backoff())
	return err
}

func (c *Client) upload(ctx context.Context, b []byte) (bool, error) {
	ctx, cancelF := context.WithTimeout(ctx, c.timeout)
	defer cancelF()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(b))
	if err != nil {
		return false, utils.NewErrPermanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.key)
	resp, err := c.httpclient.Do(req)
	if err != nil {
		return goapp.IsRetryableErr(err), fmt.Errorf("can't call index: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
		_ = resp.Body.Close()
	}()
	if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
		err = fmt.Errorf("can't upload: %w", err)
		if !goapp.IsRetryableCode(resp.StatusCode) {
			return false, utils.NewErrPermanent(err)
		}
		return true, err
	}
	if resp.StatusCode == http.StatusMultiStatus {
		var res response
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			return true, fmt.Errorf("can't decode response: %w", err)
		}
		for _, r := range res.Value {
			if !r.Status {
				err := fmt.Errorf("can't upload doc '%s': %d, %s", r.Key, r.StatusCode, r.ErrorMessage)
				if !goapp.IsRetryableCode(r.StatusCode) {
					return false, utils.NewErrPermanent(err)
				}
				return true, err
			}
		}
	}
	return false, nil
}
