package videoindexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/vidsearch/internal/pkg/status"
	"github.com/airenas/vidsearch/internal/pkg/utils"
	"github.com/airenas/vidsearch/internal/pkg/videoindexer/api"
	"github.com/cenkalti/backoff/v4"
)

// DefaultURL of the Video Indexer API
const DefaultURL = "https://api.videoindexer.ai"

// TokenProvider returns an access token for the account
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a preconfigured token
type StaticToken string

// Token returns the token
func (t StaticToken) Token(ctx context.Context) (string, error) {
	if t == "" {
		return "", utils.NewErrPermanent(fmt.Errorf("no access token"))
	}
	return string(t), nil
}

// Client comunicates with video indexer service
type Client struct {
	httpclient    *http.Client
	accountURL    string
	tokens        TokenProvider
	uploadTimeout time.Duration
	timeout       time.Duration
	pageSize      int
	backoff       func() backoff.BackOff
}

// NewClient creates a video indexer client
func NewClient(baseURL, location, accountID string, tokens TokenProvider) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if location == "" {
		return nil, fmt.Errorf("no location")
	}
	if accountID == "" {
		return nil, fmt.Errorf("no accountID")
	}
	if tokens == nil {
		return nil, fmt.Errorf("no token provider")
	}
	var err error
	res := Client{}
	res.accountURL, err = url.JoinPath(baseURL, location, "Accounts", accountID)
	if err != nil {
		return nil, fmt.Errorf("wrong url: %w", err)
	}
	res.tokens = tokens
	res.uploadTimeout = time.Minute * 2
	res.timeout = time.Second * 50
	res.pageSize = 100
	res.httpclient = asrHTTPClient()
	res.backoff = newSimpleBackoff
	goapp.Log.Info().Str("url", res.accountURL).Msg("video indexer")
	return &res, nil
}

type uploadResponse struct {
	ID string `json:"id"`
}

// Submit sends media URL for the processing, returns video ID
func (sp *Client) Submit(ctx context.Context, mediaURL, name string) (string, error) {
	token, err := sp.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("can't get token: %w", err)
	}
	prm := url.Values{}
	prm.Set("name", name)
	prm.Set("videoUrl", mediaURL)
	prm.Set("privacy", "Private")
	prm.Set("accessToken", token)
	var respData uploadResponse
	err = sp.invoke(ctx, http.MethodPost, sp.accountURL+"/Videos?"+prm.Encode(), sp.uploadTimeout, &respData)
	if err != nil {
		return "", err
	}
	if respData.ID == "" {
		return "", utils.NewErrPermanent(fmt.Errorf("can't get ID from response"))
	}
	return respData.ID, nil
}

// GetState returns processing state of the video
func (sp *Client) GetState(ctx context.Context, videoID string) (status.State, error) {
	token, err := sp.tokens.Token(ctx)
	if err != nil {
		return 0, fmt.Errorf("can't get token: %w", err)
	}
	prm := url.Values{}
	prm.Set("accessToken", token)
	var res api.VideoIndex
	err = sp.invoke(ctx, http.MethodGet, fmt.Sprintf("%s/Videos/%s/Index?%s", sp.accountURL,
		url.PathEscape(videoID), prm.Encode()), sp.timeout, &res)
	if err != nil {
		return 0, err
	}
	goapp.Log.Debug().Str("videoID", videoID).Str("state", res.State).Msg("got state")
	return status.From(res.State), nil
}

// GetArtifact returns the transcript of the video
func (sp *Client) GetArtifact(ctx context.Context, videoID string) (*api.Transcript, error) {
	token, err := sp.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't get token: %w", err)
	}
	prm := url.Values{}
	prm.Set("type", "Transcript")
	prm.Set("accessToken", token)
	var artifactURL string
	err = sp.invoke(ctx, http.MethodGet, fmt.Sprintf("%s/Videos/%s/ArtifactUrl?%s", sp.accountURL,
		url.PathEscape(videoID), prm.Encode()), sp.timeout, &artifactURL)
	if err != nil {
		return nil, fmt.Errorf("can't get artifact url: %w", err)
	}
	if artifactURL == "" {
		return nil, utils.NewErrPermanent(fmt.Errorf("no artifact url"))
	}
	res := &api.Transcript{}
	if err := sp.invoke(ctx, http.MethodGet, artifactURL, sp.uploadTimeout, res); err != nil {
		return nil, fmt.Errorf("can't get artifact: %w", err)
	}
	goapp.Log.Info().Str("videoID", videoID).Int("phrases", len(res.RecognizedPhrases)).Msg("got artifact")
	return res, nil
}

type listResponse struct {
	Results  []*api.Video `json:"results"`
	NextPage struct {
		PageSize int  `json:"pageSize"`
		Skip     int  `json:"skip"`
		Done     bool `json:"done"`
	} `json:"nextPage"`
}

// ListVideos returns all videos of the account
func (sp *Client) ListVideos(ctx context.Context) ([]*api.Video, error) {
	token, err := sp.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't get token: %w", err)
	}
	res := []*api.Video{}
	skip := 0
	for {
		prm := url.Values{}
		prm.Set("pageSize", strconv.Itoa(sp.pageSize))
		prm.Set("skip", strconv.Itoa(skip))
		prm.Set("accessToken", token)
		var page listResponse
		if err := sp.invoke(ctx, http.MethodGet, sp.accountURL+"/Videos?"+prm.Encode(), sp.timeout, &page); err != nil {
			return nil, fmt.Errorf("can't list videos: %w", err)
		}
		res = append(res, page.Results...)
		if page.NextPage.Done || len(page.Results) == 0 {
			return res, nil
		}
		skip += len(page.Results)
	}
}

func (sp *Client) invoke(ctx context.Context, method, urlStr string, timeout time.Duration, res interface{}) error {
	_, err := goapp.InvokeWithBackoff(ctx, func() (interface{}, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, timeout)
		defer cancelF()
		req, err := http.NewRequestWithContext(ctx, method, urlStr, nil)
		if err != nil {
			return nil, false, utils.NewErrPermanent(err)
		}
		resp, err := sp.httpclient.Do(req)
		if err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't call '%s': %w", hidden(req.URL), err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
			_ = resp.Body.Close()
		}()
		if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
			err = fmt.Errorf("can't invoke '%s': %w", hidden(req.URL), err)
			if !goapp.IsRetryableCode(resp.StatusCode) {
				return nil, false, utils.NewErrPermanent(err)
			}
			return nil, true, err
		}
		if err := json.NewDecoder(resp.Body).Decode(res); err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't unmarshal: %w", err)
		}
		return nil, false, nil
	}, sp.backoff())
	return err
}

func hidden(u *url.URL) string {
	return utils.HideQuery(u.String())
}

func asrHTTPClient() *http.Client {
	return &http.Client{Transport: newTransport()}
}

func newTransport() http.RoundTripper {
	// default roundripper is not well suited for our case
	// it has just 2 idle connections per host, so try to tune a bit
	res := http.DefaultTransport.(*http.Transport).Clone()
	res.MaxConnsPerHost = 100
	res.MaxIdleConns = 50
	res.MaxIdleConnsPerHost = 50
	res.IdleConnTimeout = 90 * time.Second
	return res
}

func newSimpleBackoff() backoff.BackOff {
	res := backoff.NewExponentialBackOff()
	return backoff.WithMaxRetries(res, 3)
}
