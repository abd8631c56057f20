package inform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/vidsearch/internal/pkg/utils"
	"github.com/jordan-wright/email"
)

// HTTPEmailSender posts the email as json to the url instead of sending it by smtp.
// Used in test environments
type HTTPEmailSender struct {
	url        string
	httpclient *http.Client
	timeout    time.Duration
}

// NewHTTPEmailSender initiates email sender
func NewHTTPEmailSender(url string) (*HTTPEmailSender, error) {
	if url == "" {
		return nil, fmt.Errorf("no URL")
	}
	goapp.Log.Info().Str("URL", utils.HideQuery(url)).Msg("http email sender")
	return &HTTPEmailSender{url: url, httpclient: &http.Client{}, timeout: 5 * time.Second}, nil
}

// Send sends email
func (s *HTTPEmailSender) Send(email *email.Email) error {
	body, err := json.Marshal(email)
	if err != nil {
		return err
	}
	ctx, cancelF := context.WithTimeout(context.Background(), s.timeout)
	defer cancelF()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	goapp.Log.Info().Str("url", utils.HideQuery(s.url)).Str("method", req.Method).Msg("call")
	resp, err := s.httpclient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
		_ = resp.Body.Close()
	}()
	if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
		return fmt.Errorf("can't invoke '%s': %w", utils.HideQuery(s.url), err)
	}
	return nil
}
