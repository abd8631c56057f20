package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/facebookgo/grace/gracehttp"
	"github.com/pkg/errors"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/vidsearch/internal/pkg/messages"
	"github.com/airenas/vidsearch/internal/pkg/utils"

	"github.com/airenas/go-app/pkg/goapp"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, *messages.Options) error
}

// Data keeps data required for service work
type Data struct {
	Port        int
	MsgSender   MsgSender
	RetrySecret string
}

const (
	eventTypeValidation  = "Microsoft.EventGrid.SubscriptionValidationEvent"
	eventTypeBlobCreated = "Microsoft.Storage.BlobCreated"
)

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Msgf("Starting HTTP vidsearch notify service at %d", data.Port)
	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 30 * time.Second
	e.Server.WriteTimeout = 30 * time.Second

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

func validate(data *Data) error {
	if data.MsgSender == nil {
		return errors.New("no msg sender")
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("vidsearch_notify", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.POST("/events", events(data))
	if data.RetrySecret != "" {
		e.POST(fmt.Sprintf("/retry/%s", data.RetrySecret), retry(data))
	}
	e.GET("/live", live(data))

	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, utils.HideSecret(r.Path, data.RetrySecret))
	}
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

type eventData struct {
	URL            string `json:"url,omitempty"`
	ETag           string `json:"eTag,omitempty"`
	ValidationCode string `json:"validationCode,omitempty"`
}

type event struct {
	ID        string    `json:"id"`
	EventType string    `json:"eventType"`
	Subject   string    `json:"subject,omitempty"`
	Data      eventData `json:"data"`
}

type validationResult struct {
	ValidationResponse string `json:"validationResponse"`
}

type result struct {
	Accepted int `json:"accepted"`
	Skipped  int `json:"skipped"`
}

func events(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("events method")()
		ctx := c.Request().Context()

		var evs []event
		if err := json.NewDecoder(c.Request().Body).Decode(&evs); err != nil {
			goapp.Log.Warn().Err(err).Msg("can't decode events")
			return echo.NewHTTPError(http.StatusBadRequest, "wrong events")
		}
		res := result{}
		for _, ev := range evs {
			switch ev.EventType {
			case eventTypeValidation:
				goapp.Log.Info().Str("eventID", ev.ID).Msg("subscription validation")
				if ev.Data.ValidationCode == "" {
					return echo.NewHTTPError(http.StatusBadRequest, "no validation code")
				}
				return c.JSON(http.StatusOK, validationResult{ValidationResponse: ev.Data.ValidationCode})
			case eventTypeBlobCreated:
				ok, err := enqueue(ctx, data, ev.Data.URL, ev.Data.ETag)
				if err != nil {
					goapp.Log.Error().Err(err).Str("eventID", ev.ID).Send()
					return echo.NewHTTPError(http.StatusInternalServerError)
				}
				if ok {
					res.Accepted++
				} else {
					res.Skipped++
				}
			default:
				goapp.Log.Info().Str("eventID", ev.ID).Str("type", ev.EventType).Msg("skip event")
				res.Skipped++
			}
		}
		return c.JSON(http.StatusOK, res)
	}
}

type retryInput struct {
	URL  string `json:"url"`
	ETag string `json:"eTag,omitempty"`
}

// retry enqueues the blob url manually
func retry(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("retry method")()
		var in retryInput
		if err := json.NewDecoder(c.Request().Body).Decode(&in); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong input")
		}
		if in.URL == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "no url")
		}
		ok, err := enqueue(c.Request().Context(), data, in.URL, in.ETag)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "not a media file")
		}
		return c.JSON(http.StatusOK, result{Accepted: 1})
	}
}

// enqueue sends the ingest message for a media blob, returns false if the blob is skipped
func enqueue(ctx context.Context, data *Data, blobURL, eTag string) (bool, error) {
	u, err := url.Parse(blobURL)
	if err != nil || blobURL == "" {
		goapp.Log.Warn().Str("url", utils.HideQuery(blobURL)).Msg("wrong url, skip")
		return false, nil
	}
	if !utils.IsMediaFile(u.Path) {
		goapp.Log.Info().Str("url", utils.HideQuery(blobURL)).Msg("not a media file, skip")
		return false, nil
	}
	msg := &messages.NotificationMessage{URL: blobURL, ETag: eTag}
	if err := data.MsgSender.SendMessage(ctx, msg, messages.DefaultOpts(messages.Ingest)); err != nil {
		return false, fmt.Errorf("can't send msg: %w", err)
	}
	goapp.Log.Info().Str("url", utils.HideQuery(blobURL)).Str("eTag", eTag).Msg("enqueued")
	return true, nil
}
