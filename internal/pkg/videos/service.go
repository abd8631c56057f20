package videos

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/facebookgo/grace/gracehttp"
	"github.com/pkg/errors"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/vidsearch/internal/pkg/status"
	"github.com/airenas/vidsearch/internal/pkg/utils"
	"github.com/airenas/vidsearch/internal/pkg/videoindexer/api"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Lister returns all videos known by the transcription service
type Lister interface {
	ListVideos(ctx context.Context) ([]*api.Video, error)
}

// Data keeps data required for service work
type Data struct {
	Port   int
	Lister Lister
}

const prmProcessed = "processed"

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Int("port", data.Port).Msg("Starting vidsearch videos service")

	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 2 * time.Minute

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

func validate(data *Data) error {
	if data.Lister == nil {
		return errors.New("no videos lister")
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("vidsearch_api", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.GET("/videos", list(data))
	e.GET("/live", live(data))

	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, r.Path)
	}
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

// list returns videos, `?processed=true` leaves only the processed ones
func list(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("list method")()

		res, err := data.Lister.ListVideos(c.Request().Context())
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			if utils.IsPermanent(err) {
				return echo.NewHTTPError(http.StatusBadGateway, "Transcription service refused")
			}
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		if utils.ParamTrue(c.QueryParam(prmProcessed)) {
			res = filter(res, func(v *api.Video) bool { return status.From(v.State) == status.Processed })
		}
		if res == nil {
			res = []*api.Video{}
		}
		goapp.Log.Info().Int("count", len(res)).Msg("listed")
		return c.JSON(http.StatusOK, res)
	}
}

func filter(vs []*api.Video, keep func(*api.Video) bool) []*api.Video {
	res := make([]*api.Video, 0, len(vs))
	for _, v := range vs {
		if keep(v) {
			res = append(res, v)
		}
	}
	return res
}
