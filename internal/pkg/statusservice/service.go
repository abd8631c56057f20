package statusservice

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/facebookgo/grace/gracehttp"
	"github.com/gorilla/websocket"

	"github.com/airenas/vidsearch/internal/pkg/persistence"
	"github.com/airenas/vidsearch/internal/pkg/utils"

	"github.com/airenas/go-app/pkg/goapp"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// DB loads workflow info
type DB interface {
	LoadWorkflow(ctx context.Context, id string) (*persistence.Workflow, error)
}

// WSConnHandler WwbSocketConnection wrapper
type WSConnHandler interface {
	HandleConnection(WsConn) error
	GetConnections(id string) ([]WsConn, bool)
}

// Data keeps data required for service work
type Data struct {
	Port      int
	DB        DB
	WSHandler WSConnHandler
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Msgf("Starting HTTP vidsearch status service at %d", data.Port)
	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 10 * time.Second

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("vidsearch_status", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.GET("/status/:id", statusHandler(data))
	e.GET("/live", live(data))
	e.GET("/subscribe", subscribeHandler(data))

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

const notFound = "NOT_FOUND"

type result struct {
	ID              string     `json:"id"`
	Phase           string     `json:"phase"`
	ProcessingState string     `json:"processingState,omitempty"`
	Container       string     `json:"container,omitempty"`
	Blob            string     `json:"blob,omitempty"`
	VideoID         string     `json:"videoId,omitempty"`
	Polls           int        `json:"polls,omitempty"`
	Documents       int        `json:"documents,omitempty"`
	Error           string     `json:"error,omitempty"`
	ErrorCode       string     `json:"errorCode,omitempty"`
	Started         *time.Time `json:"started,omitempty"`
	Expires         *time.Time `json:"expires,omitempty"`
	Updated         *time.Time `json:"updated,omitempty"`
}

func statusHandler(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("status method")()

		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		wf, err := data.DB.LoadWorkflow(c.Request().Context(), id)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		if wf == nil {
			return c.JSON(http.StatusOK, result{ID: id, Phase: notFound, Error: "Unknown ID: " + id, ErrorCode: notFound})
		}
		return c.JSON(http.StatusOK, mapWorkflow(wf))
	}
}

func mapWorkflow(wf *persistence.Workflow) *result {
	return &result{ID: wf.ID, Phase: wf.Phase, ProcessingState: utils.FromSQLStr(wf.ProcessingState),
		Container: wf.Input.ContainerName, Blob: wf.Input.BlobName, VideoID: wf.Input.VideoID,
		Polls: wf.Polls, Documents: wf.Documents, Error: utils.FromSQLStr(wf.Error),
		Started: toTimePtr(wf.Started), Expires: toTimePtr(wf.Expires), Updated: toTimePtr(wf.Updated)}
}

func toTimePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func validate(data *Data) error {
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.WSHandler == nil {
		return fmt.Errorf("no WSHandler")
	}
	return nil
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	}}

func subscribeHandler(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return err
		}
		defer ws.Close()

		return data.WSHandler.HandleConnection(ws)
	}
}
