package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/vidsearch/internal/pkg/index"
	"github.com/airenas/vidsearch/internal/pkg/ingest"
	"github.com/airenas/vidsearch/internal/pkg/monitor"
	"github.com/airenas/vidsearch/internal/pkg/persistence"
	"github.com/airenas/vidsearch/internal/pkg/setup"
	"github.com/airenas/vidsearch/internal/pkg/utils"
	"github.com/labstack/gommon/color"
)

// track runs the whole workflow of one blob in the foreground, without the queue and DB.
// The blob is taken from `track.url` (env TRACK_URL) and `track.eTag`
func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config

	printBanner()

	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()
	go func() {
		waitCh := make(chan os.Signal, 2)
		signal.Notify(waitCh, os.Interrupt, syscall.SIGTERM)
		<-waitCh
		goapp.Log.Info().Msg("Got exit signal")
		cancelFunc()
	}()

	blobURL := cfg.GetString("track.url")
	ref, err := ingest.ParseBlobURL(blobURL)
	if err != nil {
		goapp.Log.Fatal().Err(err).Str("url", utils.HideQuery(blobURL)).Msg("wrong blob url")
	}

	gateways, err := setup.Gateways(ctx, cfg)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gateways")
	}
	mon, err := monitor.New(setup.MonitorConfig(cfg), monitor.RealClock())
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init monitor")
	}
	indexer, err := setup.Indexer(cfg)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init indexer")
	}
	coordinator, err := setup.Coordinator(cfg, gateways, mon)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init coordinator")
	}

	wf, err := coordinator.Prepare(ctx, ref, ingest.WorkflowID(ref, cfg.GetString("track.eTag")))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start workflow")
	}
	gw, _, err := gateways.Get(wf.Input.Transcriber, false)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't get gateway")
	}
	indexF := func(ctx context.Context, wf *persistence.Workflow) (int, error) {
		return indexer.Index(ctx, gw, index.Source{Account: wf.Input.StorageAccountName,
			Container: wf.Input.ContainerName, Blob: wf.Input.BlobName, VideoID: wf.Input.VideoID})
	}
	if err := mon.Run(ctx, gw, indexF, monitor.TimerWaiter{}, wf); err != nil {
		goapp.Log.Fatal().Err(err).Str("ID", wf.ID).Str("videoID", wf.Input.VideoID).Msg("workflow failed")
	}
	goapp.Log.Info().Str("ID", wf.ID).Str("videoID", wf.Input.VideoID).Str("phase", wf.Phase).
		Int("polls", wf.Polls).Int("docs", wf.Documents).Msg("done")
}

var (
	version = "DEV"
)

func printBanner() {
	banner := `
        _     __                         __  
 _   __(_)___/ /_______  ____ ___________/ /_ 
| | / / / __  / ___/ _ \/ __ ` + "`" + `/ ___/ ___/ __ \
| |/ / / /_/ (__  )  __/ /_/ / /  / /__/ / / /
|___/_/\__,_/____/\___/\__,_/_/   \___/_/ /_/ 

   __                  __  
  / /__________ ______/ /__
 / __/ ___/ __ ` + "`" + `/ ___/ //_/
/ /_/ /  / /_/ / /__/ ,<   
\__/_/   \__,_/\___/_/|_|  v: %s

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/vidsearch"))
}
