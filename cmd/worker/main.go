package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/vidsearch/internal/pkg/ingest"
	"github.com/airenas/vidsearch/internal/pkg/monitor"
	"github.com/airenas/vidsearch/internal/pkg/postgres"
	"github.com/airenas/vidsearch/internal/pkg/setup"
	"github.com/airenas/vidsearch/internal/pkg/utils"
	"github.com/airenas/vidsearch/internal/pkg/worker"
	"github.com/labstack/gommon/color"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"
)

func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config

	data := &worker.ServiceData{}
	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	dbPool, err := setup.DBPool(ctx, cfg)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	data.GueClient, err = gue.NewClient(pgxv5.NewConnPool(dbPool))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue")
	}
	data.WorkerCount = setup.DefaultV(cfg.GetInt("worker.count"), 10)
	data.Testing = cfg.GetBool("worker.testing")
	data.MsgSender, err = postgres.NewSender(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue sender")
	}
	db, err := postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}
	data.DB = db

	gateways, err := setup.Gateways(ctx, cfg)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gateways")
	}
	data.Gateways = gateways

	mon, err := monitor.New(setup.MonitorConfig(cfg), monitor.RealClock())
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init monitor")
	}
	data.Monitor = mon

	data.Indexer, err = setup.Indexer(cfg)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init indexer")
	}

	coordinator, err := setup.Coordinator(cfg, gateways, mon)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init coordinator")
	}
	data.Ingester, err = ingest.NewIngester(coordinator, db)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init ingester")
	}

	printBanner()

	go utils.RunPerfEndpoint()

	doneCh, err := worker.StartWorkerService(ctx, data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start worker service")
	}
	/////////////////////// Waiting for terminate
	waitCh := make(chan os.Signal, 2)
	signal.Notify(waitCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-waitCh:
		goapp.Log.Info().Msg("Got exit signal")
	case <-doneCh:
		goapp.Log.Info().Msg("Service exit")
	}
	cancelFunc()
	select {
	case <-doneCh:
		goapp.Log.Info().Msg("All code returned. Now exit. Bye")
	case <-time.After(time.Second * 15):
		goapp.Log.Warn().Msg("Timeout gracefull shutdown")
	}
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
|___/_/\__,_/____/\___/\__,_/_/   \___/_/ /_/ v: %s

                      __            
 _      ______  _____/ /_____  _____
| | /| / / __ \/ ___/ //_/ _ \/ ___/
| |/ |/ / /_/ / /  / ,< /  __/ /    
|__/|__/\____/_/  /_/|_|\___/_/     

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/vidsearch"))
}
