package main

import (
	"context"
	"time"

	aclean "github.com/airenas/async-api/pkg/clean"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/vidsearch/internal/pkg/clean"
	"github.com/airenas/vidsearch/internal/pkg/postgres"
	"github.com/airenas/vidsearch/internal/pkg/setup"
	"github.com/labstack/gommon/color"
)

func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config

	data := &clean.Data{}
	data.Port = cfg.GetInt("port")

	ctx := context.Background()

	dbPool, err := setup.DBPool(ctx, cfg)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	dbCleaner, err := postgres.NewCleaner(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db cleaner")
	}
	data.DB, err = postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}

	expire := setup.DefaultV(cfg.GetDuration("timer.expire"), 7*24*time.Hour)
	tData := aclean.TimerData{}
	tData.IDsProvider, err = postgres.NewDBIdsProvider(dbPool, expire)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init IDs provider")
	}

	printBanner()

	cleaner := &aclean.CleanerGroup{}
	cleaner.Jobs = append(cleaner.Jobs, dbCleaner)

	data.Cleaner = cleaner

	tData.RunEvery = setup.DefaultV(cfg.GetDuration("timer.runEvery"), time.Hour)
	tData.Cleaner = cleaner

	goapp.Log.Info().Dur("duration", expire).Msg("expire")

	ctxTimer, cancelFunc := context.WithCancel(ctx)
	doneCh, err := aclean.StartCleanTimer(ctxTimer, &tData)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start timer")
	}
	err = clean.StartWebServer(data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start web server")
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
	banner :=
		`
        _     __                         __  
 _   __(_)___/ /_______  ____ ___________/ /_ 
| | / / / __  / ___/ _ \/ __ ` + "`" + `/ ___/ ___/ __ \
| |/ / / /_/ (__  )  __/ /_/ / /  / /__/ / / /
|___/_/\__,_/____/\___/\__,_/_/   \___/_/ /_/ 

        __                 
  _____/ /__  ____ _____   
 / ___/ / _ \/ __ ` + "`" + `/ __ \  
/ /__/ /  __/ /_/ / / / /  
\___/_/\___/\__,_/_/ /_/   v: %s

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/vidsearch"))
}
