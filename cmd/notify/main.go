package main

import (
	"context"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/vidsearch/internal/pkg/notify"
	"github.com/airenas/vidsearch/internal/pkg/postgres"
	"github.com/airenas/vidsearch/internal/pkg/setup"
	"github.com/airenas/vidsearch/internal/pkg/storage"
	"github.com/labstack/gommon/color"
)

func main() {
	goapp.StartWithDefault()

	printBanner()

	cfg := goapp.Config
	data := &notify.Data{}
	data.Port = cfg.GetInt("port")
	data.RetrySecret = cfg.GetString("notify.retrySecret")

	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	dbPool, err := setup.DBPool(ctx, cfg)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	sender, err := postgres.NewSender(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue sender")
	}
	data.MsgSender = sender

	var listenerDone <-chan struct{}
	if cfg.GetBool("storage.listen") {
		sCfg := setup.StorageConfig(cfg)
		mc, err := storage.NewClient(sCfg)
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init storage client")
		}
		listener, err := storage.NewListener(mc, sender, sCfg)
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init bucket listener")
		}
		listenerDone, err = listener.Start(ctx)
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't start bucket listener")
		}
	}

	err = notify.StartWebServer(data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start web server")
	}
	cancelFunc()
	if listenerDone != nil {
		select {
		case <-listenerDone:
			goapp.Log.Info().Msg("All code returned. Now exit. Bye")
		case <-time.After(time.Second * 15):
			goapp.Log.Warn().Msg("Timeout gracefull shutdown")
		}
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

                __  _ ____     
   ____  ____  / /_(_) __/_  __
  / __ \/ __ \/ __/ / /_/ / / /
 / / / / /_/ / /_/ / __/ /_/ / 
/_/ /_/\____/\__/_/_/  \__, /  
                      /____/   
%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/vidsearch"))
}
