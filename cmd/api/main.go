package main

import (
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/vidsearch/internal/pkg/setup"
	"github.com/airenas/vidsearch/internal/pkg/videos"
	"github.com/labstack/gommon/color"
)

func main() {
	goapp.StartWithDefault()

	printBanner()

	cfg := goapp.Config
	data := &videos.Data{}
	data.Port = cfg.GetInt("port")

	var err error
	data.Lister, err = setup.VideoIndexer(cfg)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init video indexer")
	}

	err = videos.StartWebServer(data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start web server")
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

    ____ _____  (_)
   / __ ` + "`" + `/ __ \/ / 
  / /_/ / /_/ / /  
  \__,_/ .___/_/   
      /_/          
%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/vidsearch"))
}
