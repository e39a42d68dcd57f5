package main

import (
	"context"
	goflag "flag"

	flag "github.com/spf13/pflag"

	"github.com/rostrumapp/rostrum/pkg/config"
	"github.com/rostrumapp/rostrum/pkg/logger"
	"github.com/rostrumapp/rostrum/pkg/os"
	"github.com/rostrumapp/rostrum/pkg/relay"
)

var Version = "?"

func main() {
	conf := config.NewRelayConfig()
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	conf.ParseFlags()

	log := logger.NewConsole(conf.Relay.Debug, "r", false)

	log.Info().Msgf("version %s", Version)
	if log.GetLevel() < logger.InfoLevel {
		log.Debug().Msgf("config: %+v", conf)
	}
	r, err := relay.New(conf, log)
	if err != nil {
		log.Fatal().Err(err).Msg("relay init fail")
	}
	r.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		if err := r.Stop(ctx); err != nil {
			log.Error().Err(err).Msg("service shutdown errors")
		}
	}()
	<-os.ExpectTermination()
	cancel()
}
