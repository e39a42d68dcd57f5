package main

import (
	"context"
	goflag "flag"

	flag "github.com/spf13/pflag"

	"github.com/rostrumapp/rostrum/pkg/config"
	"github.com/rostrumapp/rostrum/pkg/logger"
	"github.com/rostrumapp/rostrum/pkg/os"
	"github.com/rostrumapp/rostrum/pkg/peer"
)

var Version = "?"

func main() {
	conf := config.NewPeerConfig()
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	conf.ParseFlags()

	tag := conf.Peer.Tag
	if tag == "" {
		tag = "p"
	}
	log := logger.NewConsole(conf.Peer.Debug, tag, false)

	log.Info().Msgf("version %s", Version)
	if log.GetLevel() < logger.InfoLevel {
		log.Debug().Msgf("config: %+v", conf)
	}
	p, err := peer.New(conf, nil, log)
	if err != nil {
		log.Fatal().Err(err).Msg("peer init fail")
	}
	if err := p.Start(); err != nil {
		log.Fatal().Err(err).Msg("peer start fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		if err := p.Stop(ctx); err != nil {
			log.Error().Err(err).Msg("service shutdown errors")
		}
	}()
	select {
	case <-os.ExpectTermination():
	case <-p.Done():
	}
	cancel()
}
