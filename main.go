package main

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const version = "1.0.0"

var (
	config = &Config{}
	router *Router
)

func main() {
	mainInitConfig()
	mainInitLogger(config.logs)

	log.Info().Str("version", version).Msg("Start lanbox2mqtt")

	router = newRouter(time.Duration(config.Timeout) * time.Second)

	go mqttReader()
	go mqttWriter()
	go agentReader()
	go drivenReader()
	go router.sweeper()

	select {} // run forever
}

// additional log level for raw protocol output
var miioraw = zerolog.Disabled

func mainInitLogger(logs string) {
	if strings.Contains(logs, "trace") {
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	} else if strings.Contains(logs, "debug") {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else if strings.Contains(logs, "info") {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}

	if strings.Contains(logs, "miio") {
		miioraw = zerolog.NoLevel
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
	log.Logger = log.Output(writer)
}
