package main

import (
	"os"

	pkglog "github.com/weiawesome/wes-io-live/pkg/log"
)

func main() {
	if err := Execute(); err != nil {
		l := pkglog.L()
		l.Error().Err(err).Msg("stream-service exited with error")
		os.Exit(1)
	}
}
