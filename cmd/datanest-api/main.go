package main

import (
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
)

var log = logging.Logger("main")

func main() {
	app := &cli.App{
		Name:  "datanest-api",
		Usage: "Dataset marketplace API server",
		Commands: []*cli.Command{
			runCmd,
			checkConfigCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Errorf("%+v", err)
		os.Exit(1)
	}
}
