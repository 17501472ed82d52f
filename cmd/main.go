package main

import (
	"os"

	"github.com/google/gops/agent"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"SeekStream/pkg/utils"
	"SeekStream/pkg/version"
)

var logger = utils.GetLogger("seekstream")

func main() {
	cli.VersionFlag = &cli.BoolFlag{
		Name: "version", Aliases: []string{"V"},
		Usage: "print only the version",
	}
	app := &cli.App{
		Name:    "seekstream",
		Usage:   "make forward-only byte streams seekable",
		Version: version.Version(),
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"debug", "v"},
				Usage:   "enable debug log",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "only warning and errors",
			},
			&cli.BoolFlag{
				Name:  "trace",
				Usage: "enable trace log",
			},
			&cli.StringFlag{
				Name:  "log",
				Usage: "path of log file when running in background",
			},
			&cli.BoolFlag{
				Name:  "no-agent",
				Usage: "disable pprof (:6060) and gops (:6070) agent",
			},
		},
		Commands: []*cli.Command{
			copyFlags(),
			benchFlags(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		logger.Fatalf("%s", err)
	}
}

func setLoggerLevel(c *cli.Context) {
	if c.Bool("trace") {
		utils.SetLogLevel(logrus.TraceLevel)
	} else if c.Bool("verbose") {
		utils.SetLogLevel(logrus.DebugLevel)
	} else if c.Bool("quiet") {
		utils.SetLogLevel(logrus.WarnLevel)
	} else {
		utils.SetLogLevel(logrus.InfoLevel)
	}
	if logf := c.String("log"); logf != "" {
		utils.SetOutFile(logf)
	}
	if !c.Bool("no-agent") {
		go func() {
			if err := agent.Listen(agent.Options{Addr: "127.0.0.1:6070"}); err != nil {
				logger.Warnf("gops: %s", err)
			}
		}()
	}
}
