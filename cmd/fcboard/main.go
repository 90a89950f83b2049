package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/flightboard/pkg/config"
	"github.com/mklimuk/flightboard/snsctx"
)

const metadataConfig = "config"

func main() {
	os.Exit(run())
}

func run() int {
	app := cli.NewApp()
	app.Name = "fcboard"
	app.EnableBashCompletion = true
	app.Version = fmt.Sprintf("%s-%s-%s", config.Version, config.BuildDate, config.Commit)
	app.Usage = "flight controller board bench tool"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "enable verbose logging and bus transaction traces",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML configuration file",
			EnvVars: []string{"FCBOARD_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "backend",
			Aliases: []string{"b"},
			Usage:   "override the configured bus backend (periph, gobot, mcp2221, sim)",
		},
	}
	app.Before = func(c *cli.Context) error {
		charm := chlog.NewWithOptions(os.Stdout, chlog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
		})
		charm.SetColorProfile(termenv.TrueColor)
		charm.SetLevel(chlog.InfoLevel)
		if c.Bool("verbose") {
			charm.SetLevel(chlog.DebugLevel)
		}
		logger := slog.New(charm)
		slog.SetDefault(logger)

		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return err
		}
		if backend := c.String("backend"); backend != "" {
			cfg.Bus.Backend = backend
			if err := cfg.Validate(); err != nil {
				return err
			}
		}
		c.App.Metadata = map[string]any{metadataConfig: cfg}
		c.Context = snsctx.SetLogger(snsctx.SetVerbose(c.Context, c.Bool("verbose")), logger)
		return nil
	}
	app.Commands = cli.Commands{
		&baroCmd,
		&imuCmd,
		&linkCmd,
		&runCmd,
		&simCmd,
		&configCmd,
		&usbCmd,
		&mcp2221Cmd,
	}
	err := app.Run(os.Args)
	if err != nil {
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			slog.Error("command failed", "error", err)
			return exerr.ExitCode()
		}
		slog.Error("unexpected error", "error", err)
		return 1
	}
	return 0
}

func configFrom(c *cli.Context) config.Config {
	if cfg, ok := c.App.Metadata[metadataConfig].(config.Config); ok {
		return cfg
	}
	return config.Default()
}

var configCmd = cli.Command{
	Name:  "config",
	Usage: "print the effective configuration",
	Action: func(c *cli.Context) error {
		return configFrom(c).Encode(os.Stdout)
	},
}
