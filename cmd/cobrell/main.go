package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli"

	"cobrell/internal/app"
	"cobrell/internal/player"
)

var version = "dev"

func main() {
	// Optional; deployments can set COBRELL_CONFIG there.
	_ = godotenv.Load()

	cliApp := cli.NewApp()
	cliApp.Name = "cobrell"
	cliApp.Usage = "school bell scheduler"
	cliApp.Version = version
	cliApp.Commands = []cli.Command{
		runCommand(),
		checkdepsCommand(),
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runCommand() cli.Command {
	return cli.Command{
		Name:  "run",
		Usage: "start the bell scheduler daemon",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:   "config, c",
				Usage:  "path to the YAML config file",
				Value:  "./config.yaml",
				EnvVar: "COBRELL_CONFIG",
			},
			cli.BoolFlag{
				Name:  "ignore-missing-player",
				Usage: "start even when no audio player binary is installed",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(app.Options{
				ConfigPath:          c.String("config"),
				IgnoreMissingPlayer: c.Bool("ignore-missing-player"),
			})
			if err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}
}

func checkdepsCommand() cli.Command {
	return cli.Command{
		Name:  "checkdeps",
		Usage: "report which audio playback backends are installed",
		Flags: []cli.Flag{
			cli.BoolFlag{
				Name:  "quiet, q",
				Usage: "no output, exit code only",
			},
		},
		Action: func(c *cli.Context) error {
			quiet := c.Bool("quiet")

			var chosen player.Backend
			for _, b := range player.Backends() {
				ok := b.Available()
				if ok && chosen == nil {
					chosen = b
				}
				if !quiet {
					mark := "missing"
					if ok {
						mark = "ok"
					}
					fmt.Printf("  %-8s %s\n", b.Name(), mark)
				}
			}

			if chosen == nil {
				if quiet {
					return cli.NewExitError("", 1)
				}
				return cli.NewExitError("no audio player found; install mpg123, ffplay, or vlc", 1)
			}
			if !quiet {
				fmt.Printf("daemon would use: %s\n", chosen.Name())
			}
			return nil
		},
	}
}
