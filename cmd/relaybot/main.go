// Command relaybot runs the Telegram forum relay bot.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "relaybot",
		Usage:   "Relay private Telegram chats into forum topics of a staff group",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env-file",
				Aliases: []string{"e"},
				Usage:   "Load environment variables from `FILE` before reading configuration",
				Value:   ".env",
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			migrateCommand(),
		},
		DefaultCommand: "run",
	}
}
