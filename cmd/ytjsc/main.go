package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/bytedance/sonic"
	"github.com/urfave/cli/v3"

	"github.com/ytget/ytjsc/types"
	"github.com/ytget/ytjsc/youtube/jsc"
)

// Version is set during build using ldflags
var Version = "dev"

func main() {
	app := &cli.Command{
		Name:    "ytjsc",
		Version: Version,
		Usage:   "Solve YouTube n and sig challenges in an embedded JavaScript sandbox",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "TOML config file", Sources: cli.EnvVars("YTJSC_CONFIG")},
			&cli.StringFlag{Name: "mode", Usage: "solver mode: auto, local or remote"},
			&cli.StringFlag{Name: "engine", Usage: "script engine: goja or otto"},
			&cli.StringFlag{Name: "assets", Usage: "directory holding the parser, regenerator and helper scripts"},
			&cli.StringFlag{Name: "remote", Usage: "solve service URL"},
			&cli.StringFlag{Name: "timeout", Usage: "per-evaluation timeout (e.g. 10s)"},
			&cli.StringFlag{Name: "cache-dir", Usage: "preprocessed player cache directory"},
			&cli.StringFlag{Name: "log-level", Usage: "TRACE, DEBUG, INFO, WARN or ERROR"},
			&cli.StringFlag{Name: "log-format", Usage: "text, json or color"},
		},
		Commands: []*cli.Command{
			solveCommand(),
			serveCommand(),
			{
				Name:  "version",
				Usage: "Print the version information",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Printf("ytjsc version %s (engines: %v)\n", cmd.Root().Version, jsc.Engines())
					return nil
				},
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// solveOutput is printed by the solve command, also on partial failure.
type solveOutput struct {
	N     map[string]string `json:"n"`
	Sig   map[string]string `json:"sig"`
	Error string            `json:"error,omitempty"`
}

func solveCommand() *cli.Command {
	return &cli.Command{
		Name:  "solve",
		Usage: "Solve challenges against a player script and print the results as JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "player", Aliases: []string{"p"}, Usage: "player script file, - for stdin", Required: true},
			&cli.StringFlag{Name: "player-id", Usage: "player version key"},
			&cli.StringSliceFlag{Name: "n", Usage: "n challenge token (repeatable)"},
			&cli.StringSliceFlag{Name: "sig", Usage: "sig challenge token (repeatable)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			player, err := readPlayer(cmd.String("player"))
			if err != nil {
				return err
			}
			solver, err := newSolver(cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = solver.Close() }()

			resp, solveErr := solver.Solve(ctx, types.SolveRequest{
				Player:   player,
				PlayerID: cmd.String("player-id"),
				N:        cmd.StringSlice("n"),
				Sig:      cmd.StringSlice("sig"),
			})
			out := solveOutput{N: map[string]string{}, Sig: map[string]string{}}
			if resp != nil {
				out.N, out.Sig = resp.N, resp.Sig
			}
			if solveErr != nil {
				out.Error = solveErr.Error()
			}
			b, err := sonic.ConfigStd.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(b))
			return solveErr
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP solve service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "listen address"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			srv, pool, err := newServer(cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = pool.Close() }()

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}
}

func readPlayer(path string) (string, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(os.Stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read player: %w", err)
	}
	if len(b) == 0 {
		return "", errors.New("read player: empty script")
	}
	return string(b), nil
}
