package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/saiset-co/sai-assets/buildinfo"
	"github.com/saiset-co/sai-assets/service"
	"github.com/saiset-co/sai-assets/utils"
)

const (
	appName    = "sai-assets"
	flagConfig = "config"
	flagJSON   = "json"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp(ctx, os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(ctx context.Context, out io.Writer) *cli.App {
	info := buildinfo.Read()

	return &cli.App{
		Name:      appName,
		Usage:     "Serve bundled scripts and stylesheets with content-addressed URLs",
		Version:   info.String(),
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Value:   "config.yml",
				Usage:   "Path to the service configuration file",
				EnvVars: []string{"SAI_ASSETS_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			cmdServe(ctx),
			cmdBuild(ctx),
			cmdVersion(ctx),
		},
	}
}

func cmdServe(ctx context.Context) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP service",
		Action: func(c *cli.Context) error {
			svc, err := service.NewService(ctx, c.String(flagConfig))
			if err != nil {
				return err
			}
			return svc.Start()
		},
	}
}

func cmdBuild(ctx context.Context) *cli.Command {
	return &cli.Command{
		Name:  "build",
		Usage: "Build optimized bundles once and store them in the bundle cache",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: flagJSON, Usage: "Print the build report as JSON"},
		},
		Action: func(c *cli.Context) error {
			report, err := service.Build(ctx, c.String(flagConfig))
			if err != nil {
				return err
			}

			if c.Bool(flagJSON) {
				data, err := utils.Marshal(report)
				if err != nil {
					return err
				}
				_, err = c.App.Writer.Write(data)
				return err
			}

			fmt.Fprintf(c.App.Writer, "version %s\n", report.Version)
			for _, bundle := range report.Bundles {
				fmt.Fprintf(c.App.Writer, "%-10s %-20s %8d bytes  %s\n", bundle.Kind, bundle.Name, bundle.Size, bundle.URL)
			}
			return nil
		},
	}
}

func cmdVersion(ctx context.Context) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print the version token of the configured bundles",
		Action: func(c *cli.Context) error {
			version, err := service.Version(ctx, c.String(flagConfig))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.App.Writer, version)
			return err
		},
	}
}
