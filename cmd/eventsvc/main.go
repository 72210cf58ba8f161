// Command eventsvc serves the events API.
package main

import (
	"context"

	"github.com/nimburion/eventsvc/pkg/app"
	"github.com/nimburion/eventsvc/pkg/cli"
	"github.com/nimburion/eventsvc/pkg/config"
	"github.com/nimburion/eventsvc/pkg/observability/logger"
)

func main() {
	cmd := cli.NewServiceCommand(cli.ServiceCommandOptions{
		Name:        "eventsvc",
		Description: "Events API: accounts, events, subscriptions and change notifications",
		EnvPrefix:   "APP",
		RunServer:   app.Run,
		CheckDependencies: func(ctx context.Context, cfg *config.Config, log logger.Logger) error {
			return withApp(ctx, cfg, log, (*app.App).CheckDependencies)
		},
		EnsureIndexes: func(ctx context.Context, cfg *config.Config, log logger.Logger) error {
			return withApp(ctx, cfg, log, (*app.App).EnsureIndexes)
		},
	})
	cli.Execute(cmd)
}

func withApp(ctx context.Context, cfg *config.Config, log logger.Logger, fn func(*app.App, context.Context) error) error {
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a, ctx)
}
