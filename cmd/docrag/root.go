package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallnest/docrag/app"
	"github.com/smallnest/docrag/config"
	"github.com/smallnest/docrag/log"
	"github.com/smallnest/docrag/server"
	"github.com/spf13/cobra"
)

// service is everything the commands use.
type service interface {
	server.Backend
	Close() error
}

type serviceFactory func(ctx context.Context, cfg *config.Config, logger log.Logger) (service, error)

func buildService(ctx context.Context, cfg *config.Config, logger log.Logger) (service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// cli holds state shared by the subcommands.
type cli struct {
	factory    serviceFactory
	configPath string
	logLevel   string

	cfg    *config.Config
	logger log.Logger
	svc    service
}

func newRootCmd(factory serviceFactory) *cobra.Command {
	c := &cli{factory: factory}

	root := &cobra.Command{
		Use:          "docrag",
		Short:        "Ask questions about your documents",
		Long:         `docrag indexes PDF, HTML and text documents into a vector store and a knowledge graph, then answers questions grounded in them.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Path to a TOML config file")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn, error, none")

	root.AddCommand(
		newIngestCmd(c),
		newAskCmd(c),
		newChatCmd(c),
		newFactsCmd(c),
		newDocsCmd(c),
		newHealthCmd(c),
		newServeCmd(c),
	)
	return root
}

// open loads configuration and builds the service on first use. Callers
// defer close.
func (c *cli) open(ctx context.Context) (service, error) {
	if c.svc != nil {
		return c.svc, nil
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	c.cfg = cfg

	c.logger = log.NewDefaultLogger(log.ParseLevel(cfg.LogLevel))
	log.SetDefaultLogger(c.logger)

	svc, err := c.factory(ctx, cfg, c.logger)
	if err != nil {
		return nil, err
	}
	c.svc = svc
	return svc, nil
}

func (c *cli) close() error {
	if c.svc == nil {
		return nil
	}
	err := c.svc.Close()
	c.svc = nil
	return err
}

var errNoQuestion = errors.New("question is empty")
