/*
   Copyright The Soci Snapshotter Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/awslabs/stream-inflate/config"
	"github.com/awslabs/stream-inflate/metrics"
	"github.com/awslabs/stream-inflate/tracing"
	"github.com/awslabs/stream-inflate/version"
	"github.com/containerd/log"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

const (
	configFlag   = "config"
	logLevelFlag = "log-level"
)

// app holds what the global flags set up for the subcommands.
type app struct {
	ctx             context.Context
	cfg             *config.Config
	shutdownTracing func(context.Context) error
}

func main() {
	ctx, stop := signal.NotifyContext(log.WithLogger(context.Background(), log.L), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{ctx: ctx}
	cliApp := cli.NewApp()
	cliApp.Name = "stream-inflate"
	cliApp.Usage = "decompress raw DEFLATE and DEFLATE64 streams incrementally"
	cliApp.Version = fmt.Sprintf("%s %s", version.Version, version.Revision)
	cliApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  configFlag,
			Usage: "path to the configuration file",
			Value: config.DefaultConfigPath,
		},
		// Debug or Trace may log offsets and sizes of every block.
		cli.StringFlag{
			Name:  logLevelFlag,
			Usage: "set the logging level [trace, debug, info, warn, error, fatal, panic]",
		},
	}
	cliApp.Commands = []cli.Command{
		a.inflateCommand(),
		a.probeCommand(),
	}
	cliApp.Before = a.before
	cliApp.After = a.after

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "stream-inflate: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func (a *app) before(c *cli.Context) error {
	cfg, err := config.NewConfigFromToml(c.GlobalString(configFlag))
	if err != nil {
		return err
	}
	if c.GlobalIsSet(logLevelFlag) {
		if err := cfg.Override(map[string]any{"log_level": c.GlobalString(logLevelFlag)}); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	lvl, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: log.RFC3339NanoFixed,
	})

	a.shutdownTracing, err = tracing.Setup(a.ctx)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}

	if !cfg.NoPrometheus {
		metrics.Register()
		if cfg.MetricsAddress != "" {
			if err := serveMetrics(a.ctx, cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *app) after(c *cli.Context) error {
	if a.shutdownTracing == nil {
		return nil
	}
	return a.shutdownTracing(context.WithoutCancel(a.ctx))
}

func serveMetrics(ctx context.Context, cfg *config.Config) error {
	l, err := net.Listen(cfg.MetricsNetwork, cfg.MetricsAddress)
	if err != nil {
		return fmt.Errorf("failed to get listener for metrics endpoint: %w", err)
	}
	m := http.NewServeMux()
	m.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Handler: m}
	go func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.G(ctx).WithError(err).Error("error on serving metrics")
		}
	}()
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	log.G(ctx).WithField("address", cfg.MetricsAddress).Info("serving metrics")
	return nil
}
