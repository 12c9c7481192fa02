package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/octu0/pair-topology/internal/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

var (
	cfgFile string
	join    string
	debug   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pairtopologyd",
		Short: "two node primary/secondary topology controller",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a node and elect a role with its peer",
		RunE:  runNode,
	}
	runCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "Path to config file (default: configs/config.yaml)")
	runCmd.Flags().StringVarP(&join, "join", "j", "", "peer address, overrides node.join")
	runCmd.Flags().BoolVar(&debug, "debug", false, "development logging")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func runNode(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && errors.Is(err, os.ErrNotExist) != true {
		return errors.Wrap(err, "dotenv")
	}

	logger, err := newLogger()
	if err != nil {
		return errors.Wrap(err, "logger init")
	}
	defer logger.Sync()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return errors.Wrap(err, "config load")
	}
	if join != "" {
		cfg.Node.Join = join
	}
	if cfg.Node.Name == "" {
		cfg.Node.Name = "node-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
	}
	logger = logger.With(zap.String("node", cfg.Node.Name))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n, err := startNode(ctx, cfg, logger)
	if err != nil {
		return errors.WithStack(err)
	}
	defer n.Close()

	ctrl, link := n.ctrl, n.link
	logger.Info("startup", zap.String("addr", link.Address()), zap.String("join", cfg.Node.Join))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sig)

wait:
	for s := range sig {
		switch s {
		case syscall.SIGUSR1:
			logger.Info("swap role requested")
			ctrl.SwapRole()
		case syscall.SIGUSR2:
			logger.Info("static handover requested")
			ctrl.RequestStaticHandover()
		default:
			break wait
		}
	}

	logger.Info("leave")
	n.Leave(shutdownTimeout, logger)

	logger.Info("bye")
	return nil
}
