package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/verisync/verisync/internal/config"
	"github.com/verisync/verisync/internal/engine"
	"github.com/verisync/verisync/internal/mock"
	"github.com/verisync/verisync/internal/session"
)

var (
	configPath string
	verbose    bool
	mockMode   bool
	policyRef  string
)

func main() {
	root := &cobra.Command{
		Use:           "verisync",
		Short:         "Submit evidence to the verification oracle and await its outcome",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	verify := &cobra.Command{
		Use:   "verify <subjectRef>",
		Short: "Start a verification session and block until it resolves",
		Args:  cobra.ExactArgs(1),
		RunE:  runVerify,
	}
	verify.Flags().StringVar(&policyRef, "policy", "", "verification policy reference")
	verify.Flags().BoolVar(&mockMode, "mock", false, "use the in-process mock oracle")
	root.AddCommand(verify)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}

func runVerify(cmd *cobra.Command, args []string) error {
	subjectRef := args[0]
	log := newLogger()

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var eng *engine.Engine
	if mockMode {
		log.Info().Msg("using in-process mock oracle")
		oracle := mock.NewOracle(2 * time.Second)
		eng = engine.New(cfg, oracle.Dialer, oracle.API, oracle.API, log)
	} else {
		eng = engine.NewWithOracle(cfg, log)
	}
	defer eng.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionID, err := eng.StartSession(ctx, subjectRef, policyRef)
	if err != nil {
		return err
	}

	if updates, err := eng.StatusUpdates(sessionID); err == nil {
		go func() {
			for status := range updates {
				log.Info().Str("status", status.String()).Msg("verification progress")
			}
		}()
	}

	// Ctrl-C cancels the session, which discards any late oracle signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn().Msg("cancelling session")
		eng.CancelSession(sessionID)
	}()

	outcome, err := eng.AwaitOutcome(ctx, sessionID)
	if err != nil {
		return err
	}

	switch outcome.Status {
	case session.Success:
		fmt.Printf("verified: confidence=%.2f artifact=%s challenges=%v\n",
			outcome.Confidence, outcome.ArtifactRef, outcome.PassedChallenges)
		return nil
	default:
		return outcome.Err()
	}
}
