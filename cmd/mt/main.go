package main

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pkt.systems/psi"
	"pkt.systems/pslog"
)

func main() {
	psi.Run(submain)
}

func submain(ctx context.Context) int {
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(defaultLogOptions(term.IsTerminal(int(os.Stderr.Fd())))),
	)
	ctx = pslog.ContextWithLogger(ctx, logger)
	log.SetOutput(pslog.LogLogger(logger).Writer())
	log.SetFlags(0)

	args := applyArgv0Alias(os.Args)
	root := newRootCmd()
	root.SetArgs(args[1:])

	if err := root.ExecuteContext(ctx); err != nil {
		pslog.Ctx(ctx).With("err", err).Error("mt command failed")
		return 1
	}
	return 0
}

// defaultLogOptions picks console output for terminals and structured output
// when stderr is piped. LOG_MODE still overrides either.
func defaultLogOptions(isTerminal bool) pslog.Options {
	if isTerminal {
		return pslog.Options{Mode: pslog.ModeConsole}
	}
	return pslog.Options{Mode: pslog.ModeStructured, NoColor: true}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mt",
		Short:         "Keep browser tabs, a directory tree and socket clients in sync",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newTabsCmd())
	root.AddCommand(newDiffCmd())
	root.AddCommand(newSendCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func argv0Alias(base string) string {
	switch base {
	case "mounttabd":
		return "serve"
	default:
		return ""
	}
}

func applyArgv0Alias(args []string) []string {
	if len(args) == 0 {
		return args
	}
	alias := argv0Alias(filepath.Base(args[0]))
	if alias == "" {
		return args
	}
	out := make([]string, 0, len(args)+1)
	out = append(out, args[0], alias)
	out = append(out, args[1:]...)
	return out
}
