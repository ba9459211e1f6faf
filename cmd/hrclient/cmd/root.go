package cmd

import (
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "hrclient",
	Short: "hrclient is a command-line client for the HR administration backend",
	Long: `A command-line client for the HR administration backend. It keeps an
authenticated session between invocations, sealed at rest, and refreshes
expired access tokens transparently.`,
	SilenceUsage: true,
}

func Execute() {
	memguard.CatchInterrupt()
	defer memguard.Purge()

	if err := rootCmd.Execute(); err != nil {
		memguard.Purge()
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("base-url", "", "Backend API root (env HRCLIENT_BASE_URL)")
	pf.String("timeout", "", "Timeout for every backend call, e.g. 15s (env HRCLIENT_TIMEOUT)")
	pf.String("state-dir", "", "Directory for the session database and key file (env HRCLIENT_STATE_DIR)")
	pf.String("store", "", "Session storage: bbolt, postgres or memory (env HRCLIENT_STORE)")
	pf.String("postgres-dsn", "", "Postgres DSN when --store=postgres (env HRCLIENT_POSTGRES_DSN)")
	pf.String("profile", "", "Saved session profile (env HRCLIENT_PROFILE)")
	pf.String("log-level", "", "debug, info, warn or error (env HRCLIENT_LOG_LEVEL)")
	pf.String("log-format", "", "text or json (env HRCLIENT_LOG_FORMAT)")
	pf.Bool("require-revocation", false, "Fail logout when the backend does not confirm it (env HRCLIENT_REQUIRE_REVOCATION)")
}
