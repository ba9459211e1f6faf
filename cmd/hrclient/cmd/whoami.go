package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/hrclient/session"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user and employee profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.requireSession(cmd.Context()); err != nil {
			return err
		}
		snap := rt.store.Snapshot()
		if snap.Error != "" {
			rt.logger.Warn("profile may be stale", "error", snap.Error)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		u := snap.User
		fmt.Fprintf(tw, "Username:\t%s\n", u.Username)
		fmt.Fprintf(tw, "Role:\t%s\n", u.Role)
		if u.Email != "" {
			fmt.Fprintf(tw, "Email:\t%s\n", u.Email)
		}
		if u.LastLogin != "" {
			fmt.Fprintf(tw, "Last login:\t%s\n", u.LastLogin)
		}
		if e := u.Employee; e != nil {
			fmt.Fprintf(tw, "Employee:\t%s (%s)\n", e.Name, e.EmployeeNumber)
			if e.Position != "" {
				fmt.Fprintf(tw, "Position:\t%s\n", e.Position)
			}
		}
		return tw.Flush()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the saved session without contacting the backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		proj, err := rt.persister.Load()
		if err != nil {
			return err
		}
		profiles, err := rt.persister.Profiles()
		if err != nil {
			rt.logger.Debug("listing profiles failed", "error", err)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "Backend:\t%s\n", rt.gw.BaseURL())
		fmt.Fprintf(tw, "Storage:\t%s\n", rt.cfg.Store)
		fmt.Fprintf(tw, "Profile:\t%s\n", rt.persister.Profile())
		if len(profiles) > 0 {
			fmt.Fprintf(tw, "Saved profiles:\t%v\n", profiles)
		}
		if proj == nil || proj.AccessToken == "" || proj.User == nil {
			fmt.Fprintf(tw, "Session:\t%s\n", session.PhaseAnonymous)
			return tw.Flush()
		}
		fmt.Fprintf(tw, "Session:\t%s\n", session.PhaseAuthenticated)
		fmt.Fprintf(tw, "User:\t%s (%s)\n", proj.User.Username, proj.User.Role)
		fmt.Fprintf(tw, "Access token:\t%s\n", describeExpiry(proj.AccessToken))
		fmt.Fprintf(tw, "Refresh token:\t%s\n", describeExpiry(proj.RefreshToken))
		return tw.Flush()
	},
}

func describeExpiry(token string) string {
	if token == "" {
		return "none"
	}
	exp, err := session.TokenExpiry(token)
	if err != nil {
		return "present (expiry unknown)"
	}
	if d := time.Until(exp); d > 0 {
		return fmt.Sprintf("expires in %s", d.Round(time.Second))
	}
	return fmt.Sprintf("expired at %s", exp.Local().Format(time.RFC3339))
}

func init() {
	rootCmd.AddCommand(whoamiCmd, statusCmd)
}
