package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and save the session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("username")
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			p, err := readSecret(cmd, "Password: ")
			if err != nil {
				return err
			}
			password = p
		}

		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		res := rt.store.Login(cmd.Context(), username, password)
		if !res.OK {
			return errors.New(res.Error)
		}
		user := rt.store.Snapshot().User
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", user.Username, user.Role)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and clear the saved session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		// The backend is told about the logout only if a session was saved.
		// Restore starts no identity fetch that could race the logout call.
		if _, err := rt.store.Restore(cmd.Context()); err != nil {
			rt.logger.Warn("could not restore session before logout", "error", err)
		}
		if err := rt.store.Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Exchange the saved refresh token for a new access token",
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
		res := rt.store.Refresh(cmd.Context())
		if !res.OK {
			return errors.New(res.Error)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Access token refreshed")
		return nil
	},
}

var passwdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Change the password of the logged-in user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		current, _ := cmd.Flags().GetString("current")
		next, _ := cmd.Flags().GetString("new")
		var err error
		if current == "" {
			if current, err = readSecret(cmd, "Current password: "); err != nil {
				return err
			}
		}
		if next == "" {
			if next, err = readSecret(cmd, "New password: "); err != nil {
				return err
			}
		}

		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.requireSession(cmd.Context()); err != nil {
			return err
		}
		res := rt.store.ChangePassword(cmd.Context(), current, next)
		if !res.OK {
			return errors.New(res.Error)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Password changed")
		return nil
	},
}

// readSecret prompts on stderr and reads one line from the command's input.
func readSecret(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, refreshCmd, passwdCmd)
	loginCmd.Flags().StringP("username", "u", "", "Username")
	loginCmd.Flags().StringP("password", "p", "", "Password (prompted when omitted)")
	passwdCmd.Flags().String("current", "", "Current password (prompted when omitted)")
	passwdCmd.Flags().String("new", "", "New password (prompted when omitted)")
}
