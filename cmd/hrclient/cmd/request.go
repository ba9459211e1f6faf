package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmcleod/hrclient/gateway"
)

var getCmd = &cobra.Command{
	Use:   "get PATH",
	Short: "GET a backend resource with the saved session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRequest(cmd, http.MethodGet, args[0])
	},
}

var requestCmd = &cobra.Command{
	Use:   "request METHOD PATH",
	Short: "Send an arbitrary request with the saved session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRequest(cmd, strings.ToUpper(args[0]), args[1])
	},
}

func runRequest(cmd *cobra.Command, method, path string) error {
	req := &gateway.Request{Method: method, Path: path}

	if data, _ := cmd.Flags().GetString("data"); data != "" {
		if !json.Valid([]byte(data)) {
			return fmt.Errorf("--data is not valid JSON")
		}
		req.Body = json.RawMessage(data)
	}
	queries, _ := cmd.Flags().GetStringArray("query")
	if len(queries) > 0 {
		req.Query = url.Values{}
		for _, q := range queries {
			k, v, ok := strings.Cut(q, "=")
			if !ok {
				return fmt.Errorf("--query %q: expected key=value", q)
			}
			req.Query.Add(k, v)
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
	resp, err := rt.gw.Do(cmd.Context(), req)
	if err != nil {
		return err
	}

	out := resp.Body
	var pretty bytes.Buffer
	if json.Indent(&pretty, resp.Body, "", "  ") == nil {
		out = pretty.Bytes()
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func init() {
	rootCmd.AddCommand(getCmd, requestCmd)
	getCmd.Flags().StringArrayP("query", "q", nil, "Query parameter key=value (repeatable)")
	requestCmd.Flags().StringArrayP("query", "q", nil, "Query parameter key=value (repeatable)")
	requestCmd.Flags().StringP("data", "d", "", "JSON request body")
}
