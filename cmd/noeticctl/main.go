// Command noeticctl is a lightweight CLI client for noeticd's HTTP
// bridge (spec.md §6 HTTP surface), in the spirit of codenerd's
// cmd/nerd query/status/why subcommands but talking to a running
// service over HTTP instead of an in-process kernel.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverAddr string
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "noeticctl",
	Short: "noeticctl - CLI client for the noeticd inference service",
}

var assertCmd = &cobra.Command{
	Use:   "assert [subject] [predicate] [object]",
	Short: "Assert a fact into the knowledge graph",
	Args:  cobra.ExactArgs(3),
	RunE:  runAssert,
}

var retractCmd = &cobra.Command{
	Use:   "retract [fact_id]",
	Short: "Retract a fact by id",
	Args:  cobra.ExactArgs(1),
	RunE:  runRetract,
}

var queryCmd = &cobra.Command{
	Use:   "query [pattern]",
	Short: "Query facts matching a pattern, e.g. 'childOf(?x, a)'",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

var whyCmd = &cobra.Command{
	Use:   "why [fact_id]",
	Short: "Show the justification trace for a fact",
	Args:  cobra.ExactArgs(1),
	RunE:  runWhy,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show service health and statistics",
	RunE:  runStatus,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "http://localhost:8080", "noeticd HTTP bridge address")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	rootCmd.AddCommand(assertCmd, retractCmd, queryCmd, whyCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func client(ctx context.Context) (*http.Client, context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return &http.Client{}, ctx, cancel
}

func runAssert(cmd *cobra.Command, args []string) error {
	body, err := json.Marshal(map[string]string{
		"subject": args[0], "predicate": args[1], "object": args[2],
	})
	if err != nil {
		return err
	}
	hc, ctx, cancel := client(cmd.Context())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverAddr+"/assert", strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doRequest(hc, req)
}

func runRetract(cmd *cobra.Command, args []string) error {
	hc, ctx, cancel := client(cmd.Context())
	defer cancel()

	u := serverAddr + "/retract?" + url.Values{"fact_id": {args[0]}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return err
	}
	return doRequest(hc, req)
}

func runQuery(cmd *cobra.Command, args []string) error {
	hc, ctx, cancel := client(cmd.Context())
	defer cancel()

	u := serverAddr + "/query?" + url.Values{"pattern": {args[0]}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return doRequest(hc, req)
}

func runWhy(cmd *cobra.Command, args []string) error {
	hc, ctx, cancel := client(cmd.Context())
	defer cancel()

	u := serverAddr + "/why?" + url.Values{"fact_id": {args[0]}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return doRequest(hc, req)
}

func runStatus(cmd *cobra.Command, args []string) error {
	hc, ctx, cancel := client(cmd.Context())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverAddr+"/health", nil)
	if err != nil {
		return err
	}
	return doRequest(hc, req)
}

func doRequest(hc *http.Client, req *http.Request) error {
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(raw))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
