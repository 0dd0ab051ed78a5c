package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hamed0406/storemonitor/internal/domain"
)

// errRunning is returned by fetchReport while the report is still being
// generated.
var errRunning = errors.New("report is still running")

type apiClient struct {
	base string
	key  string
	http *http.Client
}

func (g *globals) client() *apiClient {
	return &apiClient{
		base: strings.TrimRight(g.apiBase, "/"),
		key:  g.apiKey,
		http: &http.Client{Timeout: g.timeout},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contacting API: %w", err)
	}
	return resp, nil
}

// apiError turns a non-2xx JSON body into an error.
func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Error != "" {
		return fmt.Errorf("API returned %s: %s", resp.Status, body.Error)
	}
	return fmt.Errorf("API returned %s", resp.Status)
}

func (c *apiClient) ingest(ctx context.Context, dir string) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/ingest", map[string]string{"path": dir})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return "", apiError(resp)
	}
	var out struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return out.Message, nil
}

func (c *apiClient) trigger(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/trigger_report", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", apiError(resp)
	}
	var out struct {
		ID string `json:"report_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode trigger response: %w", err)
	}
	return out.ID, nil
}

// fetchReport copies a finished report to w.
func (c *apiClient) fetchReport(ctx context.Context, id, format string, w io.Writer) error {
	q := url.Values{"report_id": {id}}
	if format != "" {
		q.Set("format", format)
	}
	resp, err := c.do(ctx, http.MethodGet, "/get_report?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	if resp.Header.Get("Content-Disposition") == "" {
		var st struct {
			Status string `json:"status"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&st)
		if st.Status == string(domain.ReportRunning) {
			return errRunning
		}
		return fmt.Errorf("unexpected report status %q", st.Status)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// waitReport polls until the report is no longer running.
func (c *apiClient) waitReport(ctx context.Context, id, format string, every time.Duration, w io.Writer) error {
	for {
		var buf bytes.Buffer
		err := c.fetchReport(ctx, id, format, &buf)
		if err == nil {
			_, err = w.Write(buf.Bytes())
			return err
		}
		if !errors.Is(err, errRunning) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(every):
		}
	}
}

func newIngestCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <dir>",
		Short: "Ask the API to load a CSV directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := g.client().ingest(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}

func newTriggerCmd(g *globals) *cobra.Command {
	var (
		wait   bool
		every  time.Duration
		out    string
		format string
	)
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Start a report and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := g.client()
			id, err := c.trigger(cmd.Context())
			if err != nil {
				return err
			}
			if !wait {
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "report", id)
			return writeOutput(cmd, out, func(w io.Writer) error {
				return c.waitReport(cmd.Context(), id, format, every, w)
			})
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the report and download it")
	cmd.Flags().DurationVar(&every, "interval", 2*time.Second, "poll interval with --wait")
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&format, "format", "csv", "csv or xlsx")
	return cmd
}

func newReportCmd(g *globals) *cobra.Command {
	var out, format string
	cmd := &cobra.Command{
		Use:   "report <id>",
		Short: "Download a finished report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := writeOutput(cmd, out, func(w io.Writer) error {
				return g.client().fetchReport(cmd.Context(), args[0], format, w)
			})
			if errors.Is(err, errRunning) {
				fmt.Fprintln(cmd.OutOrStdout(), "Running")
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&format, "format", "csv", "csv or xlsx")
	return cmd
}

// writeOutput runs fn against stdout or a file. The file is removed when fn
// fails.
func writeOutput(cmd *cobra.Command, path string, fn func(io.Writer) error) error {
	if path == "" {
		return fn(cmd.OutOrStdout())
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
