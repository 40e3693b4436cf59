package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/guarzo/studyplan/common/model"
	"github.com/guarzo/studyplan/modules/api"
)

func newRequestCommands() []*cobra.Command {
	return []*cobra.Command{
		newBodylessCommand(http.MethodGet),
		newBodylessCommand(http.MethodDelete),
		newBodyCommand(http.MethodPost),
		newBodyCommand(http.MethodPut),
		newDownloadCommand(),
	}
}

func newBodylessCommand(method string) *cobra.Command {
	var headers []string

	cmd := &cobra.Command{
		Use:   strings.ToLower(method) + " <path>",
		Short: fmt.Sprintf("Send an authenticated %s request", method),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getCliContext(cmd)
			req, err := buildRequest(method, args[0], "", headers)
			if err != nil {
				return err
			}
			return printEnvelope(cmd.OutOrStdout(), c.Client.Do(cmd.Context(), req))
		},
	}
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "Extra header as 'Key: Value' (repeatable)")
	return cmd
}

func newBodyCommand(method string) *cobra.Command {
	var headers []string

	cmd := &cobra.Command{
		Use:   strings.ToLower(method) + " <path> [json|-]",
		Short: fmt.Sprintf("Send an authenticated %s request with a JSON body", method),
		Long: fmt.Sprintf(`Send an authenticated %s request. The body is given inline, or read
from stdin when it is "-".`, method),
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getCliContext(cmd)
			body, err := bodyArg(cmd, args)
			if err != nil {
				return err
			}
			req, err := buildRequest(method, args[0], body, headers)
			if err != nil {
				return err
			}
			return printEnvelope(cmd.OutOrStdout(), c.Client.Do(cmd.Context(), req))
		},
	}
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "Extra header as 'Key: Value' (repeatable)")
	return cmd
}

func newDownloadCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <path> [json|-]",
		Short: "POST a JSON body and save the returned file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getCliContext(cmd)
			body, err := bodyArg(cmd, args)
			if err != nil {
				return err
			}
			req, err := buildRequest(http.MethodPost, args[0], body, nil)
			if err != nil {
				return err
			}
			req.Mode = model.ModeBinary

			env := c.Client.Do(cmd.Context(), req)
			if !env.OK {
				return printEnvelope(cmd.OutOrStdout(), env)
			}
			name := output
			if name == "" {
				name = env.Filename
			}
			if name == "" {
				name = "download.bin"
			}
			if err := os.WriteFile(name, env.Data.Blob, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved %s (%d bytes)\n", name, len(env.Data.Blob))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: server-suggested name)")
	return cmd
}

func bodyArg(cmd *cobra.Command, args []string) (string, error) {
	if len(args) < 2 {
		return "", nil
	}
	if args[1] != "-" {
		return args[1], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read body from stdin: %w", err)
	}
	return string(data), nil
}

func buildRequest(method, path, body string, headers []string) (api.Request, error) {
	req := api.Request{Method: method, Path: path}
	if body != "" {
		if !json.Valid([]byte(body)) {
			return req, fmt.Errorf("body is not valid JSON")
		}
		req.Body = json.RawMessage(body)
	}
	for _, h := range headers {
		key, value, ok := strings.Cut(h, ":")
		if !ok {
			return req, fmt.Errorf("invalid header %q, want 'Key: Value'", h)
		}
		api.WithHeader(strings.TrimSpace(key), strings.TrimSpace(value))(&req)
	}
	return req, nil
}

// printEnvelope writes the payload and returns an error for failed calls so
// the exit status reflects the outcome.
func printEnvelope(w io.Writer, env model.Envelope) error {
	switch env.Data.Kind {
	case model.PayloadJSON:
		var buf bytes.Buffer
		if err := json.Indent(&buf, env.Data.JSON, "", "  "); err != nil {
			buf.Reset()
			buf.Write(env.Data.JSON)
		}
		fmt.Fprintln(w, buf.String())
	case model.PayloadFallback:
		if env.Data.Message != "" {
			fmt.Fprintln(w, env.Data.Message)
		}
	case model.PayloadBlob:
		fmt.Fprintf(w, "<%d bytes of %s>\n", len(env.Data.Blob), env.Data.ContentType)
	}

	if !env.OK {
		if env.Status == 0 {
			return fmt.Errorf("request failed: %s", env.Message())
		}
		return fmt.Errorf("request failed with status %d", env.Status)
	}
	return nil
}
