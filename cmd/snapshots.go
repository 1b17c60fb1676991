package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	snapshotsServer string
	snapshotsFormat string
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Inspect the lineage of a running workbench",
}

// snapshotEntry mirrors the server's snapshot view payload.
type snapshotEntry struct {
	ID           string   `json:"id" yaml:"id"`
	Timestamp    string   `json:"timestamp" yaml:"timestamp"`
	Label        string   `json:"label,omitempty" yaml:"label,omitempty"`
	Version      int      `json:"version" yaml:"version"`
	Description  string   `json:"description" yaml:"description"`
	TotalMatched int      `json:"total_matched" yaml:"total_matched"`
	RowIDs       []string `json:"row_ids" yaml:"-"`
}

var snapshotsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List lineage nodes with positional versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := apiRequest(http.MethodGet, snapshotsServer+"/api/snapshots", nil)
		if err != nil {
			return err
		}

		var payload struct {
			Snapshots []snapshotEntry `json:"snapshots"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return eris.Wrap(err, "snapshots: decode response")
		}

		if snapshotsFormat == "yaml" {
			out, err := yaml.Marshal(payload.Snapshots)
			if err != nil {
				return eris.Wrap(err, "snapshots: marshal yaml")
			}
			fmt.Print(string(out))
			return nil
		}

		for _, s := range payload.Snapshots {
			label := s.Label
			if label == "" {
				label = "-"
			}
			fmt.Fprintf(os.Stdout, "#%d\t%s\t%s\t%d ids\t%s\n",
				s.Version, s.ID, label, len(s.RowIDs), s.Description)
		}
		return nil
	},
}

var snapshotsRelabelCmd = &cobra.Command{
	Use:   "relabel <id> <label>",
	Short: "Set a snapshot's label",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, _ := json.Marshal(map[string]string{"label": args[1]})
		_, err := apiRequest(http.MethodPatch, snapshotsServer+"/api/snapshots/"+args[0], body)
		return err
	},
}

var snapshotsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a snapshot (children keep their parent references)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := apiRequest(http.MethodDelete, snapshotsServer+"/api/snapshots/"+args[0], nil)
		return err
	},
}

// apiRequest performs one workbench API call and returns the body.
func apiRequest(method, url string, body []byte) ([]byte, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "snapshots: create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "snapshots: call workbench")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "snapshots: read response")
	}
	if resp.StatusCode >= 300 {
		return nil, eris.Errorf("snapshots: workbench returned %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func init() {
	snapshotsCmd.PersistentFlags().StringVar(&snapshotsServer, "server", "http://localhost:8080", "workbench server URL")
	snapshotsListCmd.Flags().StringVar(&snapshotsFormat, "format", "table", "output format: table or yaml")
	snapshotsCmd.AddCommand(snapshotsListCmd, snapshotsRelabelCmd, snapshotsDeleteCmd)
	rootCmd.AddCommand(snapshotsCmd)
}
