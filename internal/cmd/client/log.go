package client

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

type logStats struct {
	Name       string `json:"name"`
	Count      int    `json:"count"`
	FirstSeq   uint64 `json:"firstSeq"`
	LastSeq    uint64 `json:"lastSeq"`
	MaxEntries int    `json:"maxEntries"`
	Closed     bool   `json:"closed"`
}

type logEntry struct {
	Seq      uint64 `json:"seq"`
	EntryID  string `json:"entryId"`
	Seconds  uint32 `json:"seconds"`
	Fraction uint32 `json:"fraction"`
	Quality  uint8  `json:"quality"`
	TsMs     int64  `json:"tsMs"`
	Payload  []byte `json:"payload"`
}

// NewLogCommand constructs the `log` command group and subcommands.
func NewLogCommand(baseURL BaseURLFunc) *cobra.Command {
	logCmd := &cobra.Command{Use: "log", Short: "Event log operations"}
	logCmd.AddCommand(
		newLogListCommand(baseURL),
		newLogStatsCommand(baseURL),
		newLogQueryCommand(baseURL),
		newLogAppendCommand(baseURL),
		newLogMaxEntriesCommand(baseURL),
		newLogPurgeCommand(baseURL),
	)
	return logCmd
}

func newLogListCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List bound logs with their stats",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var data struct {
				Logs []logStats `json:"logs"`
			}
			if err := doJSON(cmd.Context(), http.MethodGet, baseURL()+"/v1/logs", nil, &data); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
}

func newLogStatsCommand(baseURL BaseURLFunc) *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Get the stats of one log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			var st logStats
			if err := doJSON(cmd.Context(), http.MethodGet, logURL(baseURL(), name, ""), nil, &st); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
	statsCmd.Flags().String("name", "", "Log reference, e.g. GenericIO/LLN0$EventLog")
	_ = statsCmd.MarkFlagRequired("name")
	return statsCmd
}

func newLogQueryCommand(baseURL BaseURLFunc) *cobra.Command {
	queryCmd := &cobra.Command{
		Use:   "query",
		Short: "Read entries in a sequence range",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			from, _ := cmd.Flags().GetUint64("from")
			to, _ := cmd.Flags().GetUint64("to")
			limit, _ := cmd.Flags().GetInt("limit")
			filter, _ := cmd.Flags().GetString("filter")
			wait, _ := cmd.Flags().GetDuration("wait")
			raw, _ := cmd.Flags().GetBool("raw")

			q := url.Values{}
			q.Set("from", strconv.FormatUint(from, 10))
			q.Set("to", strconv.FormatUint(to, 10))
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			if filter != "" {
				q.Set("filter", filter)
			}
			if wait > 0 {
				q.Set("wait_ms", strconv.FormatInt(wait.Milliseconds(), 10))
			}
			var data struct {
				Entries []logEntry `json:"entries"`
				Next    uint64     `json:"next"`
			}
			if err := doJSON(cmd.Context(), http.MethodGet, logURL(baseURL(), name, "/entries?"+q.Encode()), nil, &data); err != nil {
				return err
			}
			if raw {
				return printJSON(cmd.OutOrStdout(), data)
			}
			out := make([]map[string]any, 0, len(data.Entries))
			for _, e := range data.Entries {
				m := decodedPayload(e.Payload)
				m["seq"] = e.Seq
				m["entryId"] = e.EntryID
				m["time"] = time.UnixMilli(e.TsMs).UTC().Format(time.RFC3339Nano)
				m["quality"] = e.Quality
				out = append(out, m)
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"entries": out, "next": data.Next})
		},
	}
	queryCmd.Flags().String("name", "", "Log reference")
	queryCmd.Flags().Uint64("from", 0, "First sequence id (0 = oldest)")
	queryCmd.Flags().Uint64("to", 0, "Last sequence id (0 = newest)")
	queryCmd.Flags().Int("limit", 0, "Max entries to return (server default 100)")
	queryCmd.Flags().String("filter", "", "CEL expression over seq, entry_id, ts_ms, quality, size, change")
	queryCmd.Flags().Duration("wait", 0, "Long-poll up to this long when nothing matches yet")
	queryCmd.Flags().Bool("raw", false, "Print entries as returned by the server")
	_ = queryCmd.MarkFlagRequired("name")
	return queryCmd
}

func newLogAppendCommand(baseURL BaseURLFunc) *cobra.Command {
	appendCmd := &cobra.Command{
		Use:   "append",
		Short: "Append one entry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			entryID, _ := cmd.Flags().GetString("entry-id")
			data, _ := cmd.Flags().GetString("data")
			at, _ := cmd.Flags().GetString("at")
			quality, _ := cmd.Flags().GetUint8("quality")

			var tsMs int64
			if at != "" {
				if ms, err := strconv.ParseInt(at, 10, 64); err == nil {
					tsMs = ms
				} else if t, err := time.Parse(time.RFC3339, at); err == nil {
					tsMs = t.UnixMilli()
				} else {
					return fmt.Errorf("invalid --at; expected ms or RFC3339")
				}
			}
			body := map[string]any{
				"entryId": entryID,
				"tsMs":    tsMs,
				"quality": quality,
				"payload": []byte(data),
			}
			var resp struct {
				Seq uint64 `json:"seq"`
			}
			if err := doJSON(cmd.Context(), http.MethodPost, logURL(baseURL(), name, "/entries"), body, &resp); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "seq: %d\n", resp.Seq)
			return err
		},
	}
	appendCmd.Flags().String("name", "", "Log reference")
	appendCmd.Flags().String("entry-id", "", "Entry identifier")
	appendCmd.Flags().String("data", "", "Payload")
	appendCmd.Flags().String("at", "", "Event time as unix ms or RFC3339 (default now)")
	appendCmd.Flags().Uint8("quality", 0, "Time quality octet")
	_ = appendCmd.MarkFlagRequired("name")
	return appendCmd
}

func newLogMaxEntriesCommand(baseURL BaseURLFunc) *cobra.Command {
	maxCmd := &cobra.Command{
		Use:   "max-entries",
		Short: "Set the retention bound of a log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			value, _ := cmd.Flags().GetInt("value")
			if value < 1 {
				return errors.New("--value must be >= 1")
			}
			var st logStats
			if err := doJSON(cmd.Context(), http.MethodPut, logURL(baseURL(), name, "/max-entries"), map[string]int{"maxEntries": value}, &st); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
	maxCmd.Flags().String("name", "", "Log reference")
	maxCmd.Flags().Int("value", 0, "New bound")
	_ = maxCmd.MarkFlagRequired("name")
	_ = maxCmd.MarkFlagRequired("value")
	return maxCmd
}

func newLogPurgeCommand(baseURL BaseURLFunc) *cobra.Command {
	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove every entry of a log (sequence ids are not reused)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			confirm, _ := cmd.Flags().GetBool("confirm")
			if !confirm {
				return errors.New("purge requires --confirm")
			}
			if err := doJSON(cmd.Context(), http.MethodDelete, logURL(baseURL(), name, "/entries"), nil, nil); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "purged %s\n", name)
			return err
		},
	}
	purgeCmd.Flags().String("name", "", "Log reference")
	purgeCmd.Flags().Bool("confirm", false, "Confirm the purge")
	_ = purgeCmd.MarkFlagRequired("name")
	return purgeCmd
}
