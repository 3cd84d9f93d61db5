package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/triplexrpc/triplex/pkg/config"
)

var (
	logsFollow bool
	logsLines  int
	logsSince  string
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Tail server logs",
	Long: `Print the most recent entries from the server log file and optionally
keep following it.

The log file location comes from 'logging.output' in the server config;
when the server logs to stdout or stderr there is no file to read and the
command fails with a hint instead.

Examples:
  # Last 100 lines (default)
  triplex logs

  # Follow new entries, starting from the last 20 lines
  triplex logs -f -n 20

  # Entries from a point in time onward
  triplex logs --since "2026-01-15T10:00:00Z"`,
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output")
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 100, "Number of lines to show")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since timestamp (RFC3339 format)")
}

func runLogs(cmd *cobra.Command, args []string) error {
	path, err := serverLogFile()
	if err != nil {
		return err
	}

	var since time.Time
	if logsSince != "" {
		since, err = time.Parse(time.RFC3339, logsSince)
		if err != nil {
			return fmt.Errorf("invalid --since format (use RFC3339): %w", err)
		}
	}

	if err := printLastLines(path, logsLines, since); err != nil {
		return err
	}
	if !logsFollow {
		return nil
	}
	return tailFile(path)
}

// serverLogFile resolves the log file path from the server configuration.
func serverLogFile() (string, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}

	out := cfg.Logging.Output
	if out == "stdout" || out == "stderr" {
		return "", fmt.Errorf("server logs to %s; point 'logging.output' at a file path to use this command", out)
	}
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("log file %s not readable (server not started yet?): %w", out, err)
	}
	return out, nil
}

// printLastLines prints the trailing n lines of the log file, skipping
// entries older than since when a line carries a parseable timestamp.
func printLastLines(path string, n int, since time.Time) error {
	if n <= 0 {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	// Ring buffer keeps memory bounded no matter how large the file is.
	ring := make([]string, n)
	total := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !since.IsZero() {
			if ts := lineTime(line); !ts.IsZero() && ts.Before(since) {
				continue
			}
		}
		ring[total%n] = line
		total++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading log file: %w", err)
	}

	count, start := total, 0
	if total > n {
		count, start = n, total%n
	}
	for i := range count {
		fmt.Println(ring[(start+i)%n])
	}
	return nil
}

// tailFile streams lines appended to path until interrupted. A shrinking
// file means rotation or truncation, so the offset resets to the top.
func tailFile(path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch log file: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("failed to seek to end of log file: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "Following %s (Ctrl+C to stop)...\n", path)

	reader := bufio.NewReader(f)
	var partial strings.Builder

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) {
				continue
			}

			if st, err := os.Stat(path); err == nil && st.Size() < offset {
				if offset, err = f.Seek(0, io.SeekStart); err != nil {
					return fmt.Errorf("failed to rewind log file: %w", err)
				}
				reader.Reset(f)
				partial.Reset()
			}

			for {
				chunk, err := reader.ReadString('\n')
				offset += int64(len(chunk))
				if err != nil {
					// Writer is mid-line; keep the fragment for the next event.
					partial.WriteString(chunk)
					break
				}
				if partial.Len() > 0 {
					fmt.Print(partial.String())
					partial.Reset()
				}
				fmt.Print(chunk)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}

// lineTime extracts a timestamp from a log line. It understands the JSON
// "time" field emitted by the JSON handler and RFC3339 prefixes from the
// text handler; anything else yields the zero time.
func lineTime(line string) time.Time {
	const key = `"time":"`
	if i := strings.Index(line, key); i >= 0 {
		rest := line[i+len(key):]
		if j := strings.IndexByte(rest, '"'); j > 0 {
			if t, err := time.Parse(time.RFC3339Nano, rest[:j]); err == nil {
				return t
			}
		}
	}
	for _, width := range []int{25, 20} {
		if len(line) >= width {
			if t, err := time.Parse(time.RFC3339, line[:width]); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}
