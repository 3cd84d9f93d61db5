package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/triplexrpc/triplex/cmd/triplexctl/cmdutil"
	"github.com/triplexrpc/triplex/internal/cli/output"
)

var (
	pingTransport string
	pingCount     int
	pingInterval  time.Duration
	pingMessage   string
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure round-trip latency to a server",
	Long: `Send correlated ping requests and measure round-trip times.

Each probe is one request/response round-trip over the connected transport,
against the server's built-in "ping" command. Statistics are printed after
the final probe, or on interrupt.

Without --endpoint or a stored context, --transport picks the default
endpoint for that transport (ws://localhost:5000/ws, tcp://localhost:5003
or kcp://localhost:5004).

Examples:
  # Five probes over WebSocket
  triplexctl ping

  # Ten probes over raw TCP, back to back
  triplexctl ping --transport tcp --count 10 --interval 0

  # Probe an explicit endpoint
  triplexctl ping --endpoint kcp://10.0.0.5:5004 --kcp-key secret`,
	RunE: runPing,
}

func init() {
	pingCmd.Flags().StringVar(&pingTransport, "transport", "ws", "Transport for the default endpoint (ws|tcp|kcp)")
	pingCmd.Flags().IntVarP(&pingCount, "count", "c", 5, "Number of probes to send")
	pingCmd.Flags().DurationVarP(&pingInterval, "interval", "i", time.Second, "Delay between probes")
	pingCmd.Flags().StringVarP(&pingMessage, "message", "m", "hello", "Probe payload message")
}

// PingStats summarizes one ping run.
type PingStats struct {
	Endpoint string  `json:"endpoint" yaml:"endpoint"`
	Sent     int     `json:"sent" yaml:"sent"`
	Received int     `json:"received" yaml:"received"`
	LossPct  float64 `json:"loss_pct" yaml:"loss_pct"`
	MinMS    float64 `json:"min_ms,omitempty" yaml:"min_ms,omitempty"`
	AvgMS    float64 `json:"avg_ms,omitempty" yaml:"avg_ms,omitempty"`
	MaxMS    float64 `json:"max_ms,omitempty" yaml:"max_ms,omitempty"`
	StddevMS float64 `json:"stddev_ms,omitempty" yaml:"stddev_ms,omitempty"`
}

func runPing(cmd *cobra.Command, args []string) error {
	if pingCount < 1 {
		return fmt.Errorf("--count must be at least 1")
	}

	fallback, err := cmdutil.DefaultEndpointFor(pingTransport)
	if err != nil {
		return err
	}
	target, err := cmdutil.ResolveTarget(fallback)
	if err != nil {
		return err
	}

	cl, err := cmdutil.NewClient(target)
	if err != nil {
		return err
	}
	defer func() { _ = cl.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cl.Connect(ctx); err != nil {
		return err
	}

	fmt.Printf("PING %s (command \"ping\")\n", target.Endpoint)

	var (
		sent     int
		received int
		rtts     []time.Duration
	)

loop:
	for i := 1; i <= pingCount; i++ {
		start := time.Now()
		reply, err := cl.SendRequest(ctx, "ping", map[string]string{"message": pingMessage})
		rtt := time.Since(start)
		if ctx.Err() != nil {
			break
		}
		sent++

		if err != nil {
			fmt.Printf("seq=%d error: %v\n", i, err)
		} else {
			received++
			rtts = append(rtts, rtt)

			var pong struct {
				Message string `json:"message"`
			}
			_ = json.Unmarshal(reply.Data, &pong)
			fmt.Printf("seq=%d time=%s %s\n", i, rtt.Round(time.Microsecond), pong.Message)
		}

		if i < pingCount {
			select {
			case <-ctx.Done():
				break loop
			case <-time.After(pingInterval):
			}
		}
	}

	stats := computePingStats(target.Endpoint, sent, received, rtts)

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}
	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, stats)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, stats)
	default:
		return printPingStats(stats)
	}
}

// computePingStats derives loss and latency aggregates from the raw probes.
func computePingStats(endpoint string, sent, received int, rtts []time.Duration) PingStats {
	stats := PingStats{
		Endpoint: endpoint,
		Sent:     sent,
		Received: received,
	}
	if sent > 0 {
		stats.LossPct = float64(sent-received) / float64(sent) * 100
	}
	if len(rtts) == 0 {
		return stats
	}

	min, max := rtts[0], rtts[0]
	var sum time.Duration
	for _, rtt := range rtts {
		if rtt < min {
			min = rtt
		}
		if rtt > max {
			max = rtt
		}
		sum += rtt
	}
	avg := sum / time.Duration(len(rtts))

	var variance float64
	avgMS := durationMS(avg)
	for _, rtt := range rtts {
		d := durationMS(rtt) - avgMS
		variance += d * d
	}
	variance /= float64(len(rtts))

	stats.MinMS = durationMS(min)
	stats.AvgMS = avgMS
	stats.MaxMS = durationMS(max)
	stats.StddevMS = math.Sqrt(variance)
	return stats
}

func durationMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func printPingStats(stats PingStats) error {
	fmt.Printf("\n--- %s ping statistics ---\n", stats.Endpoint)

	table := output.NewTableData("SENT", "RECEIVED", "LOSS", "MIN", "AVG", "MAX", "STDDEV")
	table.AddRow(
		fmt.Sprintf("%d", stats.Sent),
		fmt.Sprintf("%d", stats.Received),
		fmt.Sprintf("%.1f%%", stats.LossPct),
		fmt.Sprintf("%.3fms", stats.MinMS),
		fmt.Sprintf("%.3fms", stats.AvgMS),
		fmt.Sprintf("%.3fms", stats.MaxMS),
		fmt.Sprintf("%.3fms", stats.StddevMS),
	)
	return output.PrintTable(os.Stdout, table)
}
