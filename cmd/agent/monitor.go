package agent

import (
	"github.com/spf13/cobra"
)

func initMonitorFlags(root *cobra.Command) {
	f := root.PersistentFlags()

	f.Duration("monitor.interval", defaultCfg.Monitor.Interval, "-> Polling interval")
	f.Duration("monitor.connect-timeout", defaultCfg.Monitor.ConnectTimeout, "-> Device handshake timeout")
	f.Duration("monitor.request-timeout", defaultCfg.Monitor.RequestTimeout, "-> Per-request timeout on a live session")
	f.Int("monitor.max-concurrency", defaultCfg.Monitor.MaxConcurrency, "-> Max devices polled at once, 0 = unlimited")
	f.Bool("monitor.process-metrics", defaultCfg.Monitor.ProcessMetrics, "-> Expose process_* metrics")
}
