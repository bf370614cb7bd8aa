package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"

	"hotbft/libs/metric"
	"hotbft/libs/utils"
	nm "hotbft/node"
	"hotbft/types"
)

var (
	runDuration time.Duration
	cmdRate     int
)

// RunLocalCmd 在一个进程里运行init生成的本地集群，结束时打印统计信息
var RunLocalCmd = &cobra.Command{
	Use:     "run-local",
	Aliases: []string{"run_local"},
	Short:   "Run an in-process cluster created by init --validators",
	PreRun:  deprecateSnakeCase,
	RunE:    runLocal,
}

func init() {
	RunLocalCmd.Flags().IntVar(&numValidators, "validators", 4, "本地集群的节点数")
	RunLocalCmd.Flags().DurationVar(&runDuration, "duration", 10*time.Second, "运行时间")
	RunLocalCmd.Flags().IntVar(&cmdRate, "rate", 100, "每秒提交的命令数")
}

func runLocal(cmd *cobra.Command, args []string) error {
	if numValidators < 1 {
		return fmt.Errorf("validators must be positive, got %d", numValidators)
	}
	if cmdRate <= 0 {
		return fmt.Errorf("rate must be positive, got %d", cmdRate)
	}

	network := nm.NewLocalNetwork()
	network.SetLogger(rootLogger.With("module", "network"))

	nodes := make([]*nm.Node, numValidators)
	for i := range nodes {
		conf := config
		if numValidators > 1 {
			conf = nodeConfig(config, i)
		}
		if !tmos.FileExists(conf.PrivValidatorKeyFile()) {
			return fmt.Errorf("%s does not exist, run `init --validators %d` first", conf.PrivValidatorKeyFile(), numValidators)
		}
		n, err := nm.DefaultNewNode(conf, network, rootLogger.With("node", i))
		if err != nil {
			return fmt.Errorf("failed to create node%d: %w", i, err)
		}
		nodes[i] = n
	}

	for i, n := range nodes {
		if err := n.Start(); err != nil {
			stopNodes(nodes[:i])
			return fmt.Errorf("failed to start node%d: %w", i, err)
		}
	}

	// Stop upon receiving SIGTERM or CTRL-C.
	tmos.TrapSignal(logger, func() {
		stopNodes(nodes)
	})

	sent := submitCommands(nodes, runDuration, cmdRate)
	stopNodes(nodes)

	printStats(nodes, sent)
	return nil
}

// submitCommands 客户端把每个命令发给所有节点
func submitCommands(nodes []*nm.Node, duration time.Duration, rate int) int {
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()
	deadline := time.After(duration)

	sent := 0
	for {
		select {
		case <-deadline:
			return sent
		case <-ticker.C:
			command := types.Command(fmt.Sprintf("key%d=value%d", sent, sent))
			for _, n := range nodes {
				if err := n.AddCommand(command); err != nil {
					logger.Debug("failed to add command", "node", n.NodeInfo().Moniker, "err", err)
				}
			}
			sent++
		}
	}
}

func stopNodes(nodes []*nm.Node) {
	for _, n := range nodes {
		if !n.IsRunning() {
			continue
		}
		if err := n.Stop(); err != nil {
			logger.Error("failed to stop node", "node", n.NodeInfo().Moniker, "err", err)
			continue
		}
		n.Wait()
	}
}

func printStats(nodes []*nm.Node, sent int) {
	versions := make([]float64, len(nodes))

	fmt.Printf("%-8s %-10s %-10s %-10s %-8s\n", "node", "version", "proposals", "timeouts", "epoch")
	for i, n := range nodes {
		counters := n.Counters()
		versions[i] = float64(n.Ledger().CurrentVersion())
		fmt.Printf("%-8s %-10d %-10d %-10d %-8d\n",
			n.NodeInfo().Moniker,
			n.Ledger().CurrentVersion(),
			counters.Get(metric.ConsensusProposals),
			counters.Get(metric.ConsensusTimeout),
			counters.Get(metric.EpochManagerEpoch),
		)

		for label, value := range n.MetricSet().Snapshot() {
			logger.Debug("metric", "node", n.NodeInfo().Moniker, "label", label, "value", value)
		}
	}

	fmt.Printf("sent %d commands in %v\n", sent, runDuration)
	stats := utils.Summarize(versions)
	fmt.Printf("committed versions: max=%.0f min=%.0f avg=%.2f median=%.1f\n",
		stats.Max, stats.Min, stats.Avg, stats.Median)
	if secs := runDuration.Seconds(); secs > 0 {
		fmt.Printf("throughput: %.2f commands/s\n", stats.Min/secs)
	}
}
