package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	rpcclient "github.com/tendermint/tendermint/rpc/jsonrpc/client"

	"hotbft/rpc"
	"hotbft/tools/bench"
)

var (
	benchTarget      string
	benchConnections int
	benchKeys        int
)

// BenchCmd 通过websocket向一个节点发送命令，结束时打印节点的状态
var BenchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Send commands to a running node over websocket",
	RunE:  runBench,
}

func init() {
	BenchCmd.Flags().StringVar(&benchTarget, "target", "127.0.0.1:26657", "节点rpc地址")
	BenchCmd.Flags().IntVar(&benchConnections, "connections", 1, "websocket连接数")
	BenchCmd.Flags().IntVar(&benchKeys, "keys", 1000, "命令中key的取值范围")
	BenchCmd.Flags().IntVar(&cmdRate, "rate", 100, "每个连接每秒发送的命令数")
	BenchCmd.Flags().DurationVar(&runDuration, "duration", 10*time.Second, "运行时间")
}

func runBench(cmd *cobra.Command, args []string) error {
	if benchConnections <= 0 || cmdRate <= 0 || benchKeys <= 0 {
		return fmt.Errorf("connections, rate and keys must be positive")
	}

	before, err := nodeStatus(benchTarget)
	if err != nil {
		return err
	}

	transacter := bench.NewTransacter(benchTarget, benchConnections, cmdRate, benchKeys, bench.DefaultMethod)
	transacter.SetLogger(logger)
	if err := transacter.Start(); err != nil {
		return err
	}
	time.Sleep(runDuration)
	transacter.Stop()

	after, err := nodeStatus(benchTarget)
	if err != nil {
		return err
	}

	committed := after.LastCommitted.StateVersion - before.LastCommitted.StateVersion
	fmt.Printf("sent %d commands to %s in %v\n", transacter.Sent(), after.Moniker, runDuration)
	fmt.Printf("committed %d commands, %.2f commands/s, %d timeouts\n",
		committed, float64(committed)/runDuration.Seconds(), after.Timeouts-before.Timeouts)
	return nil
}

func nodeStatus(target string) (*rpc.ResultStatus, error) {
	c, err := rpcclient.New("tcp://" + target)
	if err != nil {
		return nil, err
	}
	status := new(rpc.ResultStatus)
	if _, err := c.Call(context.Background(), "status", map[string]interface{}{}, status); err != nil {
		return nil, fmt.Errorf("failed to get status from %s: %w", target, err)
	}
	return status, nil
}
