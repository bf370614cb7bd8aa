package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-kit/kit/log/term"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tendermint/tendermint/libs/cli"
	"github.com/tendermint/tendermint/libs/log"

	cfg "hotbft/config"
)

var (
	config = cfg.DefaultConfig()

	// 不带module的logger，交给各个节点使用
	rootLogger = newLogger(log.AllowInfo())
	logger     = rootLogger.With("module", "main")
)

func init() {
	registerFlagsRootCmd(RootCmd)
}

func registerFlagsRootCmd(cmd *cobra.Command) {
	cmd.PersistentFlags().String("log_level", config.LogLevel, "log level")
}

// ParseConfig 读取home下的配置文件、环境变量和命令行参数
func ParseConfig() (*cfg.Config, error) {
	conf, err := cfg.LoadConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}
	return conf, nil
}

// logColorFn error日志标红，run-local中不同节点的日志使用不同颜色
func logColorFn(keyvals ...interface{}) term.FgBgColor {
	for i := 0; i < len(keyvals)-1; i += 2 {
		switch fmt.Sprint(keyvals[i]) {
		case "level":
			if fmt.Sprint(keyvals[i+1]) == "error" {
				return term.FgBgColor{Fg: term.Red}
			}
		case "node":
			if idx, ok := keyvals[i+1].(int); ok {
				return term.FgBgColor{Fg: term.Color(uint8(idx%7 + 2))}
			}
		}
	}
	return term.FgBgColor{}
}

func newLogger(option log.Option) log.Logger {
	return log.NewFilter(log.NewTMLoggerWithColorFn(log.NewSyncWriter(os.Stdout), logColorFn), option)
}

// RootCmd is the root command for hotbft.
var RootCmd = &cobra.Command{
	Use:   "hotbft",
	Short: "HotStuff style BFT state machine replication",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
		config, err = ParseConfig()
		if err != nil {
			return err
		}

		option, err := log.AllowLevel(config.LogLevel)
		if err != nil {
			return err
		}
		rootLogger = newLogger(option)
		if viper.GetBool(cli.TraceFlag) {
			rootLogger = log.NewTracingLogger(rootLogger)
		}

		logger = rootLogger.With("module", "main")
		return nil
	},
}

// deprecateSnakeCase is a util function for 0.34.1. Should be removed in 0.35
func deprecateSnakeCase(cmd *cobra.Command, args []string) {
	if strings.Contains(cmd.CalledAs(), "_") {
		fmt.Println("Deprecated: snake_case commands will be replaced by hyphen-case commands in the next major release")
	}
}
