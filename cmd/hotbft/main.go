package main

import (
	"os"
	"path/filepath"

	"github.com/tendermint/tendermint/libs/cli"

	cmd "hotbft/cmd/hotbft/commands"
	cfg "hotbft/config"
)

func main() {
	rootCmd := cmd.RootCmd
	rootCmd.AddCommand(
		cmd.InitFilesCmd,
		cmd.GenValidatorCmd,
		cmd.ShowValidatorCmd,
		cmd.GenGenesisCmd,
		cmd.RunLocalCmd,
		cmd.BenchCmd,
		cli.NewCompletionCmd(rootCmd, true),
	)

	cmd := cli.PrepareBaseCmd(rootCmd, cfg.EnvPrefix, os.ExpandEnv(filepath.Join("$HOME", cfg.DefaultDir)))
	if err := cmd.Execute(); err != nil {
		panic(err)
	}
}
