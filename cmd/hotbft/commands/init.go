package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"
	tmrand "github.com/tendermint/tendermint/libs/rand"
	tmtime "github.com/tendermint/tendermint/types/time"

	cfg "hotbft/config"
	"hotbft/privval"
	"hotbft/types"
)

const rpcBasePort = 26657

var (
	numValidators int
	epochViews    int64
	chainID       string
)

// InitFilesCmd 初始化一个节点，或者在home下初始化n个节点的本地集群
var InitFilesCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize validator keys, genesis and config",
	RunE:  initFiles,
}

func init() {
	InitFilesCmd.Flags().IntVar(&numValidators, "validators", 1, "验证者个数，大于1时在home/node{i}下生成每个节点的文件")
	InitFilesCmd.Flags().Int64Var(&seed, "seed", 0, "用来生成验证者私钥的种子，0表示随机生成")
	InitFilesCmd.Flags().Int64Var(&epochViews, "epoch-views", 0, "每个epoch的view数，0表示不切换epoch")
	InitFilesCmd.Flags().StringVar(&chainID, "chain-id", "", "链名，不指定则随机生成")
}

func initFiles(cmd *cobra.Command, args []string) error {
	if numValidators < 1 {
		return fmt.Errorf("validators must be positive, got %d", numValidators)
	}
	if numValidators == 1 {
		return initFilesWithConfig([]*cfg.Config{config})
	}

	confs := make([]*cfg.Config, numValidators)
	for i := range confs {
		confs[i] = nodeConfig(config, i)
	}
	return initFilesWithConfig(confs)
}

// nodeConfig 本地集群第i个节点的配置
func nodeConfig(base *cfg.Config, i int) *cfg.Config {
	conf := *base
	conf.SetRoot(filepath.Join(base.RootDir, fmt.Sprintf("node%d", i)))
	conf.Moniker = fmt.Sprintf("node%d", i)

	// 同一台机器上的节点使用不同的端口
	rpcConfig := *base.RPC
	if rpcConfig.IsEnabled() {
		rpcConfig.ListenAddress = fmt.Sprintf("tcp://127.0.0.1:%d", rpcBasePort+i)
	}
	conf.RPC = &rpcConfig
	return &conf
}

func initFilesWithConfig(confs []*cfg.Config) error {
	pvs := make([]*privval.FilePV, len(confs))
	for i, conf := range confs {
		if err := tmos.EnsureDir(filepath.Join(conf.RootDir, "config"), 0700); err != nil {
			return err
		}

		// private validator
		privValKeyFile := conf.PrivValidatorKeyFile()
		if tmos.FileExists(privValKeyFile) {
			pv, err := privval.LoadFilePV(privValKeyFile)
			if err != nil {
				return err
			}
			pvs[i] = pv
			logger.Info("Found private validator", "keyFile", privValKeyFile)
		} else {
			pv, err := newFilePV(privValKeyFile, seed, i)
			if err != nil {
				return err
			}
			if err := pv.Save(); err != nil {
				return err
			}
			pvs[i] = pv
			logger.Info("Generated private validator", "keyFile", privValKeyFile)
		}

		if tmos.FileExists(conf.ConfigFile()) {
			logger.Info("Found config file", "path", conf.ConfigFile())
		} else {
			if err := cfg.WriteConfigFile(conf); err != nil {
				return err
			}
			logger.Info("Generated config file", "path", conf.ConfigFile())
		}
	}

	if chainID == "" {
		chainID = fmt.Sprintf("test-chain-%v", tmrand.Str(6))
	}
	genDoc := types.GenesisDoc{
		ChainID:     chainID,
		GenesisTime: tmtime.Now(),
		EpochViews:  epochViews,
	}
	for i, pv := range pvs {
		pubKey, err := pv.GetPubKey()
		if err != nil {
			return fmt.Errorf("can't get pubkey: %w", err)
		}
		genDoc.Validators = append(genDoc.Validators, types.GenesisValidator{
			Address: pubKey.Address(),
			PubKey:  pubKey,
			Power:   10,
			Name:    fmt.Sprintf("validator-%v", i),
		})
	}
	if err := genDoc.ValidateAndComplete(); err != nil {
		return err
	}

	// genesis file
	for _, conf := range confs {
		genFile := conf.GenesisFile()
		if tmos.FileExists(genFile) {
			logger.Info("Found genesis file", "path", genFile)
			continue
		}
		if err := genDoc.SaveAs(genFile); err != nil {
			return err
		}
		logger.Info("Generated genesis file", "path", genFile)
	}

	return nil
}
