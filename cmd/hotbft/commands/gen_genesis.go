package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"
	tmtime "github.com/tendermint/tendermint/types/time"

	"hotbft/privval"
	"hotbft/types"
)

var clusterCount int

// GenGenesisCmd 用种子确定性地生成整个集群的genesis，
// 和 gen-validator --seed --idx 生成的私钥对应
var GenGenesisCmd = &cobra.Command{
	Use:     "gen-genesis",
	Aliases: []string{"gen_genesis"},
	Short:   "Generate a genesis file for cluster",
	PreRun:  deprecateSnakeCase,
	RunE:    genGenesisFile,
}

func init() {
	GenGenesisCmd.Flags().StringVar(&chainID, "chain-id", "", "链名，不指定则使用test-chain")
	GenGenesisCmd.Flags().Int64Var(&seed, "seed", 1, "用来生成集群密钥的种子")
	_ = GenGenesisCmd.MarkFlagRequired("seed")
	GenGenesisCmd.Flags().IntVar(&clusterCount, "cluster-count", 4, "集群中验证者的个数")
	GenGenesisCmd.Flags().Int64Var(&epochViews, "epoch-views", 0, "每个epoch的view数，0表示不切换epoch")
}

func genGenesisFile(cmd *cobra.Command, args []string) error {
	// genesis file
	genFile := config.GenesisFile()
	if tmos.FileExists(genFile) {
		logger.Info("Found genesis file. exit.", "path", genFile)
		return nil
	}
	if seed == 0 {
		return fmt.Errorf("seed must not be 0")
	}
	if chainID == "" {
		chainID = "test-chain"
	}

	// 为每一个验证者生成公钥
	valList := make([]types.GenesisValidator, clusterCount)
	for id := 0; id < clusterCount; id++ {
		pv, err := privval.GenFilePVWithSeed("", config.KeyType, seed, id)
		if err != nil {
			return err
		}
		pub, err := pv.GetPubKey()
		if err != nil {
			return err
		}
		valList[id] = types.GenesisValidator{
			Address: pub.Address(),
			PubKey:  pub,
			Power:   10,
			Name:    fmt.Sprintf("validator-%v", id),
		}
	}

	genDoc := types.GenesisDoc{
		ChainID:     chainID,
		GenesisTime: tmtime.Now(),
		Validators:  valList,
		EpochViews:  epochViews,
	}
	if err := genDoc.ValidateAndComplete(); err != nil {
		return err
	}
	if err := tmos.EnsureDir(filepath.Dir(genFile), 0700); err != nil {
		return err
	}
	if err := genDoc.SaveAs(genFile); err != nil {
		return err
	}
	logger.Info("Generated genesis file", "path", genFile)

	return nil
}
