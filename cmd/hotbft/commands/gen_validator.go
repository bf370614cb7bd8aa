package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"

	"hotbft/privval"
)

var (
	seed int64
	idx  int
)

// GenValidatorCmd生成共识验证者的公私钥对
var GenValidatorCmd = &cobra.Command{
	Use:     "gen-validator",
	Aliases: []string{"gen_validator"},
	Args:    cobra.ArbitraryArgs,
	Short:   "Generate new validator keypair",
	PreRun:  deprecateSnakeCase,
	RunE:    genValidator,
}

func init() {
	GenValidatorCmd.Flags().Int64Var(&seed, "seed", 0, "随机数种子，0表示随机生成私钥")
	GenValidatorCmd.Flags().IntVar(&idx, "idx", 0, "共识节点的编号，和seed一起决定节点的私钥")
}

func genValidator(cmd *cobra.Command, args []string) error {
	privValKeyFile := config.PrivValidatorKeyFile()
	if tmos.FileExists(privValKeyFile) {
		logger.Info("Found private validator", "keyFile", privValKeyFile)
		return nil
	}

	pv, err := newFilePV(privValKeyFile, seed, idx)
	if err != nil {
		return err
	}
	if err := tmos.EnsureDir(filepath.Dir(privValKeyFile), 0700); err != nil {
		return err
	}
	if err := pv.Save(); err != nil {
		return err
	}

	jsbz, err := tmjson.Marshal(pv.Key)
	if err != nil {
		return err
	}
	fmt.Printf(`%v
`, string(jsbz))
	return nil
}

// newFilePV seed不为0时生成确定性的私钥
func newFilePV(keyFile string, seed int64, idx int) (*privval.FilePV, error) {
	if seed == 0 {
		return privval.GenFilePV(keyFile, config.KeyType)
	}
	return privval.GenFilePVWithSeed(keyFile, config.KeyType, seed, idx)
}
