package commands

import (
	"fmt"

	"chaindpos/privval"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"
)

var (
	seed       string
	indexes    []int
	minerCount int
)

// GenMinerKeyCmd 生成本地矿工的私钥文件
// 指定seed时按编号生成，和gen-genesis使用同一个seed即可得到创世文件里的矿工
var GenMinerKeyCmd = &cobra.Command{
	Use:     "gen-miner-key",
	Aliases: []string{"gen_miner_key"},
	Args:    cobra.NoArgs,
	Short:   "Generate private keys for the local miners",
	PreRun:  deprecateSnakeCase,
	RunE:    genMinerKey,
}

func init() {
	GenMinerKeyCmd.Flags().StringVar(&seed, "seed", "", "用来生成矿工密钥的种子，为空时随机生成")
	GenMinerKeyCmd.Flags().IntSliceVar(&indexes, "idx", []int{1}, "矿工的编号，影响由种子生成的私钥")
	GenMinerKeyCmd.Flags().IntVar(&minerCount, "count", 1, "随机生成的矿工数量")
}

func genMinerKey(cmd *cobra.Command, args []string) error {
	keyFile := config.MinerKeyFile()
	if tmos.FileExists(keyFile) {
		return fmt.Errorf("miner key at %s already exists", keyFile)
	}

	pv := newFilePV(keyFile)
	if err := pv.Save(); err != nil {
		return err
	}
	logger.Info("Generated miner keys", "keyFile", keyFile, "count", len(pv.Keys))
	for _, pk := range pv.PubKeys() {
		fmt.Println(pk)
	}
	return nil
}

func newFilePV(keyFile string) *privval.FilePV {
	if seed != "" {
		return privval.GenFilePVWithSeed(keyFile, seed, indexes...)
	}
	return privval.GenFilePV(keyFile, minerCount)
}
