package commands

import (
	"fmt"

	cfg "chaindpos/config"
	"chaindpos/privval"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"
	tmrand "github.com/tendermint/tendermint/libs/rand"
)

// InitFilesCmd 初始化单节点的开发网络：矿工私钥和只包含这些矿工的创世文件
var InitFilesCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a single node devnet",
	RunE:  initFiles,
}

func init() {
	InitFilesCmd.Flags().IntVar(&minerCount, "count", 1, "本地矿工数量")
	addGenesisFlags(InitFilesCmd)
}

func initFiles(cmd *cobra.Command, args []string) error {
	return initFilesWithConfig(config)
}

func initFilesWithConfig(config *cfg.Config) error {
	keyFile := config.MinerKeyFile()

	var pv *privval.FilePV
	var err error
	if tmos.FileExists(keyFile) {
		pv, err = privval.LoadFilePV(keyFile)
		if err != nil {
			return err
		}
		logger.Info("Found miner keys", "keyFile", keyFile)
	} else {
		pv = privval.GenFilePV(keyFile, minerCount)
		if err := pv.Save(); err != nil {
			return err
		}
		logger.Info("Generated miner keys", "keyFile", keyFile, "count", len(pv.Keys))
	}

	genFile := config.GenesisFile()
	if tmos.FileExists(genFile) {
		logger.Info("Found genesis file", "path", genFile)
		return nil
	}
	chainID = fmt.Sprintf("dpos-chain-%v", tmrand.Str(6))
	return saveGenesis(genFile, pv)
}
