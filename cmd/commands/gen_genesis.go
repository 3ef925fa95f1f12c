package commands

import (
	"fmt"

	"chaindpos/privval"
	"chaindpos/types"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"
	tmtime "github.com/tendermint/tendermint/types/time"
)

var (
	chainID        string
	genesisMiners  int
	miningInterval int64
	periodSeconds  int64
	sideChain      bool
)

// GenGenesisCmd 由种子生成所有初始矿工的公钥，各节点再用gen-miner-key生成自己的私钥
var GenGenesisCmd = &cobra.Command{
	Use:     "gen-genesis",
	Aliases: []string{"gen_genesis"},
	Short:   "Generate a genesis file with the initial miners",
	PreRun:  deprecateSnakeCase,
	RunE:    genGenesisFile,
}

func init() {
	GenGenesisCmd.Flags().StringVar(&chainID, "chain-id", "dpos-chain", "链名")
	GenGenesisCmd.Flags().StringVar(&seed, "seed", "", "用来生成矿工密钥的种子")
	GenGenesisCmd.MarkFlagRequired("seed")
	GenGenesisCmd.Flags().IntVar(&genesisMiners, "miners", 3, "初始矿工数量，编号从1开始")
	addGenesisFlags(GenGenesisCmd)
}

func addGenesisFlags(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&miningInterval, "mining-interval", 4000, "出块间隔，毫秒")
	cmd.Flags().Int64Var(&periodSeconds, "period-seconds", 604800, "一届的时长，秒")
	cmd.Flags().BoolVar(&sideChain, "side-chain", false, "是否为侧链")
}

func genGenesisFile(cmd *cobra.Command, args []string) error {
	genFile := config.GenesisFile()
	if tmos.FileExists(genFile) {
		logger.Info("Found genesis file", "path", genFile)
		return nil
	}
	if genesisMiners < 1 {
		return fmt.Errorf("at least one miner is required, got %d", genesisMiners)
	}

	idx := make([]int, genesisMiners)
	for i := range idx {
		idx[i] = i + 1
	}
	pv := privval.GenFilePVWithSeed("", seed, idx...)
	return saveGenesis(genFile, pv)
}

func saveGenesis(genFile string, pv *privval.FilePV) error {
	genDoc := types.GenesisDoc{
		ChainID:        chainID,
		GenesisTime:    tmtime.Now(),
		MiningInterval: miningInterval,
		PeriodSeconds:  periodSeconds,
		IsMainChain:    !sideChain,
	}
	for _, key := range pv.Keys {
		genDoc.InitialMiners = append(genDoc.InitialMiners, types.GenesisMiner{PubKey: key.PubKey, Name: key.Name})
	}
	if err := genDoc.ValidateAndComplete(); err != nil {
		return err
	}
	if err := genDoc.SaveAs(genFile); err != nil {
		return err
	}
	logger.Info("Generated genesis file", "path", genFile, "miners", len(genDoc.InitialMiners))
	return nil
}
