package commands

import (
	"fmt"

	"chaindpos/store"

	"github.com/spf13/cobra"
	tmjson "github.com/tendermint/tendermint/libs/json"
)

var roundNumber int64

// ShowRoundCmd 直接读取本地数据库中的轮次，节点运行时goleveldb会被锁住
var ShowRoundCmd = &cobra.Command{
	Use:     "show-round",
	Aliases: []string{"show_round"},
	Short:   "Show a round from the local consensus store",
	PreRun:  deprecateSnakeCase,
	RunE:    showRound,
}

func init() {
	ShowRoundCmd.Flags().Int64Var(&roundNumber, "number", 0, "轮次号，0表示当前轮次")
}

func showRound(cmd *cobra.Command, args []string) error {
	db, err := store.NewKVStore(config.DBName(), config.DBBackend, config.DBDir(),
		config.Consensus.RoundCacheSize, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	number := roundNumber
	if number == 0 {
		s, err := db.LoadState()
		if err != nil {
			return err
		}
		number = s.CurrentRoundNumber
	}
	round, err := db.GetRound(number)
	if err != nil {
		return err
	}
	bz, err := tmjson.MarshalIndent(round, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(bz))
	return nil
}
