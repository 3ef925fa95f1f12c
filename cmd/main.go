package main

import (
	"os"
	"path/filepath"

	cmd "chaindpos/cmd/commands"
	cfg "chaindpos/config"
	nm "chaindpos/node"

	"github.com/tendermint/tendermint/libs/cli"
)

func main() {
	rootCmd := cmd.RootCmd
	rootCmd.AddCommand(
		cmd.InitFilesCmd,
		cmd.GenMinerKeyCmd,
		cmd.GenGenesisCmd,
		cmd.ShowRoundCmd,
		cmd.VersionCmd,
		cli.NewCompletionCmd(rootCmd, true),
	)

	// 自定义节点时可以替换DefaultNewNode，例如使用其他的存储或选举实现
	nodeFunc := nm.DefaultNewNode

	// Create & start node
	rootCmd.AddCommand(cmd.NewRunNodeCmd(nodeFunc))

	cmd := cli.PrepareBaseCmd(rootCmd, "DPOS", os.ExpandEnv(filepath.Join("$HOME", cfg.DefaultDirName)))
	if err := cmd.Execute(); err != nil {
		panic(err)
	}
}
