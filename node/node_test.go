package node

import (
	"os"
	"testing"
	"time"

	cfg "chaindpos/config"
	"chaindpos/privval"
	"chaindpos/types"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tmcfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/log"
)

func newTestNode(t *testing.T) (*Node, func()) {
	root := tmcfg.ResetTestRoot("node_test").RootDir
	config := cfg.TestConfig().SetRoot(root)
	config.RPC.ListenAddress = "tcp://127.0.0.1:0"

	pv := privval.GenFilePVWithSeed(config.MinerKeyFile(), "node_test", 1, 2, 3)
	require.NoError(t, pv.Save())

	genDoc := &types.GenesisDoc{
		ChainID:        "node_test",
		GenesisTime:    time.Now(),
		MiningInterval: 300,
		PeriodSeconds:  604800,
		IsMainChain:    true,
	}
	for _, pk := range pv.PubKeys() {
		genDoc.InitialMiners = append(genDoc.InitialMiners, types.GenesisMiner{PubKey: pk})
	}
	require.NoError(t, genDoc.SaveAs(config.GenesisFile()))

	n, err := DefaultNewNode(config, log.TestingLogger())
	require.NoError(t, err)
	return n, func() { os.RemoveAll(root) }
}

func TestNodeStartStop(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	n, clean := newTestNode(t)
	defer clean()

	require.NoError(t, n.Start())
	require.Len(t, n.RPCListenAddrs(), 1)
	require.Len(t, n.Miners(), 3)

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		round, err := n.Engine().GetCurrentRound()
		require.NoError(t, err)
		if round.RoundNumber >= 3 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	info, err := n.NodeInfo()
	require.NoError(t, err)
	assert.Equal(t, "node_test", info.ChainID)
	assert.GreaterOrEqual(t, info.CurrentRound, int64(3), "本地矿工应当推进轮次")
	assert.Len(t, info.LocalMiners, 3)
	assert.Greater(t, info.ProducedBlock, int64(0))
	assert.Contains(t, n.metricSet.GetMetrics("node").JSONString(), `"chain_id":"node_test"`)

	require.NoError(t, n.Stop())
}

func TestDefaultNewNode_MissingFiles(t *testing.T) {
	root := tmcfg.ResetTestRoot("node_test_missing").RootDir
	defer os.RemoveAll(root)
	config := cfg.TestConfig().SetRoot(root)

	// ResetTestRoot写入的是tendermint格式的创世文件
	_, err := DefaultNewNode(config, log.TestingLogger())
	assert.Error(t, err)
}

func TestSplitAndTrimEmpty(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitAndTrimEmpty(" a, ,b ", ",", " "))
	assert.Empty(t, splitAndTrimEmpty("", ",", " "))
}
