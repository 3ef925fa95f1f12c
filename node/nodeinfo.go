package node

import (
	"chaindpos/types"

	jsoniter "github.com/json-iterator/go"
)

// Version 节点版本
const Version = "0.1.0"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// NodeInfo 节点的概况，作为node metric输出
type NodeInfo struct {
	Version string `json:"version"`
	Moniker string `json:"moniker"`
	ChainID string `json:"chain_id"`

	RPCAddress    []string `json:"rpc_address"`
	LocalMiners   []string `json:"local_miners"`
	ProducedBlock int64    `json:"local_produced_blocks"`

	LatestBlockHeight int64 `json:"latest_block_height"`
	CurrentRound      int64 `json:"current_round"`
	CurrentTerm       int64 `json:"current_term"`
}

func (n *Node) NodeInfo() (NodeInfo, error) {
	s, err := n.engine.GetState()
	if err != nil {
		return NodeInfo{}, err
	}
	info := NodeInfo{
		Version:           Version,
		Moniker:           n.config.Moniker,
		ChainID:           s.ChainID,
		RPCAddress:        n.RPCListenAddrs(),
		LocalMiners:       make([]string, 0, len(n.miners)),
		LatestBlockHeight: s.LatestBlockHeight,
		CurrentRound:      s.CurrentRoundNumber,
		CurrentTerm:       s.CurrentTermNumber,
	}
	for _, m := range n.miners {
		ms := m.GetMinerState()
		info.LocalMiners = append(info.LocalMiners, types.ShortKey(ms.Pubkey))
		info.ProducedBlock += ms.ProducedBlocks
	}
	return info, nil
}
