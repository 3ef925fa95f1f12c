package rpc

import rpc "github.com/tendermint/tendermint/rpc/jsonrpc/server"

var Routes = map[string]*rpc.RPCFunc{
	// 轮次和状态
	"consensus_state": rpc.NewRPCFunc(ConsensusState, ""),
	"round":           rpc.NewRPCFunc(Round, "number"),
	"current_round":   rpc.NewRPCFunc(CurrentRound, ""),
	"term":            rpc.NewRPCFunc(FirstRoundOfTerm, "term"),
	"block":           rpc.NewRPCFunc(Block, "height"),

	// 出块
	"consensus_command": rpc.NewRPCFunc(ConsensusCommand, "pubkey"),
	"mining_health":     rpc.NewRPCFunc(MiningHealth, "height"),
	"miners":            rpc.NewRPCFunc(Miners, ""),

	// 随机数
	"request_random_number": rpc.NewRPCFunc(RequestRandomNumber, "requester"),
	"random_number":         rpc.NewRPCFunc(RandomNumber, "token"),

	"metrics": rpc.NewRPCFunc(JSONMetrics, "label"),
}
