package types

import (
	"fmt"
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/tempfile"
	tmtime "github.com/tendermint/tendermint/types/time"
)

const (
	MaxChainIDLen = 50
)

// GenesisMiner 初始矿工
type GenesisMiner struct {
	PubKey string `json:"pub_key"`
	Name   string `json:"name"`
}

// GenesisDoc 链的初始配置
type GenesisDoc struct {
	ChainID     string    `json:"chain_id"`
	GenesisTime time.Time `json:"genesis_time"`

	// 毫秒
	MiningInterval int64 `json:"mining_interval"`
	// 一届的时长，单位秒
	PeriodSeconds int64 `json:"period_seconds"`
	IsMainChain   bool  `json:"is_main_chain"`

	InitialMiners []GenesisMiner `json:"initial_miners"`
}

func (genDoc *GenesisDoc) MinerList() MinerList {
	keys := make([]string, len(genDoc.InitialMiners))
	for i, m := range genDoc.InitialMiners {
		keys[i] = m.PubKey
	}
	return NewMinerList(keys)
}

// FirstRound 创世时的第一轮：第1届第1轮
func (genDoc *GenesisDoc) FirstRound() *Round {
	return genDoc.MinerList().GenerateFirstRoundOfNewTerm(genDoc.MiningInterval, genDoc.GenesisTime, 0, 0)
}

func (genDoc *GenesisDoc) ValidateAndComplete() error {
	if genDoc.ChainID == "" {
		return errors.New("genesis doc must include non-empty chain_id")
	}
	if len(genDoc.ChainID) > MaxChainIDLen {
		return fmt.Errorf("chain_id in genesis doc is too long (max: %d)", MaxChainIDLen)
	}
	if len(genDoc.InitialMiners) == 0 {
		return errors.New("genesis doc must include at least one miner")
	}
	if genDoc.MinerList().Len() != len(genDoc.InitialMiners) {
		return errors.New("genesis doc contains duplicated or empty miner pubkeys")
	}
	if genDoc.MiningInterval <= 0 {
		return fmt.Errorf("mining_interval must be positive, got %d", genDoc.MiningInterval)
	}
	if genDoc.PeriodSeconds <= 0 {
		return fmt.Errorf("period_seconds must be positive, got %d", genDoc.PeriodSeconds)
	}
	if genDoc.GenesisTime.IsZero() {
		genDoc.GenesisTime = tmtime.Now()
	}
	return nil
}

// SaveAs 原子写入文件
func (genDoc *GenesisDoc) SaveAs(file string) error {
	genDocBytes, err := tmjson.MarshalIndent(genDoc, "", "  ")
	if err != nil {
		return err
	}
	return tempfile.WriteFileAtomic(file, genDocBytes, 0644)
}

func GenesisDocFromJSON(jsonBlob []byte) (*GenesisDoc, error) {
	genDoc := GenesisDoc{}
	if err := tmjson.Unmarshal(jsonBlob, &genDoc); err != nil {
		return nil, err
	}
	if err := genDoc.ValidateAndComplete(); err != nil {
		return nil, err
	}
	return &genDoc, nil
}

func GenesisDocFromFile(genDocFile string) (*GenesisDoc, error) {
	jsonBlob, err := ioutil.ReadFile(genDocFile)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't read GenesisDoc file")
	}
	genDoc, err := GenesisDocFromJSON(jsonBlob)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("error reading GenesisDoc at %v", genDocFile))
	}
	return genDoc, nil
}
