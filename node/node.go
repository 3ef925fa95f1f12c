package node

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	cfg "chaindpos/config"
	"chaindpos/consensus"
	"chaindpos/election"
	"chaindpos/libs/metric"
	"chaindpos/privval"
	"chaindpos/rpc"
	"chaindpos/state"
	"chaindpos/store"
	"chaindpos/types"

	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	rpcserver "github.com/tendermint/tendermint/rpc/jsonrpc/server"
)

const nodeListenerID = "node"

type Provider func(*cfg.Config, log.Logger) (*Node, error)

// Node 单进程的出块节点：共识存储 + 共识引擎 + 本地矿工 + rpc
type Node struct {
	service.BaseService

	// config
	config *cfg.Config
	genDoc *types.GenesisDoc

	// service
	db        *store.KVStore
	election  *election.StaticElection
	engine    *consensus.Engine
	blockExec state.BlockExecutor
	miners    []*consensus.Miner
	metricSet *metric.MetricSet

	rpcListeners []net.Listener
}

type Option func(*Node)

// DefaultNewNode 从配置目录读取创世文件和矿工私钥
func DefaultNewNode(config *cfg.Config, logger log.Logger) (*Node, error) {
	genDoc, err := types.GenesisDocFromFile(config.GenesisFile())
	if err != nil {
		return nil, err
	}
	pv, err := privval.LoadFilePV(config.MinerKeyFile())
	if err != nil {
		return nil, err
	}
	return NewNode(config, genDoc, pv, logger)
}

func NewNode(config *cfg.Config, genDoc *types.GenesisDoc, pv *privval.FilePV,
	logger log.Logger, options ...Option) (*Node, error) {
	db, err := store.NewKVStore(config.DBName(), config.DBBackend, config.DBDir(),
		config.Consensus.RoundCacheSize, logger.With("module", "store"))
	if err != nil {
		return nil, fmt.Errorf("open consensus store: %w", err)
	}

	elec := election.NewStaticElection(genDoc.MinerList().Pubkeys)
	elec.SetLogger(logger.With("module", "election"))

	engine := consensus.NewEngine(config.Consensus, db, elec)
	engine.SetLogger(logger.With("module", "consensus"))
	// 已经初始化过的数据库直接从上次的状态继续
	if err := engine.InitialConsensus(genDoc); err != nil && !errors.Is(err, consensus.ErrAlreadyInitialized) {
		db.Close()
		return nil, err
	}

	blockExec := state.NewBlockExec(engine, db)
	blockExec.SetLogger(logger.With("module", "state"))

	kps, err := pv.KeyPairs()
	if err != nil {
		db.Close()
		return nil, err
	}
	minerLogger := logger.With("module", "miner")
	miners := make([]*consensus.Miner, len(kps))
	for i, kp := range kps {
		miners[i] = consensus.NewMiner(engine, blockExec, consensus.NewTriggerProvider(kp))
		miners[i].SetLogger(minerLogger.With("miner", types.ShortKey(kp.PubKeyHex())))
	}

	metricSet := metric.NewMetricSet()
	if err := metricSet.SetMetrics("consensus", engine.Metrics()); err != nil {
		db.Close()
		return nil, err
	}

	node := &Node{
		config:    config,
		genDoc:    genDoc,
		db:        db,
		election:  elec,
		engine:    engine,
		blockExec: blockExec,
		miners:    miners,
		metricSet: metricSet,
	}
	node.BaseService = *service.NewBaseService(logger, "Node", node)
	if err := metricSet.SetMetrics("node", metric.MetricFunc(node.metricJSON)); err != nil {
		db.Close()
		return nil, err
	}

	for _, option := range options {
		option(node)
	}
	return node, nil
}

func (n *Node) OnStart() error {
	evsw := n.engine.EventSwitch()
	if err := evsw.Start(); err != nil {
		return err
	}
	n.subscribeEvents(evsw)

	listeners, err := n.startRPC()
	if err != nil {
		return err
	}
	n.rpcListeners = listeners

	for _, m := range n.miners {
		if err := m.Start(); err != nil {
			return err
		}
	}
	n.Logger.Info("node started", "chain", n.genDoc.ChainID, "miners", len(n.miners))
	return nil
}

func (n *Node) OnStop() {
	for _, m := range n.miners {
		if err := m.Stop(); err != nil {
			n.Logger.Error("error stopping miner", "err", err)
		}
	}
	for _, l := range n.rpcListeners {
		n.Logger.Info("Closing rpc listener", "listener", l)
		if err := l.Close(); err != nil {
			n.Logger.Error("error closing listener", "listener", l, "err", err)
		}
	}
	evsw := n.engine.EventSwitch()
	evsw.RemoveListener(nodeListenerID)
	if err := evsw.Stop(); err != nil {
		n.Logger.Error("error stopping event switch", "err", err)
	}
	n.Logger.Info("final metrics", "metrics", rpc.MetricsSummary())
	if err := n.db.Close(); err != nil {
		n.Logger.Error("error closing store", "err", err)
	}
}

// subscribeEvents 把LIB和矿工替换等事件写入日志
func (n *Node) subscribeEvents(evsw events.EventSwitch) {
	logger := n.Logger.With("module", "events")
	listeners := map[string]events.EventCallback{
		consensus.EventIrreversibleBlockFound: func(data events.EventData) {
			found := data.(consensus.IrreversibleBlockFound)
			logger.Info("irreversible block found", "height", found.IrreversibleBlockHeight, "round", found.RoundNumber)
		},
		consensus.EventIrreversibleBlockHeightUnacceptable: func(data events.EventData) {
			logger.Error("irreversible block height unacceptable", "distance",
				data.(consensus.IrreversibleBlockHeightUnacceptable).Distance)
		},
		consensus.EventMinerReplaced: func(data events.EventData) {
			replaced := data.(consensus.MinerReplaced)
			logger.Info("miner replaced", "new", types.ShortKey(replaced.NewMiner), "old", types.ShortKey(replaced.OldMiner))
		},
		consensus.EventEvilMinerDetected: func(data events.EventData) {
			evil := data.(consensus.EvilMinerDetected)
			logger.Error("evil miner detected", "miner", types.ShortKey(evil.Pubkey), "round", evil.RoundNumber)
		},
		consensus.EventNewTermCommitted: func(data events.EventData) {
			term := data.(consensus.NewTermCommitted)
			logger.Info("new term", "term", term.TermNumber, "round", term.RoundNumber, "miners", term.Miners)
		},
	}
	for event, cb := range listeners {
		if err := evsw.AddListenerForEvent(nodeListenerID, event, cb); err != nil {
			logger.Error("failed to subscribe", "event", event, "err", err)
		}
	}
}

func (n *Node) startRPC() ([]net.Listener, error) {
	listenAddrs := splitAndTrimEmpty(n.config.RPC.ListenAddress, ",", " ")

	rpc.SetEnvironment(&rpc.Environment{
		Engine:    n.engine,
		BlockExec: n.blockExec,
		Store:     n.db,
		Miners:    n.miners,
		MetricSet: n.metricSet,
	})

	config := rpcserver.DefaultConfig()
	config.MaxBodyBytes = n.config.RPC.MaxBodyBytes
	config.MaxHeaderBytes = n.config.RPC.MaxHeaderBytes
	config.MaxOpenConnections = n.config.RPC.MaxOpenConnections

	listeners := make([]net.Listener, len(listenAddrs))
	for i, listenAddr := range listenAddrs {
		mux := http.NewServeMux()
		rpcLogger := n.Logger.With("module", "rpc-server")
		wm := rpcserver.NewWebsocketManager(rpc.Routes)
		wm.SetLogger(rpcLogger.With("protocol", "websocket"))
		mux.HandleFunc("/websocket", wm.WebsocketHandler)
		rpcserver.RegisterRPCFuncs(mux, rpc.Routes, rpcLogger)

		listener, err := rpcserver.Listen(listenAddr, config)
		if err != nil {
			return nil, err
		}
		go func() {
			if err := rpcserver.Serve(listener, mux, rpcLogger, config); err != nil {
				n.Logger.Error("Error serving server", "err", err)
			}
		}()
		listeners[i] = listener
	}
	return listeners, nil
}

func (n *Node) metricJSON() string {
	info, err := n.NodeInfo()
	if err != nil {
		return "{}"
	}
	s, err := json.MarshalToString(info)
	if err != nil {
		return "{}"
	}
	return s
}

func (n *Node) Engine() *consensus.Engine {
	return n.engine
}

func (n *Node) Miners() []*consensus.Miner {
	return n.miners
}

func (n *Node) GenesisDoc() *types.GenesisDoc {
	return n.genDoc
}

// RPCListenAddrs 实际监听的地址，端口为0时由系统分配
func (n *Node) RPCListenAddrs() []string {
	addrs := make([]string, len(n.rpcListeners))
	for i, l := range n.rpcListeners {
		addrs[i] = l.Addr().String()
	}
	return addrs
}

// splitAndTrimEmpty slices s into all subslices separated by sep and returns a
// slice of the string s with all leading and trailing Unicode code points
// contained in cutset removed. If sep is empty, SplitAndTrim splits after each
// UTF-8 sequence. First part is equivalent to strings.SplitN with a count of
// -1.  also filter out empty strings, only return non-empty strings.
func splitAndTrimEmpty(s, sep, cutset string) []string {
	if s == "" {
		return []string{}
	}

	spl := strings.Split(s, sep)
	nonEmptyStrings := make([]string, 0, len(spl))
	for i := 0; i < len(spl); i++ {
		element := strings.Trim(spl[i], cutset)
		if element != "" {
			nonEmptyStrings = append(nonEmptyStrings, element)
		}
	}
	return nonEmptyStrings
}
