package store

import (
	"bytes"
	"fmt"
	"strconv"
	"sync"

	"chaindpos/state"
	"chaindpos/types"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/log"
	tmdb "github.com/tendermint/tm-db"
	leveldb "github.com/tendermint/tm-db/goleveldb"
	"github.com/tendermint/tm-db/memdb"
)

const (
	tableState        = "state"
	tableRound        = "round:"
	tableTerm         = "term:"
	tableMinedMiners  = "mined:"
	tableRandom       = "random:"
	tableRandomRound  = "random_round:"
	tableBlock        = "block:"
	defaultCacheSize  = 64
	backendGoLevelDB  = "goleveldb"
	backendMemDB      = "memdb"
	stateSingletonKey = ""
)

var _ state.Store = (*KVStore)(nil)

// NewKVStore 在dir下打开名为name的数据库
func NewKVStore(name, backend, dir string, cacheSize int, logger log.Logger) (*KVStore, error) {
	var db tmdb.DB
	switch backend {
	case "", backendGoLevelDB:
		levelDB, err := leveldb.NewDB(name, dir)
		if err != nil {
			return nil, errors.Wrapf(err, "open goleveldb %s/%s", dir, name)
		}
		db = levelDB
	case backendMemDB:
		db = memdb.NewDB()
	default:
		return nil, fmt.Errorf("unsupported db backend %q", backend)
	}
	return NewKVStoreWithDB(db, cacheSize, logger), nil
}

// NewMemKVStore 内存数据库，测试用
func NewMemKVStore(logger log.Logger) *KVStore {
	return NewKVStoreWithDB(memdb.NewDB(), defaultCacheSize, logger)
}

func NewKVStoreWithDB(kvdb tmdb.DB, cacheSize int, logger log.Logger) *KVStore {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	// 只有size<=0时才会出错
	cache, _ := lru.New(cacheSize)
	return &KVStore{kvDB: kvdb, logger: logger, rounds: cache}
}

// KVStore 基于tm-db的共识存储
// 表结构：
// state: 单例字段
// round:{n}: 轮次信息
// term:{t}: 第t届的第一轮
// mined:{n}: 第n轮出过块的矿工
// random:{token}: 随机数请求；random_round:{n}: 第n轮登记的请求凭证
// block:{h}: 区块
type KVStore struct {
	mtx  sync.RWMutex
	kvDB tmdb.DB

	// 解码后的轮次缓存
	rounds *lru.Cache

	logger log.Logger
}

func (kv *KVStore) SetLogger(logger log.Logger) {
	kv.logger = logger
}

func (kv *KVStore) GetDB() tmdb.DB {
	return kv.kvDB
}

func (kv *KVStore) Close() error {
	kv.rounds.Purge()
	return kv.kvDB.Close()
}

// LoadState implements state.Store
func (kv *KVStore) LoadState() (state.State, error) {
	kv.mtx.RLock()
	defer kv.mtx.RUnlock()

	s := state.State{}
	found, err := kv.get(genKey(tableState, stateSingletonKey), &s)
	if err != nil {
		return s, err
	}
	if !found {
		return s, state.ErrStateNotFound
	}
	return s, nil
}

// GetRound implements state.Store
// 返回的是缓存的副本，调用方可以随意修改
func (kv *KVStore) GetRound(roundNumber int64) (*types.Round, error) {
	kv.mtx.RLock()
	defer kv.mtx.RUnlock()

	if cached, ok := kv.rounds.Get(roundNumber); ok {
		return cached.(*types.Round).Copy(), nil
	}

	round := &types.Round{}
	found, err := kv.get(genKey(tableRound, roundNumber), round)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrapf(state.ErrRoundNotFound, "round %d", roundNumber)
	}
	kv.rounds.Add(roundNumber, round)
	return round.Copy(), nil
}

// GetFirstRoundOfTerm implements state.Store
func (kv *KVStore) GetFirstRoundOfTerm(termNumber int64) (int64, error) {
	kv.mtx.RLock()
	defer kv.mtx.RUnlock()

	var roundNumber int64
	found, err := kv.get(genKey(tableTerm, termNumber), &roundNumber)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, errors.Wrapf(state.ErrTermNotFound, "term %d", termNumber)
	}
	return roundNumber, nil
}

// GetMinedMinerList implements state.Store
func (kv *KVStore) GetMinedMinerList(roundNumber int64) ([]string, error) {
	kv.mtx.RLock()
	defer kv.mtx.RUnlock()

	var pubkeys []string
	found, err := kv.get(genKey(tableMinedMiners, roundNumber), &pubkeys)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrapf(state.ErrMinedMinerListMissing, "round %d", roundNumber)
	}
	return pubkeys, nil
}

// GetRandomNumberRequest implements state.Store
func (kv *KVStore) GetRandomNumberRequest(token tmbytes.HexBytes) (*types.RandomNumberRequest, error) {
	kv.mtx.RLock()
	defer kv.mtx.RUnlock()

	req := &types.RandomNumberRequest{}
	found, err := kv.get(genKey(tableRandom, []byte(token)), req)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrapf(state.ErrRandomRequestNotFound, "token %v", token)
	}
	return req, nil
}

// GetRandomNumberTokens implements state.Store
func (kv *KVStore) GetRandomNumberTokens(roundNumber int64) ([]tmbytes.HexBytes, error) {
	kv.mtx.RLock()
	defer kv.mtx.RUnlock()

	var tokens []tmbytes.HexBytes
	if _, err := kv.get(genKey(tableRandomRound, roundNumber), &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// Commit implements state.Store
// 一个Batch里的所有写操作原子地写入数据库
func (kv *KVStore) Commit(b *state.Batch) error {
	kv.mtx.Lock()
	defer kv.mtx.Unlock()

	batch := kv.kvDB.NewBatch()
	defer batch.Close()

	if b.State != nil {
		if err := kv.set(batch, genKey(tableState, stateSingletonKey), b.State); err != nil {
			return err
		}
	}
	for _, round := range b.Rounds() {
		if err := kv.set(batch, genKey(tableRound, round.RoundNumber), round); err != nil {
			return err
		}
	}
	for _, n := range b.DeletedRounds() {
		if err := batch.Delete(genKey(tableRound, n)); err != nil {
			return err
		}
		if err := batch.Delete(genKey(tableMinedMiners, n)); err != nil {
			return err
		}
	}
	for term, roundNumber := range b.FirstRoundOfTerm {
		if err := kv.set(batch, genKey(tableTerm, term), roundNumber); err != nil {
			return err
		}
	}
	for roundNumber, pubkeys := range b.MinedMinerLists {
		if err := kv.set(batch, genKey(tableMinedMiners, roundNumber), pubkeys); err != nil {
			return err
		}
	}
	if err := kv.commitRandomRequests(batch, b); err != nil {
		return err
	}
	if b.Block != nil {
		if err := kv.set(batch, genKey(tableBlock, b.Block.Height), b.Block); err != nil {
			return err
		}
	}

	if err := batch.WriteSync(); err != nil {
		return errors.Wrap(err, "write batch")
	}

	// 写入成功后再更新缓存
	for _, round := range b.Rounds() {
		kv.rounds.Add(round.RoundNumber, round.Copy())
	}
	for _, n := range b.DeletedRounds() {
		kv.rounds.Remove(n)
	}
	kv.logger.Debug("commit consensus batch", "rounds", len(b.Rounds()), "pruned", len(b.DeletedRounds()))
	return nil
}

func (kv *KVStore) commitRandomRequests(batch tmdb.Batch, b *state.Batch) error {
	for _, token := range b.DeletedRandomTokens {
		if err := batch.Delete(genKey(tableRandom, []byte(token))); err != nil {
			return err
		}
	}
	for _, n := range b.DeletedRandomRounds {
		if err := batch.Delete(genKey(tableRandomRound, n)); err != nil {
			return err
		}
	}

	// 同一个轮次的凭证合并后写回索引
	byRound := map[int64][]tmbytes.HexBytes{}
	for _, req := range b.RandomRequests {
		if err := kv.set(batch, genKey(tableRandom, []byte(req.Token)), req); err != nil {
			return err
		}
		byRound[req.RequestRoundNumber] = append(byRound[req.RequestRoundNumber], req.Token)
	}
	for roundNumber, tokens := range byRound {
		var existed []tmbytes.HexBytes
		if _, err := kv.get(genKey(tableRandomRound, roundNumber), &existed); err != nil {
			return err
		}
		if err := kv.set(batch, genKey(tableRandomRound, roundNumber), append(existed, tokens...)); err != nil {
			return err
		}
	}
	return nil
}

// SaveBlock implements state.Store
func (kv *KVStore) SaveBlock(block *types.Block) error {
	kv.mtx.Lock()
	defer kv.mtx.Unlock()

	bz, err := tmjson.Marshal(block)
	if err != nil {
		return errors.Wrapf(err, "marshal block %d", block.Height)
	}
	return kv.kvDB.SetSync(genKey(tableBlock, block.Height), bz)
}

// LoadBlock implements state.Store
func (kv *KVStore) LoadBlock(height int64) (*types.Block, error) {
	kv.mtx.RLock()
	defer kv.mtx.RUnlock()

	block := &types.Block{}
	found, err := kv.get(genKey(tableBlock, height), block)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrapf(state.ErrBlockNotFound, "height %d", height)
	}
	return block, nil
}

func (kv *KVStore) get(key []byte, ptr interface{}) (bool, error) {
	bz, err := kv.kvDB.Get(key)
	if err != nil {
		return false, errors.Wrapf(err, "get %s", key)
	}
	if len(bz) == 0 {
		return false, nil
	}
	if err := tmjson.Unmarshal(bz, ptr); err != nil {
		return false, errors.Wrapf(err, "unmarshal %s", key)
	}
	return true, nil
}

func (kv *KVStore) set(batch tmdb.Batch, key []byte, v interface{}) error {
	bz, err := tmjson.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", key)
	}
	return batch.Set(key, bz)
}

func genKey(table string, primaryKey interface{}) []byte {
	buffer := new(bytes.Buffer)
	buffer.WriteString(table)
	switch pk := primaryKey.(type) {
	case int64:
		// 定长编码保证按数字顺序迭代
		buffer.WriteString(fmt.Sprintf("%020d", pk))
	case int:
		buffer.WriteString(strconv.Itoa(pk))
	case string:
		buffer.WriteString(pk)
	case []byte:
		buffer.WriteString(fmt.Sprintf("%X", pk))
	default:
		panic(fmt.Sprintf("unsupported primary key %T", primaryKey))
	}
	return buffer.Bytes()
}
