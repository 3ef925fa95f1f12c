package consensus

//
//                 +------------------+
//   start/事件 --> |       Wait       | <-----------------------------+
//                 +--------+---------+                               |
//                          | GetConsensusCommand                     |
//                          v                                         |
//                 +------------------+   命令过期/无效               |
//                 |    Scheduled     +-------------------------------+
//                 +--------+---------+                               |
//                          | 定时器到期，重新确认命令                |
//                          v                                         |
//                 +------------------+                               |
//                 |      Mining      |  trigger -> header -> tx      |
//                 |                  |  -> CreateBlock -> ApplyBlock +
//                 +------------------+
//
//Engine - 共识引擎，所有共识数据的读写入口
//	- GetConsensusCommand - 根据当前轮次决定矿工下一次出块的时间和行为
//	- GetInformationToUpdate - 生成区块头中的共识数据
//	- ValidateBeforeExecution/ValidateAfterExecution - 执行前后校验区块头
//	- ExecuteTransaction - 执行共识交易，通过一个Batch原子提交
//		- state.Store - 轮次、届、出块名单、随机数请求的持久化
//		- Election - 选举合约，提供新一届矿工和替补矿工
//	- EventSwitch - 提交成功后发布LIB、新的轮次、换届等事件
//Miner - 一个本地矿工的出块循环，SlotClock负责定时
