package types

import (
	"bytes"
	"encoding/binary"

	"github.com/tendermint/tendermint/crypto/merkle"
	"github.com/tendermint/tendermint/crypto/tmhash"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// EmptyHash 全0的hash，用来表示"有值但为空"
var EmptyHash = tmbytes.HexBytes(make([]byte, tmhash.Size))

// ComputeHash 将所有输入拼接后计算sha256
func ComputeHash(bzs ...[]byte) tmbytes.HexBytes {
	return tmhash.Sum(bytes.Join(bzs, nil))
}

// HashFromString 对字符串计算hash
func HashFromString(s string) tmbytes.HexBytes {
	return tmhash.Sum([]byte(s))
}

// HashFromInt64 对一个int64做大端编码后计算hash
func HashFromInt64(v int64) tmbytes.HexBytes {
	return tmhash.Sum(int64ToBytes(v))
}

// ConcatAndCompute H(h1 || h2)
func ConcatAndCompute(h1, h2 tmbytes.HexBytes) tmbytes.HexBytes {
	return ComputeHash(h1, h2)
}

// XorAndCompute H(h1 ^ h2)，较短的一方用0补齐
func XorAndCompute(h1, h2 tmbytes.HexBytes) tmbytes.HexBytes {
	size := len(h1)
	if len(h2) > size {
		size = len(h2)
	}
	xor := make([]byte, size)
	for i := 0; i < size; i++ {
		var a, b byte
		if i < len(h1) {
			a = h1[i]
		}
		if i < len(h2) {
			b = h2[i]
		}
		xor[i] = a ^ b
	}
	return tmhash.Sum(xor)
}

// HashToInt64 取hash的前8个字节（小端）转成int64，用于计算下一轮的出块顺序
func HashToInt64(h tmbytes.HexBytes) int64 {
	buf := make([]byte, 8)
	copy(buf, h)
	return int64(binary.LittleEndian.Uint64(buf))
}

// IsEmptyHash nil、长度为0或者全0都视为空
func IsEmptyHash(h tmbytes.HexBytes) bool {
	if len(h) == 0 {
		return true
	}
	return bytes.Equal(h, EmptyHash)
}

// HashEqual 比较两个hash，两个空hash视为相等
func HashEqual(h1, h2 tmbytes.HexBytes) bool {
	if IsEmptyHash(h1) && IsEmptyHash(h2) {
		return true
	}
	return bytes.Equal(h1, h2)
}

// merkleHash 按顺序对各个字段的编码计算merkle root
func merkleHash(items [][]byte) tmbytes.HexBytes {
	return merkle.HashFromByteSlices(items)
}

func int64ToBytes(v int64) []byte {
	bz := make([]byte, 8)
	binary.BigEndian.PutUint64(bz, uint64(v))
	return bz
}

func boolToBytes(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}
