package secret

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/share"
)

var (
	ErrNonCanonicalSecret = errors.New("secret is not a canonical scalar encoding")
	ErrInvalidShares      = errors.New("invalid shares")
)

// Threshold 还原秘密所需的分片数 floor(2N/3)，至少为1
func Threshold(n int) int {
	t := n * 2 / 3
	if t < 1 {
		t = 1
	}
	return t
}

// Split 将secret拆分为n个分片，任意t个可以还原
// 第i个分片对应order为i+1的矿工
func Split(secret []byte, n, t int) ([][]byte, error) {
	if n <= 0 || t <= 0 || t > n {
		return nil, fmt.Errorf("%w: n=%d t=%d", ErrInvalidShares, n, t)
	}
	s, err := scalarOf(secret)
	if err != nil {
		return nil, err
	}

	poly := share.NewPriPoly(suite, t, s, suite.RandomStream())
	pieces := make([][]byte, n)
	for _, ps := range poly.Shares(n) {
		bz, err := ps.V.MarshalBinary()
		if err != nil {
			return nil, err
		}
		pieces[ps.I] = bz
	}
	return pieces, nil
}

// Recover 拉格朗日插值还原秘密，orders为分片所有者的order（从1开始）
// 分片数不足t时返回错误
func Recover(pieces [][]byte, orders []int, t, n int) ([]byte, error) {
	if len(pieces) != len(orders) {
		return nil, fmt.Errorf("%w: %d pieces with %d orders", ErrInvalidShares, len(pieces), len(orders))
	}
	shares := make([]*share.PriShare, 0, len(pieces))
	for i, piece := range pieces {
		if orders[i] < 1 || orders[i] > n {
			return nil, fmt.Errorf("%w: order %d out of [1, %d]", ErrInvalidShares, orders[i], n)
		}
		v := suite.Scalar()
		if err := v.UnmarshalBinary(piece); err != nil {
			return nil, errors.Wrapf(err, "unmarshal piece of order %d", orders[i])
		}
		shares = append(shares, &share.PriShare{I: orders[i] - 1, V: v})
	}

	s, err := share.RecoverSecret(suite, shares, t, n)
	if err != nil {
		return nil, err
	}
	return s.MarshalBinary()
}

func scalarOf(secret []byte) (kyber.Scalar, error) {
	s := suite.Scalar().SetBytes(secret)
	bz, err := s.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(bz, secret) {
		return nil, ErrNonCanonicalSecret
	}
	return s, nil
}
