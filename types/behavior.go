package types

import (
	"fmt"
	"strings"
)

// Behavior 矿工下一步的共识行为
type Behavior uint8

const (
	BehaviorNothing = Behavior(iota) // 非当前矿工，或者不应该出块
	BehaviorUpdateValueWithoutPreviousInValue
	BehaviorUpdateValue
	BehaviorTinyBlock
	BehaviorNextRound
	BehaviorNextTerm
)

func (b Behavior) String() string {
	switch b {
	case BehaviorNothing:
		return "Nothing"
	case BehaviorUpdateValueWithoutPreviousInValue:
		return "UpdateValueWithoutPreviousInValue"
	case BehaviorUpdateValue:
		return "UpdateValue"
	case BehaviorTinyBlock:
		return "TinyBlock"
	case BehaviorNextRound:
		return "NextRound"
	case BehaviorNextTerm:
		return "NextTerm"
	default:
		return fmt.Sprintf("UnknownBehavior(%d)", uint8(b))
	}
}

// IsUpdateValue UpdateValue和UpdateValueWithoutPreviousInValue都会发布out value
func (b Behavior) IsUpdateValue() bool {
	return b == BehaviorUpdateValue || b == BehaviorUpdateValueWithoutPreviousInValue
}

// IsRoundTerminate 结束当前轮次的行为
func (b Behavior) IsRoundTerminate() bool {
	return b == BehaviorNextRound || b == BehaviorNextTerm
}

// ParseBehavior 从字符串解析，大小写不敏感
func ParseBehavior(s string) (Behavior, error) {
	for b := BehaviorNothing; b <= BehaviorNextTerm; b++ {
		if strings.EqualFold(b.String(), s) {
			return b, nil
		}
	}
	return BehaviorNothing, fmt.Errorf("unknown behavior %q", s)
}

func (b Behavior) MarshalJSON() ([]byte, error) {
	return []byte(`"` + b.String() + `"`), nil
}

func (b *Behavior) UnmarshalJSON(bz []byte) error {
	parsed, err := ParseBehavior(strings.Trim(string(bz), `"`))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}
