package utils

func MinInt64(data ...int64) int64 {
	if len(data) == 0 {
		return 0
	}

	res := data[0]
	for _, datum := range data {
		if datum < res {
			res = datum
		}
	}
	return res
}

// CeilDiv 向上取整的除法，b必须为正数
func CeilDiv(a, b int64) int64 {
	if a <= 0 {
		return a / b
	}
	return (a + b - 1) / b
}

// AbsMod |v| mod n，math.MinInt64取绝对值会溢出，这里按uint64处理
func AbsMod(v int64, n int) int {
	if n <= 0 {
		return 0
	}
	var abs uint64
	if v < 0 {
		abs = uint64(-(v + 1)) + 1
	} else {
		abs = uint64(v)
	}
	return int(abs % uint64(n))
}
