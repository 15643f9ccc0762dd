package service

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// maxAmountCents numeric(12,2) 可容纳的最大金额
const maxAmountCents = 999_999_999_999

// parseAmountCents 解析十进制金额（最多两位小数）为分
func parseAmountCents(amount string) (int64, error) {
	amount = strings.TrimSpace(amount)
	whole, frac, hasFrac := strings.Cut(amount, ".")
	if !isDigits(whole) || (hasFrac && !isDigits(frac)) {
		return 0, fmt.Errorf("%w: 金额格式错误", ErrPurchaseInvalid)
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("%w: 金额最多两位小数", ErrPurchaseInvalid)
	}
	for len(frac) < 2 {
		frac += "0"
	}

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || w > maxAmountCents/100 {
		return 0, fmt.Errorf("%w: 金额超出范围", ErrPurchaseInvalid)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: 金额格式错误", ErrPurchaseInvalid)
	}

	cents := w*100 + f
	if cents > maxAmountCents {
		return 0, fmt.Errorf("%w: 金额超出范围", ErrPurchaseInvalid)
	}
	return cents, nil
}

// isDigits 非空且只含 ASCII 数字
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// formatCents 分 → "123.45"
func formatCents(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// purchasePoints floor(amount * rate)，以分和万分比做整数运算避免浮点误差
func purchasePoints(cents int64, rate float64) int64 {
	if cents <= 0 || rate <= 0 {
		return 0
	}
	bp := int64(math.Round(rate * 10000))
	return cents * bp / (100 * 10000)
}
