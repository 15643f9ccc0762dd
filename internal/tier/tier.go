// Package tier 会员等级策略：等级完全由累计积分决定。
package tier

// 等级名称
const (
	Solace    = "Solace"
	Lovers    = "Lovers"
	Loyal     = "Loyal"
	Servitude = "Servitude"
	Echelon   = "Echelon"
)

// Level 等级及其最低积分（含）
type Level struct {
	Name      string `json:"name"`
	MinPoints int64  `json:"min_points"`
}

// levels 按最低积分升序排列，首项为零积分默认等级
var levels = []Level{
	{Name: Solace, MinPoints: 0},
	{Name: Lovers, MinPoints: 7000},
	{Name: Loyal, MinPoints: 15000},
	{Name: Servitude, MinPoints: 40000},
	{Name: Echelon, MinPoints: 120000},
}

// Default 最低等级
func Default() string {
	return levels[0].Name
}

// For 返回最低积分不超过 points 的最高等级
func For(points int64) string {
	name := levels[0].Name
	for _, l := range levels {
		if points < l.MinPoints {
			break
		}
		name = l.Name
	}
	return name
}

// Valid 判断是否为已知等级
func Valid(name string) bool {
	_, ok := MinPoints(name)
	return ok
}

// MinPoints 返回等级的最低积分
func MinPoints(name string) (int64, bool) {
	for _, l := range levels {
		if l.Name == name {
			return l.MinPoints, true
		}
	}
	return 0, false
}

// Levels 返回等级表副本
func Levels() []Level {
	out := make([]Level, len(levels))
	copy(out, levels)
	return out
}

// Names 返回全部等级名称（升序）
func Names() []string {
	out := make([]string, 0, len(levels))
	for _, l := range levels {
		out = append(out, l.Name)
	}
	return out
}
