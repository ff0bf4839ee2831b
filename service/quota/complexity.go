package quota

import "math"

// Complexity 配额模式的复杂度信息
type Complexity struct {
	Mode        QuotaMode       `json:"mode"`
	Level       ComplexityLevel `json:"level"`
	Multiplier  float64         `json:"multiplier"`
	Description string          `json:"description"`
}

// complexityTable 复杂度与样本量乘数的唯一数据源，按 QuotaMode 下标
var complexityTable = [...]Complexity{
	NonInterlocking:    {Level: ComplexityLow, Multiplier: 1.0, Description: "各维度独立配额，执行难度低"},
	FullInterlocking:   {Level: ComplexityExtreme, Multiplier: 2.0, Description: "年龄/性别、州、地区完全交叉，需大幅追加样本"},
	AgeGenderLocation:  {Level: ComplexityMedium, Multiplier: 1.3, Description: "年龄/性别与地区交叉，执行难度中等"},
	AgeGenderState:     {Level: ComplexityMedium, Multiplier: 1.3, Description: "年龄/性别与州交叉，执行难度中等"},
	StateLocation:      {Level: ComplexityMedium, Multiplier: 1.2, Description: "州与地区交叉，执行难度中等"},
	AgeGenderOnly:      {Level: ComplexityLow, Multiplier: 1.0, Description: "仅年龄/性别配额，使用选区专属比例"},
	TasAgeGenderOnly:   {Level: ComplexityLow, Multiplier: 1.0, Description: "塔斯马尼亚选区仅年龄/性别配额"},
	TasNonInterlocking: {Level: ComplexityMedium, Multiplier: 1.2, Description: "塔斯马尼亚各维度独立配额，样本池较小"},
	TasInterlocking:    {Level: ComplexityHigh, Multiplier: 1.5, Description: "塔斯马尼亚交叉配额，样本池小且单元格多"},
}

// ComplexityInfo 面向界面的复杂度信息
func ComplexityInfo(mode QuotaMode) Complexity {
	if int(mode) < 0 || int(mode) >= len(complexityTable) {
		// 枚举外的值不可构造，这里仅作兜底
		return Complexity{Mode: mode, Level: ComplexityLow, Multiplier: 1.0}
	}
	c := complexityTable[mode]
	c.Mode = mode
	return c
}

// SampleSizeMultiplier 面向持久化的样本量乘数
func SampleSizeMultiplier(mode QuotaMode) float64 {
	return ComplexityInfo(mode).Multiplier
}

// ComplexityLevelOf 复杂度等级
func ComplexityLevelOf(mode QuotaMode) ComplexityLevel {
	return ComplexityInfo(mode).Level
}

// AllComplexities 全部模式的复杂度表
func AllComplexities() []Complexity {
	out := make([]Complexity, 0, len(complexityTable))
	for _, m := range QuotaModes() {
		out = append(out, ComplexityInfo(m))
	}
	return out
}

// AdjustedSampleSize 按乘数放大后的实地样本量，向上取整
func AdjustedSampleSize(target int, mode QuotaMode) int {
	// 先四舍五入到小数点后6位，避免 1000*1.3 这类浮点误差导致多进1
	return int(math.Ceil(roundTo(float64(target)*SampleSizeMultiplier(mode), 6)))
}
