/*
 * @module service/quota/types
 * @description 配额规划核心类型定义：地理范围、配额模式、复杂度等级、配额类别
 * @architecture 纯函数领域层 - 无I/O、无共享可变状态
 * @stateFlow 无状态
 * @rules 所有枚举均为封闭集合，未知字符串只在边界解析时报错
 * @dependencies errors, fmt
 * @refs service/quota/structure.go, service/quota/cells.go
 */

package quota

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownGeography  = errors.New("未知的地理范围")
	ErrUnknownQuotaMode  = errors.New("未知的配额模式")
	ErrUnknownCategory   = errors.New("未知的配额类别")
	ErrInvalidSampleSize = errors.New("目标样本量必须为正整数")
)

// GeographyScope 地理范围
type GeographyScope int

const (
	National GeographyScope = iota
	State
	FederalElectorate
	StateElectorate
)

var geographyNames = [...]string{
	National:          "National",
	State:             "State",
	FederalElectorate: "Federal Electorate",
	StateElectorate:   "State Electorate",
}

func (g GeographyScope) String() string {
	if int(g) < 0 || int(g) >= len(geographyNames) {
		return fmt.Sprintf("GeographyScope(%d)", int(g))
	}
	return geographyNames[g]
}

// Geographies 返回全部地理范围，按声明顺序
func Geographies() []GeographyScope {
	return []GeographyScope{National, State, FederalElectorate, StateElectorate}
}

// ParseGeographyScope 解析地理范围，同时接受 "federal-electorate" 这类短横线写法
func ParseGeographyScope(s string) (GeographyScope, error) {
	switch s {
	case "National", "national":
		return National, nil
	case "State", "state":
		return State, nil
	case "Federal Electorate", "federal-electorate", "federal_electorate":
		return FederalElectorate, nil
	case "State Electorate", "state-electorate", "state_electorate":
		return StateElectorate, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownGeography, s)
}

// QuotaMode 配额模式，决定哪些人口维度交叉（interlocking）
type QuotaMode int

const (
	NonInterlocking QuotaMode = iota
	FullInterlocking
	AgeGenderLocation
	AgeGenderState
	StateLocation
	AgeGenderOnly
	TasAgeGenderOnly
	TasNonInterlocking
	TasInterlocking
)

var modeNames = [...]string{
	NonInterlocking:    "non-interlocking",
	FullInterlocking:   "full-interlocking",
	AgeGenderLocation:  "age-gender-location",
	AgeGenderState:     "age-gender-state",
	StateLocation:      "state-location",
	AgeGenderOnly:      "age-gender-only",
	TasAgeGenderOnly:   "tas-age-gender-only",
	TasNonInterlocking: "tas-non-interlocking",
	TasInterlocking:    "tas-interlocking",
}

func (m QuotaMode) String() string {
	if int(m) < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("QuotaMode(%d)", int(m))
	}
	return modeNames[m]
}

// QuotaModes 返回全部配额模式
func QuotaModes() []QuotaMode {
	modes := make([]QuotaMode, len(modeNames))
	for i := range modeNames {
		modes[i] = QuotaMode(i)
	}
	return modes
}

// ParseQuotaMode 解析配额模式
func ParseQuotaMode(s string) (QuotaMode, error) {
	for i, name := range modeNames {
		if name == s {
			return QuotaMode(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownQuotaMode, s)
}

// ComplexityLevel 复杂度等级
type ComplexityLevel string

const (
	ComplexityLow     ComplexityLevel = "low"
	ComplexityMedium  ComplexityLevel = "medium"
	ComplexityHigh    ComplexityLevel = "high"
	ComplexityExtreme ComplexityLevel = "extreme"
)

// QuotaCategory 配额类别，标识单元格组合了哪些维度
type QuotaCategory int

const (
	CategoryAgeGender QuotaCategory = iota
	CategoryState
	CategoryLocation
	CategoryAgeGenderState
	CategoryAgeGenderLocation
	CategoryStateLocation
	CategoryAgeGenderStateLocation
)

var categoryLabels = [...]string{
	CategoryAgeGender:              "Age/Gender",
	CategoryState:                  "State",
	CategoryLocation:               "Location",
	CategoryAgeGenderState:         "Age/Gender/State",
	CategoryAgeGenderLocation:      "Age/Gender/Location",
	CategoryStateLocation:          "State/Location",
	CategoryAgeGenderStateLocation: "Age/Gender/State/Location",
}

func (c QuotaCategory) String() string {
	if int(c) < 0 || int(c) >= len(categoryLabels) {
		return fmt.Sprintf("QuotaCategory(%d)", int(c))
	}
	return categoryLabels[c]
}

// IsBase 基础类别（单一维度）才会被展开为具体单元格
func (c QuotaCategory) IsBase() bool {
	switch c {
	case CategoryAgeGender, CategoryState, CategoryLocation:
		return true
	}
	return false
}

// ParseQuotaCategory 解析配额类别标签
func ParseQuotaCategory(s string) (QuotaCategory, error) {
	for i, label := range categoryLabels {
		if label == s {
			return QuotaCategory(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

func (c QuotaCategory) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *QuotaCategory) UnmarshalText(text []byte) error {
	parsed, err := ParseQuotaCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (m QuotaMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *QuotaMode) UnmarshalText(text []byte) error {
	parsed, err := ParseQuotaMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (g GeographyScope) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

func (g *GeographyScope) UnmarshalText(text []byte) error {
	parsed, err := ParseGeographyScope(string(text))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// CategoryEntry 结构中的一个类别条目
type CategoryEntry struct {
	Category    QuotaCategory `json:"category"`
	CellCount   int           `json:"cell_count"`
	Description string        `json:"description"`
	Warning     string        `json:"warning,omitempty"`
}

// QuotaStructure 配额结构（临时计算结果，不持久化原样）
type QuotaStructure struct {
	TotalCells       int             `json:"total_cells"`
	Categories       []CategoryEntry `json:"categories"`
	ComplexityLevel  ComplexityLevel `json:"complexity_level"`
	SampleMultiplier float64         `json:"sample_multiplier"`
}

// QuotaCell 配额单元格，也是外部配额生成服务返回行的标准交换格式
type QuotaCell struct {
	Category          QuotaCategory `json:"category"`
	Name              string        `json:"name"`
	PopulationPercent float64       `json:"population_percent"`
	TargetCount       int           `json:"target_count"`
	Code              string        `json:"code"`
}
