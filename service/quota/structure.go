/*
 * @module service/quota/structure
 * @description 配额结构模板选择：根据配额模式与地理范围确定单元格数量与类别组成
 * @architecture 纯函数领域层
 * @stateFlow (geography, mode, detail) -> 模板 -> QuotaStructure
 * @rules 未覆盖的 (mode, geography) 组合一律回退到12格年龄/性别结构，绝不报错
 * @dependencies 无
 * @refs service/quota/complexity.go
 */

package quota

const fullInterlockingWarning = "完全交叉配额共288个单元格，实地执行难度极高，部分单元格可能无法填满"

const (
	ageGenderCells = len(ageGenderSegments)
	stateCells     = len(stateSegments)
	locationCells  = len(locationSegments)
)

func ageGenderEntry(description string) CategoryEntry {
	return CategoryEntry{Category: CategoryAgeGender, CellCount: ageGenderCells, Description: description}
}

func stateEntry() CategoryEntry {
	return CategoryEntry{Category: CategoryState, CellCount: stateCells, Description: "按州/领地人口比例独立配额"}
}

func locationEntry() CategoryEntry {
	return CategoryEntry{Category: CategoryLocation, CellCount: locationCells, Description: "按大城市/内陆地区/偏远地区独立配额"}
}

// PlanQuotaStructure 选择配额结构模板
//
// 仅 non-interlocking 与 age-gender-location 两种模式会进一步按地理范围分支，
// 其余组合走12格年龄/性别默认结构。
func PlanQuotaStructure(geography GeographyScope, mode QuotaMode, geographyDetail string) QuotaStructure {
	var categories []CategoryEntry

	switch mode {
	case NonInterlocking:
		switch {
		case geography == National:
			categories = []CategoryEntry{
				ageGenderEntry("年龄/性别独立配额"),
				stateEntry(),
				locationEntry(),
			}
		case geography == State && geographyDetail != "TAS":
			categories = []CategoryEntry{
				ageGenderEntry("年龄/性别独立配额"),
				locationEntry(),
			}
		}
	case FullInterlocking:
		categories = []CategoryEntry{{
			Category:    CategoryAgeGenderStateLocation,
			CellCount:   ageGenderCells * stateCells * locationCells,
			Description: "年龄/性别 × 州 × 地区完全交叉",
			Warning:     fullInterlockingWarning,
		}}
	case AgeGenderLocation:
		interlocked := CategoryEntry{
			Category:    CategoryAgeGenderLocation,
			CellCount:   ageGenderCells * locationCells,
			Description: "年龄/性别 × 地区交叉",
		}
		switch geography {
		case National:
			categories = []CategoryEntry{interlocked, stateEntry()}
		case State:
			categories = []CategoryEntry{interlocked}
		}
	case AgeGenderState:
		categories = []CategoryEntry{
			{
				Category:    CategoryAgeGenderState,
				CellCount:   ageGenderCells * stateCells,
				Description: "年龄/性别 × 州交叉",
			},
			locationEntry(),
		}
	case StateLocation:
		categories = []CategoryEntry{
			{
				Category:    CategoryStateLocation,
				CellCount:   stateCells * locationCells,
				Description: "州 × 地区交叉",
			},
			ageGenderEntry("年龄/性别独立配额"),
		}
	case TasAgeGenderOnly:
		categories = []CategoryEntry{ageGenderEntry("选区整体年龄/性别配额，不再细分")}
	case AgeGenderOnly:
		categories = []CategoryEntry{ageGenderEntry("选区专属年龄/性别比例")}
	case TasNonInterlocking, TasInterlocking:
		// 没有专门模板，落入默认结构
	}

	if categories == nil {
		categories = []CategoryEntry{ageGenderEntry("年龄/性别配额（默认结构）")}
	}

	total := 0
	for _, c := range categories {
		total += c.CellCount
	}

	info := ComplexityInfo(mode)
	return QuotaStructure{
		TotalCells:       total,
		Categories:       categories,
		ComplexityLevel:  info.Level,
		SampleMultiplier: info.Multiplier,
	}
}

// BaseCellCount 结构中会被展开为具体单元格的数量（仅基础类别）
func (s QuotaStructure) BaseCellCount() int {
	n := 0
	for _, c := range s.Categories {
		if c.Category.IsBase() {
			n += c.CellCount
		}
	}
	return n
}

// Warnings 汇总结构中的告警
func (s QuotaStructure) Warnings() []string {
	var out []string
	for _, c := range s.Categories {
		if c.Warning != "" {
			out = append(out, c.Warning)
		}
	}
	return out
}
