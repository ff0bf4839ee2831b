package quota

import "math"

// ExpandQuotaCells 按结构展开配额单元格
//
// 只有 Age/Gender、State、Location 三个基础类别会生成具体行；组合类别只在
// 结构的 total_cells 中计数，交叉单元格由外部配额生成服务提供。
// 各单元格独立取整，合计与 targetSampleSize 的偏差不做修正。
func ExpandQuotaCells(structure QuotaStructure, targetSampleSize int) []QuotaCell {
	cells := make([]QuotaCell, 0, structure.BaseCellCount())
	for _, entry := range structure.Categories {
		switch entry.Category {
		case CategoryAgeGender:
			percent := roundTo(100.0/float64(ageGenderCells), 2)
			target := int(math.Round(float64(targetSampleSize) / float64(ageGenderCells)))
			for _, seg := range ageGenderSegments {
				cells = append(cells, newCell(entry.Category, seg.Name, percent, target))
			}
		case CategoryState, CategoryLocation:
			for _, seg := range segmentsFor(entry.Category) {
				target := int(math.Round(float64(targetSampleSize) * seg.Percent / 100))
				cells = append(cells, newCell(entry.Category, seg.Name, seg.Percent, target))
			}
		case CategoryAgeGenderState, CategoryAgeGenderLocation, CategoryStateLocation, CategoryAgeGenderStateLocation:
			// 不展开
		}
	}
	return cells
}

func newCell(category QuotaCategory, name string, percent float64, target int) QuotaCell {
	return QuotaCell{
		Category:          category,
		Name:              name,
		PopulationPercent: percent,
		TargetCount:       target,
		Code:              SegmentCode(category.String(), name),
	}
}

// roundTo 四舍五入到指定小数位（远离零）
func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// TotalTarget 单元格目标数合计
func TotalTarget(cells []QuotaCell) int {
	total := 0
	for _, c := range cells {
		total += c.TargetCount
	}
	return total
}
