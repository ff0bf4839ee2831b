/*
 * @module service/quota/quota_test
 * @description 配额规划核心单元测试
 */

package quota

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanQuotaStructure_TotalMatchesCategories(t *testing.T) {
	for _, mode := range QuotaModes() {
		for _, geo := range Geographies() {
			for _, detail := range []string{"", "NSW", "TAS"} {
				s := PlanQuotaStructure(geo, mode, detail)
				sum := 0
				for _, c := range s.Categories {
					sum += c.CellCount
				}
				assert.Equal(t, sum, s.TotalCells, "mode=%s geo=%s detail=%s", mode, geo, detail)
				assert.NotEmpty(t, s.Categories)
			}
		}
	}
}

func TestPlanQuotaStructure_Templates(t *testing.T) {
	tests := []struct {
		name   string
		geo    GeographyScope
		mode   QuotaMode
		detail string
		total  int
		cats   []QuotaCategory
	}{
		{"非交叉-全国", National, NonInterlocking, "", 23, []QuotaCategory{CategoryAgeGender, CategoryState, CategoryLocation}},
		{"非交叉-州", State, NonInterlocking, "NSW", 15, []QuotaCategory{CategoryAgeGender, CategoryLocation}},
		{"非交叉-塔州回退", State, NonInterlocking, "TAS", 12, []QuotaCategory{CategoryAgeGender}},
		{"非交叉-联邦选区回退", FederalElectorate, NonInterlocking, "", 12, []QuotaCategory{CategoryAgeGender}},
		{"完全交叉", StateElectorate, FullInterlocking, "", 288, []QuotaCategory{CategoryAgeGenderStateLocation}},
		{"年龄性别地区-全国", National, AgeGenderLocation, "", 44, []QuotaCategory{CategoryAgeGenderLocation, CategoryState}},
		{"年龄性别地区-州", State, AgeGenderLocation, "VIC", 36, []QuotaCategory{CategoryAgeGenderLocation}},
		{"年龄性别地区-选区回退", FederalElectorate, AgeGenderLocation, "", 12, []QuotaCategory{CategoryAgeGender}},
		{"年龄性别州", State, AgeGenderState, "", 99, []QuotaCategory{CategoryAgeGenderState, CategoryLocation}},
		{"州地区", National, StateLocation, "", 36, []QuotaCategory{CategoryStateLocation, CategoryAgeGender}},
		{"塔州仅年龄性别", FederalElectorate, TasAgeGenderOnly, "", 12, []QuotaCategory{CategoryAgeGender}},
		{"仅年龄性别", StateElectorate, AgeGenderOnly, "", 12, []QuotaCategory{CategoryAgeGender}},
		{"塔州非交叉回退", FederalElectorate, TasNonInterlocking, "", 12, []QuotaCategory{CategoryAgeGender}},
		{"塔州交叉回退", FederalElectorate, TasInterlocking, "", 12, []QuotaCategory{CategoryAgeGender}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := PlanQuotaStructure(tt.geo, tt.mode, tt.detail)
			assert.Equal(t, tt.total, s.TotalCells)
			var got []QuotaCategory
			for _, c := range s.Categories {
				got = append(got, c.Category)
			}
			assert.Equal(t, tt.cats, got)
		})
	}
}

func TestPlanQuotaStructure_FullInterlockingWarns(t *testing.T) {
	s := PlanQuotaStructure(National, FullInterlocking, "")
	require.Len(t, s.Categories, 1)
	assert.NotEmpty(t, s.Categories[0].Warning)
	assert.Equal(t, ComplexityExtreme, s.ComplexityLevel)
	assert.Equal(t, 2.0, s.SampleMultiplier)
	assert.Len(t, s.Warnings(), 1)
}

func TestPlanQuotaStructure_Idempotent(t *testing.T) {
	for _, mode := range QuotaModes() {
		a := PlanQuotaStructure(National, mode, "")
		b := PlanQuotaStructure(National, mode, "")
		assert.Equal(t, a, b)
		assert.Equal(t, ExpandQuotaCells(a, 777), ExpandQuotaCells(b, 777))
	}
}

func TestStateSharesSumToSourceTotal(t *testing.T) {
	// 原始数据合计并非100，此处锁定，防止被“修正”
	// 有文字说明称合计为 99.7，与逐项数值相加（32+26+20+11+7+2+1.7+1=100.7）不符，以逐项数值为准
	sum := 0.0
	for _, s := range StateSegments() {
		sum += s.Percent
	}
	assert.InDelta(t, 100.7, sum, 1e-9)
	assert.Len(t, StateSegments(), 8)
}

func TestLocationSharesSumTo100(t *testing.T) {
	sum := 0.0
	for _, s := range LocationSegments() {
		sum += s.Percent
	}
	assert.InDelta(t, 100.0, sum, 1e-9)
}

func TestReferenceTablesAreCopies(t *testing.T) {
	segs := StateSegments()
	segs[0].Percent = 99
	assert.Equal(t, 32.0, StateSegments()[0].Percent)
}

func TestExpandQuotaCells_NonInterlockingNational(t *testing.T) {
	s := PlanQuotaStructure(National, NonInterlocking, "")
	cells := ExpandQuotaCells(s, 1000)
	require.Len(t, cells, 23)
	assert.Equal(t, s.BaseCellCount(), len(cells))

	counts := map[QuotaCategory]int{}
	for _, c := range cells {
		counts[c.Category]++
	}
	assert.Equal(t, 12, counts[CategoryAgeGender])
	assert.Equal(t, 8, counts[CategoryState])
	assert.Equal(t, 3, counts[CategoryLocation])

	for _, c := range cells[:12] {
		assert.Equal(t, 83, c.TargetCount)
		assert.Equal(t, 8.33, c.PopulationPercent)
	}

	nsw := cells[12]
	assert.Equal(t, "NSW", nsw.Name)
	assert.Equal(t, 320, nsw.TargetCount)
	assert.Equal(t, "STATE_NSW", nsw.Code)

	metro := cells[20]
	assert.Equal(t, "Major Cities", metro.Name)
	assert.Equal(t, 720, metro.TargetCount)
}

func TestExpandQuotaCells_RoundingDriftAccepted(t *testing.T) {
	s := PlanQuotaStructure(National, NonInterlocking, "")
	cells := ExpandQuotaCells(s, 1000)
	// 年龄/性别 12*83=996，州 1007，地区 1000
	assert.Equal(t, 996+1007+1000, TotalTarget(cells))
}

func TestExpandQuotaCells_HalfRoundsAwayFromZero(t *testing.T) {
	s := PlanQuotaStructure(FederalElectorate, AgeGenderOnly, "")
	cells := ExpandQuotaCells(s, 6) // 6/12 = 0.5
	for _, c := range cells {
		assert.Equal(t, 1, c.TargetCount)
	}
}

// 组合类别只计数、不展开，这是已知的限制
func TestExpandQuotaCells_CompositeCategoriesNotMaterialised(t *testing.T) {
	full := PlanQuotaStructure(National, FullInterlocking, "")
	assert.Equal(t, 288, full.TotalCells)
	assert.Empty(t, ExpandQuotaCells(full, 1000))

	agl := PlanQuotaStructure(National, AgeGenderLocation, "")
	cells := ExpandQuotaCells(agl, 1000)
	assert.Len(t, cells, 8)
	for _, c := range cells {
		assert.Equal(t, CategoryState, c.Category)
	}

	ags := PlanQuotaStructure(National, AgeGenderState, "")
	assert.Len(t, ExpandQuotaCells(ags, 1000), 3)

	sl := PlanQuotaStructure(National, StateLocation, "")
	assert.Len(t, ExpandQuotaCells(sl, 1000), 12)
}

func TestSegmentCode(t *testing.T) {
	tests := []struct {
		category, name, want string
	}{
		{"Age/Gender", "18-24 Male", "AGE_GENDER_18_24_MALE"},
		{"Age/Gender", "65+ Female", "AGE_GENDER_65_FEMALE"},
		{"State", "NSW", "STATE_NSW"},
		{"Location", "Outer Regional/Remote", "LOCATION_OUTER_REGIONAL_REMOTE"},
		{"Location", "  Major   Cities ", "LOCATION_MAJOR_CITIES"},
		{"Age/Gender/State", "18-24 Male NSW", "AGE_GENDER_STATE_18_24_MALE_NSW"},
		{"State/Location", "vic -- metro", "STATE_LOCATION_VIC_METRO"},
		{"State", "---", "STATE"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SegmentCode(tt.category, tt.name), "%s / %s", tt.category, tt.name)
	}
}

func TestComplexityInfo(t *testing.T) {
	full := ComplexityInfo(FullInterlocking)
	assert.Equal(t, ComplexityExtreme, full.Level)
	assert.Equal(t, 2.0, full.Multiplier)

	non := ComplexityInfo(NonInterlocking)
	assert.Equal(t, ComplexityLow, non.Level)
	assert.Equal(t, 1.0, non.Multiplier)

	assert.Equal(t, ComplexityHigh, ComplexityLevelOf(TasInterlocking))
	assert.Equal(t, 1.5, SampleSizeMultiplier(TasInterlocking))

	for _, m := range []QuotaMode{AgeGenderLocation, AgeGenderState, StateLocation, TasNonInterlocking} {
		c := ComplexityInfo(m)
		assert.Equal(t, ComplexityMedium, c.Level, m.String())
		assert.GreaterOrEqual(t, c.Multiplier, 1.2)
		assert.LessOrEqual(t, c.Multiplier, 1.3)
	}
}

func TestComplexityProjectionsAgree(t *testing.T) {
	for _, c := range AllComplexities() {
		assert.Equal(t, c.Multiplier, SampleSizeMultiplier(c.Mode))
		assert.Equal(t, c.Level, ComplexityLevelOf(c.Mode))
		assert.Equal(t, c.Level, PlanQuotaStructure(National, c.Mode, "").ComplexityLevel)
		assert.NotEmpty(t, c.Description)
	}
}

func TestAdjustedSampleSize(t *testing.T) {
	assert.Equal(t, 1000, AdjustedSampleSize(1000, NonInterlocking))
	assert.Equal(t, 1300, AdjustedSampleSize(1000, AgeGenderState))
	assert.Equal(t, 2000, AdjustedSampleSize(1000, FullInterlocking))
	assert.Equal(t, int(math.Ceil(333*1.5)), AdjustedSampleSize(333, TasInterlocking))
}

func TestPlan(t *testing.T) {
	p, err := Plan(PlanRequest{Geography: National, Mode: NonInterlocking, TargetSampleSize: 1000})
	require.NoError(t, err)
	assert.Len(t, p.Cells, 23)
	assert.Equal(t, 1000, p.AdjustedSampleSize)

	_, err = Plan(PlanRequest{Geography: National, Mode: NonInterlocking, TargetSampleSize: 0})
	assert.True(t, errors.Is(err, ErrInvalidSampleSize))
}

func TestParseEnums(t *testing.T) {
	for _, m := range QuotaModes() {
		parsed, err := ParseQuotaMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}
	_, err := ParseQuotaMode("half-interlocking")
	assert.ErrorIs(t, err, ErrUnknownQuotaMode)

	g, err := ParseGeographyScope("federal-electorate")
	require.NoError(t, err)
	assert.Equal(t, FederalElectorate, g)
	_, err = ParseGeographyScope("Mars")
	assert.ErrorIs(t, err, ErrUnknownGeography)

	c, err := ParseQuotaCategory("State/Location")
	require.NoError(t, err)
	assert.Equal(t, CategoryStateLocation, c)
}

func TestQuotaCellJSONShape(t *testing.T) {
	cell := ExpandQuotaCells(PlanQuotaStructure(National, NonInterlocking, ""), 1000)[0]
	raw, err := json.Marshal(cell)
	require.NoError(t, err)
	assert.JSONEq(t, `{"category":"Age/Gender","name":"18-24 Male","population_percent":8.33,"target_count":83,"code":"AGE_GENDER_18_24_MALE"}`, string(raw))
}
