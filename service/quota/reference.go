/*
 * @module service/quota/reference
 * @description 澳大利亚人口统计参考表：年龄/性别、州/领地、城市/地区分布
 * @architecture 纯数据 - 静态参考表
 * @stateFlow 只读
 * @rules 数值必须与已发布的配额数据逐位一致，不得私自归一化
 * @dependencies 无
 * @refs service/quota/cells.go
 */

package quota

// Segment 参考表中的一行
type Segment struct {
	Name    string  `json:"name"`
	Code    string  `json:"code"`
	Percent float64 `json:"percent"`
}

// ageGenderSegments 6个年龄段 × 2个性别；不按州/地区拆分时各占 100/12
var ageGenderSegments = [...]Segment{
	{Name: "18-24 Male", Code: "AGE_18_24_MALE"},
	{Name: "18-24 Female", Code: "AGE_18_24_FEMALE"},
	{Name: "25-34 Male", Code: "AGE_25_34_MALE"},
	{Name: "25-34 Female", Code: "AGE_25_34_FEMALE"},
	{Name: "35-44 Male", Code: "AGE_35_44_MALE"},
	{Name: "35-44 Female", Code: "AGE_35_44_FEMALE"},
	{Name: "45-54 Male", Code: "AGE_45_54_MALE"},
	{Name: "45-54 Female", Code: "AGE_45_54_FEMALE"},
	{Name: "55-64 Male", Code: "AGE_55_64_MALE"},
	{Name: "55-64 Female", Code: "AGE_55_64_FEMALE"},
	{Name: "65+ Male", Code: "AGE_65_PLUS_MALE"},
	{Name: "65+ Female", Code: "AGE_65_PLUS_FEMALE"},
}

// stateSegments 各州比例照录原始数据，合计为 100.7 而非 100，不做归一化
var stateSegments = [...]Segment{
	{Name: "NSW", Code: "STATE_NSW", Percent: 32.0},
	{Name: "VIC", Code: "STATE_VIC", Percent: 26.0},
	{Name: "QLD", Code: "STATE_QLD", Percent: 20.0},
	{Name: "WA", Code: "STATE_WA", Percent: 11.0},
	{Name: "SA", Code: "STATE_SA", Percent: 7.0},
	{Name: "TAS", Code: "STATE_TAS", Percent: 2.0},
	{Name: "NT", Code: "STATE_NT", Percent: 1.0},
	{Name: "ACT", Code: "STATE_ACT", Percent: 1.7},
}

var locationSegments = [...]Segment{
	{Name: "Major Cities", Code: "LOCATION_METRO", Percent: 72.0},
	{Name: "Inner Regional", Code: "LOCATION_REGIONAL", Percent: 18.0},
	{Name: "Outer Regional/Remote", Code: "LOCATION_REMOTE", Percent: 10.0},
}

// AgeGenderSegments 返回年龄/性别参考表副本
func AgeGenderSegments() []Segment {
	out := ageGenderSegments[:]
	return append([]Segment(nil), out...)
}

// StateSegments 返回州/领地参考表副本
func StateSegments() []Segment {
	out := stateSegments[:]
	return append([]Segment(nil), out...)
}

// LocationSegments 返回地区参考表副本
func LocationSegments() []Segment {
	out := locationSegments[:]
	return append([]Segment(nil), out...)
}

// segmentsFor 基础类别对应的参考表；组合类别没有直接对应的表
func segmentsFor(c QuotaCategory) []Segment {
	switch c {
	case CategoryAgeGender:
		return ageGenderSegments[:]
	case CategoryState:
		return stateSegments[:]
	case CategoryLocation:
		return locationSegments[:]
	case CategoryAgeGenderState, CategoryAgeGenderLocation, CategoryStateLocation, CategoryAgeGenderStateLocation:
		return nil
	}
	return nil
}

// IsStateAbbreviation 判断地理细节是否为州/领地缩写
func IsStateAbbreviation(detail string) bool {
	for _, s := range stateSegments {
		if s.Name == detail {
			return true
		}
	}
	return false
}
