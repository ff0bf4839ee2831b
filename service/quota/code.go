package quota

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// categoryPrefixes 固定的类别前缀，其他类别由标签推导
var categoryPrefixes = map[string]string{
	"Age/Gender": "AGE_GENDER",
	"State":      "STATE",
	"Location":   "LOCATION",
}

// SegmentCode 由类别与名称生成稳定的分段编码，作为与样本供应商定向编码的关联键
//
//	SegmentCode("Age/Gender", "18-24 Male") == "AGE_GENDER_18_24_MALE"
func SegmentCode(category, name string) string {
	upper := cases.Upper(language.Und)

	prefix, ok := categoryPrefixes[category]
	if !ok {
		prefix = strings.Map(func(r rune) rune {
			if r >= 'A' && r <= 'Z' {
				return r
			}
			return '_'
		}, upper.String(category))
	}

	suffix := collapseNonAlnum(upper.String(name))
	if suffix == "" {
		return prefix
	}
	return prefix + "_" + suffix
}

// collapseNonAlnum 将非 [A-Z0-9] 字符的连续片段替换为单个下划线，并去掉首尾下划线
func collapseNonAlnum(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pending := false
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	return b.String()
}
