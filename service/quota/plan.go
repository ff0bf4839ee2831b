package quota

import "fmt"

// PlanRequest 规划请求
type PlanRequest struct {
	Geography        GeographyScope
	GeographyDetail  string
	Mode             QuotaMode
	TargetSampleSize int
}

// QuotaPlan 规划结果：结构、单元格、复杂度与放大后的样本量
type QuotaPlan struct {
	Geography          GeographyScope `json:"geography"`
	GeographyDetail    string         `json:"geography_detail,omitempty"`
	Mode               QuotaMode      `json:"quota_mode"`
	TargetSampleSize   int            `json:"target_sample_size"`
	AdjustedSampleSize int            `json:"adjusted_sample_size"`
	Structure          QuotaStructure `json:"structure"`
	Complexity         Complexity     `json:"complexity"`
	Cells              []QuotaCell    `json:"cells"`
	Warnings           []string       `json:"warnings,omitempty"`
}

// Plan 校验样本量后组合结构、单元格与复杂度
func Plan(req PlanRequest) (*QuotaPlan, error) {
	if req.TargetSampleSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSampleSize, req.TargetSampleSize)
	}

	structure := PlanQuotaStructure(req.Geography, req.Mode, req.GeographyDetail)
	return &QuotaPlan{
		Geography:          req.Geography,
		GeographyDetail:    req.GeographyDetail,
		Mode:               req.Mode,
		TargetSampleSize:   req.TargetSampleSize,
		AdjustedSampleSize: AdjustedSampleSize(req.TargetSampleSize, req.Mode),
		Structure:          structure,
		Complexity:         ComplexityInfo(req.Mode),
		Cells:              ExpandQuotaCells(structure, req.TargetSampleSize),
		Warnings:           structure.Warnings(),
	}, nil
}
