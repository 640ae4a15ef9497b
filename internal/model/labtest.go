package model

import (
	"github.com/google/uuid"
)

type LabTestCategory string

const (
	CategoryHematology           LabTestCategory = "HEMATOLOGY"
	CategoryBiochemistry         LabTestCategory = "BIOCHEMISTRY"
	CategoryMicrobiology         LabTestCategory = "MICROBIOLOGY"
	CategoryImmunology           LabTestCategory = "IMMUNOLOGY"
	CategoryPathology            LabTestCategory = "PATHOLOGY"
	CategoryUrinalysis           LabTestCategory = "URINALYSIS"
	CategoryEndocrinology        LabTestCategory = "ENDOCRINOLOGY"
	CategoryToxicology           LabTestCategory = "TOXICOLOGY"
	CategoryMolecularDiagnostics LabTestCategory = "MOLECULAR_DIAGNOSTICS"
	CategoryOther                LabTestCategory = "OTHER"
)

type SampleType string

const (
	SampleBlood  SampleType = "BLOOD"
	SampleUrine  SampleType = "URINE"
	SampleStool  SampleType = "STOOL"
	SampleSaliva SampleType = "SALIVA"
	SampleTissue SampleType = "TISSUE"
	SampleSwab   SampleType = "SWAB"
	SampleCSF    SampleType = "CSF"
	SampleSputum SampleType = "SPUTUM"
	SampleOther  SampleType = "OTHER"
)

// LabTest is a catalog entry. Entries are deactivated, never deleted.
type LabTest struct {
	Base
	Name                    string          `db:"name" json:"name"`
	Category                LabTestCategory `db:"category" json:"category"`
	Price                   float64         `db:"price" json:"price"`
	DurationMinutes         int             `db:"duration_minutes" json:"duration"`
	SampleType              SampleType      `db:"sample_type" json:"sample_type"`
	PreparationInstructions *string         `db:"preparation_instructions" json:"preparation_instructions,omitempty"`
	NormalRange             *string         `db:"normal_range" json:"normal_range,omitempty"`
	Units                   *string         `db:"units" json:"units,omitempty"`
	IsActive                bool            `db:"is_active" json:"is_active"`
}

type CreateLabTestRequest struct {
	Name                    string  `json:"name" binding:"required,max=200"`
	Category                string  `json:"category" binding:"required,oneof=HEMATOLOGY BIOCHEMISTRY MICROBIOLOGY IMMUNOLOGY PATHOLOGY URINALYSIS ENDOCRINOLOGY TOXICOLOGY MOLECULAR_DIAGNOSTICS OTHER"`
	Price                   float64 `json:"price" binding:"gte=0"`
	Duration                int     `json:"duration" binding:"required,gte=1"`
	SampleType              string  `json:"sample_type" binding:"required,oneof=BLOOD URINE STOOL SALIVA TISSUE SWAB CSF SPUTUM OTHER"`
	PreparationInstructions *string `json:"preparation_instructions" binding:"omitempty,max=2000"`
	NormalRange             *string `json:"normal_range" binding:"omitempty,max=500"`
	Units                   *string `json:"units" binding:"omitempty,max=50"`
}

type UpdateLabTestRequest struct {
	Name                    *string  `json:"name" binding:"omitempty,min=1,max=200"`
	Category                *string  `json:"category" binding:"omitempty,oneof=HEMATOLOGY BIOCHEMISTRY MICROBIOLOGY IMMUNOLOGY PATHOLOGY URINALYSIS ENDOCRINOLOGY TOXICOLOGY MOLECULAR_DIAGNOSTICS OTHER"`
	Price                   *float64 `json:"price" binding:"omitempty,gte=0"`
	Duration                *int     `json:"duration" binding:"omitempty,gte=1"`
	SampleType              *string  `json:"sample_type" binding:"omitempty,oneof=BLOOD URINE STOOL SALIVA TISSUE SWAB CSF SPUTUM OTHER"`
	PreparationInstructions *string  `json:"preparation_instructions" binding:"omitempty,max=2000"`
	NormalRange             *string  `json:"normal_range" binding:"omitempty,max=500"`
	Units                   *string  `json:"units" binding:"omitempty,max=50"`
	IsActive                *bool    `json:"is_active"`
}

// Apply copies the set fields of req onto t.
func (req *UpdateLabTestRequest) Apply(t *LabTest) {
	if req.Name != nil {
		t.Name = *req.Name
	}
	if req.Category != nil {
		t.Category = LabTestCategory(*req.Category)
	}
	if req.Price != nil {
		t.Price = *req.Price
	}
	if req.Duration != nil {
		t.DurationMinutes = *req.Duration
	}
	if req.SampleType != nil {
		t.SampleType = SampleType(*req.SampleType)
	}
	if req.PreparationInstructions != nil {
		t.PreparationInstructions = req.PreparationInstructions
	}
	if req.NormalRange != nil {
		t.NormalRange = req.NormalRange
	}
	if req.Units != nil {
		t.Units = req.Units
	}
	if req.IsActive != nil {
		t.IsActive = *req.IsActive
	}
}

type LabTestFilters struct {
	Category        LabTestCategory
	SampleType      SampleType
	Search          string
	IncludeInactive bool
	Pagination
}

// LabTestRef is the catalog summary embedded in populated requests.
type LabTestRef struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	Category   LabTestCategory `json:"category"`
	SampleType SampleType      `json:"sample_type"`
	Duration   int             `json:"duration"`
}

func (t *LabTest) Ref() *LabTestRef {
	return &LabTestRef{
		ID:         t.ID,
		Name:       t.Name,
		Category:   t.Category,
		SampleType: t.SampleType,
		Duration:   t.DurationMinutes,
	}
}
