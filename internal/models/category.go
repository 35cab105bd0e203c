package models

// Category is a manifestation class from the stress taxonomy. Every accepted
// record and every generated query carries exactly one.
type Category string

const (
	CategoryDirectStress     Category = "estres_directo"
	CategoryPhysical         Category = "manifestaciones_fisicas"
	CategoryPsychological    Category = "manifestaciones_psicologicas"
	CategoryDiscomfort       Category = "expresiones_malestar"
	CategoryActivitiesImpact Category = "impacto_actividades"
)

// DefaultCategory is used when a manifestation term cannot be traced back to
// its category.
const DefaultCategory = CategoryDiscomfort

// Categories lists the manifestation classes in a stable order.
var Categories = []Category{
	CategoryDirectStress,
	CategoryPhysical,
	CategoryPsychological,
	CategoryDiscomfort,
	CategoryActivitiesImpact,
}

// IsValid reports whether c belongs to the taxonomy.
func (c Category) IsValid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// OrDefault returns c when valid and DefaultCategory otherwise.
func (c Category) OrDefault() Category {
	if c.IsValid() {
		return c
	}
	return DefaultCategory
}
