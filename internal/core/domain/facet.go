package domain

// Facet is a named structured aspect of a visualization. The set is closed:
// every constant below has exactly one target in FacetTarget.
type Facet string

const (
	FacetDataTypes          Facet = "data_types"
	FacetVariableMapping    Facet = "variable_mapping"
	FacetColorEncoding      Facet = "color_encoding"
	FacetLegendGuides       Facet = "legend_guides"
	FacetChartElements      Facet = "chart_elements"
	FacetLayout             Facet = "layout"
	FacetAxesScales         Facet = "axes_scales"
	FacetStatisticalMethods Facet = "statistical_methods"
	FacetAnnotations        Facet = "annotations"
	FacetPlotGoal           Facet = "plot_goal"
	FacetSearchableKeywords Facet = "searchable_keywords"
	FacetInnovativeFeatures Facet = "innovative_features"
	FacetDescription        Facet = "description"
	FacetPlotType           Facet = "plot_type"
	FacetPrimaryCategory    Facet = "primary_category"

	FacetBackgroundColor       Facet = "background_color"
	FacetBackgroundType        Facet = "background_type"
	FacetGridColor             Facet = "grid_color"
	FacetGridOrientation       Facet = "grid_orientation"
	FacetGridLayout            Facet = "grid_layout"
	FacetGridStyle             Facet = "grid_style"
	FacetCoordinateType        Facet = "coordinate_type"
	FacetPaletteType           Facet = "palette_type"
	FacetReadabilityAssessment Facet = "readability_assessment"
)

// DefaultDescriptionVector is searched when a query activates no vector facet.
const DefaultDescriptionVector = "section_11_description_vector"

// ToolPrefix is prepended to a facet name to form its function-calling tool name.
const ToolPrefix = "search_"

type FacetKind string

const (
	FacetKindVector FacetKind = "vector"
	FacetKindFilter FacetKind = "filter"
)

// AllFacets lists every facet in registry order.
func AllFacets() []Facet {
	return []Facet{
		FacetDataTypes,
		FacetVariableMapping,
		FacetColorEncoding,
		FacetLegendGuides,
		FacetChartElements,
		FacetLayout,
		FacetAxesScales,
		FacetStatisticalMethods,
		FacetAnnotations,
		FacetPlotGoal,
		FacetSearchableKeywords,
		FacetInnovativeFeatures,
		FacetDescription,
		FacetPlotType,
		FacetPrimaryCategory,
		FacetBackgroundColor,
		FacetBackgroundType,
		FacetGridColor,
		FacetGridOrientation,
		FacetGridLayout,
		FacetGridStyle,
		FacetCoordinateType,
		FacetPaletteType,
		FacetReadabilityAssessment,
	}
}

// ParseFacet resolves a facet name. Unknown names report false.
func ParseFacet(name string) (Facet, bool) {
	f := Facet(name)
	if _, ok := FacetTarget(f); !ok {
		return "", false
	}
	return f, true
}

// Target is where a facet points in the backend: a named sub-vector or an
// exact-match property.
type Target struct {
	Kind        FacetKind
	VectorName  string
	FilterField string
}

// FacetTarget is the static facet to backend mapping.
func FacetTarget(f Facet) (Target, bool) {
	switch f {
	case FacetDataTypes:
		return vectorTarget("section_1_data_and_variable_types_vector"), true
	case FacetVariableMapping:
		return vectorTarget("section_2_variable_mapping_vector"), true
	case FacetColorEncoding:
		return vectorTarget("section_3_color_encoding_details_vector"), true
	case FacetLegendGuides:
		return vectorTarget("legend_guides_vector"), true
	case FacetChartElements:
		return vectorTarget("section_4_chart_element_identification_vector"), true
	case FacetLayout:
		return vectorTarget("section_5_layout_details_vector"), true
	case FacetAxesScales:
		return vectorTarget("section_6_axes_and_scales_vector"), true
	case FacetStatisticalMethods:
		return vectorTarget("statistical_methods_vector"), true
	case FacetAnnotations:
		return vectorTarget("section_7_annotation_and_storytelling_elements_vector"), true
	case FacetPlotGoal:
		return vectorTarget("section_8_plot_goal_vector"), true
	case FacetSearchableKeywords:
		return vectorTarget("section_9_searchable_keywords_vector"), true
	case FacetInnovativeFeatures:
		return vectorTarget("section_10_innovative_or_noteworthy_design_features_vector"), true
	case FacetDescription:
		return vectorTarget(DefaultDescriptionVector), true
	case FacetPlotType:
		return vectorTarget("plot_type_vector"), true
	case FacetPrimaryCategory:
		return vectorTarget("primary_category_vector"), true
	case FacetBackgroundColor,
		FacetBackgroundType,
		FacetGridColor,
		FacetGridOrientation,
		FacetGridLayout,
		FacetGridStyle,
		FacetCoordinateType,
		FacetPaletteType,
		FacetReadabilityAssessment:
		return Target{Kind: FacetKindFilter, FilterField: string(f)}, true
	default:
		return Target{}, false
	}
}

func vectorTarget(name string) Target {
	return Target{Kind: FacetKindVector, VectorName: name}
}

// VocabularyTerm is one canonical filter value and the query fragments that select it.
type VocabularyTerm struct {
	Value   string
	Aliases []string
}

// FieldDescriptor is one registry entry. Read-only after startup.
type FieldDescriptor struct {
	Facet       Facet
	Description string
	Keywords    []string
	Kind        FacetKind
	VectorName  string
	FilterField string
	// Vocabulary is set for filter facets with a controlled value set.
	// Filter values are canonicalized against it; values matching no term are dropped.
	Vocabulary []VocabularyTerm
}

func (d FieldDescriptor) ToolName() string {
	return ToolPrefix + string(d.Facet)
}
