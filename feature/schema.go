package feature

import "strings"

const (
	TargetColumn    = "Recycling Rate (%)"
	PredictedColumn = "Predicted Recycling Rate (%)"

	CityField      = "City/District"
	WasteTypeField = "Waste Type"

	WasteGenerated      = "Waste Generated (Tons/Day)"
	PopulationDensity   = "Population Density (People/km²)"
	MunicipalEfficiency = "Municipal Efficiency Score (1-10)"
	CostPerTon          = "Cost of Waste Management (₹/Ton)"
	AwarenessCampaigns  = "Awareness Campaigns Count"
	LandfillCapacity    = "Landfill Capacity (Tons)"
	Year                = "Year"
)

// OneHotSeparator joins a categorical column name and its value. Training-time
// preprocessing and inference-time alignment both go through OneHotName.
const OneHotSeparator = "_"

func OneHotName(field, value string) string {
	return field + OneHotSeparator + value
}

// CategoricalFields lists the encoded columns of the recycling dataset.
func CategoricalFields() []string {
	return []string{CityField, WasteTypeField}
}

func NumericFields() []string {
	return []string{
		WasteGenerated,
		PopulationDensity,
		MunicipalEfficiency,
		CostPerTon,
		AwarenessCampaigns,
		LandfillCapacity,
		Year,
	}
}

// Schema is the ordered list of feature names a trained model expects.
type Schema []string

func (s Schema) Len() int {
	return len(s)
}

func (s Schema) Index() map[string]int {
	index := make(map[string]int, len(s))
	for i, name := range s {
		index[name] = i
	}
	return index
}

func (s Schema) Contains(name string) bool {
	for _, n := range s {
		if n == name {
			return true
		}
	}
	return false
}

// SameSet reports whether names holds exactly the schema's names, ignoring order.
func (s Schema) SameSet(names []string) bool {
	if len(names) != len(s) {
		return false
	}
	index := s.Index()
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := index[name]; !ok || seen[name] {
			return false
		}
		seen[name] = true
	}
	return true
}

// Categories returns the values of field that have a one-hot column in the schema.
// The dropped reference category is not listed.
func (s Schema) Categories(field string) []string {
	prefix := field + OneHotSeparator
	values := make([]string, 0)
	for _, name := range s {
		if strings.HasPrefix(name, prefix) {
			values = append(values, strings.TrimPrefix(name, prefix))
		}
	}
	return values
}
