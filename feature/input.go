package feature

// WasteInput is the request shape of the interactive surface.
type WasteInput struct {
	City                string  `json:"city" validate:"required"`
	WasteType           string  `json:"waste_type" validate:"required"`
	WasteGenerated      float64 `json:"waste_generated" validate:"gte=0"`
	PopulationDensity   int     `json:"population_density" validate:"gte=0"`
	MunicipalEfficiency int     `json:"municipal_efficiency" validate:"gte=1,lte=10"`
	CostPerTon          float64 `json:"cost_per_ton" validate:"gte=0"`
	AwarenessCampaigns  int     `json:"awareness_campaigns" validate:"gte=0"`
	LandfillCapacity    float64 `json:"landfill_capacity" validate:"gte=0"`
	Year                int     `json:"year" validate:"gte=2010,lte=2100"`
}

func (w WasteInput) Raw() RawInput {
	return RawInput{
		Categorical: map[string]string{
			CityField:      w.City,
			WasteTypeField: w.WasteType,
		},
		Numeric: map[string]float64{
			WasteGenerated:      w.WasteGenerated,
			PopulationDensity:   float64(w.PopulationDensity),
			MunicipalEfficiency: float64(w.MunicipalEfficiency),
			CostPerTon:          w.CostPerTon,
			AwarenessCampaigns:  float64(w.AwarenessCampaigns),
			LandfillCapacity:    w.LandfillCapacity,
			Year:                float64(w.Year),
		},
	}
}
