package experiment

import "time"

// ControlVariantID is the variant served when a test is unknown or a
// draw lands above the cumulative traffic split.
const ControlVariantID = "control"

type EventType string

const (
	EventVariantAssigned EventType = "variant_assigned"
	EventConversion      EventType = "conversion"
	EventEngagement      EventType = "engagement"
)

func (t EventType) Valid() bool {
	switch t {
	case EventVariantAssigned, EventConversion, EventEngagement:
		return true
	}
	return false
}

type Variant struct {
	ID           string  `yaml:"id" json:"id" validate:"required"`
	Name         string  `yaml:"name" json:"name"`
	Description  string  `yaml:"description" json:"description,omitempty"`
	TrafficSplit float64 `yaml:"traffic_split" json:"traffic_split"` // percentage, 0-100
	IsControl    bool    `yaml:"is_control" json:"is_control"`
}

type Test struct {
	ID       string    `yaml:"id" json:"id" validate:"required"`
	Name     string    `yaml:"name" json:"name"`
	Variants []Variant `yaml:"variants" json:"variants" validate:"required,min=1,unique=ID,dive"`
}

// TotalSplit returns the cumulative traffic split of all variants.
func (t *Test) TotalSplit() float64 {
	total := 0.0
	for _, v := range t.Variants {
		total += v.TrafficSplit
	}
	return total
}

// Variant looks up a variant by ID.
func (t *Test) Variant(id string) (Variant, bool) {
	for _, v := range t.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

type Assignment struct {
	TestID     string
	UserID     string
	VariantID  string
	AssignedAt time.Time
}

type Event struct {
	ID        string         `json:"id"`
	TestID    string         `json:"test_id"`
	VariantID string         `json:"variant_id"`
	UserID    string         `json:"user_id"`
	SessionID string         `json:"session_id"`
	Type      EventType      `json:"event_type"`
	Value     *float64       `json:"event_value,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ResultSummary is derived from the event log on demand.
type ResultSummary struct {
	TestID                  string  `json:"test_id"`
	VariantID               string  `json:"variant_id"`
	TotalUsers              int     `json:"total_users"`
	Conversions             int     `json:"conversions"`
	Engagements             int     `json:"engagements"`
	ConversionRate          float64 `json:"conversion_rate"` // percent
	AverageOrderValue       float64 `json:"average_order_value"`
	Revenue                 float64 `json:"revenue"`
	StatisticalSignificance float64 `json:"statistical_significance"`

	// 95% Wilson interval on conversions/users, as fractions.
	CILower float64 `json:"ci_lower"`
	CIUpper float64 `json:"ci_upper"`
	// Two-proportion z-test confidence that this variant beats control.
	Confidence float64 `json:"confidence"`
}
