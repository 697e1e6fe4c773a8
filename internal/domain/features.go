package domain

import "time"

type UserTier string

const (
	TierFree       UserTier = "free"
	TierPremium    UserTier = "premium"
	TierEnterprise UserTier = "enterprise"
)

type BusinessPriority string

const (
	BusinessLow      BusinessPriority = "low"
	BusinessNormal   BusinessPriority = "normal"
	BusinessHigh     BusinessPriority = "high"
	BusinessCritical BusinessPriority = "critical"
)

// Features carries the prediction inputs. Every field is optional; the
// prediction client imputes the deterministic ones before sending.
type Features struct {
	// Input characteristics
	InputSizeBytes  *int64   `json:"input_size_bytes,omitempty"`
	RecordCount     *int64   `json:"record_count,omitempty"`
	InputFormat     string   `json:"input_format,omitempty"`
	InputComplexity *float64 `json:"input_complexity,omitempty"`

	// User context
	UserID          string   `json:"user_id,omitempty"`
	TenantID        string   `json:"tenant_id,omitempty"`
	UserTier        UserTier `json:"user_tier,omitempty"`
	RecentTaskCount *int     `json:"recent_task_count,omitempty"`

	// Temporal
	HourOfDay  *int  `json:"hour_of_day,omitempty"`
	DayOfWeek  *int  `json:"day_of_week,omitempty"`
	IsPeakHour *bool `json:"is_peak_hour,omitempty"`
	IsWeekend  *bool `json:"is_weekend,omitempty"`
	IsHoliday  *bool `json:"is_holiday,omitempty"`

	// System state, filled by the caller when a real reading exists
	QueueDepth      *int     `json:"queue_depth,omitempty"`
	CPUUsage        *float64 `json:"cpu_usage,omitempty"`
	MemoryUsage     *float64 `json:"memory_usage,omitempty"`
	ActiveConsumers *int     `json:"active_consumers,omitempty"`
	SystemLoad      *float64 `json:"system_load,omitempty"`

	// Business context
	Department       string           `json:"department,omitempty"`
	BusinessPriority BusinessPriority `json:"business_priority,omitempty"`
	Deadline         *time.Time       `json:"deadline,omitempty"`
	IsScheduled      *bool            `json:"is_scheduled,omitempty"`
	Source           string           `json:"source,omitempty"`

	// Dependencies
	DependsOnExternalAPI *bool `json:"depends_on_external_api,omitempty"`
	DependsOnFile        *bool `json:"depends_on_file,omitempty"`
	DependsOnDatabase    *bool `json:"depends_on_database,omitempty"`

	// Quality
	DataQualityScore *float64 `json:"data_quality_score,omitempty"`
	ComplexityScore  *float64 `json:"complexity_score,omitempty"`
}

// featureField is one entry of the closed field enumeration. Counting and
// size estimation walk this list instead of reflecting over the struct, so
// unknown fields cannot drift the estimate.
type featureField struct {
	name  string
	isSet func(*Features) bool
}

var featureFields = []featureField{
	{"input_size_bytes", func(f *Features) bool { return f.InputSizeBytes != nil }},
	{"record_count", func(f *Features) bool { return f.RecordCount != nil }},
	{"input_format", func(f *Features) bool { return f.InputFormat != "" }},
	{"input_complexity", func(f *Features) bool { return f.InputComplexity != nil }},
	{"user_id", func(f *Features) bool { return f.UserID != "" }},
	{"tenant_id", func(f *Features) bool { return f.TenantID != "" }},
	{"user_tier", func(f *Features) bool { return f.UserTier != "" }},
	{"recent_task_count", func(f *Features) bool { return f.RecentTaskCount != nil }},
	{"hour_of_day", func(f *Features) bool { return f.HourOfDay != nil }},
	{"day_of_week", func(f *Features) bool { return f.DayOfWeek != nil }},
	{"is_peak_hour", func(f *Features) bool { return f.IsPeakHour != nil }},
	{"is_weekend", func(f *Features) bool { return f.IsWeekend != nil }},
	{"is_holiday", func(f *Features) bool { return f.IsHoliday != nil }},
	{"queue_depth", func(f *Features) bool { return f.QueueDepth != nil }},
	{"cpu_usage", func(f *Features) bool { return f.CPUUsage != nil }},
	{"memory_usage", func(f *Features) bool { return f.MemoryUsage != nil }},
	{"active_consumers", func(f *Features) bool { return f.ActiveConsumers != nil }},
	{"system_load", func(f *Features) bool { return f.SystemLoad != nil }},
	{"department", func(f *Features) bool { return f.Department != "" }},
	{"business_priority", func(f *Features) bool { return f.BusinessPriority != "" }},
	{"deadline", func(f *Features) bool { return f.Deadline != nil }},
	{"is_scheduled", func(f *Features) bool { return f.IsScheduled != nil }},
	{"source", func(f *Features) bool { return f.Source != "" }},
	{"depends_on_external_api", func(f *Features) bool { return f.DependsOnExternalAPI != nil }},
	{"depends_on_file", func(f *Features) bool { return f.DependsOnFile != nil }},
	{"depends_on_database", func(f *Features) bool { return f.DependsOnDatabase != nil }},
	{"data_quality_score", func(f *Features) bool { return f.DataQualityScore != nil }},
	{"complexity_score", func(f *Features) bool { return f.ComplexityScore != nil }},
}

// PopulatedFieldCount reports how many feature fields carry a value.
func (f *Features) PopulatedFieldCount() int {
	if f == nil {
		return 0
	}
	n := 0
	for _, field := range featureFields {
		if field.isSet(f) {
			n++
		}
	}
	return n
}

// PopulatedFieldNames lists the wire names of set fields, in declaration order.
func (f *Features) PopulatedFieldNames() []string {
	if f == nil {
		return nil
	}
	var names []string
	for _, field := range featureFields {
		if field.isSet(f) {
			names = append(names, field.name)
		}
	}
	return names
}

func BoolPtr(b bool) *bool          { return &b }
func IntPtr(i int) *int             { return &i }
func Int64Ptr(i int64) *int64       { return &i }
func Float64Ptr(f float64) *float64 { return &f }
