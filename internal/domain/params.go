package domain

import (
	"fmt"
	"strconv"
)

// The wire keeps task parameters as an untyped map. Handlers never touch the
// map directly; each task type projects it to a typed view at the boundary.

type EmailParams struct {
	To      string
	Subject string
	Body    string
}

type ReportParams struct {
	ReportType string
	RangeStart string
	RangeEnd   string
	Format     string
}

type DataProcessingParams struct {
	Dataset   string
	Operation string
	BatchSize int
}

type ImageParams struct {
	SourceURL string
	Width     int
	Height    int
	Format    string
}

type ExportParams struct {
	Target string
	Format string
}

type HealthCheckParams struct {
	Target string
}

func EmailParamsFrom(m map[string]any) (EmailParams, error) {
	p := EmailParams{
		To:      stringParam(m, "to"),
		Subject: stringParam(m, "subject"),
		Body:    stringParam(m, "body"),
	}
	if p.To == "" {
		return p, fmt.Errorf("email parameters: missing 'to'")
	}
	return p, nil
}

func ReportParamsFrom(m map[string]any) (ReportParams, error) {
	p := ReportParams{
		ReportType: stringParam(m, "report_type"),
		RangeStart: stringParam(m, "range_start"),
		RangeEnd:   stringParam(m, "range_end"),
		Format:     stringParam(m, "format"),
	}
	if p.ReportType == "" {
		return p, fmt.Errorf("report parameters: missing 'report_type'")
	}
	if p.Format == "" {
		p.Format = "pdf"
	}
	return p, nil
}

func DataProcessingParamsFrom(m map[string]any) (DataProcessingParams, error) {
	p := DataProcessingParams{
		Dataset:   stringParam(m, "dataset"),
		Operation: stringParam(m, "operation"),
		BatchSize: intParam(m, "batch_size"),
	}
	if p.Dataset == "" {
		return p, fmt.Errorf("data processing parameters: missing 'dataset'")
	}
	if p.Operation == "" {
		p.Operation = "transform"
	}
	return p, nil
}

func ImageParamsFrom(m map[string]any) (ImageParams, error) {
	p := ImageParams{
		SourceURL: stringParam(m, "source_url"),
		Width:     intParam(m, "width"),
		Height:    intParam(m, "height"),
		Format:    stringParam(m, "format"),
	}
	if p.SourceURL == "" {
		return p, fmt.Errorf("image parameters: missing 'source_url'")
	}
	return p, nil
}

func ExportParamsFrom(m map[string]any) (ExportParams, error) {
	p := ExportParams{
		Target: stringParam(m, "target"),
		Format: stringParam(m, "format"),
	}
	if p.Target == "" {
		return p, fmt.Errorf("export parameters: missing 'target'")
	}
	if p.Format == "" {
		p.Format = "csv"
	}
	return p, nil
}

func HealthCheckParamsFrom(m map[string]any) (HealthCheckParams, error) {
	return HealthCheckParams{Target: stringParam(m, "target")}, nil
}

func stringParam(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

func intParam(m map[string]any, key string) int {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		// JSON numbers decode as float64
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}
