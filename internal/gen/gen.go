// Package gen produces synthetic OTLP-JSON payloads for CLI runs and
// test fixtures.
package gen

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

// Options controls the generated payload shape.
type Options struct {
	Traces        int
	SpansPerTrace int
	Metrics       int
	Logs          int
	Services      []string
	ErrorRate     float64 // fraction of traces carrying an ERROR span
	Seed          int64
}

// DefaultOptions returns a small mixed payload.
func DefaultOptions() Options {
	return Options{
		Traces:        10,
		SpansPerTrace: 3,
		Metrics:       5,
		Logs:          20,
		Services:      []string{"checkout", "payments", "inventory"},
		ErrorRate:     0.2,
		Seed:          1,
	}
}

// Payload builds an OTLP-JSON shaped payload. The same seed always
// produces the same payload.
func Payload(opts Options) map[string]any {
	if opts.SpansPerTrace <= 0 {
		opts.SpansPerTrace = 1
	}
	if len(opts.Services) == 0 {
		opts.Services = []string{"service-a"}
	}
	faker := gofakeit.New(opts.Seed)
	base := uint64(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano())

	return map[string]any{
		"resourceSpans":   resourceSpans(faker, opts, base),
		"resourceMetrics": resourceMetrics(faker, opts, base),
		"resourceLogs":    resourceLogs(faker, opts, base),
	}
}

func resourceSpans(faker *gofakeit.Faker, opts Options, base uint64) []any {
	var out []any
	for i := 0; i < opts.Traces; i++ {
		service := opts.Services[i%len(opts.Services)]
		traceID := hexID(faker, 32)
		hasError := faker.Float64Range(0, 1) < opts.ErrorRate

		var spans []any
		var parentID string
		start := base + uint64(i)*uint64(time.Second)
		for j := 0; j < opts.SpansPerTrace; j++ {
			spanID := hexID(faker, 16)
			spanStart := start + uint64(j)*uint64(10*time.Millisecond)
			span := map[string]any{
				"traceId":           traceID,
				"spanId":            spanID,
				"name":              faker.VerbAction() + " " + faker.NounAbstract(),
				"kind":              float64(faker.IntRange(1, 5)),
				"startTimeUnixNano": fmt.Sprintf("%d", spanStart),
				"endTimeUnixNano":   fmt.Sprintf("%d", spanStart+uint64(faker.IntRange(1, 200))*uint64(time.Millisecond)),
				"attributes": []any{
					attr("http.method", faker.HTTPMethod()),
				},
			}
			if parentID != "" {
				span["parentSpanId"] = parentID
			}
			if hasError && j == opts.SpansPerTrace-1 {
				span["status"] = map[string]any{"code": float64(2), "message": "request failed"}
			}
			parentID = spanID
			spans = append(spans, span)
		}

		out = append(out, map[string]any{
			"resource": map[string]any{
				"attributes": []any{attr("service.name", service)},
			},
			"scopeSpans": []any{
				map[string]any{
					"scope": map[string]any{"name": "otelflow.gen"},
					"spans": spans,
				},
			},
		})
	}
	return out
}

func resourceMetrics(faker *gofakeit.Faker, opts Options, base uint64) []any {
	var out []any
	for i := 0; i < opts.Metrics; i++ {
		service := opts.Services[i%len(opts.Services)]
		name := fmt.Sprintf("%s_%s_total", service, faker.NounAbstract())
		out = append(out, map[string]any{
			"resource": map[string]any{
				"attributes": []any{attr("service.name", service)},
			},
			"scopeMetrics": []any{
				map[string]any{
					"metrics": []any{
						map[string]any{
							"name": name,
							"unit": "1",
							"gauge": map[string]any{
								"dataPoints": []any{
									map[string]any{
										"asDouble":     faker.Float64Range(0, 1000),
										"timeUnixNano": fmt.Sprintf("%d", base+uint64(i)*uint64(time.Second)),
									},
								},
							},
						},
					},
				},
			},
		})
	}
	return out
}

func resourceLogs(faker *gofakeit.Faker, opts Options, base uint64) []any {
	severities := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	var records []any
	for i := 0; i < opts.Logs; i++ {
		records = append(records, map[string]any{
			"timeUnixNano":   fmt.Sprintf("%d", base+uint64(i)*uint64(time.Millisecond)),
			"severityText":   severities[faker.IntRange(0, len(severities)-1)],
			"severityNumber": float64(faker.IntRange(1, 21)),
			"body":           map[string]any{"stringValue": faker.HackerPhrase()},
		})
	}
	if len(records) == 0 {
		return []any{}
	}
	return []any{
		map[string]any{
			"resource": map[string]any{
				"attributes": []any{attr("service.name", opts.Services[0])},
			},
			"scopeLogs": []any{
				map[string]any{"logRecords": records},
			},
		},
	}
}

func attr(key, value string) map[string]any {
	return map[string]any{
		"key":   key,
		"value": map[string]any{"stringValue": value},
	}
}

func hexID(faker *gofakeit.Faker, width int) string {
	buf := make([]byte, width/2)
	for i := range buf {
		buf[i] = byte(faker.IntRange(0, 255))
	}
	return hex.EncodeToString(buf)
}
