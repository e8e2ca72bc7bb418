package instrumentation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestConfigFromLookup_Defaults(t *testing.T) {
	config := ConfigFromLookup(lookupFrom(nil))

	assert.Equal(t, "gmail-mcp", config.ServiceName)
	assert.True(t, config.Enabled)
	assert.Equal(t, ExporterPrometheus, config.MetricsExporter)
	assert.Equal(t, ExporterNone, config.TracingExporter)
	assert.InDelta(t, 0.1, config.TraceSamplingRate, 1e-9)
	assert.True(t, config.AuditLogging.Enabled)
	assert.NoError(t, config.Validate())
}

func TestConfigFromLookup_Env(t *testing.T) {
	config := ConfigFromLookup(lookupFrom(map[string]string{
		"OTEL_SERVICE_NAME":           "mail-bridge",
		"INSTRUMENTATION_ENABLED":     "false",
		"TRACING_EXPORTER":            "otlp",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "collector:4318",
		"OTEL_TRACES_SAMPLER_ARG":     "0.5",
		"AUDIT_LOGGING_ENABLED":       "no",
	}))

	assert.Equal(t, "mail-bridge", config.ServiceName)
	assert.False(t, config.Enabled)
	assert.Equal(t, ExporterOTLP, config.TracingExporter)
	assert.Equal(t, "collector:4318", config.OTLPEndpoint)
	assert.InDelta(t, 0.5, config.TraceSamplingRate, 1e-9)
	// Unparsable booleans keep the default.
	assert.True(t, config.AuditLogging.Enabled)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"valid", Config{MetricsExporter: ExporterPrometheus, TracingExporter: ExporterNone, TraceSamplingRate: 0.1}, false},
		{"sampling too high", Config{TraceSamplingRate: 1.5}, true},
		{"sampling negative", Config{TraceSamplingRate: -0.1}, true},
		{"unknown metrics exporter", Config{MetricsExporter: "statsd"}, true},
		{"unknown tracing exporter", Config{TracingExporter: "jaeger"}, true},
		{"otlp tracing without endpoint", Config{TracingExporter: ExporterOTLP}, true},
		{"otlp metrics without endpoint", Config{MetricsExporter: ExporterOTLP}, true},
		{"otlp with endpoint", Config{MetricsExporter: ExporterOTLP, OTLPEndpoint: "localhost:4318"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
