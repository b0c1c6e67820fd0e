package models

import "testing"

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{input: "TRACE", want: LevelTrace},
		{input: "debug", want: LevelDebug},
		{input: "INFO", want: LevelInfo},
		{input: "warn", want: LevelWarn},
		{input: "WARNING", want: LevelWarn},
		{input: "ERROR", want: LevelError},
		{input: "fatal", want: LevelFatal},
		{input: "VERBOSE", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLogLevel(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestFieldValue(t *testing.T) {
	entry := &LogEntry{
		Level:         LevelError,
		Message:       "connection refused",
		ServiceName:   "payments",
		CorrelationID: "req-42",
		SourceID:      "agent-7",
		Fields:        map[string]string{"region": "eu-west-1"},
	}

	tests := []struct {
		field string
		want  string
		ok    bool
	}{
		{"level", "ERROR", true},
		{"message", "connection refused", true},
		{"service_name", "payments", true},
		{"serviceName", "payments", true},
		{"correlation_id", "req-42", true},
		{"source_id", "agent-7", true},
		{"region", "eu-west-1", true},
		{"missing", "", false},
	}

	for _, tt := range tests {
		got, ok := entry.FieldValue(tt.field)
		if ok != tt.ok || got != tt.want {
			t.Errorf("FieldValue(%q) = (%q, %v), want (%q, %v)", tt.field, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFieldValueNilFieldsMap(t *testing.T) {
	entry := &LogEntry{Message: "hi"}
	if _, ok := entry.FieldValue("custom"); ok {
		t.Error("expected absent field on nil map")
	}
}

func TestSetField(t *testing.T) {
	entry := &LogEntry{}
	entry.SetField("pod", "api-0")
	if v, ok := entry.FieldValue("pod"); !ok || v != "api-0" {
		t.Errorf("FieldValue(pod) = (%q, %v)", v, ok)
	}
}
