package protocol

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestEncodeEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		env     *Envelope
		wantErr bool
		checkFn func(t *testing.T, output string)
	}{
		{
			name: "valid envelope",
			env: &Envelope{
				Rid:            "req-123",
				Interpretation: json.RawMessage(`{"text":"ola","lang":"pt"}`),
			},
			wantErr: false,
			checkFn: func(t *testing.T, output string) {
				if !strings.Contains(output, `"rid":"req-123"`) {
					t.Error("missing rid field")
				}
				if !strings.Contains(output, `"interpretation":{"text":"ola","lang":"pt"}`) {
					t.Error("payload was not forwarded verbatim")
				}
				if !strings.HasSuffix(output, "\n") {
					t.Error("envelope must be newline-terminated")
				}
				if strings.Count(output, "\n") != 1 {
					t.Error("envelope must be exactly one line")
				}
			},
		},
		{
			name: "missing rid",
			env: &Envelope{
				Interpretation: json.RawMessage(`{}`),
			},
			wantErr: true,
		},
		{
			name: "null payload",
			env: &Envelope{
				Rid:            "req-456",
				Interpretation: json.RawMessage(`null`),
			},
			wantErr: false,
			checkFn: func(t *testing.T, output string) {
				if !strings.Contains(output, `"interpretation":null`) {
					t.Error("null payload should be preserved")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := EncodeEnvelope(&buf, tt.env)

			if (err != nil) != tt.wantErr {
				t.Fatalf("EncodeEnvelope() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, buf.String())
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		line string
		want LineKind
	}{
		{name: "empty", line: "", want: KindBlank},
		{name: "whitespace only", line: "   \t ", want: KindBlank},
		{name: "json object", line: `{"status":"success"}`, want: KindJSON},
		{name: "json array", line: `[1,2,3]`, want: KindJSON},
		{name: "indented json", line: `   {"status":"success"}`, want: KindJSON},
		{name: "log text", line: "A conectar ao Weaviate...", want: KindDiagnostic},
		{name: "log text with braces later", line: "loaded config {ok}", want: KindDiagnostic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify([]byte(tt.line)); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParseResult(t *testing.T) {
	t.Run("success with time hint", func(t *testing.T) {
		res, err := ParseResult([]byte(`{"status":"success","__t":5,"answer":"sim"}`))
		if err != nil {
			t.Fatalf("ParseResult: %v", err)
		}
		if !res.Ok() {
			t.Error("expected Ok() for status=success")
		}
		if res.TimeMs == nil || *res.TimeMs != 5 {
			t.Errorf("expected __t=5, got %v", res.TimeMs)
		}
		if res.Fields["answer"] != "sim" {
			t.Error("extra fields must pass through verbatim")
		}
	})

	t.Run("error status", func(t *testing.T) {
		res, err := ParseResult([]byte(`{"status":"error","error":"no model loaded"}`))
		if err != nil {
			t.Fatalf("ParseResult: %v", err)
		}
		if res.Ok() {
			t.Error("status=error must not be Ok()")
		}
		if res.Error != "no model loaded" {
			t.Errorf("unexpected error field: %q", res.Error)
		}
	})

	t.Run("missing status still closes the task", func(t *testing.T) {
		res, err := ParseResult([]byte(`{"answer":42}`))
		if err != nil {
			t.Fatalf("ParseResult: %v", err)
		}
		if res.Ok() {
			t.Error("a statusless result must not be Ok()")
		}
		if res.Status != "" {
			t.Errorf("expected empty status, got %q", res.Status)
		}
		if res.Fields["answer"] != float64(42) {
			t.Error("extra fields must pass through verbatim")
		}
	})

	t.Run("json array", func(t *testing.T) {
		res, err := ParseResult([]byte(`[1,2,3]`))
		if err != nil {
			t.Fatalf("ParseResult: %v", err)
		}
		if res.Ok() {
			t.Error("an array result must not be Ok()")
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		if _, err := ParseResult([]byte(`{"status": "succ`)); err == nil {
			t.Fatal("expected error for malformed JSON")
		}
	})
}
