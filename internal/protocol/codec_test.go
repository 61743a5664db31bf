package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestEncodeCall(t *testing.T) {
	f := NewCall("id-1", "HOSTED_PLUGIN_MANAGER_EXT", "init", []json.RawMessage{
		json.RawMessage(`[{"id":"ext.a"}]`),
	})

	data, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	out := string(data)
	for _, want := range []string{`"kind":"call"`, `"id":"id-1"`, `"proxy":"HOSTED_PLUGIN_MANAGER_EXT"`, `"method":"init"`} {
		if !strings.Contains(out, want) {
			t.Errorf("encoded frame missing %s: %s", want, out)
		}
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		checkFn func(t *testing.T, f *Frame)
	}{
		{
			name:  "valid call",
			input: `{"kind":"call","id":"c1","proxy":"mgr","method":"init","args":[[1,2]]}`,
			checkFn: func(t *testing.T, f *Frame) {
				if f.Kind != KindCall || f.Proxy != "mgr" || f.Method != "init" {
					t.Errorf("unexpected frame: %+v", f)
				}
				if len(f.Args) != 1 {
					t.Errorf("want 1 arg, got %d", len(f.Args))
				}
			},
		},
		{
			name:  "valid success reply",
			input: `{"kind":"reply","id":"c1","result":{"ok":true}}`,
			checkFn: func(t *testing.T, f *Frame) {
				if f.Kind != KindReply || f.IsError() {
					t.Errorf("unexpected frame: %+v", f)
				}
			},
		},
		{
			name:  "valid error reply",
			input: `{"kind":"reply","id":"c1","error":{"code":"method-failure","message":"boom"}}`,
			checkFn: func(t *testing.T, f *Frame) {
				if !f.IsError() {
					t.Fatal("expected error reply")
				}
				if f.Error.Code != CodeMethodFailure {
					t.Errorf("code = %q", f.Error.Code)
				}
			},
		},
		{
			name:  "void success reply",
			input: `{"kind":"reply","id":"c2"}`,
			checkFn: func(t *testing.T, f *Frame) {
				if f.IsError() || f.Result != nil {
					t.Errorf("unexpected frame: %+v", f)
				}
			},
		},
		{
			name:    "unknown kind",
			input:   `{"kind":"notify","id":"c1"}`,
			wantErr: true,
		},
		{
			name:    "missing correlation id",
			input:   `{"kind":"call","proxy":"mgr","method":"init"}`,
			wantErr: true,
		},
		{
			name:    "call without method",
			input:   `{"kind":"call","id":"c1","proxy":"mgr"}`,
			wantErr: true,
		},
		{
			name:    "reply with call fields",
			input:   `{"kind":"reply","id":"c1","proxy":"mgr"}`,
			wantErr: true,
		},
		{
			name:    "reply with result and error",
			input:   `{"kind":"reply","id":"c1","result":1,"error":{"code":"method-failure","message":"x"}}`,
			wantErr: true,
		},
		{
			name:    "error reply without code",
			input:   `{"kind":"reply","id":"c1","error":{"message":"x"}}`,
			wantErr: true,
		},
		{
			name:    "not json",
			input:   `{"kind":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Decode([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.checkFn != nil && err == nil {
				tt.checkFn(t, f)
			}
		})
	}
}

func TestRemoteErrorMessage(t *testing.T) {
	err := &RemoteError{Code: CodeUnknownIdentifier, Message: "no proxy named x"}
	if got := err.Error(); !strings.Contains(got, CodeUnknownIdentifier) || !strings.Contains(got, "no proxy named x") {
		t.Errorf("Error() = %q", got)
	}
}
