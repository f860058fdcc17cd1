package common

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDuration_UnmarshalText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{name: "milliseconds", input: "250ms", expected: 250 * time.Millisecond},
		{name: "seconds", input: "30s", expected: 30 * time.Second},
		{name: "composite", input: "1h30m45s", expected: time.Hour + 30*time.Minute + 45*time.Second},
		{name: "zero", input: "0s"},
		{name: "missing unit", input: "100", wantErr: true},
		{name: "unknown unit", input: "100x", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var d Duration
			err := d.UnmarshalText([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, d.Duration)
		})
	}
}

func TestDuration_ConfigFormats(t *testing.T) {
	t.Parallel()

	type cfg struct {
		Timeout Duration `yaml:"timeout" json:"timeout" toml:"timeout"`
	}

	var fromYAML cfg
	require.NoError(t, yaml.Unmarshal([]byte("timeout: 1h30m\n"), &fromYAML))
	require.Equal(t, 90*time.Minute, fromYAML.Timeout.Duration)

	var fromJSON cfg
	require.NoError(t, json.Unmarshal([]byte(`{"timeout":"500ms"}`), &fromJSON))
	require.Equal(t, 500*time.Millisecond, fromJSON.Timeout.Duration)

	var fromTOML cfg
	_, err := toml.Decode(`timeout = "2s"`, &fromTOML)
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, fromTOML.Timeout.Duration)

	require.Error(t, json.Unmarshal([]byte(`{"timeout":"soon"}`), &fromJSON))

	out, err := json.Marshal(cfg{Timeout: NewDuration(5 * time.Minute)})
	require.NoError(t, err)
	require.JSONEq(t, `{"timeout":"5m0s"}`, string(out))
}

func TestDuration_JSONSchema(t *testing.T) {
	t.Parallel()

	schema := Duration{}.JSONSchema()
	require.Equal(t, "string", schema.Type)
	require.Equal(t, "Duration", schema.Title)
	require.Contains(t, schema.Examples, "300ms")
}
