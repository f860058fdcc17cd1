package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseUint64orHex(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    uint64
		wantErr bool
	}{
		{name: "decimal", input: "137", want: 137},
		{name: "hex", input: "0x89", want: 137},
		{name: "upper hex prefix", input: "0XA4B1", want: 0xa4b1},
		{name: "surrounding spaces", input: " 42161 ", want: 42161},
		{name: "empty", input: "", wantErr: true},
		{name: "bad decimal", input: "12abc", wantErr: true},
		{name: "bad hex", input: "0xZZ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseUint64orHex(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestToLowerWithTrim(t *testing.T) {
	t.Parallel()

	require.Equal(t, "effect-cache", ToLowerWithTrim("  Effect-Cache\t"))
	require.Empty(t, ToLowerWithTrim("   "))
}
