package config

import (
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSize(t *testing.T) {
	testCases := []struct {
		desc     string
		input    string
		expected Size
		wantErr  bool
	}{
		{
			desc:     "bytes",
			input:    "4096",
			expected: 4096,
		},
		{
			desc:     "iec",
			input:    "64MiB",
			expected: 64 << 20,
		},
		{
			desc:     "si",
			input:    "1GB",
			expected: 1000 * 1000 * 1000,
		},
		{
			desc:    "invalid",
			input:   "lots",
			wantErr: true,
		},
	}
	for _, tt := range testCases {
		t.Run(tt.desc, func(t *testing.T) {
			var s Size
			err := s.UnmarshalText([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, s)
		})
	}
}

func TestCliParse(t *testing.T) {
	var cli Cli
	parser, err := kong.New(&cli, kong.Name("unarc"), kong.Exit(func(int) {}))
	require.NoError(t, err)

	kctx, err := parser.Parse([]string{"--budget", "16MiB", "cat", "size_test.go", "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, "cat <archive> <member>", kctx.Command())
	assert.Equal(t, Size(16<<20), cli.Budget)
	assert.Equal(t, "a.txt", cli.Cat.Member)
	assert.Equal(t, "info", cli.LogLevel)
}
