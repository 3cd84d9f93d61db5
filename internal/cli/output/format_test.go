package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"table", FormatTable, false},
		{"", FormatTable, false},
		{"json", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"  yaml  ", FormatYAML, false},
		{"xml", "", true},
		{"csv", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "ParseFormat(%q)", tt.in)
			continue
		}
		require.NoError(t, err, "ParseFormat(%q)", tt.in)
		assert.Equal(t, tt.want, got, "ParseFormat(%q)", tt.in)
	}
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	err := PrintJSON(&buf, map[string]any{"endpoint": "ws://localhost:5000/ws", "active": 3})
	require.NoError(t, err)

	out := buf.String()
	assert.JSONEq(t, `{"endpoint":"ws://localhost:5000/ws","active":3}`, out)
	assert.Contains(t, out, "\n  \"", "output is indented")
	assert.True(t, strings.HasSuffix(out, "\n"), "output ends with a newline")
}

func TestPrintYAML(t *testing.T) {
	var buf bytes.Buffer
	err := PrintYAML(&buf, map[string]any{
		"contexts": []string{"local", "staging"},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "contexts:")
	assert.Contains(t, out, "  - local")
	assert.Contains(t, out, "  - staging")
}
