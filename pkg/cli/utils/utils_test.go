package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyValues(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		want    map[string]string
		wantErr bool
	}{
		{"empty", nil, map[string]string{}, false},
		{"separate entries", []string{"A=1", "B=2"}, map[string]string{"A": "1", "B": "2"}, false},
		{"comma separated", []string{"A=1,B=2"}, map[string]string{"A": "1", "B": "2"}, false},
		{"empty value", []string{"A="}, map[string]string{"A": ""}, false},
		{"value with equals", []string{"URL=a=b"}, map[string]string{"URL": "a=b"}, false},
		{"later wins", []string{"A=1", "A=2"}, map[string]string{"A": "2"}, false},
		{"missing equals", []string{"A"}, nil, true},
		{"empty key", []string{"=1"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKeyValues(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeKeyValues(t *testing.T) {
	base := map[string]string{"A": "1", "B": "2"}
	got := MergeKeyValues(base, map[string]string{"B": "3"})
	assert.Equal(t, map[string]string{"A": "1", "B": "3"}, got)
	assert.Equal(t, "2", base["B"])
	assert.Nil(t, MergeKeyValues(nil, nil))
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(map[string]string{"c": "", "a": "", "b": ""}))
}
