package feeds

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMedian(t *testing.T) {
	tests := []struct {
		name   string
		values []int64
		want   int64
		ok     bool
	}{
		{name: "empty", values: nil, ok: false},
		{name: "single", values: []int64{42}, want: 42, ok: true},
		{name: "odd count", values: []int64{105, 107, 103}, want: 105, ok: true},
		{name: "even count averages middle pair", values: []int64{100, 104, 102, 110}, want: 103, ok: true},
		{name: "unsorted input", values: []int64{9, 1, 5}, want: 5, ok: true},
		{name: "duplicates", values: []int64{7, 7, 7, 7}, want: 7, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Median(tt.values)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestMedianDoesNotMutateInput(t *testing.T) {
	values := []int64{3, 1, 2}
	Median(values)
	assert.Equal(t, []int64{3, 1, 2}, values)
}
