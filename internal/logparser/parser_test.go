package logparser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/simulation-jobs/internal/domain"
)

func intPtr(i int) *int { return &i }
func floatPtr(f float64) *float64 { return &f }

func TestParse_FullLog(t *testing.T) {
	text := strings.Join([]string{
		"Loading chig.up",
		"n_atom 300",
		"     0 / 100 elapsed 0.0s potential -123.4",
		"    99/100 elapsed 12.5s",
		"potential -50.0",
		"Rg 12.3 A",
		"4 hbonds",
	}, "\n")

	got := Parse(text)

	assert.Equal(t, domain.Metrics{
		AtomCount:      intPtr(300),
		ResidueCount:   intPtr(100),
		FrameCount:     intPtr(100),
		FinalPotential: floatPtr(-50.0),
		FinalRg:        floatPtr(12.3),
		FinalHBonds:    intPtr(4),
	}, got)
}

func TestParse_Empty(t *testing.T) {
	got := Parse("")
	assert.True(t, got.IsEmpty())
}

func TestParse_Rules(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		check func(t *testing.T, m domain.Metrics)
	}{
		{
			name: "first atom count wins",
			text: "n_atom 30\nn_atom 90",
			check: func(t *testing.T, m domain.Metrics) {
				require.NotNil(t, m.AtomCount)
				assert.Equal(t, 30, *m.AtomCount)
				assert.Equal(t, 10, *m.ResidueCount)
			},
		},
		{
			name: "residue count rounds down",
			text: "n_atom 31",
			check: func(t *testing.T, m domain.Metrics) {
				assert.Equal(t, 10, *m.ResidueCount)
			},
		},
		{
			name: "last frame marker wins",
			text: "10/200 elapsed\n20 / 400 elapsed",
			check: func(t *testing.T, m domain.Metrics) {
				require.NotNil(t, m.FrameCount)
				assert.Equal(t, 400, *m.FrameCount)
			},
		},
		{
			name: "potential is case insensitive",
			text: "POTENTIAL 1.5\nPotential -2.25",
			check: func(t *testing.T, m domain.Metrics) {
				require.NotNil(t, m.FinalPotential)
				assert.Equal(t, -2.25, *m.FinalPotential)
			},
		},
		{
			name: "unparseable capture falls back to earlier match",
			text: "potential -3.5\npotential 1.2.3",
			check: func(t *testing.T, m domain.Metrics) {
				require.NotNil(t, m.FinalPotential)
				assert.Equal(t, -3.5, *m.FinalPotential)
			},
		},
		{
			name: "rg requires unit",
			text: "Rg 9.9\nRg 11.0 A",
			check: func(t *testing.T, m domain.Metrics) {
				require.NotNil(t, m.FinalRg)
				assert.Equal(t, 11.0, *m.FinalRg)
			},
		},
		{
			name: "hbonds truncated",
			text: "12.9 HBonds",
			check: func(t *testing.T, m domain.Metrics) {
				require.NotNil(t, m.FinalHBonds)
				assert.Equal(t, 12, *m.FinalHBonds)
			},
		},
		{
			name: "only some fields present",
			text: "Rg 5.0 A",
			check: func(t *testing.T, m domain.Metrics) {
				assert.NotNil(t, m.FinalRg)
				assert.Nil(t, m.AtomCount)
				assert.Nil(t, m.ResidueCount)
				assert.Nil(t, m.FrameCount)
				assert.Nil(t, m.FinalPotential)
				assert.Nil(t, m.FinalHBonds)
			},
		},
		{
			name: "garbage",
			text: "\x00\xff not a log at all",
			check: func(t *testing.T, m domain.Metrics) {
				assert.True(t, m.IsEmpty())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Parse(tt.text))
		})
	}
}
