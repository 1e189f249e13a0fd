// Package logparser extracts summary metrics from a simulation run log.
package logparser

import (
	"regexp"
	"strconv"

	"github.com/cuongbtq/simulation-jobs/internal/domain"
)

var (
	atomRe      = regexp.MustCompile(`n_atom\s+(\d+)`)
	frameRe     = regexp.MustCompile(`(\d+)\s*/\s*(\d+)\s+elapsed`)
	potentialRe = regexp.MustCompile(`(?i)potential\s+(-?[\d.]+)`)
	rgRe        = regexp.MustCompile(`Rg\s+([\d.]+)\s*A`)
	hbondsRe    = regexp.MustCompile(`(?i)([\d.]+)\s+hbonds`)
)

// atomsPerResidue is the coarse-grained bead count of one residue
const atomsPerResidue = 3

// Parse never fails. A pattern that does not occur, or whose captures do
// not parse as numbers, leaves its field nil.
func Parse(text string) domain.Metrics {
	var m domain.Metrics

	if match := atomRe.FindStringSubmatch(text); match != nil {
		if atoms, err := strconv.Atoi(match[1]); err == nil {
			residues := atoms / atomsPerResidue
			m.AtomCount = &atoms
			m.ResidueCount = &residues
		}
	}

	m.FrameCount = lastInt(frameRe, text, 2)
	m.FinalPotential = lastFloat(potentialRe, text)
	m.FinalRg = lastFloat(rgRe, text)

	if hb := lastFloat(hbondsRe, text); hb != nil {
		n := int(*hb)
		m.FinalHBonds = &n
	}

	return m
}

// lastFloat returns the last capture of re that parses as a float
func lastFloat(re *regexp.Regexp, text string) *float64 {
	matches := re.FindAllStringSubmatch(text, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		if f, err := strconv.ParseFloat(matches[i][1], 64); err == nil {
			return &f
		}
	}
	return nil
}

// lastInt returns group of the last match of re that parses as an int
func lastInt(re *regexp.Regexp, text string, group int) *int {
	matches := re.FindAllStringSubmatch(text, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		if n, err := strconv.Atoi(matches[i][group]); err == nil {
			return &n
		}
	}
	return nil
}
