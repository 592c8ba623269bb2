//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Harvest saves case-report abstracts from PubMed.
func Harvest() error {
	mg.Deps(Build)
	return sh.RunV(binPath(), "harvest")
}

// Extract runs PREP extraction over the harvested abstracts.
func Extract() error {
	mg.Deps(Build)
	return sh.RunV(binPath(), "extract")
}

// Match matches extractions to PubMed articles and writes the report.
func Match() error {
	mg.Deps(Build)
	return sh.RunV(binPath(), "match")
}

// Pipeline runs all three stages through the intermediate files.
func Pipeline() error {
	mg.Deps(Build)
	return sh.RunV(binPath(), "run")
}
