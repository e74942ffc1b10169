// Package paginate splits a flat field schema into pages at page-break fields.
package paginate

import (
	"github.com/pulsejet/cerium-engine/models"
)

// Partition walks fields in order and closes the current page at every
// page-break, keeping the break as the last field of the page it closes.
// A break seen while the current page is still empty stays on that page.
func Partition(fields []models.FieldDefinition) []models.Page {
	var pages []models.Page
	var current []models.FieldDefinition

	for _, f := range fields {
		current = append(current, f)
		if f.Type == models.FieldPageBreak && len(current) > 1 {
			pages = append(pages, models.Page{Index: len(pages), Fields: current})
			current = nil
		}
	}
	if len(current) > 0 {
		pages = append(pages, models.Page{Index: len(pages), Fields: current})
	}
	return pages
}

// PageOf returns the index of the page holding fieldID, or -1.
func PageOf(pages []models.Page, fieldID string) int {
	for _, p := range pages {
		for _, f := range p.Fields {
			if f.ID == fieldID {
				return p.Index
			}
		}
	}
	return -1
}
