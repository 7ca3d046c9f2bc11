package export

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/regiodata/event-dedup/internal/model"
)

var xlsxHeader = []string{
	"ID", "Title", "City", "Venue", "Dates", "Categories",
	"Sources", "Source Count", "Match Confidence", "Needs Review", "AI Assisted", "Version",
}

// WriteXLSX writes canonical events to an XLSX workbook at path. Flagged
// events are meant to be eyeballed here, so merge metadata gets columns.
func WriteXLSX(canonicals []model.CanonicalEvent, path string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Canonical Events")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range xlsxHeader {
		header.AddCell().Value = h
	}

	for i := range canonicals {
		c := &canonicals[i]
		row := sheet.AddRow()
		row.AddCell().Value = c.ID
		row.AddCell().Value = c.Title
		row.AddCell().Value = c.LocationCity
		row.AddCell().Value = c.LocationName
		row.AddCell().Value = formatDates(c.Dates)
		row.AddCell().Value = strings.Join(c.Categories, ", ")
		row.AddCell().Value = strings.Join(c.SourceEventIDs, ", ")
		row.AddCell().SetInt(c.SourceCount)
		if c.MatchConfidence != nil {
			row.AddCell().Value = fmt.Sprintf("%.2f", *c.MatchConfidence)
		} else {
			row.AddCell().Value = ""
		}
		row.AddCell().SetBool(c.NeedsReview)
		row.AddCell().SetBool(c.AIAssisted)
		row.AddCell().SetInt(c.Version)
	}

	return eris.Wrapf(f.Save(path), "export: save %s", path)
}
