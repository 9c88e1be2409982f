package report

import (
	"io"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

const (
	SheetSummary  = "Summary"
	SheetCourses  = "Courses"
	SheetBranches = "Branches"

	// ContentTypeXLSX is the media type of WriteXLSX output.
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// WriteXLSX writes `rep` as a workbook with a Summary, Courses and Branches sheet.
func WriteXLSX(w io.Writer, rep Report) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	f.SetSheetName("Sheet1", SheetSummary)
	f.NewSheet(SheetCourses)
	f.NewSheet(SheetBranches)

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "creating header style")
	}

	summary := [][]interface{}{
		{"Metric", "Value"},
		{"Generated at", rep.GeneratedAt.Format("2006-01-02 15:04 MST")},
		{"Total users", rep.TotalUsers},
		{"Active learners", rep.ActiveLearners},
		{"Pending approvals", rep.PendingApprovals},
		{"Enrollments", rep.Enrollments},
		{"Completions", rep.Completions},
		{"Average completion rate (%)", rep.AvgCompletionRate},
		{"Certificates issued", rep.CertificatesIssued},
		{"Points issued", rep.PointsIssued},
	}
	if err = writeRows(f, SheetSummary, summary, header); err != nil {
		return err
	}

	courses := [][]interface{}{{"Course ID", "Course", "Status", "Enrolled", "Completed", "Average progress (%)"}}
	for _, c := range rep.Courses {
		courses = append(courses, []interface{}{c.CourseID, c.Name, string(c.Status), c.Enrolled, c.Completed, c.AvgProgress})
	}
	if err = writeRows(f, SheetCourses, courses, header); err != nil {
		return err
	}

	branches := [][]interface{}{{"Branch ID", "Branch", "Users", "Points", "Completions"}}
	for _, b := range rep.Branches {
		branches = append(branches, []interface{}{b.BranchID, b.Name, b.Users, b.Points, b.Completions})
	}
	if err = writeRows(f, SheetBranches, branches, header); err != nil {
		return err
	}

	if err = f.Write(w); err != nil {
		return errors.Wrap(err, "writing workbook")
	}
	return nil
}

// writeRows fills `sheet` from A1 and styles the first row with `headerStyle`.
func writeRows(f *excelize.File, sheet string, rows [][]interface{}, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err = f.SetSheetRow(sheet, cell, &row); err != nil {
			return errors.Wrapf(err, "writing %s row %d", sheet, i+1)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return err
	}
	if err = f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return errors.Wrapf(err, "styling %s header", sheet)
	}
	lastCol, _, err := excelize.SplitCellName(last)
	if err != nil {
		return err
	}
	return f.SetColWidth(sheet, "A", lastCol, 22)
}
