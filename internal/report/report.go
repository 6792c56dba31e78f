// Package report implements the run-scoped report table (C9): the
// on-disk, append-only CSV the scraper (C6) writes and the uploader (C7)
// rewrites with [DOWNLOADED] markers. Grounded in the same
// write-temp-then-rename discipline history.Store and banledger.Ledger use,
// since the distilled spec's §5 requires the report file never be left in
// a partial state between scraper and uploader ownership.
package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/opsmedia/catalogpipe/internal/domain"
	"github.com/opsmedia/catalogpipe/internal/pipeerr"
)

var columnOrder = domain.AllTorrentTypes

var header = func() []string {
	h := []string{"href", "video_code", "title", "page", "actor", "rating", "comments"}
	for _, t := range columnOrder {
		h = append(h, string(t)+"_magnet", string(t)+"_size")
	}
	return h
}()

// Mode selects the daily vs ad-hoc output path and category, per distilled
// §4.6's run modes.
type Mode string

const (
	ModeDaily Mode = "daily"
	ModeAdHoc Mode = "adhoc"
)

// PathFor returns the dated report path for mode under reportsDir, rooted
// the way distilled §6 lays out reports/DailyReport/YYYY/MM and
// reports/AdHoc/YYYY/MM.
func PathFor(reportsDir string, mode Mode, runID string, at time.Time) string {
	sub := "DailyReport"
	if mode == ModeAdHoc {
		sub = "AdHoc"
	}
	return filepath.Join(reportsDir, sub, at.Format("2006"), at.Format("01"), runID+".csv")
}

// Writer accumulates ReportRows for one run and flushes them to path.
type Writer struct {
	path string
	rows []domain.ReportRow
}

// NewWriter opens a Writer for path, creating its parent directory.
func NewWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, pipeerr.New("report.NewWriter", pipeerr.IO, err)
	}
	return &Writer{path: path}, nil
}

// Add appends row to the in-memory buffer; order is preserved (distilled
// §5: entries retain discovery order within a page).
func (w *Writer) Add(row domain.ReportRow) {
	w.rows = append(w.rows, row)
}

// Rows returns the rows buffered so far.
func (w *Writer) Rows() []domain.ReportRow {
	return w.rows
}

// Flush writes the buffered rows to disk via write-temp-then-rename.
func (w *Writer) Flush() error {
	return writeRows(w.path, w.rows)
}

func writeRows(path string, rows []domain.ReportRow) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return pipeerr.New("report.write", pipeerr.IO, err)
	}

	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		f.Close()
		return pipeerr.New("report.write", pipeerr.IO, err)
	}
	for _, row := range rows {
		if err := cw.Write(rowToRecord(row)); err != nil {
			f.Close()
			return pipeerr.New("report.write", pipeerr.IO, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return pipeerr.New("report.write", pipeerr.IO, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return pipeerr.New("report.write", pipeerr.IO, err)
	}
	if err := f.Close(); err != nil {
		return pipeerr.New("report.write", pipeerr.IO, err)
	}
	return os.Rename(tmp, path)
}

func rowToRecord(row domain.ReportRow) []string {
	rec := []string{
		row.Href,
		row.VideoCode,
		row.Title,
		strconv.Itoa(row.Page),
		row.Actor,
		strconv.FormatFloat(row.Rating, 'f', 1, 64),
		strconv.Itoa(row.Comments),
	}
	for _, t := range columnOrder {
		cell := row.CellFor(t)
		rec = append(rec, cell.Magnet, cell.SizeText)
	}
	return rec
}

// Read loads every ReportRow from path. A missing file returns an empty
// slice, not an error — a run may legitimately select zero entries.
func Read(path string) ([]domain.ReportRow, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, pipeerr.New("report.Read", pipeerr.IO, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, pipeerr.New("report.Read", pipeerr.IO, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	rows := make([]domain.ReportRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		row, err := recordToRow(rec)
		if err != nil {
			continue // malformed row: PARSE-kind, skip per C3's local-recovery policy
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func recordToRow(rec []string) (domain.ReportRow, error) {
	if len(rec) < 7 {
		return domain.ReportRow{}, pipeerr.New("report.recordToRow", pipeerr.Parse, nil)
	}
	page, _ := strconv.Atoi(rec[3])
	rating, _ := strconv.ParseFloat(rec[5], 64)
	comments, _ := strconv.Atoi(rec[6])

	row := domain.ReportRow{
		Href:      rec[0],
		VideoCode: rec[1],
		Title:     rec[2],
		Page:      page,
		Actor:     rec[4],
		Rating:    rating,
		Comments:  comments,
	}

	idx := 7
	for _, t := range columnOrder {
		if idx+1 >= len(rec) {
			break
		}
		magnet := rec[idx]
		sizeText := rec[idx+1]
		idx += 2
		if magnet == "" {
			continue
		}
		row.SetCell(t, domain.ReportCell{
			Magnet:        magnet,
			SizeText:      sizeText,
			AlreadyMarked: hasDownloadedPrefix(magnet),
		})
	}
	return row, nil
}

func hasDownloadedPrefix(magnet string) bool {
	return len(magnet) >= len(domain.DownloadedPrefix) && magnet[:len(domain.DownloadedPrefix)] == domain.DownloadedPrefix
}

// WriteAll atomically replaces path's contents with rows — used by the
// uploader (C7) after it has rewritten cells with the DOWNLOADED marker.
func WriteAll(path string, rows []domain.ReportRow) error {
	return writeRows(path, rows)
}
