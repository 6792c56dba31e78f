package domain

// DownloadedPrefix is the literal marker — note the trailing space — placed
// on a report magnet cell once the uploader has consumed it.
const DownloadedPrefix = "[DOWNLOADED] "

// ReportCell is one magnet+size pair for a single TorrentType column of a
// ReportRow.
type ReportCell struct {
	Magnet       string
	SizeText     string
	AlreadyMarked bool // true once Magnet carries DownloadedPrefix
}

// ReportRow is one selected entry in a run-scoped report.
type ReportRow struct {
	Href      string
	VideoCode string
	Title     string
	Page      int
	Actor     string
	Rating    float64
	Comments  int

	Cells map[TorrentType]ReportCell
}

// CellFor returns the row's cell for tt, or an empty cell when none is
// set; it never stores anything in the row.
func (r *ReportRow) CellFor(tt TorrentType) ReportCell {
	if r.Cells == nil {
		return ReportCell{}
	}
	return r.Cells[tt]
}

// SetCell stores a cell for tt, initializing the map if needed.
func (r *ReportRow) SetCell(tt TorrentType, cell ReportCell) {
	if r.Cells == nil {
		r.Cells = make(map[TorrentType]ReportCell)
	}
	r.Cells[tt] = cell
}
