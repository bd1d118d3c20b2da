package index

// Stats summarizes the state of the derived index.
type Stats struct {
	TotalEntries  int    `json:"total_entries"`
	ActiveEntries int    `json:"active_entries"`
	Vectors       int    `json:"vectors"`
	FTSRows       int    `json:"fts_rows"`
	FTSAvailable  bool   `json:"fts_available"`
	CursorOffset  int64  `json:"cursor_offset"`
	Fingerprint   string `json:"fingerprint,omitempty"`
	SchemaVersion int    `json:"schema_version"`
}

// Stats collects counts across all index tables.
func (db *DB) Stats() (*Stats, error) {
	s := &Stats{FTSAvailable: db.fts}
	var err error
	if s.TotalEntries, s.ActiveEntries, err = db.EntryCount(); err != nil {
		return nil, err
	}
	if s.Vectors, err = db.VectorCount(); err != nil {
		return nil, err
	}
	if s.FTSRows, err = db.FTSCount(); err != nil {
		return nil, err
	}
	cursor, err := db.Cursor()
	if err != nil {
		return nil, err
	}
	s.CursorOffset = cursor.Offset
	s.Fingerprint = cursor.Fingerprint
	if s.SchemaVersion, err = db.SchemaVersion(); err != nil {
		return nil, err
	}
	return s, nil
}
