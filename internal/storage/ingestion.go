// Keeps an append-only log of successful uploads.

package storage

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/maruel/ksid"
	"github.com/maruel/rdlindex/internal/jsonldb"
)

// Ingestion records one successful merge.
type Ingestion struct {
	ID           ksid.ID   `json:"id"`
	Time         time.Time `json:"time"`
	User         string    `json:"user,omitempty"`
	Filename     string    `json:"filename"`
	RowsAppended int       `json:"rows_appended"`
	Bootstrap    bool      `json:"bootstrap,omitempty"`
	Country      string    `json:"country,omitempty"`
}

// Clone returns a copy of the record.
func (i *Ingestion) Clone() *Ingestion {
	c := *i
	return &c
}

// IngestionLog is the persisted list of ingestions, in db/ingestions.jsonl.
type IngestionLog struct {
	table *jsonldb.Table[*Ingestion]
}

// NewIngestionLog opens or creates the ingestion log in dataDir.
func NewIngestionLog(dataDir string) (*IngestionLog, error) {
	t, err := jsonldb.NewTable[*Ingestion](filepath.Join(dataDir, "db", "ingestions.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("failed to open ingestion log: %w", err)
	}
	return &IngestionLog{table: t}, nil
}

// Append persists rec.
func (l *IngestionLog) Append(rec *Ingestion) error {
	return l.table.Append(rec)
}

// List returns up to limit records, newest first. limit <= 0 returns all.
func (l *IngestionLog) List(limit int) []*Ingestion {
	return l.table.Last(limit)
}

// Len returns the number of records.
func (l *IngestionLog) Len() int {
	return l.table.Len()
}
