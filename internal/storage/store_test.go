package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/maruel/rdlindex/internal/storage/git"
	"github.com/maruel/rdlindex/internal/workbook"
	"github.com/xuri/excelize/v2"
)

// xlsxBytes returns the serialized content of a workbook holding rows.
func xlsxBytes(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	for i, row := range rows {
		for j, v := range row {
			if v == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				t.Fatal(err)
			}
			if err := f.SetCellValue("Sheet1", cell, v); err != nil {
				t.Fatal(err)
			}
		}
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

var reportRows = [][]any{
	{"Name", "Type", "Owner"},
	{"Network Map", "Report", "  ops  "},
	{"Sales", nil, "   "},
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(dir, nil, nil)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return s, dir
}

func assertNoStagedFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(dir, UploadsDir))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("uploads directory not empty: %d entries", len(entries))
	}
}

func TestStoreEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Refresh(t.Context()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	v := s.View()
	if v.Len() != 0 || len(v.Columns) != 0 {
		t.Errorf("expected empty view, got %d columns %d rows", len(v.Columns), v.Len())
	}
	if _, err := s.Open(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open() error = %v, want ErrNotFound", err)
	}
}

func TestStoreIngestUpload(t *testing.T) {
	ctx := t.Context()
	dir := t.TempDir()
	repo, err := git.Open(ctx, dir, "", "", MasterFile)
	if err != nil {
		t.Fatal(err)
	}
	ingestions, err := NewIngestionLog(dir)
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewStore(dir, repo, ingestions)
	if err != nil {
		t.Fatal(err)
	}
	data := xlsxBytes(t, reportRows)

	res, err := s.IngestUpload(ctx, bytes.NewReader(data), IngestMeta{User: "alice", Filename: "reports.xlsx"})
	if err != nil {
		t.Fatalf("IngestUpload failed: %v", err)
	}
	if !res.Bootstrap || res.RowsAppended != 3 || res.TotalRows != 2 {
		t.Errorf("bootstrap result = %+v", res)
	}
	v := s.View()
	if want := []string{"Name", "Type", "Owner"}; !reflect.DeepEqual(v.Columns, want) {
		t.Errorf("Columns = %v, want %v", v.Columns, want)
	}
	want := [][]any{{"Network Map", "Report", "ops"}, {"Sales", nil, nil}}
	if !reflect.DeepEqual(v.Rows, want) {
		t.Errorf("Rows = %#v, want %#v", v.Rows, want)
	}
	assertNoStagedFiles(t, dir)

	// Second upload is appended as is, header row included.
	res, err = s.IngestUpload(ctx, bytes.NewReader(data), IngestMeta{User: "bob", Filename: "again.xlsx"})
	if err != nil {
		t.Fatalf("IngestUpload (append) failed: %v", err)
	}
	if res.Bootstrap || res.RowsAppended != 3 || res.TotalRows != 5 {
		t.Errorf("append result = %+v", res)
	}
	if got := s.View().Rows[2]; !reflect.DeepEqual(got, []any{"Name", "Type", "Owner"}) {
		t.Errorf("appended header row = %#v", got)
	}
	assertNoStagedFiles(t, dir)

	// The view always matches what a fresh load of the file yields.
	fresh, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(fresh, s.View()) {
		t.Error("view differs from a fresh load of the master")
	}

	commits, err := repo.Log(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(commits) != 2 || commits[0].Author != "bob" {
		t.Errorf("history = %+v", commits)
	}
	recs := ingestions.List(0)
	if len(recs) != 2 || recs[0].Filename != "again.xlsx" || !recs[1].Bootstrap {
		t.Errorf("ingestion log = %+v", recs)
	}

	f, err := s.Open()
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	_ = f.Close()
}

func TestStoreIngestUploadRejected(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     []byte
		want     error
	}{
		{"unsupported extension", "data.csv", []byte("a,b\n1,2\n"), workbook.ErrUnsupported},
		{"corrupt xlsx", "broken.xlsx", []byte("this is not a spreadsheet"), workbook.ErrCorrupt},
		{"corrupt xls", "broken.xls", []byte("neither is this"), workbook.ErrCorrupt},
	}
	for _, tt := range tests {
		for _, existing := range []bool{false, true} {
			name := tt.name
			if existing {
				name += " over existing master"
			}
			t.Run(name, func(t *testing.T) {
				ctx := t.Context()
				s, dir := newTestStore(t)
				var before []byte
				if existing {
					if _, err := s.IngestUpload(ctx, bytes.NewReader(xlsxBytes(t, reportRows)), IngestMeta{Filename: "reports.xlsx"}); err != nil {
						t.Fatal(err)
					}
					var err error
					if before, err = os.ReadFile(s.Path()); err != nil {
						t.Fatal(err)
					}
				}
				rows := s.View().Len()

				_, err := s.IngestUpload(ctx, bytes.NewReader(tt.data), IngestMeta{Filename: tt.filename})
				if !errors.Is(err, tt.want) {
					t.Fatalf("error = %v, want %v", err, tt.want)
				}
				assertNoStagedFiles(t, dir)
				if s.View().Len() != rows {
					t.Errorf("view has %d rows, want %d", s.View().Len(), rows)
				}
				after, err := os.ReadFile(s.Path())
				if !existing {
					if !errors.Is(err, os.ErrNotExist) {
						t.Errorf("master was created: %v", err)
					}
					return
				}
				if err != nil {
					t.Fatal(err)
				}
				if !bytes.Equal(before, after) {
					t.Error("master changed")
				}
			})
		}
	}
}

func TestStoreIngestKeepsCellTypes(t *testing.T) {
	s, _ := newTestStore(t)
	published := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	rows := [][]any{
		{"ID", "Published", "Active"},
		{"007", published, true},
	}
	if _, err := s.IngestUpload(t.Context(), bytes.NewReader(xlsxBytes(t, rows)), IngestMeta{Filename: "typed.xlsx"}); err != nil {
		t.Fatal(err)
	}
	want := [][]any{{"007", published, true}}
	if got := s.View().Rows; !reflect.DeepEqual(got, want) {
		t.Errorf("Rows = %#v, want %#v", got, want)
	}
	if got := CellString(s.View().Rows[0][1]); got != "2024-01-15 00:00:00" {
		t.Errorf("date renders as %q", got)
	}
}

func TestStoreStagedNameIsBase(t *testing.T) {
	s, dir := newTestStore(t)
	p, err := s.stage("../../etc/evil.xlsx", bytes.NewReader([]byte("x")))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(p) != filepath.Join(dir, UploadsDir) {
		t.Errorf("staged outside uploads: %s", p)
	}
	_ = os.Remove(p)
}

func TestStoreConcurrentReads(t *testing.T) {
	ctx := t.Context()
	s, _ := newTestStore(t)
	data := xlsxBytes(t, reportRows)
	if _, err := s.IngestUpload(ctx, bytes.NewReader(data), IngestMeta{Filename: "a.xlsx"}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	done := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				v := s.View()
				// Each upload adds three data rows to the initial two.
				if n := v.Len(); n < 2 || (n-2)%3 != 0 {
					t.Errorf("observed partial view with %d rows", n)
					return
				}
				for _, row := range v.Rows {
					if len(row) != len(v.Columns) {
						t.Errorf("row has %d cells, want %d", len(row), len(v.Columns))
						return
					}
				}
			}
		}()
	}
	for range 3 {
		if _, err := s.IngestUpload(ctx, bytes.NewReader(data), IngestMeta{Filename: "b.xlsx"}); err != nil {
			t.Error(err)
		}
	}
	close(done)
	wg.Wait()
	if got := s.View().Len(); got != 11 {
		t.Errorf("final rows = %d, want 11", got)
	}
}

func TestStoreWatch(t *testing.T) {
	ctx := t.Context()
	s, dir := newTestStore(t)
	if err := s.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Watch(ctx); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	// Simulate an external editor writing the master.
	tmp := filepath.Join(dir, "edit.tmp")
	if err := os.WriteFile(tmp, xlsxBytes(t, reportRows), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, MasterFile)); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for s.View().Len() != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("view not refreshed, has %d rows", s.View().Len())
		}
		time.Sleep(20 * time.Millisecond)
	}
}
