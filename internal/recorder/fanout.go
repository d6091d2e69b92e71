package recorder

import "fmt"

// Fanout writes every record to FileStore (always present) and, if
// configured, best-effort to SQLMirror: a SQLMirror failure is returned
// but never prevents the FileStore write, since FileStore is this
// engine's durable system of record (spec §4.13).
type Fanout struct {
	files *FileStore
	sql   *SQLMirror // nil when no DSN is configured
}

func NewFanout(files *FileStore, sql *SQLMirror) *Fanout {
	return &Fanout{files: files, sql: sql}
}

func (f *Fanout) RecordExecution(rec ExecutionRecord) error {
	if err := f.files.RecordExecution(rec); err != nil {
		return err
	}
	if f.sql != nil {
		if err := f.sql.RecordExecution(rec); err != nil {
			return fmt.Errorf("recorder: sql mirror: %w", err)
		}
	}
	return nil
}

func (f *Fanout) RecordRiskSnapshot(rec RiskSnapshotRecord) error {
	if err := f.files.RecordRiskSnapshot(rec); err != nil {
		return err
	}
	if f.sql != nil {
		if err := f.sql.RecordRiskSnapshot(rec); err != nil {
			return fmt.Errorf("recorder: sql mirror: %w", err)
		}
	}
	return nil
}
