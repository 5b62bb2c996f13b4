package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/spokentosigned/lexicon/pkg/pose"
)

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// CreateOrGetConfig returns the id of the (name, version, layout) config, inserting it if missing.
func CreateOrGetConfig(db DBExecutor, name, version, layout string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.New("config name must be non-empty")
	}

	var id int64
	err := db.QueryRow(`INSERT INTO configs (name, version, layout, created_at)
			  VALUES (?, ?, ?, ?)
			  ON CONFLICT(name, version, layout) DO UPDATE SET name = excluded.name
			  RETURNING id`, name, version, layout, time.Now().UTC()).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "upsert config")
	}
	return id, nil
}

// GetConfig loads a config by id.
func GetConfig(db DBExecutor, id int64) (Config, error) {
	var c Config
	var completed sql.NullTime
	err := db.QueryRow(`SELECT id, name, version, layout, created_at, completed_at, record_count, header FROM configs WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Version, &c.Layout, &c.CreatedAt, &completed, &c.RecordCount, &c.Header)
	if err != nil {
		return Config{}, errors.Wrapf(err, "get config %d", id)
	}
	if completed.Valid {
		t := completed.Time
		c.CompletedAt = &t
	}
	return c, nil
}

// ResetConfig drops any partially stored records and clears the completion marker.
func ResetConfig(db DBExecutor, id int64) error {
	if _, err := db.Exec(`DELETE FROM records WHERE config_id = ?`, id); err != nil {
		return errors.Wrapf(err, "reset records of config %d", id)
	}
	if _, err := db.Exec(`UPDATE configs SET completed_at = NULL, record_count = 0 WHERE id = ?`, id); err != nil {
		return errors.Wrapf(err, "reset config %d", id)
	}
	return nil
}

// SetConfigHeader stores the raw pose header of the config.
func SetConfigHeader(db DBExecutor, id int64, header []byte) error {
	_, err := db.Exec(`UPDATE configs SET header = ? WHERE id = ?`, header, id)
	return errors.Wrapf(err, "store header of config %d", id)
}

// MarkConfigComplete records that all records of the config are stored.
func MarkConfigComplete(db DBExecutor, id int64) error {
	_, err := db.Exec(`UPDATE configs SET completed_at = ?, record_count = (SELECT COUNT(*) FROM records WHERE config_id = ?) WHERE id = ?`,
		time.Now().UTC(), id, id)
	return errors.Wrapf(err, "complete config %d", id)
}

// DeleteStaleConfigs removes every other config sharing version and layout with keepID.
func DeleteStaleConfigs(db DBExecutor, keepID int64) (int64, error) {
	res, err := db.Exec(`DELETE FROM configs WHERE id != ? AND (version, layout) = (SELECT version, layout FROM configs WHERE id = ?)`, keepID, keepID)
	if err != nil {
		return 0, errors.Wrap(err, "delete stale configs")
	}
	return res.RowsAffected()
}

// InsertRecord stores r under the config, replacing a previous record with the same id.
func InsertRecord(db DBExecutor, configID int64, r Record) error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("record id must be non-empty")
	}
	if r.Pose == nil {
		return errors.Errorf("record %s has no pose", r.ID)
	}
	blob, err := msgpack.Marshal(r.Pose)
	if err != nil {
		return errors.Wrapf(err, "encode pose of record %s", r.ID)
	}
	_, err = db.Exec(`INSERT INTO records (config_id, id, name, spoken_language, signed_language, pose)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(config_id, id) DO UPDATE SET
	  name = excluded.name,
	  spoken_language = excluded.spoken_language,
	  signed_language = excluded.signed_language,
	  pose = excluded.pose`,
		configID, r.ID, r.Name, r.SpokenLanguage, r.SignedLanguage, blob)
	return errors.Wrapf(err, "insert record %s", r.ID)
}

// CountRecords returns how many records are stored for the config.
func CountRecords(db DBExecutor, configID int64) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM records WHERE config_id = ?`, configID).Scan(&n)
	return n, errors.Wrap(err, "count records")
}

// RecordCursor streams records of one config in id order.
type RecordCursor struct {
	rows *sql.Rows
	cur  Record
	err  error
}

// OpenRecordCursor starts a scan over the config's records.
func OpenRecordCursor(ctx context.Context, db *sql.DB, configID int64) (*RecordCursor, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, spoken_language, signed_language, pose FROM records WHERE config_id = ? ORDER BY id`, configID)
	if err != nil {
		return nil, errors.Wrap(err, "query records")
	}
	return &RecordCursor{rows: rows}, nil
}

// Next advances to the next record, returning false at the end or on error.
func (c *RecordCursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	var r Record
	var blob []byte
	if err := c.rows.Scan(&r.ID, &r.Name, &r.SpokenLanguage, &r.SignedLanguage, &blob); err != nil {
		c.err = errors.Wrap(err, "scan record")
		return false
	}
	r.Pose = &pose.Body{}
	if err := msgpack.Unmarshal(blob, r.Pose); err != nil {
		c.err = errors.Wrapf(err, "decode pose of record %s", r.ID)
		return false
	}
	c.cur = r
	return true
}

// Record returns the record loaded by the last successful Next.
func (c *RecordCursor) Record() Record { return c.cur }

// Err returns the first error encountered while scanning.
func (c *RecordCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

// Close releases the underlying rows.
func (c *RecordCursor) Close() error { return c.rows.Close() }
