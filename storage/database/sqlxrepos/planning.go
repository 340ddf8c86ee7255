package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/foundi/core"
	"github.com/trezcool/foundi/core/planning"
)

type slotRow struct {
	Day       string      `db:"day"`
	Slot      string      `db:"slot"`
	Subject   string      `db:"subject"`
	Message   string      `db:"message"`
	Group     int         `db:"grp"`
	Serie     string      `db:"serie"`
	CourseID  null.String `db:"course_id"`
	Version   int         `db:"version"`
	UpdatedAt time.Time   `db:"updated_at"`
}

func toSlotRow(s planning.SlotEntry) slotRow {
	return slotRow{
		Day:       s.Day,
		Slot:      s.Slot,
		Subject:   s.Subject,
		Message:   s.Message,
		Group:     s.Group,
		Serie:     s.Serie,
		CourseID:  null.NewString(s.CourseID, s.CourseID != ""),
		Version:   s.Version,
		UpdatedAt: s.UpdatedAt.UTC(),
	}
}

func (r slotRow) entry() planning.SlotEntry {
	return planning.SlotEntry{
		Day:  r.Day,
		Slot: r.Slot,
		Entry: planning.Entry{
			Subject:   r.Subject,
			Message:   r.Message,
			Group:     r.Group,
			Serie:     r.Serie,
			CourseID:  r.CourseID.String,
			Version:   r.Version,
			UpdatedAt: r.UpdatedAt.UTC(),
		},
	}
}

type planningRepository struct {
	db *sqlx.DB
}

var _ planning.Repository = (*planningRepository)(nil) // interface compliance check

func NewPlanningRepository(db *sqlx.DB) planning.Repository {
	return &planningRepository{db: db}
}

func (repo *planningRepository) QuerySlots(ctx context.Context) ([]planning.SlotEntry, error) {
	var rows []slotRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM planning_slot ORDER BY day, slot`); err != nil {
		return nil, errors.Wrap(err, "querying slots")
	}
	entries := make([]planning.SlotEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.entry())
	}
	return entries, nil
}

func (repo *planningRepository) GetSlot(ctx context.Context, day, slot string) (planning.SlotEntry, error) {
	var row slotRow
	q := `SELECT * FROM planning_slot WHERE day = $1 AND slot = $2`
	if err := repo.db.GetContext(ctx, &row, q, day, slot); err != nil {
		return planning.SlotEntry{}, trapNoRowsErr(err, planning.ErrNotFound, "finding slot")
	}
	return row.entry(), nil
}

const (
	upsertSlotQuery = `INSERT INTO planning_slot (day, slot, subject, message, grp, serie, course_id, version, updated_at)
		VALUES (:day, :slot, :subject, :message, :grp, :serie, :course_id, 1, :updated_at)
		ON CONFLICT (day, slot) DO UPDATE SET subject = EXCLUDED.subject, message = EXCLUDED.message,
		grp = EXCLUDED.grp, serie = EXCLUDED.serie, course_id = EXCLUDED.course_id,
		version = planning_slot.version + 1, updated_at = EXCLUDED.updated_at
		RETURNING *`
	insertSlotQuery = `INSERT INTO planning_slot (day, slot, subject, message, grp, serie, course_id, version, updated_at)
		VALUES (:day, :slot, :subject, :message, :grp, :serie, :course_id, 1, :updated_at)
		ON CONFLICT (day, slot) DO NOTHING
		RETURNING *`
	updateSlotQuery = `UPDATE planning_slot SET subject = :subject, message = :message, grp = :grp, serie = :serie,
		course_id = :course_id, version = version + 1, updated_at = :updated_at
		WHERE day = :day AND slot = :slot AND version = :version
		RETURNING *`
)

// UpsertSlot writes in a single statement so that the version check and the write cannot interleave
// with another writer.
func (repo *planningRepository) UpsertSlot(ctx context.Context, s planning.SlotEntry, expectedVersion *int) (planning.SlotEntry, error) {
	row := toSlotRow(s)
	q := upsertSlotQuery
	if expectedVersion != nil {
		if *expectedVersion == 0 {
			q = insertSlotQuery
		} else {
			q = updateSlotQuery
			row.Version = *expectedVersion
		}
	}

	rows, err := repo.db.NamedQueryContext(ctx, q, row)
	if err != nil {
		return planning.SlotEntry{}, errors.Wrap(err, "saving slot")
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err = rows.Err(); err != nil {
			return planning.SlotEntry{}, errors.Wrap(err, "saving slot")
		}
		return planning.SlotEntry{}, core.ErrConflict
	}
	var saved slotRow
	if err = rows.StructScan(&saved); err != nil {
		return planning.SlotEntry{}, errors.Wrap(err, "scanning slot")
	}
	return saved.entry(), nil
}

func (repo *planningRepository) DeleteSlot(ctx context.Context, day, slot string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM planning_slot WHERE day = $1 AND slot = $2`, day, slot)
	if err != nil {
		return errors.Wrap(err, "deleting slot")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return planning.ErrNotFound
	}
	return nil
}
