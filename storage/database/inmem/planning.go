package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/foundi/core"
	"github.com/trezcool/foundi/core/planning"
)

type planningRepository struct {
	db *planningTable
}

var _ planning.Repository = (*planningRepository)(nil) // interface compliance check

func NewPlanningRepository(db *DB) planning.Repository {
	return &planningRepository{db: db.planning}
}

func slotKey(day, slot string) string {
	return day + "/" + slot
}

func (repo *planningRepository) QuerySlots(_ context.Context) ([]planning.SlotEntry, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	entries := make([]planning.SlotEntry, 0, len(repo.db.table))
	for _, e := range repo.db.table {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return slotKey(entries[i].Day, entries[i].Slot) < slotKey(entries[j].Day, entries[j].Slot)
	})
	return entries, nil
}

func (repo *planningRepository) GetSlot(_ context.Context, day, slot string) (planning.SlotEntry, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if e, ok := repo.db.table[slotKey(day, slot)]; ok {
		return *e, nil
	}
	return planning.SlotEntry{}, planning.ErrNotFound
}

func (repo *planningRepository) UpsertSlot(_ context.Context, s planning.SlotEntry, expectedVersion *int) (planning.SlotEntry, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := slotKey(s.Day, s.Slot)
	var stored int
	if cur, ok := repo.db.table[key]; ok {
		stored = cur.Version
	}
	if expectedVersion != nil && *expectedVersion != stored {
		return planning.SlotEntry{}, core.ErrConflict
	}
	s.Version = stored + 1
	repo.db.table[key] = &s
	return s, nil
}

func (repo *planningRepository) DeleteSlot(_ context.Context, day, slot string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := slotKey(day, slot)
	if _, ok := repo.db.table[key]; !ok {
		return planning.ErrNotFound
	}
	delete(repo.db.table, key)
	return nil
}
