package walindex

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yndnr/metastore-go/internal/core/domain"
)

const testSegment = "wal-00000001.log"

func rec(table domain.TableID, key string, action domain.Action, offset int64, length int32, version uint64) Record {
	return Record{
		Action:  action,
		Table:   table,
		Key:     []byte(key),
		Offset:  offset,
		Length:  length,
		Version: version,
		Segment: testSegment,
	}
}

func newAcc(t *testing.T, tables int) *Accumulator {
	t.Helper()
	acc, err := NewAccumulator(tables)
	require.NoError(t, err)
	return acc
}

func requireSizes(t *testing.T, acc *Accumulator) {
	t.Helper()
	var total int64
	for id := range acc.TableCount() {
		tid := domain.TableID(id)
		var live int64
		acc.Table(tid).Scan(func(e Entry) bool {
			live += e.Size()
			return true
		})
		require.Equal(t, live, acc.TableSize(tid), "table %d size", id)
		require.Equal(t, live, acc.Table(tid).Size(), "table %d store size", id)
		require.GreaterOrEqual(t, acc.TableSize(tid), int64(0))
		total += live
	}
	require.Equal(t, total, acc.TotalSize())
}

func TestNewAccumulator_TableCount(t *testing.T) {
	_, err := NewAccumulator(0)
	require.ErrorIs(t, err, ErrInvalidTable)

	_, err = NewAccumulator(domain.MaxTables + 1)
	require.ErrorIs(t, err, ErrInvalidTable)

	acc := newAcc(t, domain.MaxTables)
	require.Equal(t, domain.MaxTables, acc.TableCount())
	require.Nil(t, acc.Table(domain.MaxTables))
}

func TestAccumulator_InsertDeleteScenario(t *testing.T) {
	acc := newAcc(t, 4)

	require.NoError(t, acc.Apply(rec(0, "a", domain.ActionInsert, 0, 10, 1)))
	require.NoError(t, acc.Apply(rec(0, "b", domain.ActionInsert, 10, 5, 2)))
	require.NoError(t, acc.Apply(rec(0, "a", domain.ActionDelete, 15, 7, 3)))

	require.Equal(t, []string{"b"}, keysOf(acc.Table(0)))
	require.Equal(t, int64(entryFixedSize+1), acc.TotalSize())
	require.Equal(t, uint64(3), acc.MaxVersion())
	require.Equal(t, int64(22), acc.MaxOffset())
	require.Equal(t, testSegment, acc.Segment())
	require.Equal(t, 3, acc.Applied())
	require.Equal(t, 1, acc.Entries())
	requireSizes(t, acc)
}

func TestAccumulator_UpdateMovesToTail(t *testing.T) {
	acc := newAcc(t, 2)

	require.NoError(t, acc.Apply(rec(1, "k1", domain.ActionInsert, 0, 10, 1)))
	require.NoError(t, acc.Apply(rec(1, "k2", domain.ActionInsert, 10, 10, 2)))
	require.NoError(t, acc.Apply(rec(1, "k1", domain.ActionUpdate, 20, 12, 3)))

	require.Equal(t, []string{"k2", "k1"}, keysOf(acc.Table(1)))
	e, ok := acc.Table(1).Get([]byte("k1"))
	require.True(t, ok)
	require.Equal(t, int64(20), e.Offset)
	require.Equal(t, int32(12), e.Length)
	require.Equal(t, 2, acc.Table(1).Len())
	requireSizes(t, acc)
}

func TestAccumulator_MissingKey(t *testing.T) {
	for _, action := range []domain.Action{domain.ActionDelete, domain.ActionUpdate} {
		t.Run(action.String(), func(t *testing.T) {
			acc := newAcc(t, 2)
			require.NoError(t, acc.Apply(rec(0, "x", domain.ActionInsert, 0, 8, 1)))

			err := acc.Apply(rec(0, "ghost", action, 8, 8, 2))
			require.ErrorIs(t, err, ErrMissingKey)

			// Same key in another table is also absent.
			err = acc.Apply(rec(1, "x", action, 8, 8, 2))
			require.ErrorIs(t, err, ErrMissingKey)

			require.Equal(t, uint64(1), acc.MaxVersion(), "failed apply must not move aggregates")
			require.Equal(t, int64(8), acc.MaxOffset())
			require.Equal(t, 1, acc.Applied())
			requireSizes(t, acc)
		})
	}
}

func TestAccumulator_RejectsBadRecords(t *testing.T) {
	acc := newAcc(t, 2)
	require.NoError(t, acc.Apply(rec(0, "x", domain.ActionInsert, 0, 8, 1)))

	require.ErrorIs(t, acc.Apply(rec(2, "y", domain.ActionInsert, 8, 8, 2)), ErrInvalidTable)
	require.ErrorIs(t, acc.Apply(rec(-1, "y", domain.ActionInsert, 8, 8, 2)), ErrInvalidTable)
	require.ErrorIs(t, acc.Apply(rec(0, "y", domain.ActionUnspecified, 8, 8, 2)), ErrInvalidAction)
	require.ErrorIs(t, acc.Apply(rec(0, "x", domain.ActionInsert, 8, 8, 2)), ErrDuplicateKey)
	require.Error(t, acc.Apply(rec(0, "y", domain.ActionInsert, -1, 8, 2)))

	other := rec(0, "y", domain.ActionInsert, 8, 8, 2)
	other.Segment = "wal-00000002.log"
	require.ErrorIs(t, acc.Apply(other), ErrSegmentMismatch)

	require.Equal(t, 1, acc.Entries())
	require.Equal(t, uint64(1), acc.MaxVersion())
	requireSizes(t, acc)
}

func TestAccumulator_NegativeAccounting(t *testing.T) {
	acc := newAcc(t, 1)
	require.NoError(t, acc.Apply(rec(0, "k", domain.ActionInsert, 0, 8, 1)))

	// Simulate a corrupted running total.
	acc.totalSize = 0
	acc.tableSize[0] = 0

	err := acc.Apply(rec(0, "k", domain.ActionDelete, 8, 8, 2))
	require.ErrorIs(t, err, ErrNegativeAccounting)
	require.Equal(t, 1, acc.Table(0).Len(), "entry must survive a rejected delete")
}

func TestAccumulator_RandomizedMatchesModel(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	acc := newAcc(t, 3)

	type pos struct {
		offset int64
		length int32
	}
	model := make([]map[string]pos, 3)
	order := make([][]string, 3)
	for i := range model {
		model[i] = map[string]pos{}
	}
	removeKey := func(list []string, k string) []string {
		for i, v := range list {
			if v == k {
				return append(list[:i:i], list[i+1:]...)
			}
		}
		return list
	}

	var offset int64
	for v := uint64(1); v <= 2000; v++ {
		table := domain.TableID(r.IntN(3))
		key := string(rune('a' + r.IntN(20)))
		length := int32(1 + r.IntN(64))

		_, live := model[table][key]
		var action domain.Action
		switch {
		case !live:
			action = domain.ActionInsert
		case r.IntN(2) == 0:
			action = domain.ActionUpdate
		default:
			action = domain.ActionDelete
		}

		require.NoError(t, acc.Apply(rec(table, key, action, offset, length, v)))

		if action != domain.ActionInsert {
			delete(model[table], key)
			order[table] = removeKey(order[table], key)
		}
		if action != domain.ActionDelete {
			model[table][key] = pos{offset, length}
			order[table] = append(order[table], key)
		}
		offset += int64(length)

		if v%100 == 0 {
			requireSizes(t, acc)
		}
	}

	for id := range 3 {
		tid := domain.TableID(id)
		got := keysOf(acc.Table(tid))
		if len(order[id]) == 0 {
			require.Empty(t, got)
			continue
		}
		require.Equal(t, order[id], got)
		for _, k := range got {
			e, ok := acc.Table(tid).Get([]byte(k))
			require.True(t, ok)
			require.Equal(t, model[id][k].offset, e.Offset)
			require.Equal(t, model[id][k].length, e.Length)
		}
	}
	require.Equal(t, uint64(2000), acc.MaxVersion())
	require.Equal(t, offset, acc.MaxOffset())
}

func TestAccumulator_NoteVersion(t *testing.T) {
	acc := newAcc(t, 1)
	require.NoError(t, acc.Apply(rec(0, "a", domain.ActionInsert, 8, 10, 4)))

	acc.NoteVersion(9)
	acc.NoteVersion(2)

	require.Equal(t, uint64(9), acc.MaxVersion())
	require.Equal(t, 1, acc.Applied())
	require.Equal(t, int64(18), acc.MaxOffset())
}
