package conflict

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"miniups-gateway/internal/domain"
)

func testRecord(entityID string) *domain.ConflictRecord {
	return &domain.ConflictRecord{
		EntityID:    entityID,
		EntityType:  domain.EntityShipment,
		OurChanges:  domain.FieldsOf("status", "DELIVERED"),
		ServerState: domain.FieldsOf("status", "IN_TRANSIT"),
	}
}

func TestStoreAddDoesNotActivate(t *testing.T) {
	store := NewStore()

	id := store.Add(testRecord("UPS1"))
	require.NotEmpty(t, id)

	assert.Nil(t, store.Active())
	assert.Equal(t, 1, store.Len())

	rec, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, domain.DefaultConflictType, rec.ConflictType)
	assert.False(t, rec.Timestamp.IsZero())
}

func TestStoreIDsAreUnique(t *testing.T) {
	store := NewStore()
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := store.Add(testRecord("UPS1"))
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Equal(t, 50, store.Len())
}

func TestStoreSetActive(t *testing.T) {
	store := NewStore()
	id := store.Add(testRecord("UPS1"))

	assert.False(t, store.SetActive("missing"))
	assert.Nil(t, store.Active())

	assert.True(t, store.SetActive(id))
	require.NotNil(t, store.Active())
	assert.Equal(t, id, store.Active().ID)
}

func TestStoreRemoveClearsActive(t *testing.T) {
	store := NewStore()
	first := store.Add(testRecord("UPS1"))
	second := store.Add(testRecord("UPS2"))
	store.SetActive(first)

	assert.True(t, store.Remove(first))
	assert.Nil(t, store.Active())
	assert.False(t, store.Remove(first))

	_, err := store.Get(first)
	assert.ErrorIs(t, err, ErrConflictNotFound)
	assert.Equal(t, 1, store.Position(second))
}

func TestStoreRemoveKeepsOtherActive(t *testing.T) {
	store := NewStore()
	first := store.Add(testRecord("UPS1"))
	second := store.Add(testRecord("UPS2"))
	store.SetActive(second)

	store.Remove(first)
	require.NotNil(t, store.Active())
	assert.Equal(t, second, store.Active().ID)
}

func TestStoreQueueOrder(t *testing.T) {
	store := NewStore()
	var ids []string
	for i := 1; i <= 3; i++ {
		ids = append(ids, store.Add(testRecord(fmt.Sprintf("UPS%d", i))))
	}

	pending := store.Pending()
	require.Len(t, pending, 3)
	for i, rec := range pending {
		assert.Equal(t, ids[i], rec.ID)
		assert.Equal(t, i+1, store.Position(rec.ID))
	}
	assert.Equal(t, 0, store.Position("missing"))
}

func TestStoreActivateNext(t *testing.T) {
	store := NewStore()
	assert.Nil(t, store.ActivateNext())

	a := store.Add(testRecord("A"))
	b := store.Add(testRecord("B"))
	c := store.Add(testRecord("C"))

	assert.Equal(t, a, store.ActivateNext().ID)
	assert.Equal(t, b, store.ActivateNext().ID)
	assert.Equal(t, c, store.ActivateNext().ID)
	assert.Equal(t, a, store.ActivateNext().ID)

	store.ClearActive()
	assert.Empty(t, store.ActiveID())
}

func TestStoreSnapshotsAreIsolated(t *testing.T) {
	store := NewStore()
	id := store.Add(testRecord("UPS1"))

	rec, err := store.Get(id)
	require.NoError(t, err)
	rec.EntityID = "changed"

	again, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "UPS1", again.EntityID)
}

func TestStoreHistoryNewestFirst(t *testing.T) {
	store := NewStore()
	store.historyLimit = 2

	store.AddResolution(domain.ResolutionEntry{ConflictID: "c1"})
	store.AddResolution(domain.ResolutionEntry{ConflictID: "c2"})
	store.AddResolution(domain.ResolutionEntry{ConflictID: "c3"})

	history := store.History()
	require.Len(t, history, 2)
	assert.Equal(t, "c3", history[0].ConflictID)
	assert.Equal(t, "c2", history[1].ConflictID)
}

func TestStoreClear(t *testing.T) {
	store := NewStore()
	id := store.Add(testRecord("UPS1"))
	store.SetActive(id)

	store.Clear()
	assert.Equal(t, 0, store.Len())
	assert.Nil(t, store.Active())
}

func TestStoreClaim(t *testing.T) {
	store := NewStore()
	id := store.Add(testRecord("UPS1"))

	rec, err := store.Claim(id)
	require.NoError(t, err)
	assert.Equal(t, "UPS1", rec.EntityID)

	_, err = store.Claim(id)
	assert.ErrorIs(t, err, ErrResolutionInProgress)
	_, err = store.Take(id)
	assert.ErrorIs(t, err, ErrResolutionInProgress)

	store.Release(id)
	_, err = store.Claim(id)
	require.NoError(t, err)

	store.Remove(id)
	_, err = store.Claim(id)
	assert.ErrorIs(t, err, ErrConflictNotFound)
}

func TestStoreConcurrentAdds(t *testing.T) {
	store := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := store.Add(testRecord(fmt.Sprintf("UPS%d", i)))
			store.SetActive(id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, store.Len())
	assert.NotNil(t, store.Active())
}
