package state

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiteleaf/exthost/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func TestGetMissingKeyReturnsNull(t *testing.T) {
	s := newTestStore(t)

	v, err := s.Get(context.Background(), "ext.a", "missing")
	require.NoError(t, err)
	assert.Equal(t, "null", string(v))
}

func TestSetGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "ext.a", "cursor", json.RawMessage(`{"line":3,"col":14}`)))

	v, err := s.Get(ctx, "ext.a", "cursor")
	require.NoError(t, err)
	assert.JSONEq(t, `{"line":3,"col":14}`, string(v))

	// Overwrite.
	require.NoError(t, s.Set(ctx, "ext.a", "cursor", json.RawMessage(`{"line":9,"col":1}`)))
	v, err = s.Get(ctx, "ext.a", "cursor")
	require.NoError(t, err)
	assert.JSONEq(t, `{"line":9,"col":1}`, string(v))
}

func TestValuesAreNamespacedPerPlugin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "ext.a", "k", json.RawMessage(`1`)))
	require.NoError(t, s.Set(ctx, "ext.b", "k", json.RawMessage(`2`)))

	v, err := s.Get(ctx, "ext.a", "k")
	require.NoError(t, err)
	assert.Equal(t, "1", string(v))

	v, err = s.Get(ctx, "ext.b", "k")
	require.NoError(t, err)
	assert.Equal(t, "2", string(v))
}

func TestSetNullDeletes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "ext.a", "k", json.RawMessage(`"v"`)))
	require.NoError(t, s.Set(ctx, "ext.a", "k", json.RawMessage(`null`)))

	v, err := s.Get(ctx, "ext.a", "k")
	require.NoError(t, err)
	assert.Equal(t, "null", string(v))

	keys, err := s.Keys(ctx, "ext.a")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestSetRejectsInvalidInput(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.Error(t, s.Set(ctx, "", "k", json.RawMessage(`1`)))
	assert.Error(t, s.Set(ctx, "ext.a", "", json.RawMessage(`1`)))
	assert.Error(t, s.Set(ctx, "ext.a", "k", json.RawMessage(`{not json`)))
}

func TestKeysSorted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, s.Set(ctx, "ext.a", k, json.RawMessage(`true`)))
	}

	keys, err := s.Keys(ctx, "ext.a")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, keys)
}

func TestServiceInvoke(t *testing.T) {
	s := newTestStore(t)
	svc := NewService(s)
	ctx := context.Background()

	_, err := svc.Invoke(ctx, "set", []json.RawMessage{
		json.RawMessage(`"ext.a"`), json.RawMessage(`"theme"`), json.RawMessage(`"dark"`),
	})
	require.NoError(t, err)

	out, err := svc.Invoke(ctx, "get", []json.RawMessage{
		json.RawMessage(`"ext.a"`), json.RawMessage(`"theme"`),
	})
	require.NoError(t, err)
	assert.Equal(t, `"dark"`, string(out.(json.RawMessage)))

	out, err = svc.Invoke(ctx, "keys", []json.RawMessage{json.RawMessage(`"ext.a"`)})
	require.NoError(t, err)
	assert.Equal(t, []string{"theme"}, out.([]string))

	_, err = svc.Invoke(ctx, "drop", nil)
	assert.Error(t, err)
}
