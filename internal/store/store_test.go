package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picksy/syncd/internal/models"
)

func TestParseStatement(t *testing.T) {
	t.Run("select all", func(t *testing.T) {
		stmt, err := ParseStatement("SELECT * FROM photos")
		require.NoError(t, err)
		assert.Equal(t, KindSelect, stmt.Kind)
		assert.Equal(t, "photos", stmt.Collection)
		assert.Empty(t, stmt.IDParam)
	})

	t.Run("select by id", func(t *testing.T) {
		stmt, err := ParseStatement("select * from app_state where _id = :id;")
		require.NoError(t, err)
		assert.Equal(t, "app_state", stmt.Collection)
		assert.Equal(t, "id", stmt.IDParam)
	})

	t.Run("batched upsert", func(t *testing.T) {
		stmt, err := ParseStatement("INSERT INTO photos DOCUMENTS (:doc0), (:doc1),(:doc2) ON ID CONFLICT DO UPDATE")
		require.NoError(t, err)
		assert.Equal(t, KindInsert, stmt.Kind)
		assert.True(t, stmt.Upsert)
		assert.Equal(t, []string{"doc0", "doc1", "doc2"}, stmt.DocParams)
	})

	t.Run("plain insert", func(t *testing.T) {
		stmt, err := ParseStatement("INSERT INTO photos DOCUMENTS (:doc)")
		require.NoError(t, err)
		assert.False(t, stmt.Upsert)
	})

	t.Run("update", func(t *testing.T) {
		stmt, err := ParseStatement("UPDATE photos SET favorite = :fav, config = :cfg WHERE _id = :id")
		require.NoError(t, err)
		assert.Equal(t, KindUpdate, stmt.Kind)
		assert.Equal(t, []Assignment{{"favorite", "fav"}, {"config", "cfg"}}, stmt.Sets)
		assert.Equal(t, "id", stmt.IDParam)
	})

	t.Run("delete", func(t *testing.T) {
		stmt, err := ParseStatement("DELETE FROM photos WHERE _id = :id")
		require.NoError(t, err)
		assert.Equal(t, KindDelete, stmt.Kind)

		stmt, err = ParseStatement("DELETE FROM photos")
		require.NoError(t, err)
		assert.Empty(t, stmt.IDParam)
	})

	t.Run("unsupported", func(t *testing.T) {
		for _, q := range []string{
			"SELECT name FROM photos",
			"SELECT * FROM photos WHERE favorite = true",
			"INSERT INTO photos DOCUMENTS ({})",
			"UPDATE photos SET _id = :x WHERE _id = :id",
			"DROP TABLE photos",
		} {
			_, err := ParseStatement(q)
			assert.ErrorIs(t, err, ErrUnsupportedQuery, q)

			var qe *QueryError
			assert.True(t, errors.As(err, &qe), q)
		}
	})
}

func TestStatementDocuments(t *testing.T) {
	stmt, err := ParseStatement("INSERT INTO photos DOCUMENTS (:a), (:b)")
	require.NoError(t, err)

	t.Run("resolves maps and structs", func(t *testing.T) {
		docs, err := stmt.Documents(map[string]any{
			"a": map[string]any{"_id": "1", "favorite": true},
			"b": models.StoredState{ID: "2"},
		})
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "1", docs[0].ID())
		assert.Equal(t, "2", docs[1].ID())
	})

	t.Run("missing param", func(t *testing.T) {
		_, err := stmt.Documents(map[string]any{"a": map[string]any{"_id": "1"}})
		assert.ErrorIs(t, err, ErrMissingParam)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := stmt.Documents(map[string]any{"a": map[string]any{}, "b": map[string]any{"_id": "x"}})
		assert.Error(t, err)
	})
}

func TestMerge(t *testing.T) {
	base := Document{"_id": "a", "favorite": true, "path": "/old"}
	merged := Merge(base, Document{"_id": "a", "path": "/new"})

	assert.Equal(t, true, merged["favorite"])
	assert.Equal(t, "/new", merged["path"])
	assert.Equal(t, "/old", base["path"])
}

func TestDispatcherOrder(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		d.Submit(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	d.Flush()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestDispatcherDropsAfterClose(t *testing.T) {
	d := NewDispatcher()
	d.Close()

	ran := false
	d.Submit(func() { ran = true })
	d.Flush()
	assert.False(t, ran)
}

func TestObserverSet(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	set := NewObserverSet(d, func(stmt *Statement, params map[string]any) (*QueryResult, error) {
		return &QueryResult{Items: []Document{{"_id": stmt.Collection}}}, nil
	})

	results := make(chan *QueryResult, 10)
	obs, err := set.Register("SELECT * FROM photos", nil, func(r *QueryResult) { results <- r })
	require.NoError(t, err)

	select {
	case r := <-results:
		assert.Equal(t, "photos", r.Items[0].ID())
	case <-time.After(time.Second):
		t.Fatal("initial result not delivered")
	}

	set.Notify("app_state")
	set.Notify("photos")
	d.Flush()
	assert.Len(t, results, 1)

	obs.Cancel()
	obs.Cancel()
	set.Notify("photos")
	d.Flush()
	assert.Len(t, results, 1)

	_, err = set.Register("DELETE FROM photos", nil, func(*QueryResult) {})
	assert.ErrorIs(t, err, ErrUnsupportedQuery)
}

func TestSyncTelemetry(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	telemetry := NewSyncTelemetry(d)
	var seen []models.SyncInfo
	cancel := telemetry.Observe(func(info models.SyncInfo) { seen = append(seen, info) })
	defer cancel()

	telemetry.SetConnected(true)
	telemetry.SetConnected(true)
	telemetry.AdvanceSyncedUpTo(5)
	telemetry.AdvanceSyncedUpTo(3)
	d.Flush()

	info := telemetry.Info()
	assert.True(t, info.Connected)
	require.NotNil(t, info.SyncedUpToLocalCommitID)
	assert.Equal(t, uint64(5), *info.SyncedUpToLocalCommitID)
	assert.Len(t, seen, 2, "repeated connect and lower watermark do not fire")
}

func TestPresenceHub(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	hub := NewPresenceHub(models.Peer{PeerKey: "local", DeviceName: "laptop"}, d)
	var graphs []models.PresenceGraph
	hub.Observe(func(g models.PresenceGraph) { graphs = append(graphs, g) })

	hub.SetRemotePeers([]models.Peer{{PeerKey: "p1"}, {PeerKey: "p2"}})
	hub.SetRemotePeers(nil)
	d.Flush()

	require.Len(t, graphs, 2)
	assert.Equal(t, "local", graphs[0].LocalPeer.PeerKey)
	assert.Len(t, graphs[0].RemotePeers, 2)
	assert.Empty(t, graphs[1].RemotePeers)
	assert.NotNil(t, hub.Graph().RemotePeers)
}
