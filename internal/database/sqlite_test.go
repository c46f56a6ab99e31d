package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beacon-notify/beacon/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "beacon.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedServer(t *testing.T, db *DB, name string) *models.ServerConfig {
	t.Helper()
	server := models.NewServerConfig(name, "https://push.example.com", "tok-"+name)
	require.NoError(t, db.CreateServer(server))
	return server
}

func seedMessage(t *testing.T, db *DB, serverID uuid.UUID, msgID int64) *models.Message {
	t.Helper()
	msg := models.NewMessage(serverID, msgID, 1, "title", "body", 5, time.Now(), nil)
	require.NoError(t, db.CreateMessage(msg))
	return msg
}

func TestServerOperations(t *testing.T) {
	db := newTestDB(t)

	t.Run("create and get round trip", func(t *testing.T) {
		server := seedServer(t, db, "nas")

		got, err := db.GetServer(server.ID)
		require.NoError(t, err)
		assert.Equal(t, server.ID, got.ID)
		assert.Equal(t, "nas", got.Name)
		assert.Equal(t, "https://push.example.com", got.URL)
		assert.True(t, got.Enabled)
		assert.Nil(t, got.LastConnected)
	})

	t.Run("get missing server returns ErrNotFound", func(t *testing.T) {
		_, err := db.GetServer(uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update stamps last connected", func(t *testing.T) {
		server := seedServer(t, db, "lab")
		at := time.Now().Truncate(time.Second)

		require.NoError(t, db.UpdateServerLastConnected(server.ID, at))

		got, err := db.GetServer(server.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastConnected)
		assert.WithinDuration(t, at, *got.LastConnected, time.Second)
	})

	t.Run("update missing server returns ErrNotFound", func(t *testing.T) {
		server := models.NewServerConfig("ghost", "https://x.example.com", "tok")
		assert.ErrorIs(t, db.UpdateServer(server), ErrNotFound)
	})
}

func TestApplicationOperations(t *testing.T) {
	db := newTestDB(t)
	server := seedServer(t, db, "main")

	t.Run("app ids are scoped per server", func(t *testing.T) {
		other := seedServer(t, db, "other")

		require.NoError(t, db.CreateApplication(models.NewApplication(server.ID, 1, "disk", "", "")))
		require.NoError(t, db.CreateApplication(models.NewApplication(other.ID, 1, "backup", "", "")))

		// Same (server, app_id) pair is rejected
		err := db.CreateApplication(models.NewApplication(server.ID, 1, "dup", "", ""))
		assert.Error(t, err)

		app, err := db.GetApplication(server.ID, 1)
		require.NoError(t, err)
		assert.Equal(t, "disk", app.Name)
	})

	t.Run("notify toggle persists", func(t *testing.T) {
		app := models.NewApplication(server.ID, 2, "cron", "", "")
		require.NoError(t, db.CreateApplication(app))

		require.NoError(t, db.SetApplicationNotify(app.ID, false))

		got, err := db.GetApplication(server.ID, 2)
		require.NoError(t, err)
		assert.False(t, got.NotifyEnabled)
	})

	t.Run("reconciliation applies atomically", func(t *testing.T) {
		target := seedServer(t, db, "recon")
		stale := models.NewApplication(target.ID, 10, "old", "", "")
		kept := models.NewApplication(target.ID, 11, "kept", "", "")
		require.NoError(t, db.CreateApplication(stale))
		require.NoError(t, db.CreateApplication(kept))

		kept.Name = "kept-renamed"
		kept.UpdatedAt = time.Now()
		fresh := models.NewApplication(target.ID, 12, "fresh", "", "")

		err := db.ApplyApplicationChanges(
			[]*models.Application{fresh},
			[]*models.Application{kept},
			[]uuid.UUID{stale.ID},
		)
		require.NoError(t, err)

		apps, err := db.ListApplications(target.ID)
		require.NoError(t, err)
		require.Len(t, apps, 2)
		assert.Equal(t, "kept-renamed", apps[0].Name)
		assert.Equal(t, "fresh", apps[1].Name)
	})

	t.Run("failed reconciliation applies nothing", func(t *testing.T) {
		target := seedServer(t, db, "recon-fail")
		existing := models.NewApplication(target.ID, 20, "existing", "", "")
		require.NoError(t, db.CreateApplication(existing))

		// Second create collides with the existing app id
		good := models.NewApplication(target.ID, 21, "good", "", "")
		bad := models.NewApplication(target.ID, 20, "bad", "", "")

		err := db.ApplyApplicationChanges([]*models.Application{good, bad}, nil, nil)
		require.Error(t, err)

		apps, err := db.ListApplications(target.ID)
		require.NoError(t, err)
		require.Len(t, apps, 1)
		assert.Equal(t, "existing", apps[0].Name)
	})
}

func TestMessageOperations(t *testing.T) {
	db := newTestDB(t)
	server := seedServer(t, db, "main")

	t.Run("extras round trip through storage", func(t *testing.T) {
		extras := models.Extras{
			"count": models.IntValue(7),
			"ratio": models.FloatValue(0.5),
		}
		msg := models.NewMessage(server.ID, 1, 1, "t", "b", 5, time.Now(), extras)
		require.NoError(t, db.CreateMessage(msg))

		got, err := db.GetMessage(msg.ID)
		require.NoError(t, err)
		assert.Equal(t, models.IntValue(7), got.Extras["count"])
		assert.Equal(t, models.FloatValue(0.5), got.Extras["ratio"])
	})

	t.Run("listing orders newest first", func(t *testing.T) {
		scoped := seedServer(t, db, "ordered")
		base := time.Now()
		for i := 0; i < 3; i++ {
			msg := models.NewMessage(scoped.ID, int64(i), 1, "", "body", 0, base.Add(time.Duration(i)*time.Minute), nil)
			require.NoError(t, db.CreateMessage(msg))
		}

		msgs, err := db.ListMessagesByServer(scoped.ID, 10)
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, int64(2), msgs[0].MsgID)
		assert.Equal(t, int64(0), msgs[2].MsgID)
	})

	t.Run("mark read reports whether the flag changed", func(t *testing.T) {
		msg := seedMessage(t, db, server.ID, 100)

		changed, err := db.MarkMessageRead(msg.ID)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = db.MarkMessageRead(msg.ID)
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("mark all read is a bulk operation and idempotent", func(t *testing.T) {
		scoped := seedServer(t, db, "bulk")
		seedMessage(t, db, scoped.ID, 200)
		seedMessage(t, db, scoped.ID, 201)

		n, err := db.MarkAllMessagesRead()
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		n, err = db.MarkAllMessagesRead()
		require.NoError(t, err)
		assert.Zero(t, n)

		unread, err := db.CountUnreadMessages()
		require.NoError(t, err)
		assert.Zero(t, unread)
	})

	t.Run("delete missing message returns ErrNotFound", func(t *testing.T) {
		assert.ErrorIs(t, db.DeleteMessage(uuid.New()), ErrNotFound)
	})
}

func TestDeleteServerCascades(t *testing.T) {
	db := newTestDB(t)

	server := seedServer(t, db, "doomed")
	survivor := seedServer(t, db, "survivor")

	require.NoError(t, db.CreateApplication(models.NewApplication(server.ID, 1, "app", "", "")))
	seedMessage(t, db, server.ID, 1)
	survivorMsg := seedMessage(t, db, survivor.ID, 1)

	require.NoError(t, db.DeleteServer(server.ID))

	_, err := db.GetServer(server.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	apps, err := db.ListApplications(server.ID)
	require.NoError(t, err)
	assert.Empty(t, apps)

	msgs, err := db.ListMessagesByServer(server.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	// The other server's data is untouched
	got, err := db.GetMessage(survivorMsg.ID)
	require.NoError(t, err)
	assert.Equal(t, survivor.ID, got.ServerID)
}

func TestSettings(t *testing.T) {
	db := newTestDB(t)

	t.Run("defaults when no row exists", func(t *testing.T) {
		settings, err := db.GetSettings()
		require.NoError(t, err)
		assert.True(t, settings.ShowNotifications)
		assert.True(t, settings.PlaySound)
	})

	t.Run("save and reload", func(t *testing.T) {
		require.NoError(t, db.SaveSettings(&models.Settings{ShowNotifications: false, PlaySound: true}))

		settings, err := db.GetSettings()
		require.NoError(t, err)
		assert.False(t, settings.ShowNotifications)
		assert.True(t, settings.PlaySound)

		// Upsert overwrites the singleton row
		require.NoError(t, db.SaveSettings(&models.Settings{ShowNotifications: true, PlaySound: false}))

		settings, err = db.GetSettings()
		require.NoError(t, err)
		assert.True(t, settings.ShowNotifications)
		assert.False(t, settings.PlaySound)
	})
}
