package vault_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taskAssistant/internal/logger"
	"taskAssistant/internal/repository"
	"taskAssistant/internal/vault"

	"github.com/fernet/fernet-go"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestMain(m *testing.M) {
	logger.Init(true)
	os.Exit(m.Run())
}

func newDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func genKey(t *testing.T) string {
	t.Helper()
	var k fernet.Key
	require.NoError(t, k.Generate())
	return k.Encode()
}

// TestVault_Roundtrip тестирует шифрованное сохранение и чтение токена
func TestVault_Roundtrip(t *testing.T) {
	db := newDB(t)
	v, err := vault.New(db, genKey(t))
	require.NoError(t, err)
	ctx := context.Background()

	tok := &oauth2.Token{
		AccessToken:  "access-secret",
		RefreshToken: "refresh-secret",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour).Truncate(time.Second),
	}
	scopes := []string{"https://www.googleapis.com/auth/calendar.events"}
	require.NoError(t, v.Upsert(ctx, 1, "google_calendar", tok, scopes))

	cred, err := v.Get(ctx, 1, "google_calendar")
	require.NoError(t, err)
	assert.Equal(t, "access-secret", cred.Token.AccessToken)
	assert.Equal(t, "refresh-secret", cred.Token.RefreshToken)
	assert.Equal(t, tok.Expiry.Unix(), cred.Token.Expiry.Unix())
	assert.Equal(t, scopes, cred.Scopes)

	// секреты не лежат в базе открытым текстом
	var blob string
	require.NoError(t, db.QueryRow(`SELECT token_blob FROM oauth_tokens`).Scan(&blob))
	assert.NotContains(t, blob, "access-secret")
	assert.NotContains(t, blob, "refresh-secret")

	assert.True(t, v.IsConnected(ctx, 1, "google_calendar"))
	assert.False(t, v.IsConnected(ctx, 2, "google_calendar"))

	require.NoError(t, v.Delete(ctx, 1, "google_calendar"))
	_, err = v.Get(ctx, 1, "google_calendar")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

// TestVault_UpsertReplaces тестирует перезапись токена после refresh
func TestVault_UpsertReplaces(t *testing.T) {
	db := newDB(t)
	v, err := vault.New(db, genKey(t))
	require.NoError(t, err)
	ctx := context.Background()

	old := &oauth2.Token{AccessToken: "old", RefreshToken: "keep"}
	require.NoError(t, v.Upsert(ctx, 1, "google_calendar", old, nil))

	fresh := &oauth2.Token{AccessToken: "fresh", RefreshToken: "keep",
		Expiry: time.Now().Add(time.Hour)}
	require.NoError(t, v.Upsert(ctx, 1, "google_calendar", fresh, nil))

	cred, err := v.Get(ctx, 1, "google_calendar")
	require.NoError(t, err)
	assert.Equal(t, "fresh", cred.Token.AccessToken)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM oauth_tokens`).Scan(&n))
	assert.Equal(t, 1, n)
}

// TestVault_LegacyPlaintext тестирует чтение нешифрованного блоба:
// старые инсталляции поднимаются без повторного provisioning
func TestVault_LegacyPlaintext(t *testing.T) {
	db := newDB(t)
	v, err := vault.New(db, genKey(t))
	require.NoError(t, err)
	ctx := context.Background()

	legacy, _ := json.Marshal(map[string]any{
		"access_token":  "plain-access",
		"refresh_token": "plain-refresh",
		"token_type":    "Bearer",
	})
	_, err = db.Exec(`
		INSERT INTO oauth_tokens (user_id, provider, token_blob, updated_at)
		VALUES (1, 'google_calendar', ?, ?)`, string(legacy), time.Now().Unix())
	require.NoError(t, err)

	cred, err := v.Get(ctx, 1, "google_calendar")
	require.NoError(t, err)
	assert.Equal(t, "plain-access", cred.Token.AccessToken)

	// после перезаписи блоб уже зашифрован
	require.NoError(t, v.Upsert(ctx, 1, "google_calendar", cred.Token, cred.Scopes))
	var blob string
	require.NoError(t, db.QueryRow(`SELECT token_blob FROM oauth_tokens`).Scan(&blob))
	assert.NotContains(t, blob, "plain-access")
	assert.True(t, strings.HasPrefix(blob, "g"), "fernet-токены начинаются с версии 0x80 в base64url")
}

// TestVault_NoKey тестирует работу без ключа шифрования
func TestVault_NoKey(t *testing.T) {
	db := newDB(t)
	v, err := vault.New(db, "")
	require.NoError(t, err)
	ctx := context.Background()

	tok := &oauth2.Token{AccessToken: "open-access"}
	require.NoError(t, v.Upsert(ctx, 1, "google_calendar", tok, nil))

	cred, err := v.Get(ctx, 1, "google_calendar")
	require.NoError(t, err)
	assert.Equal(t, "open-access", cred.Token.AccessToken)
}

// TestVault_RejectsEmptyToken тестирует защиту от пустых записей
func TestVault_RejectsEmptyToken(t *testing.T) {
	db := newDB(t)
	v, err := vault.New(db, "")
	require.NoError(t, err)

	assert.Error(t, v.Upsert(context.Background(), 1, "google_calendar", nil, nil))
	assert.Error(t, v.Upsert(context.Background(), 1, "google_calendar", &oauth2.Token{}, nil))
}

// TestVault_BadKey тестирует отклонение некорректного ключа
func TestVault_BadKey(t *testing.T) {
	_, err := vault.New(newDB(t), "не-base64-ключ")
	assert.Error(t, err)
}
