package vault

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"taskAssistant/internal/logger"
	repo "taskAssistant/internal/repository"

	"github.com/fernet/fernet-go"
	"golang.org/x/oauth2"
	"go.uber.org/zap"
)

// Credential — живой, возможно уже обновлённый токен на один вызов.
// Расшифрованный блоб не покидает пакет иначе как в этом виде.
type Credential struct {
	UserID    int64
	Provider  string
	Token     *oauth2.Token
	Scopes    []string
	Expiry    *int64
	UpdatedAt int64
}

// Vault — единственный компонент, читающий и пишущий токены в открытом виде.
// Блоб шифруется fernet-ключом; пустой ключ оставляет plaintext (с warning),
// легаси plaintext-строки читаются и перешифровываются при следующем Upsert.
type Vault struct {
	db   *sql.DB
	keys []*fernet.Key
}

type tokenBlob struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	TokenType    string   `json:"token_type,omitempty"`
	Expiry       *int64   `json:"expiry,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
}

func New(db *sql.DB, encryptionKey string) (*Vault, error) {
	v := &Vault{db: db}

	if encryptionKey == "" {
		logger.Warn("Vault: ENCRYPTION_KEY не задан — токены будут храниться в открытом виде")
	} else {
		keys, err := fernet.DecodeKeys(encryptionKey)
		if err != nil {
			return nil, fmt.Errorf("неверный ENCRYPTION_KEY: %w", err)
		}
		v.keys = keys
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS oauth_tokens (
			user_id INTEGER NOT NULL,
			provider TEXT NOT NULL,
			token_blob TEXT NOT NULL,
			expiry INTEGER,
			scopes TEXT,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, provider)
		);
	`); err != nil {
		return nil, fmt.Errorf("таблица oauth_tokens: %w", err)
	}

	return v, nil
}

// Upsert шифрует и сохраняет токен; идемпотентен по (user_id, provider).
// Единственный путь перезаписи учётки — refresh в календарном адаптере
// и первичный provisioning.
func (v *Vault) Upsert(ctx context.Context, userID int64, provider string, tok *oauth2.Token, scopes []string) error {
	if tok == nil || tok.AccessToken == "" {
		return errors.New("пустой токен не сохраняем")
	}

	blob := tokenBlob{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Scopes:       scopes,
	}
	var expiry *int64
	if !tok.Expiry.IsZero() {
		e := tok.Expiry.Unix()
		expiry = &e
		blob.Expiry = &e
	}

	enc, err := v.encrypt(blob)
	if err != nil {
		return fmt.Errorf("шифрование токена: %w", err)
	}

	scopesJSON, _ := json.Marshal(scopes)
	_, err = v.db.ExecContext(ctx, `
		INSERT INTO oauth_tokens (user_id, provider, token_blob, expiry, scopes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, provider) DO UPDATE SET
			token_blob = excluded.token_blob,
			expiry = excluded.expiry,
			scopes = excluded.scopes,
			updated_at = excluded.updated_at;`,
		userID, provider, enc, expiry, string(scopesJSON), time.Now().Unix(),
	)
	if err != nil {
		logger.Error("Vault: Не удалось сохранить токен", err,
			zap.Int64("user_id", userID), zap.String("provider", provider))
		return fmt.Errorf("сохранение токена: %w", err)
	}
	return nil
}

func (v *Vault) Get(ctx context.Context, userID int64, provider string) (*Credential, error) {
	var (
		enc       string
		expiry    *int64
		scopesRaw sql.NullString
		updatedAt int64
	)
	err := v.db.QueryRowContext(ctx, `
		SELECT token_blob, expiry, scopes, updated_at
		FROM oauth_tokens WHERE user_id = ? AND provider = ?;`,
		userID, provider,
	).Scan(&enc, &expiry, &scopesRaw, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		return nil, fmt.Errorf("чтение токена: %w", err)
	}

	blob, err := v.decrypt(enc)
	if err != nil {
		logger.Error("Vault: Блоб токена нечитаем", err,
			zap.Int64("user_id", userID), zap.String("provider", provider))
		return nil, fmt.Errorf("расшифровка токена: %w", err)
	}

	tok := &oauth2.Token{
		AccessToken:  blob.AccessToken,
		RefreshToken: blob.RefreshToken,
		TokenType:    blob.TokenType,
	}
	if blob.Expiry != nil {
		tok.Expiry = time.Unix(*blob.Expiry, 0)
	}

	var scopes []string
	if scopesRaw.Valid && scopesRaw.String != "" {
		json.Unmarshal([]byte(scopesRaw.String), &scopes)
	}
	if scopes == nil {
		scopes = blob.Scopes
	}

	return &Credential{
		UserID:    userID,
		Provider:  provider,
		Token:     tok,
		Scopes:    scopes,
		Expiry:    expiry,
		UpdatedAt: updatedAt,
	}, nil
}

// Delete — явный отзыв учётки; единственный поток удаления
func (v *Vault) Delete(ctx context.Context, userID int64, provider string) error {
	_, err := v.db.ExecContext(ctx,
		`DELETE FROM oauth_tokens WHERE user_id = ? AND provider = ?;`, userID, provider)
	if err != nil {
		return fmt.Errorf("удаление токена: %w", err)
	}
	return nil
}

func (v *Vault) IsConnected(ctx context.Context, userID int64, provider string) bool {
	_, err := v.Get(ctx, userID, provider)
	return err == nil
}

func (v *Vault) encrypt(blob tokenBlob) (string, error) {
	raw, err := json.Marshal(blob)
	if err != nil {
		return "", err
	}
	if len(v.keys) == 0 {
		return string(raw), nil
	}
	tok, err := fernet.EncryptAndSign(raw, v.keys[0])
	if err != nil {
		return "", err
	}
	return string(tok), nil
}

// decrypt пробует fernet, затем plaintext JSON — чтобы инсталляцию можно
// было мигрировать с нешифрованного хранения без повторного provisioning
func (v *Vault) decrypt(s string) (tokenBlob, error) {
	var blob tokenBlob
	if s == "" {
		return blob, errors.New("пустой блоб")
	}
	if len(v.keys) > 0 {
		if msg := fernet.VerifyAndDecrypt([]byte(s), 0, v.keys); msg != nil {
			if err := json.Unmarshal(msg, &blob); err != nil {
				return blob, fmt.Errorf("json внутри fernet: %w", err)
			}
			return blob, nil
		}
	}
	if err := json.Unmarshal([]byte(s), &blob); err != nil {
		return blob, errors.New("блоб не fernet и не json")
	}
	return blob, nil
}
