// gcalsetup проводит одноразовую авторизацию в Google Calendar:
// поднимает локальный сервер под redirect, меняет код на токены и
// кладёт их в зашифрованное хранилище ассистента.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"taskAssistant/internal/calendar"
	"taskAssistant/internal/config"
	"taskAssistant/internal/logger"
	"taskAssistant/internal/repository/sqlite"
	"taskAssistant/internal/vault"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const authPort = "6789"

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", os.Getenv("CONFIG_PATH"), "путь к config.yml")
	userID := flag.Int64("user", 0, "id пользователя (по умолчанию владелец из конфига)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("конфигурация: %v", err)
	}
	if err := logger.Init(cfg.Logging.Development); err != nil {
		log.Fatalf("логгер: %v", err)
	}
	defer logger.Sync()

	if *userID == 0 {
		*userID = cfg.OwnerUserID
	}

	clientID := os.Getenv("GOOGLE_CLIENT_ID")
	clientSecret := os.Getenv("GOOGLE_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		log.Fatal("заданы не все переменные: нужны GOOGLE_CLIENT_ID и GOOGLE_CLIENT_SECRET")
	}

	store, err := sqlite.New(cfg.Database.Path, cfg.Database.BusyTimeout)
	if err != nil {
		log.Fatalf("хранилище: %v", err)
	}
	defer store.Close()

	tokenVault, err := vault.New(store.DB(), os.Getenv("VAULT_ENCRYPTION_KEY"))
	if err != nil {
		log.Fatalf("хранилище токенов: %v", err)
	}

	oauthCfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       cfg.Google.Scopes,
		RedirectURL:  fmt.Sprintf("http://localhost:%s/oauth2callback", authPort),
	}

	tok, err := tokenFromWeb(oauthCfg)
	if err != nil {
		log.Fatalf("авторизация: %v", err)
	}
	if tok.RefreshToken == "" {
		log.Println("внимание: Google не вернул refresh token — отзовите доступ приложения и повторите")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := tokenVault.Upsert(ctx, *userID, calendar.Provider, tok, cfg.Google.Scopes); err != nil {
		log.Fatalf("сохранение токена: %v", err)
	}

	// контрольное чтение: токен должен расшифровываться
	cred, err := tokenVault.Get(ctx, *userID, calendar.Provider)
	if err != nil {
		log.Fatalf("контрольное чтение токена: %v", err)
	}
	fmt.Printf("Готово: токен пользователя %d сохранён (expiry: %v)\n", cred.UserID, cred.Token.Expiry)
}

// tokenFromWeb — consent-флоу через localhost redirect: печатает URL,
// ловит код на локальном сервере и меняет его на токены.
// AccessTypeOffline обязателен, иначе не будет refresh token.
func tokenFromWeb(cfg *oauth2.Config) (*oauth2.Token, error) {
	codeCh := make(chan string)
	errCh := make(chan error)

	listener, err := net.Listen("tcp", ":"+authPort)
	if err != nil {
		return nil, fmt.Errorf("порт %s занят: %w", authPort, err)
	}
	defer listener.Close()

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "authorization code not found", http.StatusBadRequest)
				errCh <- fmt.Errorf("redirect без кода авторизации")
				return
			}
			fmt.Fprint(w, "Авторизация прошла. Окно можно закрыть.")
			codeCh <- code
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	authURL := cfg.AuthCodeURL("state-token",
		oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Printf("Откройте в браузере и подтвердите доступ:\n%s\n", authURL)

	select {
	case code := <-codeCh:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		tok, err := cfg.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("обмен кода на токены: %w", err)
		}
		server.Shutdown(ctx)
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-time.After(5 * time.Minute):
		server.Shutdown(context.Background())
		return nil, fmt.Errorf("время на авторизацию вышло")
	}
}
