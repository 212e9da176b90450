package firebase

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/db"
	"google.golang.org/api/option"
)

// App holds the initialized Firebase app and the clients the server uses.
// Database is nil when no database URL was given.
type App struct {
	FirebaseApp *firebase.App
	AuthClient  *auth.Client
	Database    *db.Client
}

// InitFirebase initializes the Firebase application, its auth client and,
// when databaseURL is set, the Realtime Database client. Without a
// credentials path the application default credentials are used.
func InitFirebase(ctx context.Context, credentialsPath, databaseURL string) (*App, error) {
	var opts []option.ClientOption
	if credentialsPath != "" {
		if _, err := os.Stat(credentialsPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("firebase credentials file not found at %s", credentialsPath)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}

	var conf *firebase.Config
	if databaseURL != "" {
		conf = &firebase.Config{DatabaseURL: databaseURL}
	}
	firebaseApp, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firebase auth client: %w", err)
	}

	app := &App{FirebaseApp: firebaseApp, AuthClient: authClient}
	if databaseURL != "" {
		app.Database, err = firebaseApp.Database(ctx)
		if err != nil {
			return nil, fmt.Errorf("error getting firebase database client: %w", err)
		}
	}

	slog.Info("firebase initialized", slog.Bool("database", app.Database != nil))
	return app, nil
}
