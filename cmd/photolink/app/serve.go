package app

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jotterhq/photolink/pkg/logger"
	"github.com/jotterhq/photolink/pkg/networking"
	"github.com/jotterhq/photolink/pkg/oauth"
	"github.com/jotterhq/photolink/pkg/photos"
	"github.com/jotterhq/photolink/pkg/server"
	"github.com/jotterhq/photolink/pkg/storage"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the photo-library connection service",
		RunE:  serveCmdFunc,
	}

	flags := cmd.Flags()
	flags.String("listen", "127.0.0.1:8666", "Address to listen on")
	flags.String("client-id", "", "OAuth client ID")
	flags.String("client-secret", "", "OAuth client secret")
	flags.String("auth-url", "https://accounts.google.com/o/oauth2/v2/auth", "Authorization endpoint URL")
	flags.String("token-url", "https://oauth2.googleapis.com/token", "Token endpoint URL")
	flags.String("introspect-url", "https://oauth2.googleapis.com/tokeninfo", "Token introspection endpoint URL")
	flags.String("resource-url", "https://photoslibrary.googleapis.com/v1/mediaItems:search", "Photo search endpoint URL")
	flags.String("redirect-url", "", "Redirect URL registered with the provider")
	flags.String("scope", "https://www.googleapis.com/auth/photoslibrary.readonly", "Required resource scope")
	flags.Duration("refresh-skew", oauth.DefaultRefreshSkew, "Refresh tokens this long before expiry")
	flags.String("storage", storage.BackendMemory, "Storage backend: memory, redis, or bolt")
	flags.String("redis-addr", "", "Redis address (host:port) for the redis backend")
	flags.String("redis-password", "", "Redis password for the redis backend")
	flags.Int("redis-db", 0, "Redis logical database for the redis backend")
	flags.String("bolt-path", "", "Database file path for the bolt backend")

	for _, name := range []string{
		"listen", "client-id", "client-secret", "auth-url", "token-url",
		"introspect-url", "resource-url", "redirect-url", "scope",
		"refresh-skew", "storage", "redis-addr", "redis-password",
		"redis-db", "bolt-path",
	} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			logger.Fatalf("Failed to bind flag %s: %v", name, err)
		}
	}
	viper.SetEnvPrefix("PHOTOLINK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	return cmd
}

func serveCmdFunc(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(ctx, storage.Config{
		Backend:       viper.GetString("storage"),
		RedisAddr:     viper.GetString("redis-addr"),
		RedisPassword: viper.GetString("redis-password"),
		RedisDB:       viper.GetInt("redis-db"),
		BoltPath:      viper.GetString("bolt-path"),
	})
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warnf("Failed to close storage: %v", err)
		}
	}()

	flow, err := oauth.NewFlow(&oauth.Config{
		ClientID:      viper.GetString("client-id"),
		ClientSecret:  viper.GetString("client-secret"),
		AuthURL:       viper.GetString("auth-url"),
		TokenURL:      viper.GetString("token-url"),
		IntrospectURL: viper.GetString("introspect-url"),
		RedirectURL:   viper.GetString("redirect-url"),
		RequiredScope: viper.GetString("scope"),
		RefreshSkew:   viper.GetDuration("refresh-skew"),
	}, store)
	if err != nil {
		return fmt.Errorf("initialize flow: %w", err)
	}

	client := networking.NewHttpClientBuilder().WithTimeout(20 * time.Second).Build()
	fetcher, err := photos.NewFetcher(viper.GetString("resource-url"), client, flow)
	if err != nil {
		return fmt.Errorf("initialize fetcher: %w", err)
	}

	handler := server.NewHandler(flow, fetcher)
	return server.Serve(ctx, viper.GetString("listen"), handler.Routes())
}
