package cmd

import (
	"context"
	"time"

	"github.com/emrgen/pagenote/internal/compress"
	"github.com/emrgen/pagenote/internal/config"
	"github.com/emrgen/pagenote/internal/crypto"
	"github.com/emrgen/pagenote/internal/jobs"
	"github.com/emrgen/pagenote/internal/kv"
	"github.com/emrgen/pagenote/internal/provider"
	"github.com/emrgen/pagenote/internal/server"
	"github.com/emrgen/pagenote/internal/service"
	"github.com/emrgen/pagenote/internal/store"
	"github.com/emrgen/pagenote/internal/websocket"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd())
}

func serveCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "serve",
		Short: "run the pagenote daemon",
		Run: func(cmd *cobra.Command, args []string) {
			cnf := config.Load()

			db, err := store.Open(cnf.DB.Dialect, cnf.DB.DSN)
			if err != nil {
				logrus.Fatalf("failed to open database: %v", err)
			}

			docStore := store.NewGormStore(db)
			if err := docStore.Migrate(); err != nil {
				logrus.Fatalf("failed to migrate database: %v", err)
			}

			synced := kv.NewRedis(cnf.Redis.Addr, cnf.Redis.Password, cnf.Redis.DB)
			settings := kv.NewSettingsStore(synced)
			keys := crypto.NewKeyManager(synced)

			codec, err := compress.ForName(cnf.Sync.Compression)
			if err != nil {
				logrus.Fatalf("unknown compression %q: %v", cnf.Sync.Compression, err)
			}

			docs := service.NewDocumentService(codec, cnf.Sync.Compression, docStore, keys)

			chunked := provider.NewChunked(synced)
			providers := []provider.Provider{
				chunked,
				provider.NewDrive(provider.DriveOptions{
					TokenSource: driveTokenSource(cnf.Drive.AccessToken),
				}),
				provider.NewGist(provider.GistOptions{Settings: settings}),
				provider.NewBitable(provider.BitableOptions{Settings: settings}),
			}

			hub := websocket.NewHub()
			syn := service.NewSyncService(docs, settings, keys, codec, providers, hub, cnf.Sync.Debounce)
			docs.SetChangeHook(syn.SchedulePush)

			executor := jobs.NewTaskExecutor([]jobs.CronJob{
				jobs.NewPullJob(syn, cnf.Sync.PullSchedule),
			})
			executor.Run()
			defer executor.Stop()

			// adopt whatever another device pushed while we were down
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
				defer cancel()
				if err := syn.PullFromRemote(ctx); err != nil {
					logrus.Warnf("startup pull failed: %v", err)
				}
			}()

			srv := server.NewServer(cnf.Server.Host, cnf.Server.Port, docs, syn, settings, chunked, hub)
			if err := srv.Start(); err != nil {
				logrus.Fatalf("error starting server: %v", err)
			}
		},
	}

	return command
}

func driveTokenSource(token string) provider.TokenSource {
	if token == "" {
		return nil
	}
	return func(ctx context.Context) (string, error) {
		return token, nil
	}
}
