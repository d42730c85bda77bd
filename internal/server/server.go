package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"

	"github.com/emrgen/pagenote/internal/kv"
	"github.com/emrgen/pagenote/internal/provider"
	"github.com/emrgen/pagenote/internal/service"
	"github.com/emrgen/pagenote/internal/websocket"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Server exposes the note store and sync coordinator over REST plus a
// websocket event stream.
type Server struct {
	host string
	port string

	docs     *service.DocumentService
	sync     *service.SyncService
	settings *kv.SettingsStore
	chunked  *provider.Chunked
	hub      *websocket.Hub
}

// NewServer creates a new server
func NewServer(host, port string, docs *service.DocumentService, syn *service.SyncService, settings *kv.SettingsStore, chunked *provider.Chunked, hub *websocket.Hub) *Server {
	return &Server{
		host:     host,
		port:     port,
		docs:     docs,
		sync:     syn,
		settings: settings,
		chunked:  chunked,
		hub:      hub,
	}
}

// Start runs the server until SIGINT/SIGTERM, then drains it.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.host, s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "PUT", "PATCH"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	httpServer := &http.Server{
		Addr:    addr,
		Handler: c.Handler(s.routes()),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logrus.Info("starting rest server on: ", addr)
		if err := httpServer.Serve(listener); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				logrus.Errorf("error starting rest server: %v", err)
			}
		}
		logrus.Infof("rest server stopped")
	}()

	logrus.Infof("Press Ctrl+C to stop the server")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGTERM, unix.SIGINT, unix.SIGTSTP)
	<-sigs
	// clean Ctrl+C output
	fmt.Println()

	s.sync.Stop()
	if err := httpServer.Shutdown(context.Background()); err != nil {
		logrus.Errorf("error stopping rest server: %v", err)
	}

	wg.Wait()
	return nil
}
