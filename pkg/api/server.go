package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/idleforge/idlesync/pkg/api/handlers"
	apimiddleware "github.com/idleforge/idlesync/pkg/api/middleware"
	authproviders "github.com/idleforge/idlesync/pkg/auth/providers"
	"github.com/idleforge/idlesync/pkg/log"
	syncpkg "github.com/idleforge/idlesync/pkg/sync"
)

type APIServer struct {
	server *http.Server
	tls    *TLSConfig
}

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type NewAPIServerOptions struct {
	Port     int
	TLS      *TLSConfig
	Verifier authproviders.SessionVerifier
	Service  *syncpkg.Service
}

// NewRouter builds the API route table.
func NewRouter(verifier authproviders.SessionVerifier, service *syncpkg.Service) http.Handler {
	authMiddleware := apimiddleware.NewAuthMiddleware(verifier)

	router := mux.NewRouter()
	v1 := router.PathPrefix("/v1/sync").Subrouter()
	v1.Use(authMiddleware)
	v1.Handle("/push", handlers.HandlePush(service)).Methods(http.MethodPost)
	v1.Handle("/latest", handlers.HandleLatest(service)).Methods(http.MethodGet)
	v1.Handle("/conflicts/{conflictID}/choice", handlers.HandleConflictChoice(service)).Methods(http.MethodPost)
	return corsHandler(router)
}

func corsHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewAPIServer creates a new http.Server for handling API requests
func NewAPIServer(opts NewAPIServerOptions) *APIServer {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: NewRouter(opts.Verifier, opts.Service),
	}
	return &APIServer{
		server: server,
		tls:    opts.TLS,
	}
}

// Start starts the APIServer
func (s *APIServer) Start() {
	var listenAndServe func() error
	if s.tls != nil {
		log.Info("API server listening on %s with TLS", s.server.Addr)
		listenAndServe = func() error {
			return s.server.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
		}
	} else {
		log.Info("API server listening on %s", s.server.Addr)
		listenAndServe = s.server.ListenAndServe
	}
	if err := listenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("API server closed")
			return
		}
		log.Error("API server error: %v", err)
	}
}

// Stop stops the APIServer
func (s *APIServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
