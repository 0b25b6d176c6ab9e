package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"

	"github.com/showrunner/controller/internal/telemetry"
)

// httpServer exposes the takeover WebSocket endpoint and a JSON status
// endpoint over the same listener.
type httpServer struct {
	http *http.Server
}

func newHTTPServer(addr string, takeoverSrv interface{ Handler() http.Handler }, tw *telemetry.Writer) *httpServer {
	mux := http.NewServeMux()
	mux.Handle("/ws", takeoverSrv.Handler())
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(tw.Latest()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return &httpServer{http: &http.Server{Addr: addr, Handler: loggingHandler{mux}}}
}

func (s *httpServer) run(ctx context.Context) error {
	log.Printf("http: listening on %s", s.http.Addr)
	errc := make(chan error, 1)
	go func() { errc <- s.http.ListenAndServe() }()
	select {
	case <-ctx.Done():
		return nil
	case err := <-errc:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *httpServer) shutdown(ctx context.Context) {
	if err := s.http.Shutdown(ctx); err != nil {
		log.Printf("http: shutdown: %v", err)
	}
}

// loggingHandler logs one line per request: remote address, status, response
// size, method and path.
type loggingHandler struct {
	handler http.Handler
}

type loggingResponseWriter struct {
	http.ResponseWriter
	length int
	status int
}

func (l *loggingResponseWriter) Write(data []byte) (int, error) {
	size, err := l.ResponseWriter.Write(data)
	l.length += size
	return size, err
}

func (l *loggingResponseWriter) WriteHeader(status int) {
	l.ResponseWriter.WriteHeader(status)
	l.status = status
}

// Hijack is required for the WebSocket handler to take over the connection.
func (l *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := l.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("loggingResponseWriter: underlying ResponseWriter does not support hijacking")
	}
	return h.Hijack()
}

func (l loggingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	lrw := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}
	l.handler.ServeHTTP(lrw, r)
	log.Printf("%s - %3d %6db %4s %s", r.RemoteAddr, lrw.status, lrw.length, r.Method, r.RequestURI)
}
