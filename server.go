package main

import (
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-voicebox/internal/capture"
	"github.com/oszuidwest/zwfm-voicebox/internal/config"
	"github.com/oszuidwest/zwfm-voicebox/internal/eventlog"
	"github.com/oszuidwest/zwfm-voicebox/internal/notify"
	"github.com/oszuidwest/zwfm-voicebox/internal/server"
	"github.com/oszuidwest/zwfm-voicebox/internal/storage"
	"github.com/oszuidwest/zwfm-voicebox/internal/types"
	"github.com/oszuidwest/zwfm-voicebox/internal/util"
)

var indexTmpl = template.Must(template.New("index").Parse(indexHTML))
var faviconTmpl = template.Must(template.New("favicon").Parse(faviconSVG))

type indexData struct {
	Version     string
	Year        int
	StationName string
	PrimaryCSS  template.CSS
}

// Server is an HTTP server that provides the web interface for the voicebox.
type Server struct {
	config     *config.Config
	store      storage.Store
	eventLog   *eventlog.Logger
	commands   *server.CommandHandler
	version    *VersionChecker
	ffmpegPath string
	probe      *capture.FFmpegProbe
}

// NewServer returns a new Server that stores recordings in store.
func NewServer(cfg *config.Config, store storage.Store, notifier *notify.UploadNotifier, eventLog *eventlog.Logger, ffmpegPath string) *Server {
	return &Server{
		config:     cfg,
		store:      store,
		eventLog:   eventLog,
		commands:   server.NewCommandHandler(cfg, store, notifier, eventLog),
		version:    NewVersionChecker(),
		ffmpegPath: ffmpegPath,
		probe:      capture.NewFFmpegProbe(ffmpegPath),
	}
}

// handleWebSocket handles bidirectional WebSocket communication for one recorder.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	// Only the writer goroutine writes to the connection. The send channel is
	// never closed because async command handlers may still hold it.
	send := make(chan any, 16)
	done := make(chan struct{})
	statusUpdate := make(chan struct{}, 1)
	recordingsUpdate := make(chan struct{}, 1)

	client := s.commands.NewClient(server.ClientHooks{
		OnChange:   func() { wake(statusUpdate) },
		OnUploaded: func() { wake(recordingsUpdate) },
	})
	defer client.Close()

	slog.Info("recorder connected", "session", client.Session.ID(), "remote", r.RemoteAddr)
	defer slog.Info("recorder disconnected", "session", client.Session.ID())

	// Writer goroutine - sole writer to the connection
	go s.runWebSocketWriter(conn, send, done)

	// Reader goroutine - handles incoming commands and audio fragments
	go s.runWebSocketReader(conn, client, send, done, statusUpdate)

	s.runWebSocketEventLoop(client, send, done, statusUpdate, recordingsUpdate)
}

// wake performs a non-blocking notification on a coalescing channel.
func wake(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// runWebSocketWriter writes messages from the send channel to the connection
// and pings the recorder until the reader is done.
func (s *Server) runWebSocketWriter(conn server.WebSocketConn, send <-chan any, done <-chan struct{}) {
	ping := time.NewTicker(server.PingInterval)
	defer ping.Stop()
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for {
		select {
		case msg := <-send:
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ping.C:
			if err := server.Ping(conn); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// runWebSocketReader reads commands and fragments from the connection and dispatches them.
func (s *Server) runWebSocketReader(conn server.WebSocketConn, client *server.Client, send chan<- any, done, statusUpdate chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType == server.BinaryMessage {
			s.commands.HandleFragment(client, data)
			continue
		}

		var cmd server.WSCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			slog.Warn("invalid WebSocket command", "error", err)
			continue
		}
		s.commands.Handle(client, cmd, send, func() { wake(statusUpdate) })
	}
}

// runWebSocketEventLoop pushes status and recordings updates.
func (s *Server) runWebSocketEventLoop(client *server.Client, send chan<- any, done <-chan struct{}, statusUpdate, recordingsUpdate <-chan struct{}) {
	statusTicker := time.NewTicker(3000 * time.Millisecond) // Status updates every 3s
	defer statusTicker.Stop()

	// trySend attempts to send a message, returning false if done is closed
	trySend := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	// Send initial status and listing
	if !trySend(s.buildWSStatus(client)) || !trySend(s.buildWSRecordings()) {
		return
	}

	for {
		select {
		case <-done:
			return
		case <-statusUpdate:
			if !trySend(s.buildWSStatus(client)) {
				return
			}
		case <-recordingsUpdate:
			if !trySend(s.buildWSRecordings()) {
				return
			}
		case <-statusTicker.C:
			if !trySend(s.buildWSStatus(client)) {
				return
			}
		}
	}
}

// buildWSStatus returns the current WebSocket status response for a client.
func (s *Server) buildWSStatus(client *server.Client) types.WSStatusResponse {
	cfg := s.config.Snapshot()
	return types.WSStatusResponse{
		Type:            "status",
		FFmpegAvailable: s.ffmpegPath != "",
		Station:         cfg.StationName,
		Session:         client.Session.Status(),
		Storage: types.StorageInfo{
			Mode:   string(cfg.StorageMode),
			Folder: cfg.Folder,
			Ready:  storage.IsAvailable(s.store),
		},
		Limits: types.LimitsInfo{
			MaxDurationSeconds: int64(cfg.MaxDurationMinutes) * 60,
			MaxSizeBytes:       cfg.MaxSizeBytes(),
		},
		Version: s.version.Info(),
	}
}

// buildWSRecordings returns the recordings listing message. A failed listing
// is logged and sent as an empty list.
func (s *Server) buildWSRecordings() types.WSRecordingsResponse {
	folder := s.config.Snapshot().Folder
	objects, err := s.commands.ListRecordings(folder)
	if err != nil {
		objects = []storage.Object{}
	}
	return types.WSRecordingsResponse{
		Type:       "recordings",
		Folder:     folder,
		Recordings: objects,
	}
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	// Static assets
	mux.HandleFunc("/style.css", s.handleStatic)
	mux.HandleFunc("/app.js", s.handleStatic)
	mux.HandleFunc("/favicon.svg", s.handleFavicon)

	// Recorder connection
	mux.HandleFunc("/ws", s.handleWebSocket)

	// REST API
	mux.HandleFunc("GET /api/recordings", s.handleAPIRecordings)
	mux.HandleFunc("GET /api/recordings/peaks", s.handleAPIPeaks)
	mux.HandleFunc("POST /api/negotiate", s.handleAPINegotiate)
	mux.HandleFunc("GET /api/diagnostics", s.handleAPIDiagnostics)
	mux.HandleFunc("GET /api/events", s.handleAPIEvents)

	// Local storage is served by the application itself
	if local, ok := s.store.(*storage.LocalStore); ok {
		mux.Handle(storage.MediaPrefix, local.Handler())
	}

	mux.HandleFunc("/", s.handleStatic)

	return securityHeaders(mux)
}

// securityHeaders returns middleware that wraps handlers with security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// handleFavicon serves the favicon with the configured station color.
func (s *Server) handleFavicon(w http.ResponseWriter, r *http.Request) {
	cfg := s.config.Snapshot()
	w.Header().Set("Content-Type", "image/svg+xml")
	if err := faviconTmpl.Execute(w, struct{ Color string }{Color: cfg.StationColorLight}); err != nil {
		slog.Error("failed to render favicon", "error", err)
	}
}

// serveStaticFile serves a static file by path and reports whether it was found.
func serveStaticFile(w http.ResponseWriter, path string) bool {
	file, ok := staticFiles[path]
	if !ok {
		return false
	}
	w.Header().Set("Content-Type", file.contentType)
	if _, err := w.Write([]byte(file.content)); err != nil {
		slog.Error("failed to write static file", "file", file.name, "error", err)
	}
	return true
}

// staticFile is an embedded static file with content type and data.
type staticFile struct {
	contentType string
	content     string
	name        string
}

// staticFiles is a map from URL paths to static file definitions.
var staticFiles = map[string]staticFile{
	"/style.css": {
		contentType: "text/css",
		content:     styleCSS,
		name:        "style.css",
	},
	"/app.js": {
		contentType: "application/javascript",
		content:     appJS,
		name:        "app.js",
	},
	// favicon.svg is served dynamically via handleFavicon
}

// handleStatic handles requests for embedded static web interface files.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/" {
		path = "/index.html"
	}

	// Serve index.html with dynamic placeholders.
	if path == "/index.html" {
		cfg := s.config.Snapshot()
		w.Header().Set("Content-Type", "text/html")
		if err := indexTmpl.Execute(w, indexData{
			Version:     Version,
			Year:        time.Now().Year(),
			StationName: cfg.StationName,
			PrimaryCSS:  template.CSS(util.BrandCSS(cfg.StationColorLight, cfg.StationColorDark)),
		}); err != nil {
			slog.Error("failed to write index.html", "error", err)
		}
		return
	}

	if serveStaticFile(w, path) {
		return
	}

	http.NotFound(w, r)
}

// Start begins the HTTP server.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.config.Snapshot().WebPort)
	slog.Info("starting web server", "addr", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
