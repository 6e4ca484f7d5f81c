package telemetry

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/depth-servo/internal/httputil"
	"github.com/banshee-data/depth-servo/internal/monitoring"
)

// AttachAdminRoutes mounts the telemetry debug pages under /debug/: a
// tailsql console over the database, session listing and summary, and a
// database backup download.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{RoutePrefix: "/debug/tailsql/"})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(s.path), s.db, &tailsql.DBOptions{Label: "Servo telemetry"})
	debug.Handle("tailsql/", "SQL console over tick telemetry", tsql.NewMux())

	debug.Handle("sessions", "Recorded control sessions (JSON)", http.HandlerFunc(s.handleSessions))
	debug.Handle("summary", "Per-axis statistics of a session (?session=<id>, default latest)", http.HandlerFunc(s.handleSummary))
	debug.Handle("backup", "Download a consistent copy of the telemetry database", http.HandlerFunc(s.handleBackup))
	return nil
}

func (s *Store) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.Sessions(r.Context())
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, sessions)
}

func (s *Store) handleSummary(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	if session == "" {
		latest, err := s.LatestSession(r.Context())
		if err != nil {
			httputil.NotFound(w, err.Error())
			return
		}
		session = latest
	}
	sum, err := s.Summary(r.Context(), session)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, sum)
}

func (s *Store) handleBackup(w http.ResponseWriter, r *http.Request) {
	dir, err := os.MkdirTemp("", "servo-backup-")
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	defer os.RemoveAll(dir)

	name := fmt.Sprintf("telemetry-%d.db", time.Now().Unix())
	backupPath := filepath.Join(dir, name)
	if _, err := s.db.ExecContext(r.Context(), "VACUUM INTO ?", backupPath); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to create backup: %v", err))
		return
	}
	monitoring.Opsf("telemetry backup %s served to %s", name, r.RemoteAddr)

	w.Header().Set("Content-Disposition", "attachment; filename="+name)
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeFile(w, r, backupPath)
}
