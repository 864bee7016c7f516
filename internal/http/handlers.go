package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	applog "tally/internal/log"
	"tally/internal/middleware/trace"
	"tally/internal/tally"
)

// notice codes travel in the redirect query string after a plain form post,
// so only these fixed messages are ever rendered.
type notice struct {
	Kind    NotificationType
	Message string
}

var notices = map[string]notice{
	"counted":       {NotificationSuccess, "Counted"},
	"saved":         {NotificationSuccess, "Saved"},
	"deleted":       {NotificationSuccess, "Deleted"},
	"invalid":       {NotificationError, "Enter a date as YYYY-MM-DD and a number"},
	"persist_error": {NotificationWarning, "Change kept, but it could not be saved to storage"},
	"not_ready":     {NotificationError, "Tally is still loading, try again"},
	"error":         {NotificationError, "Something went wrong"},
}

type tallyResponse struct {
	tally.Snapshot
	Error   string `json:"error,omitempty"`
	Warning string `json:"warning,omitempty"`
}

type pageData struct {
	tally.Snapshot
	Notice      *notice
	LoadWarning string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if b := RequireMethod(r, http.MethodGet, http.MethodHead); b != nil {
		b.Write(w)
		return
	}

	data := pageData{Snapshot: s.store.Snapshot(), LoadWarning: s.loadWarning}
	if n, ok := notices[r.URL.Query().Get("notice")]; ok {
		data.Notice = &n
	}

	body, err := s.render(r.Context(), "index.html", data)
	if err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	NewResponse().BodyHTML(body).Write(w)
}

func (s *Server) handleGetTally(w http.ResponseWriter, r *http.Request) {
	if b := RequireMethod(r, http.MethodGet, http.MethodHead); b != nil {
		b.Write(w)
		return
	}
	NewResponse().JSON(tallyResponse{Snapshot: s.store.Snapshot()}).Write(w)
}

func (s *Server) handleIncrement(w http.ResponseWriter, r *http.Request) {
	if b := RequireMethod(r, http.MethodPost); b != nil {
		b.Write(w)
		return
	}
	snap, err := s.store.IncrementToday(r.Context())
	s.respond(w, r, tally.OpIncrement, "counted", snap, err)
}

func (s *Server) handleCreateDay(w http.ResponseWriter, r *http.Request) {
	if b := RequireMethod(r, http.MethodPost); b != nil {
		b.Write(w)
		return
	}

	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		BadRequestError("malformed request body").Write(w)
		return
	}

	snap, err := s.store.Upsert(r.Context(), p.Get("date"), p.Get("count"))
	s.respond(w, r, tally.OpUpsert, "saved", snap, err)
}

// handleDay edits or deletes one day. The date comes from the path, so an
// edit can never move a count to another day.
func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	if b := RequireMethod(r, http.MethodPut, http.MethodPost, http.MethodDelete); b != nil {
		b.Write(w)
		return
	}

	date := r.PathValue("date")
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		BadRequestError("malformed request body").Write(w)
		return
	}

	if methodOverride(r, p) == http.MethodDelete {
		snap, err := s.store.Delete(r.Context(), date)
		s.respond(w, r, tally.OpDelete, "deleted", snap, err)
		return
	}

	snap, err := s.store.Upsert(r.Context(), date, p.Get("count"))
	s.respond(w, r, tally.OpUpsert, "saved", snap, err)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]string{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady reports 503 until the store has loaded and templates parsed.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"store": "ok", "templates": "ok"}
	status := http.StatusOK

	if !s.store.Ready() {
		checks["store"] = "not loaded"
		status = http.StatusServiceUnavailable
	}
	if s.templates == nil {
		checks["templates"] = "not loaded"
		status = http.StatusServiceUnavailable
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	NewResponse().Status(status).JSON(map[string]interface{}{
		"status": state,
		"checks": checks,
	}).Write(w)
}

// respond answers a mutation in the shape the caller asked for: an htmx
// fragment, a redirect after a plain form post, or JSON.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, op tally.Op, okCode string, snap tally.Snapshot, err error) {
	status, code := classify(err, okCode)
	n := notices[code]

	if err != nil && status >= http.StatusInternalServerError {
		s.errors.LogError(r.Context(), "Tally request failed", err, applog.ComponentHTTP, string(op),
			applog.NewFields().WithRequestID(trace.GetRequestID(r.Context())))
	}

	switch {
	case r.Header.Get("HX-Request") == "true":
		body, rerr := s.render(r.Context(), "tally-panel", pageData{Snapshot: snap})
		if rerr != nil {
			http.Error(w, "template error", http.StatusInternalServerError)
			return
		}
		// htmx only swaps 2xx responses, so the outcome rides on the trigger.
		NewResponse().
			TriggerNotification(n.Kind, n.Message, 4000).
			TriggerTallyChanged(snap.Version).
			BodyHTML(body).
			Write(w)

	case isHTMLForm(r):
		http.Redirect(w, r, "/?notice="+code, http.StatusSeeOther)

	default:
		resp := tallyResponse{Snapshot: snap}
		switch n.Kind {
		case NotificationError:
			resp.Error = n.Message
		case NotificationWarning:
			resp.Warning = n.Message
		}
		NewResponse().Status(status).JSON(resp).Write(w)
	}
}

func classify(err error, okCode string) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, okCode
	case errors.Is(err, tally.ErrInvalidEntry):
		return http.StatusUnprocessableEntity, "invalid"
	case errors.Is(err, tally.ErrNotReady):
		return http.StatusServiceUnavailable, "not_ready"
	case errors.Is(err, tally.ErrPersistence):
		return http.StatusInternalServerError, "persist_error"
	default:
		return http.StatusInternalServerError, "error"
	}
}

func isHTMLForm(r *http.Request) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	form := strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data")
	return form && strings.Contains(r.Header.Get("Accept"), "text/html")
}

func (s *Server) render(ctx context.Context, name string, data any) ([]byte, error) {
	if s.templates == nil {
		err := errors.New("templates not loaded")
		s.errors.LogError(ctx, "Cannot render page", err, applog.ComponentHTTP, applog.OpRender, nil)
		return nil, err
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.errors.LogError(ctx, "Template execution failed", err, applog.ComponentHTTP, applog.OpRender,
			applog.NewFields().WithRequestID(trace.GetRequestID(ctx)))
		return nil, err
	}
	return buf.Bytes(), nil
}
