package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/credkeeper/bridge"
	"github.com/hazyhaar/credkeeper/broker"
	"github.com/hazyhaar/credkeeper/pagewatch"
	"github.com/hazyhaar/credkeeper/shield"
)

// newRouter builds the local admin surface for status, settings and
// registration management. It speaks the bridge vocabulary, so it sees
// exactly what a page sees.
func newRouter(br *bridge.Bridge, bk *broker.Broker, w *pagewatch.Watcher) http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack() {
		r.Use(mw)
	}

	r.Get("/health", func(rw http.ResponseWriter, _ *http.Request) {
		writeJSON(rw, 200, map[string]string{"status": "ok"})
	})

	r.Get("/status", func(rw http.ResponseWriter, req *http.Request) {
		captures, err := bk.RecentCaptures(req.Context(), queryInt(req, "limit", 20))
		if err != nil {
			writeError(rw, 500, err)
			return
		}
		writeJSON(rw, 200, map[string]any{
			"settings": bk.Settings(),
			"watch":    bk.WatchStats(),
			"pages":    w.Pages(),
			"captures": captures,
		})
	})

	r.Post("/login", func(rw http.ResponseWriter, req *http.Request) {
		var body struct {
			ServerURL string `json:"server_url"`
			Username  string `json:"username"`
			Password  string `json:"password"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(rw, 400, err)
			return
		}
		sendBridge(rw, req, br, bridge.Login{
			ServerURL: body.ServerURL,
			Username:  body.Username,
			Password:  body.Password,
		})
	})

	r.Get("/config", func(rw http.ResponseWriter, req *http.Request) {
		sendBridge(rw, req, br, bridge.GetConfig{})
	})
	r.Put("/config", func(rw http.ResponseWriter, req *http.Request) {
		var settings bridge.Settings
		if err := json.NewDecoder(req.Body).Decode(&settings); err != nil {
			writeError(rw, 400, err)
			return
		}
		sendBridge(rw, req, br, bridge.SaveConfig{Settings: settings})
	})

	r.Get("/registrations", func(rw http.ResponseWriter, req *http.Request) {
		if host := req.URL.Query().Get("host"); host != "" {
			sendBridge(rw, req, br, bridge.GetRegistrationsByDomain{Host: host})
			return
		}
		sendBridge(rw, req, br, bridge.GetRegistrations{})
	})
	r.Get("/registrations/{id}", func(rw http.ResponseWriter, req *http.Request) {
		sendBridge(rw, req, br, bridge.GetRegistrationByID{ID: chi.URLParam(req, "id")})
	})
	r.Get("/registrations/{id}/password", func(rw http.ResponseWriter, req *http.Request) {
		sendBridge(rw, req, br, bridge.GetRegistrationPassword{ID: chi.URLParam(req, "id")})
	})
	r.Put("/registrations/{id}", func(rw http.ResponseWriter, req *http.Request) {
		var draft bridge.RegistrationDraft
		if err := json.NewDecoder(req.Body).Decode(&draft); err != nil {
			writeError(rw, 400, err)
			return
		}
		sendBridge(rw, req, br, bridge.UpdateRegistration{ID: chi.URLParam(req, "id"), Draft: draft})
	})
	r.Delete("/registrations/{id}", func(rw http.ResponseWriter, req *http.Request) {
		sendBridge(rw, req, br, bridge.DeleteRegistration{ID: chi.URLParam(req, "id")})
	})

	r.Post("/watch", func(rw http.ResponseWriter, req *http.Request) {
		var body struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(rw, 400, err)
			return
		}
		pageID, err := w.Watch(req.Context(), body.URL)
		if err != nil {
			writeError(rw, 502, err)
			return
		}
		writeJSON(rw, 200, map[string]string{"page_id": pageID})
	})
	r.Delete("/watch/{pageID}", func(rw http.ResponseWriter, req *http.Request) {
		w.Unwatch(chi.URLParam(req, "pageID"))
		writeJSON(rw, 200, map[string]string{"status": "ok"})
	})
	r.Post("/pages/{pageID}/detect", func(rw http.ResponseWriter, req *http.Request) {
		err := br.SendToPage(req.Context(), bridge.StartFormDetection{PageID: chi.URLParam(req, "pageID")})
		if err != nil {
			writeError(rw, 502, err)
			return
		}
		writeJSON(rw, 200, map[string]string{"status": "ok"})
	})

	return r
}

// sendBridge runs a bridge request and maps the response onto HTTP: no
// broker is 503, an application failure 502, a vault conflict 409.
func sendBridge(rw http.ResponseWriter, req *http.Request, br *bridge.Bridge, breq bridge.Request) {
	resp := br.Send(req.Context(), breq)
	if resp == nil {
		writeJSON(rw, 503, map[string]string{"error": "broker unavailable"})
		return
	}
	if resp.Conflict {
		writeJSON(rw, 409, resp.ConflictData)
		return
	}
	if !resp.Success {
		writeJSON(rw, 502, map[string]string{"error": resp.Error})
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(200)
	if len(resp.Data) > 0 {
		rw.Write(resp.Data)
	} else {
		rw.Write([]byte(`{"status":"ok"}`))
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
