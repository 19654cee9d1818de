package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/radieske/bet-ledger-sync/internal/ledger/service"
	"github.com/radieske/bet-ledger-sync/internal/ledger/store"
	"github.com/radieske/bet-ledger-sync/pkg/contracts/ledger"
)

// Header que carrega a credencial administrativa em cada requisição.
const adminHeader = "X-Admin-Password"

// API expõe a fronteira REST + WebSocket do ledger. Toda mutação passa pelo
// Service; o hub só é tocado para o upgrade de assinatura.
type API struct {
	Svc     *service.Service
	WS      http.HandlerFunc // hub.HandleWS
	Origins []string
	Log     *zap.Logger
}

// Router monta as rotas públicas. Mutações exigem credencial; leitura,
// export e assinatura do feed ao vivo são abertas.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.Origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", adminHeader},
		MaxAge:         300,
	}))

	r.Get("/api/health", a.health)
	r.Get("/api/bets", a.listBets)
	r.Get("/api/bets/export", a.exportBets)
	r.Get("/api/auth/check", a.authCheck)

	r.Group(func(r chi.Router) {
		r.Use(a.requireAdmin)
		r.Put("/api/bets", a.replaceBets)
		r.Post("/api/bets", a.insertBet)
		r.Patch("/api/bets/{id}", a.patchBet)
		r.Delete("/api/bets/{id}", a.deleteBet)
	})

	r.Get("/ws", a.WS)

	return r
}

// requireAdmin rejeita a mutação antes de qualquer efeito colateral quando a
// credencial falta ou não bate.
func (a *API) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Svc.Authorized(r.Header.Get(adminHeader)) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// authCheck valida a credencial explicitamente (login do painel admin).
func (a *API) authCheck(w http.ResponseWriter, r *http.Request) {
	if !a.Svc.Authorized(r.Header.Get(adminHeader)) {
		writeJSON(w, http.StatusUnauthorized, map[string]bool{"ok": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) listBets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Svc.List())
}

// exportBets devolve o ledger inteiro como documento baixável.
func (a *API) exportBets(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("bets-export-%s.json", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(a.Svc.List())
}

// replaceBets troca o ledger inteiro (import em massa). Corpo precisa ser um
// array JSON: "null" decodifica sem erro num slice nil e apagaria o ledger,
// então o primeiro byte é checado antes de qualquer mutação. Registros entram
// como vieram, sem normalização.
func (a *API) replaceBets(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad body"})
		return
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body must be array"})
		return
	}

	var records []ledger.Record
	if err := json.Unmarshal(body, &records); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body must be array"})
		return
	}

	if err := a.Svc.ReplaceAll(records); err != nil {
		a.Log.Error("replace all failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "count": len(records)})
}

// insertBet adiciona uma aposta no topo, com defaults aplicados. Campos
// parciais são permitidos; win_value ausente é derivado do status.
func (a *API) insertBet(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad body"})
		return
	}

	// "null" também decodifica sem erro num Record zerado; só objeto passa
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body must be object"})
		return
	}

	var rec ledger.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body must be object"})
		return
	}

	// presença de win_value no payload: zero explícito é respeitado,
	// ausência é derivada do status
	var raw map[string]json.RawMessage
	_ = json.Unmarshal(body, &raw)
	_, hasWin := raw["win_value"]

	saved, err := a.Svc.Insert(rec, hasWin)
	if err != nil {
		a.Log.Error("insert failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": saved.ID})
}

func (a *API) patchBet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil || fields == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body must be object"})
		return
	}

	if err := a.Svc.Patch(id, fields); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		a.Log.Error("patch failed", zap.String("id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) deleteBet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := a.Svc.Delete(id); err != nil {
		a.Log.Error("delete failed", zap.String("id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ParseOrigins converte a config ALLOWED_ORIGINS ("a,b" ou "*") na lista
// esperada pelo middleware de CORS.
func ParseOrigins(cfg string) []string {
	if cfg == "" || cfg == "*" {
		return []string{"*"}
	}
	parts := strings.Split(cfg, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
