package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/radieske/bet-ledger-sync/internal/ledger/auth"
	"github.com/radieske/bet-ledger-sync/internal/ledger/backup"
	"github.com/radieske/bet-ledger-sync/internal/ledger/service"
	"github.com/radieske/bet-ledger-sync/internal/ledger/store"
	"github.com/radieske/bet-ledger-sync/internal/ledger/ws"
	"github.com/radieske/bet-ledger-sync/pkg/contracts/ledger"
)

const testSecret = "pw"

func startAPI(t *testing.T) *httptest.Server {
	t.Helper()
	log := zap.NewNop()

	st, err := store.Open(t.TempDir(), log)
	if err != nil {
		t.Fatal(err)
	}
	bw, err := backup.New(t.TempDir(), log)
	if err != nil {
		t.Fatal(err)
	}
	hub := ws.NewHub(log, func(r *http.Request) bool { return true })
	svc := service.New(st, bw, hub, auth.New(testSecret), log)

	api := &API{Svc: svc, WS: hub.HandleWS, Origins: []string{"*"}, Log: log}
	srv := httptest.NewServer(api.Router())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, secret string, body string) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body == "" {
		rd = bytes.NewReader(nil)
	} else {
		rd = bytes.NewReader([]byte(body))
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("X-Admin-Password", secret)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func listBets(t *testing.T, srv *httptest.Server) []ledger.Record {
	t.Helper()
	resp := do(t, http.MethodGet, srv.URL+"/api/bets", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: status %d", resp.StatusCode)
	}
	var out []ledger.Record
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestHealth(t *testing.T) {
	srv := startAPI(t)
	resp := do(t, http.MethodGet, srv.URL+"/api/health", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestMutations_RejectedWithoutSecret(t *testing.T) {
	srv := startAPI(t)

	tests := []struct {
		method, path, body string
	}{
		{http.MethodPut, "/api/bets", `[]`},
		{http.MethodPost, "/api/bets", `{"match":"A"}`},
		{http.MethodPatch, "/api/bets/1", `{"status":"WON"}`},
		{http.MethodDelete, "/api/bets/1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp := do(t, tt.method, srv.URL+tt.path, "", tt.body)
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", resp.StatusCode)
			}
			resp = do(t, tt.method, srv.URL+tt.path, "wrong", tt.body)
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("wrong secret: status = %d, want 401", resp.StatusCode)
			}
		})
	}

	// nenhuma rejeição teve efeito colateral
	if got := listBets(t, srv); len(got) != 0 {
		t.Errorf("unauthorized mutation mutated state: %+v", got)
	}
}

func TestAuthCheck(t *testing.T) {
	srv := startAPI(t)

	if resp := do(t, http.MethodGet, srv.URL+"/api/auth/check", testSecret, ""); resp.StatusCode != http.StatusOK {
		t.Errorf("valid secret: status = %d, want 200", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, srv.URL+"/api/auth/check", "nope", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("invalid secret: status = %d, want 401", resp.StatusCode)
	}
}

func TestReplace_RejectsNonArray(t *testing.T) {
	srv := startAPI(t)

	resp := do(t, http.MethodPut, srv.URL+"/api/bets", testSecret, `{"id":"1"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestReplace_NullBodyRejectedWithoutWipingLedger(t *testing.T) {
	srv := startAPI(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/bets", testSecret, `{"id":"1","match":"A vs B"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("insert: status %d", resp.StatusCode)
	}

	// "null" decodifica sem erro num slice nil: tem que ser rejeitado antes
	// de chegar ao store, senão o ledger inteiro some
	resp = do(t, http.MethodPut, srv.URL+"/api/bets", testSecret, `null`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("PUT null: status = %d, want 400", resp.StatusCode)
	}

	got := listBets(t, srv)
	if len(got) != 1 || got[0].ID != "1" {
		t.Errorf("ledger mutated by rejected body: %+v", got)
	}
}

func TestInsert_RejectsNonObject(t *testing.T) {
	srv := startAPI(t)

	for _, body := range []string{`[{"id":"1"}]`, `null`, `"text"`} {
		resp := do(t, http.MethodPost, srv.URL+"/api/bets", testSecret, body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, resp.StatusCode)
		}
	}
	if got := listBets(t, srv); len(got) != 0 {
		t.Errorf("rejected insert mutated state: %+v", got)
	}
}

func TestPatch_UnknownIDIs404(t *testing.T) {
	srv := startAPI(t)

	resp := do(t, http.MethodPatch, srv.URL+"/api/bets/ghost", testSecret, `{"status":"WON"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

// Ciclo de vida completo de uma aposta: insere, liquida como ganha, apaga.
func TestLifecycleScenario(t *testing.T) {
	srv := startAPI(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/bets", testSecret,
		`{"id":"1","match":"A vs B","bet":"A wins","status":"PENDING","stake_value":100,"coef":2.5}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("insert: status %d", resp.StatusCode)
	}

	got := listBets(t, srv)
	if len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("after insert: %+v", got)
	}
	if got[0].WinValue != 0 {
		t.Errorf("pending win_value = %v, want 0", got[0].WinValue)
	}

	resp = do(t, http.MethodPatch, srv.URL+"/api/bets/1", testSecret, `{"status":"WON","win_value":250}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch: status %d", resp.StatusCode)
	}

	got = listBets(t, srv)
	if got[0].Status != ledger.StatusWon || got[0].WinValue != 250 {
		t.Errorf("after patch: %+v", got[0])
	}
	if got[0].Match != "A vs B" || got[0].StakeValue != 100 || got[0].Coef != 2.5 {
		t.Errorf("patch touched absent fields: %+v", got[0])
	}

	resp = do(t, http.MethodDelete, srv.URL+"/api/bets/1", testSecret, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: status %d", resp.StatusCode)
	}
	// delete repetido continua ok
	resp = do(t, http.MethodDelete, srv.URL+"/api/bets/1", testSecret, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second delete: status %d", resp.StatusCode)
	}

	if got = listBets(t, srv); len(got) != 0 {
		t.Errorf("after delete: %+v", got)
	}
}

func TestReplace_RoundTrip(t *testing.T) {
	srv := startAPI(t)

	payload := `[{"id":"a","match":"M1"},{"id":"b","match":"M2"}]`
	resp := do(t, http.MethodPut, srv.URL+"/api/bets", testSecret, payload)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("replace: status %d", resp.StatusCode)
	}
	var ack struct {
		OK    bool `json:"ok"`
		Count int  `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatal(err)
	}
	if !ack.OK || ack.Count != 2 {
		t.Errorf("ack = %+v", ack)
	}

	got := listBets(t, srv)
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("order not preserved: %+v", got)
	}
}

func TestInsert_GeneratesIDWhenAbsent(t *testing.T) {
	srv := startAPI(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/bets", testSecret, `{"match":"A vs B"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("insert: status %d", resp.StatusCode)
	}
	var ack struct {
		OK bool   `json:"ok"`
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatal(err)
	}
	if ack.ID == "" {
		t.Error("expected generated id in ack")
	}

	got := listBets(t, srv)
	if len(got) != 1 || got[0].ID != ack.ID {
		t.Errorf("stored id mismatch: ack=%q stored=%+v", ack.ID, got)
	}
}

func TestExport_IsDownloadableDocument(t *testing.T) {
	srv := startAPI(t)
	_ = do(t, http.MethodPost, srv.URL+"/api/bets", testSecret, `{"id":"1","match":"A vs B"}`)

	resp := do(t, http.MethodGet, srv.URL+"/api/bets/export", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export: status %d", resp.StatusCode)
	}
	cd := resp.Header.Get("Content-Disposition")
	if !strings.HasPrefix(cd, "attachment") {
		t.Errorf("Content-Disposition = %q, want attachment", cd)
	}
	var out []ledger.Record
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("export body: %v", err)
	}
	if len(out) != 1 || out[0].ID != "1" {
		t.Errorf("export content: %+v", out)
	}
}
