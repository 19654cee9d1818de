package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/radieske/bet-ledger-sync/pkg/contracts/ledger"
)

// ErrNotFound é retornado quando o id alvo de um patch não existe no ledger.
var ErrNotFound = errors.New("record not found")

// Campos mutáveis aceitos por Patch. Qualquer outra chave do payload é ignorada.
var patchable = map[string]bool{
	"time": true, "match": true, "bet": true, "status": true,
	"stake_value": true, "stake_currency": true,
	"coef":      true,
	"win_value": true, "win_currency": true,
}

// Store é o dono exclusivo da sequência de apostas e do documento durável.
// Toda operação (leituras incluídas) roda sob um único mutex: no máximo uma
// mutação em andamento, leitores nunca veem sequência parcialmente escrita.
//
// Disciplina de durabilidade: cada mutação persiste a sequência inteira no
// disco (temp + rename) ANTES de retornar sucesso. Falha de persistência
// desfaz a alteração em memória e devolve o erro — memória e disco nunca
// divergem após um retorno.
type Store struct {
	mu      sync.Mutex
	records []ledger.Record
	path    string
	log     *zap.Logger
}

// Open cria/carrega o documento do ledger em <dir>/bets.json. Documento
// ausente ou corrompido vira ledger vazio: estado inicial vazio é válido,
// nunca fatal.
func Open(dir string, log *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	s := &Store{
		path: filepath.Join(dir, "bets.json"),
		log:  log,
	}

	b, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read ledger: %w", err)
		}
		s.records = []ledger.Record{}
		if err := s.persistLocked(); err != nil {
			return nil, err
		}
		return s, nil
	}

	if err := json.Unmarshal(b, &s.records); err != nil {
		log.Warn("ledger file unreadable, starting empty", zap.String("path", s.path), zap.Error(err))
		s.records = []ledger.Record{}
	}
	if s.records == nil {
		s.records = []ledger.Record{}
	}
	return s, nil
}

// Path retorna o caminho do documento durável (usado por health check e main).
func (s *Store) Path() string { return s.path }

// GetAll retorna uma cópia da sequência completa, na ordem canônica
// (mais recente primeiro). Nunca falha; slice vazio, não nil.
func (s *Store) GetAll() []ledger.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.Record, len(s.records))
	copy(out, s.records)
	return out
}

// ReplaceAll substitui a sequência inteira atomicamente (import/export em
// massa). Não normaliza os registros: persiste o que recebeu.
func (s *Store) ReplaceAll(records []ledger.Record) error {
	if records == nil {
		records = []ledger.Record{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.records
	s.records = records
	if err := s.persistLocked(); err != nil {
		s.records = prev
		return err
	}
	return nil
}

// Insert adiciona um registro no INÍCIO da sequência: a ordem canônica de
// exibição é mais-recente-primeiro.
func (s *Store) Insert(rec ledger.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.records
	next := make([]ledger.Record, 0, len(prev)+1)
	next = append(next, rec)
	next = append(next, prev...)
	s.records = next
	if err := s.persistLocked(); err != nil {
		s.records = prev
		return err
	}
	return nil
}

// Patch localiza o registro por id (comparação de string) e mescla apenas os
// campos mutáveis presentes em fields, recoagindo os numéricos. Campos não
// informados ficam intocados. ErrNotFound quando o id não existe — nesse caso
// nem memória nem disco mudam.
func (s *Store) Patch(id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.records {
		if s.records[i].ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return ErrNotFound
	}

	prev := s.records[idx]
	rec := prev
	for k, v := range fields {
		if !patchable[k] {
			continue
		}
		switch k {
		case "time":
			rec.Time = asString(v)
		case "match":
			rec.Match = asString(v)
		case "bet":
			rec.Bet = asString(v)
		case "status":
			rec.Status = asString(v)
		case "stake_currency":
			rec.StakeCurrency = asString(v)
		case "win_currency":
			rec.WinCurrency = asString(v)
		case "stake_value":
			rec.StakeValue = ledger.ParseNumber(v)
		case "coef":
			rec.Coef = ledger.ParseNumber(v)
		case "win_value":
			rec.WinValue = ledger.ParseNumber(v)
		}
	}

	s.records[idx] = rec
	if err := s.persistLocked(); err != nil {
		s.records[idx] = prev
		return err
	}
	return nil
}

// Delete remove todos os registros cujo id bate. Id inexistente não é erro:
// a operação é idempotente.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.records
	next := prev[:0:0]
	for _, r := range prev {
		if r.ID != id {
			next = append(next, r)
		}
	}
	if next == nil {
		next = []ledger.Record{}
	}
	if len(next) == len(prev) {
		return nil // nada a remover, nada a persistir
	}

	s.records = next
	if err := s.persistLocked(); err != nil {
		s.records = prev
		return err
	}
	return nil
}

// persistLocked grava a sequência inteira em disco de forma atômica
// (arquivo temporário + rename). Chamar apenas com s.mu adquirido.
func (s *Store) persistLocked() error {
	b, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("commit ledger: %w", err)
	}
	return nil
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
