package service

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/bet-ledger-sync/internal/ledger/auth"
	"github.com/radieske/bet-ledger-sync/internal/ledger/store"
	"github.com/radieske/bet-ledger-sync/pkg/contracts/ledger"
)

var mutationsApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "ledger_mutations_applied_total",
	Help: "Mutações confirmadas no ledger, por operação",
}, []string{"op"})

func init() {
	prometheus.MustRegister(mutationsApplied)
}

// Archiver arquiva um snapshot por mutação (ver backup.Writer).
type Archiver interface {
	Snapshot(records []ledger.Record)
}

// Broadcaster empurra o estado completo para os assinantes (ver ws.Hub).
type Broadcaster interface {
	Publish(records []ledger.Record)
}

// Service compõe o caminho de mutação do ledger:
//
//	autorização → store (commit durável) → backup → broadcast
//
// O mutex do Service cobre do commit até o enfileiramento do broadcast, então
// a ordem de publicação é sempre a ordem de commit: a mutação seguinte não
// entra antes do snapshot da anterior ser enfileirado. O enfileiramento não
// bloqueia por assinante, logo a seção nunca espera cliente lento.
type Service struct {
	mu    sync.Mutex
	store *store.Store
	arch  Archiver
	bcast Broadcaster
	gate  *auth.Gate
	log   *zap.Logger
}

func New(st *store.Store, arch Archiver, bcast Broadcaster, gate *auth.Gate, log *zap.Logger) *Service {
	return &Service{store: st, arch: arch, bcast: bcast, gate: gate, log: log}
}

// Authorized valida a credencial compartilhada. Nenhum efeito colateral.
func (s *Service) Authorized(secret string) bool { return s.gate.Check(secret) }

// List retorna a sequência completa na ordem canônica. Sem autorização.
func (s *Service) List() []ledger.Record { return s.store.GetAll() }

// ReplaceAll troca o ledger inteiro. Os registros entram como vieram —
// normalização de import é responsabilidade de quem importa.
func (s *Service) ReplaceAll(records []ledger.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.ReplaceAll(records); err != nil {
		return err
	}
	s.committed("replace_all")
	return nil
}

// Insert aplica os defaults de inserção (status, moedas, win derivado, id
// sintetizado) e prepende o registro. hasWin diz se o payload trouxe um
// win_value explícito — zero explícito é respeitado, ausência é derivada.
func (s *Service) Insert(rec ledger.Record, hasWin bool) (ledger.Record, error) {
	rec = ledger.Normalize(rec, hasWin)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Insert(rec); err != nil {
		return ledger.Record{}, err
	}
	s.committed("insert")
	return rec, nil
}

// Patch mescla os campos mutáveis no registro com o id dado.
// store.ErrNotFound sobe inalterado; nesse caso nada é arquivado nem publicado.
func (s *Service) Patch(id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Patch(id, fields); err != nil {
		return err
	}
	s.committed("patch")
	return nil
}

// Delete remove o registro (idempotente). Publica mesmo quando o id não
// existia: o snapshot resultante é idêntico e inofensivo.
func (s *Service) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Delete(id); err != nil {
		return err
	}
	s.committed("delete")
	return nil
}

// committed roda após um commit durável bem sucedido, ainda sob o mutex:
// arquiva o estado pós-mutação e enfileira o broadcast. Backup e broadcast
// são melhor esforço — nunca alteram o resultado da mutação.
func (s *Service) committed(op string) {
	state := s.store.GetAll()
	s.arch.Snapshot(state)
	s.bcast.Publish(state)
	mutationsApplied.WithLabelValues(op).Inc()
	s.log.Debug("mutation committed", zap.String("op", op), zap.Int("records", len(state)))
}
