package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/bet-ledger-sync/pkg/contracts/ledger"
)

// Writer arquiva snapshots do ledger em arquivos append-only, um por mutação.
// Backups são disaster recovery de melhor esforço: falha aqui é logada e
// engolida, nunca derruba nem desfaz a mutação primária.
type Writer struct {
	dir string
	seq atomic.Uint64
	log *zap.Logger
}

// New garante o diretório de backups e retorna o writer.
func New(dir string, log *zap.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	return &Writer{dir: dir, log: log}, nil
}

// Snapshot grava o estado pós-mutação num arquivo novo com nome único.
// Timestamp em nanossegundos mais um contador atômico: duas mutações no mesmo
// instante nunca colidem de nome (relógio de parede em segundos não basta).
func (w *Writer) Snapshot(records []ledger.Record) {
	name := fmt.Sprintf("bets-%s-%06d.json",
		time.Now().UTC().Format("2006-01-02T15-04-05.000000000"),
		w.seq.Add(1),
	)

	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		w.log.Warn("backup marshal failed", zap.Error(err))
		return
	}
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		w.log.Warn("backup write failed", zap.String("path", path), zap.Error(err))
		return
	}
}
