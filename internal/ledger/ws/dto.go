package ws

import "github.com/radieske/bet-ledger-sync/pkg/contracts/ledger"

// Snapshot é a mensagem enviada aos assinantes: sempre o ledger inteiro,
// nunca um delta. Estado completo é autocorretivo — um snapshot perdido é
// coberto pelo próximo.
type Snapshot struct {
	Type    string          `json:"type"` // "bets:update"
	Records []ledger.Record `json:"records"`
}

const snapshotType = "bets:update"
