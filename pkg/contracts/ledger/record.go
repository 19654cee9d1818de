package ledger

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Status de liquidação de uma aposta no ledger.
const (
	StatusWon     = "WON"
	StatusLost    = "LOST"
	StatusPending = "PENDING"
)

// DefaultCurrency é a moeda assumida quando o registro não informa nenhuma.
const DefaultCurrency = "RUB"

// Record é o registro de aposta trocado entre API, store, backups e broadcast.
// O formato JSON é o contrato público: o mesmo documento vai para o arquivo
// durável, para os backups, para o export e para os assinantes WebSocket.
type Record struct {
	ID            string  `json:"id"`
	Time          string  `json:"time,omitempty"` // rótulo livre de exibição
	Match         string  `json:"match"`
	Bet           string  `json:"bet"`
	Status        string  `json:"status"`
	StakeValue    float64 `json:"stake_value"`
	StakeCurrency string  `json:"stake_currency"`
	Coef          float64 `json:"coef"`
	WinValue      float64 `json:"win_value"`
	WinCurrency   string  `json:"win_currency"`
}

// UnmarshalJSON aceita o que chega de clientes reais: campos numéricos como
// número ou string ("100" vira 100), id numérico vira string. Qualquer valor
// incoercível vira o zero do campo — o documento nunca é rejeitado por isso.
func (r *Record) UnmarshalJSON(b []byte) error {
	type alias Record
	aux := struct {
		*alias
		ID         json.RawMessage `json:"id"`
		StakeValue json.RawMessage `json:"stake_value"`
		Coef       json.RawMessage `json:"coef"`
		WinValue   json.RawMessage `json:"win_value"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	r.ID = stringFromRaw(aux.ID)
	r.StakeValue = numberFromRaw(aux.StakeValue)
	r.Coef = numberFromRaw(aux.Coef)
	r.WinValue = numberFromRaw(aux.WinValue)
	return nil
}

func numberFromRaw(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}
	return ParseNumber(v)
}

func stringFromRaw(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

// ValidStatus informa se s é um dos três status conhecidos.
func ValidStatus(s string) bool {
	return s == StatusWon || s == StatusLost || s == StatusPending
}

// SettledValue é a normalização de resultado compartilhada por todos os
// consumidores (agregação de estatísticas, transições rápidas de status):
//   - WON: valor como armazenado
//   - LOST: valor armazenado se já negativo, senão -stake (0 quando stake é 0)
//   - PENDING (ou status desconhecido): sempre 0
func SettledValue(status string, stake, win float64) float64 {
	switch status {
	case StatusWon:
		return win
	case StatusLost:
		if win < 0 {
			return win
		}
		if stake != 0 {
			return -stake
		}
		return 0
	default:
		return 0
	}
}

// Normalize aplica os defaults de importação/inserção a um registro parcial:
// status coagido ao enum, moedas RUB, win_value derivado do status quando o
// documento de origem não trouxe nenhum, id sintetizado quando ausente.
// O store nunca chama isso sozinho; normalização é responsabilidade de quem
// insere — o replace em massa persiste os registros como vieram.
func Normalize(r Record, hasWin bool) Record {
	if !ValidStatus(r.Status) {
		r.Status = StatusPending
	}
	if r.StakeCurrency == "" {
		r.StakeCurrency = DefaultCurrency
	}
	if r.WinCurrency == "" {
		r.WinCurrency = DefaultCurrency
	}
	if !hasWin {
		switch r.Status {
		case StatusWon:
			r.WinValue = math.Round(r.StakeValue * r.Coef)
		case StatusLost:
			r.WinValue = -math.Abs(r.StakeValue)
		default:
			r.WinValue = 0
		}
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return r
}

// ParseNumber coage um valor JSON arbitrário para float64, com 0 como default.
// Aceita os formatos que chegam de clientes reais: número, string numérica,
// bool. Qualquer outra coisa vira 0.
func ParseNumber(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return f
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	case bool:
		if n {
			return 1
		}
		return 0
	default:
		return 0
	}
}
