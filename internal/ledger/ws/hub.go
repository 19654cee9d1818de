package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/bet-ledger-sync/pkg/contracts/ledger"
)

const (
	writeWait = 5 * time.Second

	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Snapshots pendentes por assinante. Cheio = assinante lento; o mais
	// antigo é descartado em favor do mais novo (o último entregue é sempre
	// o estado mais recente que ele vai ver).
	sendBuffer = 8
)

// Métricas Prometheus de conexões e snapshots
var (
	wsSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_ws_subscribers",
		Help: "Assinantes WebSocket conectados",
	})
	wsSnapshotsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_ws_snapshots_sent_total",
		Help: "Total de snapshots entregues a assinantes",
	})
	wsSnapshotsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_ws_snapshots_dropped_total",
		Help: "Snapshots descartados por assinante lento (coalescidos)",
	})
)

func init() {
	prometheus.MustRegister(wsSubscribers, wsSnapshotsSent, wsSnapshotsDropped)
}

// subscriber é uma conexão de longa duração que recebe snapshots.
type subscriber struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub mantém o conjunto de assinantes e o último snapshot publicado.
// Publish apenas enfileira (não bloqueante por assinante); a entrega corre
// nas goroutines de escrita de cada conexão, fora da seção exclusiva de
// mutação do store.
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger

	mu   sync.RWMutex
	subs map[*subscriber]struct{}
	last []byte // última mensagem publicada, para push imediato no connect
}

// NewHub cria o hub com política de origem customizada (CORS do upgrade).
func NewHub(log *zap.Logger, allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     allowOrigin,
		},
		log:  log,
		subs: make(map[*subscriber]struct{}),
	}
}

// Publish envia a sequência completa para todos os assinantes registrados.
// Melhor esforço e não bloqueante: assinante lento perde snapshots
// intermediários, nunca atrasa os demais nem o publicador.
func (h *Hub) Publish(records []ledger.Record) {
	if records == nil {
		records = []ledger.Record{}
	}
	msg, err := json.Marshal(Snapshot{Type: snapshotType, Records: records})
	if err != nil {
		h.log.Error("snapshot marshal failed", zap.Error(err))
		return
	}

	// enqueue roda sob o mutex do hub: nunca concorre com o close do canal
	// em remove(). As operações de canal são não bloqueantes, a seção é curta.
	h.mu.Lock()
	h.last = msg
	for s := range h.subs {
		s.enqueue(msg)
	}
	h.mu.Unlock()
}

// Subscribers retorna o total de conexões ativas.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// HandleWS faz o upgrade da conexão e registra o assinante. O snapshot
// corrente é enfileirado imediatamente, antes de qualquer mutação futura.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	s := &subscriber{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	if h.last != nil {
		s.enqueue(h.last)
	}
	total := len(h.subs)
	h.mu.Unlock()

	wsSubscribers.Inc()
	h.log.Info("ws subscriber connected", zap.String("subscriber_id", s.id), zap.Int("total", total))

	go h.writePump(s)
	h.readPump(s) // retorna quando a conexão cai
}

// remove tira o assinante do conjunto e fecha seu canal de envio. Idempotente.
func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	_, ok := h.subs[s]
	if ok {
		delete(h.subs, s)
		close(s.send)
	}
	total := len(h.subs)
	h.mu.Unlock()

	if ok {
		wsSubscribers.Dec()
		_ = s.conn.Close()
		h.log.Info("ws subscriber disconnected", zap.String("subscriber_id", s.id), zap.Int("total", total))
	}
}

// readPump consome (e descarta) mensagens do assinante só para detectar o
// fechamento da conexão no nível do transporte.
func (h *Hub) readPump(s *subscriber) {
	defer h.remove(s)
	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump entrega snapshots enfileirados e mantém a conexão viva com pings.
// Erro de escrita encerra apenas este assinante.
func (h *Hub) writePump(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.remove(s)
	}()

	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Warn("ws write failed", zap.String("subscriber_id", s.id), zap.Error(err))
				return
			}
			wsSnapshotsSent.Inc()

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue empilha a mensagem sem bloquear. Buffer cheio: descarta o snapshot
// pendente mais antigo e tenta de novo — coalescer preserva a ordem (os
// entregues são subsequência dos publicados, o último é sempre o mais novo).
func (s *subscriber) enqueue(msg []byte) {
	for {
		select {
		case s.send <- msg:
			return
		default:
		}
		select {
		case <-s.send:
			wsSnapshotsDropped.Inc()
		default:
		}
	}
}
