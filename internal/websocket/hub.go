package websocket

import (
	"bytes"
	"sync"
	"sync/atomic"

	"copytrade/pkg/utils"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// sync.Pool для буферов сериализации: Notify вызывается на каждый исход сигнала
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 1024))
	},
}

// размер очереди исходящих доставок
const outboundBufferSize = 1024

// delivery - одно сообщение для набора пользователей
type delivery struct {
	userIDs []int64
	data    []byte
}

// Hub управляет WebSocket соединениями пользователей.
//
// Соединения группируются по user id: один пользователь может держать
// несколько вкладок. Сообщения адресуются конкретным пользователям.
//
// Notify и Broadcast никогда не блокируют вызывающего и не возвращают
// ошибок: при переполнении очереди сообщение отбрасывается, клиент,
// не успевающий читать, отключается.
//
// Использование:
//  1. hub := NewHub(origins)
//  2. go hub.Run()
//  3. hub.Notify(userID, message)
type Hub struct {
	// Клиенты по user id
	clients map[int64]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	outbound   chan delivery
	done       chan struct{}
	stopOnce   sync.Once

	origins *OriginChecker
	dropped atomic.Int64
	mu      sync.RWMutex
	logger  *utils.Logger
}

// NewHub создаёт Hub. Пустой список origins разрешает любые.
func NewHub(allowedOrigins []string) *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		outbound:   make(chan delivery, outboundBufferSize),
		done:       make(chan struct{}),
		origins:    NewOriginChecker(allowedOrigins),
		logger:     utils.L().WithComponent("websocket"),
	}
}

// Run запускает главный цикл Hub. Должен запускаться в отдельной горутине.
//
// Список получателей копируется под коротким RLock, отправка идёт без
// блокировки, медленные клиенты удаляются под Write Lock.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug("client connected", utils.UserID(client.userID), utils.Int("total", h.ClientCount()))

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()
			h.logger.Debug("client disconnected", utils.UserID(client.userID), utils.Int("total", h.ClientCount()))

		case d := <-h.outbound:
			h.deliver(d)
		}
	}
}

func (h *Hub) deliver(d delivery) {
	h.mu.RLock()
	var targets []*Client
	for _, id := range d.userIDs {
		for client := range h.clients[id] {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	var slow []*Client
	for _, client := range targets {
		select {
		case client.send <- d.data:
		default:
			slow = append(slow, client)
		}
	}

	if len(slow) > 0 {
		h.mu.Lock()
		for _, client := range slow {
			h.removeLocked(client)
		}
		h.mu.Unlock()
		h.logger.Warn("slow clients removed", utils.Int("count", len(slow)))
	}
}

// removeLocked удаляет клиента; вызывается под h.mu
func (h *Hub) removeLocked(client *Client) {
	set, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	close(client.send)
	if len(set) == 0 {
		delete(h.clients, client.userID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.clients {
		for client := range set {
			close(client.send)
		}
	}
	h.clients = make(map[int64]map[*Client]struct{})
}

// Stop останавливает Run и закрывает все соединения
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Notify отправляет сообщение всем соединениям пользователя
func (h *Hub) Notify(userID int64, payload interface{}) {
	h.Broadcast([]int64{userID}, payload)
}

// Broadcast отправляет одно сообщение нескольким пользователям
func (h *Hub) Broadcast(userIDs []int64, payload interface{}) {
	if len(userIDs) == 0 {
		return
	}

	data, err := encode(payload)
	if err != nil {
		h.logger.Error("websocket message encode failed", utils.Err(err))
		return
	}

	ids := append([]int64(nil), userIDs...)
	select {
	case h.outbound <- delivery{userIDs: ids, data: data}:
	default:
		h.dropped.Add(1)
	}
}

// encode сериализует сообщение через буфер из пула
func encode(payload interface{}) ([]byte, error) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer jsonBufferPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return nil, err
	}

	data := bytes.TrimRight(buf.Bytes(), "\n")
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// ClientCount возвращает общее количество соединений
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// UserClientCount возвращает количество соединений пользователя
func (h *Hub) UserClientCount(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// DroppedMessages возвращает число сообщений, отброшенных из-за переполнения очереди
func (h *Hub) DroppedMessages() int64 {
	return h.dropped.Load()
}
