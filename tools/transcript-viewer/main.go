// Transcript Viewer - live meeting transcript display.
// Consumes the service's Kafka topics and relays them to browsers over WebSocket.
package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"flag"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

//go:embed static/*
var staticFiles embed.FS

// envelope holds the fields the viewer logs; the payload is relayed untouched.
type envelope struct {
	EventType   string `json:"eventType"`
	SessionID   string `json:"sessionId"`
	Participant string `json:"participant"`
	Text        string `json:"text"`
	Transcript  *struct {
		ID          int64  `json:"id"`
		Participant string `json:"participant"`
		Text        string `json:"text"`
	} `json:"transcript"`
	Classification *struct {
		Type    string `json:"type"`
		Emotion string `json:"emotion"`
	} `json:"classification"`
}

// hub relays raw event payloads to every connected browser.
type hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, send := range h.clients {
		select {
		case send <- payload:
		default:
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dev
	},
}

func (h *hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	send := make(chan []byte, 100)
	h.mu.Lock()
	h.clients[conn] = send
	h.mu.Unlock()
	log.Info().Msg("Client connected")

	go func() {
		for payload := range send {
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, conn)
	close(send)
	h.mu.Unlock()
	conn.Close()
	log.Info().Msg("Client disconnected")
}

func consume(ctx context.Context, h *hub, brokers []string, topic string, lookback time.Duration) {
	// Partition reader without a consumer group works better through port-forward
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-lookback)); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Failed to rewind reader")
	}
	logger := log.With().Str("topic", topic).Logger()
	logger.Info().Dur("lookback", lookback).Msg("Consuming")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Msg("Kafka read error")
			time.Sleep(time.Second)
			continue
		}

		var ev envelope
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			logger.Warn().Err(err).Msg("Skipping malformed event")
			continue
		}
		logEvent(logger, ev)
		h.broadcast(msg.Value)
	}
}

func logEvent(logger zerolog.Logger, ev envelope) {
	e := logger.Info().Str("eventType", ev.EventType).Str("sessionId", ev.SessionID)
	if ev.Transcript != nil {
		e = e.Int64("transcriptId", ev.Transcript.ID).
			Str("participant", ev.Transcript.Participant).
			Str("text", truncate(ev.Transcript.Text, 40))
		if ev.Classification != nil {
			e = e.Str("type", ev.Classification.Type).Str("emotion", ev.Classification.Emotion)
		}
	} else {
		e = e.Str("participant", ev.Participant).Str("text", truncate(ev.Text, 40))
	}
	e.Msg("Received")
}

func truncate(s string, maxRunes int) string {
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes]) + "..."
}

func main() {
	port := flag.String("port", "8081", "HTTP server port")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topicInterim := flag.String("topic-interim", "meeting.transcript.interim", "Interim transcript topic")
	topicFinal := flag.String("topic-final", "meeting.transcript.final", "Final transcript topic")
	lookback := flag.Duration("lookback", time.Hour, "Replay messages newer than this on startup")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := newHub()
	brokerList := strings.Split(*brokers, ",")
	go consume(ctx, h, brokerList, *topicInterim, *lookback)
	go consume(ctx, h, brokerList, *topicFinal, *lookback)

	staticFS, _ := fs.Sub(staticFiles, "static")
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(staticFS)))
	mux.HandleFunc("/ws", h.serveWS)

	srv := &http.Server{Addr: ":" + *port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("url", "http://localhost:"+*port).
		Strs("brokers", brokerList).
		Strs("topics", []string{*topicInterim, *topicFinal}).
		Msg("Transcript viewer starting")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server error")
	}
}
