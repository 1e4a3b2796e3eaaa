// Command eventviewer tails the session and answer topics and relays every
// event to websocket clients on /ws.
package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"transcript-chat-service/internal/events"
	"transcript-chat-service/internal/observability/logging"
)

func main() {
	port := flag.String("port", "8081", "HTTP server port")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topicSession := flag.String("topic-session", "transcript.chat.session", "Session event topic")
	topicAnswer := flag.String("topic-answer", "transcript.chat.answer", "Answer event topic")
	since := flag.Duration("since", time.Hour, "Replay events newer than this")
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console"})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := newHub()
	go hub.run()

	for _, topic := range []string{*topicSession, *topicAnswer} {
		c := events.NewConsumer(ctx, strings.Split(*brokers, ","), topic, *since)
		defer c.Close()
		go c.Run(ctx, func(env events.Envelope) {
			log.Info().Str("topic", env.Topic).Str("type", env.EventType).Str("session", env.Key).Msg("Event")
			hub.broadcast <- env
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler(hub))
	srv := &http.Server{Addr: ":" + *port, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	log.Info().Str("port", *port).Str("brokers", *brokers).Msg("Event viewer starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Server error")
	}
}
