package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	grpcapi "transcript-chat-service/internal/api/grpc"
)

func main() {
	serverAddr := flag.String("server", "localhost:50051", "gRPC server address")
	path := flag.String("file", "", "Media file path on the server, inside its MEDIA_UPLOAD_DIR")
	url := flag.String("url", "", "Media link")
	question := flag.String("q", "What is this recording about?", "Question to ask")
	flag.Parse()

	conn, err := grpc.NewClient(*serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("Connected to %s", *serverAddr)

	client := grpcapi.NewClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	created, err := client.CreateSession(ctx, &structpb.Struct{})
	if err != nil {
		log.Fatalf("failed to create session: %v", err)
	}
	id := created.Fields["id"].GetStringValue()
	log.Printf("Created session: id=%s", id)
	defer client.DeleteSession(context.Background(), &structpb.Struct{Fields: map[string]*structpb.Value{
		"sessionId": structpb.NewStringValue(id),
	}})

	in, _ := structpb.NewStruct(map[string]any{"sessionId": id, "path": *path, "url": *url})
	start := time.Now()
	idx, err := client.EnsureIndexBuilt(ctx, in)
	if err != nil {
		log.Fatalf("failed to build index: %v", err)
	}
	log.Printf("Index ready: chunks=%v took=%v", idx.Fields["chunkCount"].GetNumberValue(), time.Since(start).Round(time.Millisecond))

	done, err := client.Ask(ctx, id, *question, func(d string) {
		fmt.Fprint(os.Stdout, d)
	})
	fmt.Println()
	if err != nil {
		log.Fatalf("failed to ask: %v", err)
	}

	for _, s := range done.Fields["sources"].GetListValue().GetValues() {
		src := s.GetStructValue().Fields
		log.Printf("Source %s (score %.3f)", src["source"].GetStringValue(), src["score"].GetNumberValue())
	}
}
