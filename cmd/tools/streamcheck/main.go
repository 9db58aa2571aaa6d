package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	clienttutor "github.com/zhouzirui/z-notes/internal/client/tutor"
	"github.com/zhouzirui/z-notes/internal/config"
	"github.com/zhouzirui/z-notes/internal/logging"
	tutormodel "github.com/zhouzirui/z-notes/internal/model/tutor"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	mode := flag.String("mode", "chat", "模式: chat, resolve 或 replay")
	apiBase := flag.String("api", cfg.Client.APIBase, "notes API base URL")
	projectID := flag.String("project", "", "project id for chat mode")
	message := flag.String("message", "", "user message for chat mode")
	highlighted := flag.String("highlight", "", "highlighted text sent with the message")
	threadID := flag.String("thread", "", "thread id for resolve mode")
	decision := flag.String("decision", "approve", "approve or reject for resolve mode")
	replayPath := flag.String("replay", "", "captured stream file for replay mode")
	timeout := flag.Duration("timeout", 2*time.Minute, "请求超时时间")
	flag.Parse()

	logger, err := logging.New("debug", "console")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var body io.ReadCloser
	switch *mode {
	case "chat":
		if *projectID == "" || *message == "" {
			log.Fatal("chat 模式需要 -project 和 -message")
		}
		req := tutormodel.ChatRequest{
			Message:             *message,
			ProjectID:           *projectID,
			ConversationHistory: []tutormodel.HistoryEntry{},
		}
		if *highlighted != "" {
			req.HighlightedText = highlighted
		}
		body, err = clienttutor.NewHTTPTransport(*apiBase, nil).Open(ctx, req)
	case "resolve":
		if *threadID == "" {
			log.Fatal("resolve 模式需要 -thread")
		}
		d := tutormodel.Decision(*decision)
		if !d.Valid() {
			log.Fatalf("invalid decision %q", *decision)
		}
		body, err = clienttutor.NewHTTPTransport(*apiBase, nil).Open(ctx, tutormodel.ChatRequest{
			ProjectID:           *projectID,
			ThreadID:            *threadID,
			ConversationHistory: []tutormodel.HistoryEntry{},
			HITLInput:           &tutormodel.HITLInput{Content: d},
		})
	case "replay":
		if *replayPath == "" {
			log.Fatal("replay 模式需要 -replay")
		}
		body, err = os.Open(*replayPath)
	default:
		flag.Usage()
		log.Fatalf("unknown mode %q", *mode)
	}
	if err != nil {
		log.Fatalf("打开事件流失败: %v", err)
	}
	defer body.Close()

	count, dropped, err := dump(ctx, body, logger, os.Stdout)
	if err != nil {
		log.Fatalf("读取事件流失败: %v", err)
	}
	log.Printf("事件流结束: events=%d dropped=%d", count, dropped)
}

// dump prints every decoded event with its arrival offset.
func dump(ctx context.Context, body io.Reader, logger *zap.Logger, out io.Writer) (int, int, error) {
	decoder := clienttutor.NewDecoder(body, clienttutor.NewFrameParser(logger))
	start := time.Now()
	count := 0
	for {
		event, err := decoder.Next(ctx)
		if errors.Is(err, io.EOF) {
			return count, decoder.Dropped(), nil
		}
		if err != nil {
			return count, decoder.Dropped(), err
		}
		count++
		fmt.Fprintf(out, "%8s  %-8s thread=%s\n%s\n\n",
			time.Since(start).Truncate(time.Millisecond), event.Type, event.ThreadID, event.Content)
	}
}
