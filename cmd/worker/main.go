package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/studiumhub/coursechat/internal/chatbot"
	"github.com/studiumhub/coursechat/internal/config"
	"github.com/studiumhub/coursechat/internal/db"
	"github.com/studiumhub/coursechat/internal/search"
	"github.com/studiumhub/coursechat/internal/store/rabbitmq"
)

const uploadBatchSize = 100

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	repo := chatbot.NewRepo(gdb)

	sc := search.NewClient(cfg.SearchEndpoint, cfg.SearchAPIKey, cfg.SearchAPIVersion, search.EmbeddingConfig{
		ResourceURI: cfg.EmbeddingResourceURI,
		Deployment:  cfg.EmbeddingDeployment,
		Model:       cfg.EmbeddingModel,
		APIKey:      cfg.EmbeddingAPIKey,
	})

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	_, err = ch.QueueDeclare(cfg.RabbitQueue, true, false, false, false, nil)
	if err != nil {
		log.Fatalf("queue declare: %v", err)
	}

	concurrency := workerConcurrency()

	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("index worker started, queue=%s concurrency=%d", cfg.RabbitQueue, concurrency)

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var job rabbitmq.IndexRefreshJob
				if err := json.Unmarshal(d.Body, &job); err != nil || job.CourseID == "" {
					log.Printf("worker=%d bad message: %v", workerID, err)
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := refreshIndex(ctx, repo, sc, job); err != nil {
					log.Printf("worker=%d course=%s refresh failed cost=%s err=%v", workerID, job.CourseID, time.Since(start), err)
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					log.Printf("worker=%d ack failed course=%s err=%v", workerID, job.CourseID, err)
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Printf("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}

// refreshIndex brings one course's search index up to date: ensure the index
// exists, then upload every embedded page chunk in batches.
func refreshIndex(ctx context.Context, repo *chatbot.Repo, sc *search.Client, job rabbitmq.IndexRefreshJob) error {
	cfg, err := repo.GetDefaultConfigurationForCourse(ctx, job.CourseID)
	if err != nil {
		return err
	}
	if !cfg.MaintainAzureSearchIndex {
		log.Printf("course=%s skipped: maintenance disabled", job.CourseID)
		return nil
	}

	name := search.IndexName(job.OriginHost, job.CourseID)
	if err := sc.EnsureIndex(ctx, name); err != nil {
		return err
	}

	chunks, err := repo.ListPageChunks(ctx, job.CourseID)
	if err != nil {
		return err
	}

	docs := make([]search.Document, 0, uploadBatchSize)
	for _, c := range chunks {
		var vec []float32
		if err := json.Unmarshal([]byte(c.Embedding), &vec); err != nil {
			log.Printf("course=%s chunk=%s bad embedding: %v", job.CourseID, c.ChunkID, err)
			continue
		}
		docs = append(docs, search.Document{
			ChunkID:    c.ChunkID,
			ParentID:   c.PageID,
			Chunk:      c.Chunk,
			Title:      c.Title,
			URL:        c.PagePath,
			TextVector: vec,
		})
		if len(docs) == uploadBatchSize {
			if err := sc.UploadDocuments(ctx, name, docs); err != nil {
				return err
			}
			docs = docs[:0]
		}
	}
	return sc.UploadDocuments(ctx, name, docs)
}
