package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/vibecheckhq/vibecheck/analyzer"
	"github.com/vibecheckhq/vibecheck/app_config"
	"github.com/vibecheckhq/vibecheck/content"
	"github.com/vibecheckhq/vibecheck/credpool"
	"github.com/vibecheckhq/vibecheck/engine"
	"github.com/vibecheckhq/vibecheck/engine/modules"
	"github.com/vibecheckhq/vibecheck/ingest"
	"github.com/vibecheckhq/vibecheck/model"
	"github.com/vibecheckhq/vibecheck/publish"
	"github.com/vibecheckhq/vibecheck/sentiment"
	"github.com/vibecheckhq/vibecheck/utils"
	"github.com/vibecheckhq/vibecheck/utils/dotenv"
	Logger "github.com/vibecheckhq/vibecheck/utils/log"
)

var (
	AppConfigPath *string
)

func init() {
	AppConfigPath = flag.String("app_config_path", "cmd/pipeline/config.yaml", "path to pipeline app config")
}

func main() {
	flag.Parse()

	if err := dotenv.LoadDotEnvs(); err != nil {
		panic(err)
	}

	cfg := app_config.ParsePipelineAppConfig(*AppConfigPath)

	db, err := utils.GetDBConnection()
	if err != nil {
		Logger.Log.Fatalf("fail to connect to database: %v", err)
	}
	utils.DatabaseSetupAndMigration(db)

	statuses, err := utils.GetJobStatusStore()
	if err != nil {
		Logger.Log.Warnf("job status store unavailable: %v", err)
		statuses = nil
	}

	pool, err := credpool.NewPool(db, &cfg)
	if err != nil {
		Logger.Log.Fatalf("fail to load credential pool: %v", err)
	}

	bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	queue := engine.NewJobQueue(db, bus, statuses)

	machine := content.NewStateMachine(db, &cfg)
	store := ingest.NewGormStore(db)
	api := ingest.NewHttpCommentAPI(os.Getenv("SCRAPE_TARGET_BASE_URL"))
	pipeline := &modules.Pipeline{
		DB:         db,
		Discoverer: ingest.NewDiscoverer(store, api, pool, &cfg),
		Ingestor:   ingest.NewWorker(store, api, pool, ingest.NewRegistry(), &cfg),
		Scorer:     sentiment.NewLocalScorer(&cfg),
		Viral:      analyzer.NewScorer(&cfg),
		Aggregator: analyzer.NewAggregator(sentiment.NewOpenAISummarizer(&cfg), &cfg),
		Machine:    machine,
		Publisher: publish.NewPublisher(
			publish.NewGormStore(db),
			publish.NewHttpExternalClient(os.Getenv("PUBLISH_TARGET_BASE_URL")),
			machine,
			&cfg,
		),
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := engine.NewEngine([]engine.Module{
		modules.NewJobPoller(modules.JobPollerConfig{Name: "job_poller"}, queue),
		modules.NewJobWorker(modules.JobWorkerConfig{
			Name: "scrape_worker", Kind: model.JobKindScrape, PoolSize: cfg.SCRAPE_POOL_SIZE,
		}, queue, pipeline.HandleScrapeJob),
		modules.NewJobWorker(modules.JobWorkerConfig{
			Name: "analyze_worker", Kind: model.JobKindAnalyze, PoolSize: cfg.ANALYZE_POOL_SIZE,
		}, queue, pipeline.HandleAnalyzeJob),
		modules.NewJobWorker(modules.JobWorkerConfig{
			Name: "publish_worker", Kind: model.JobKindPublish, PoolSize: cfg.PUBLISH_POOL_SIZE,
		}, queue, pipeline.HandlePublishJob),
		modules.NewPublishScheduler(modules.PublishSchedulerConfig{Name: "publish_scheduler"}, db, queue),
		modules.NewCounterReset(modules.CounterResetConfig{Name: "counter_reset"}, pool),
	}, ctx, cancel, bus)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		e.Shutdown()
	}()

	Logger.Log.Info("pipeline worker starts up")
	e.Run()
}
