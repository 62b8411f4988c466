package main

import (
	"flag"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/vibecheckhq/vibecheck/app_config"
	"github.com/vibecheckhq/vibecheck/content"
	"github.com/vibecheckhq/vibecheck/engine"
	"github.com/vibecheckhq/vibecheck/schedule"
	"github.com/vibecheckhq/vibecheck/server"
	"github.com/vibecheckhq/vibecheck/utils"
	"github.com/vibecheckhq/vibecheck/utils/dotenv"
	serviceFlag "github.com/vibecheckhq/vibecheck/utils/flag"
	Logger "github.com/vibecheckhq/vibecheck/utils/log"
)

var (
	AppConfigPath *string
)

func init() {
	AppConfigPath = flag.String("app_config_path", "cmd/server/config.yaml", "path to api server app config")
}

func main() {
	flag.Parse()

	if err := dotenv.LoadDotEnvs(); err != nil {
		panic(err)
	}

	cfg := app_config.ParsePipelineAppConfig(*AppConfigPath)
	if !*serviceFlag.IsDevelopment {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := utils.GetDBConnection()
	if err != nil {
		Logger.Log.Fatalf("fail to connect to database: %v", err)
	}
	utils.DatabaseSetupAndMigration(db)

	// Job status polling degrades to DB reads when Redis is unavailable.
	statuses, err := utils.GetJobStatusStore()
	if err != nil {
		Logger.Log.Warnf("job status store unavailable: %v", err)
		statuses = nil
	}

	bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	queue := engine.NewJobQueue(db, bus, statuses)
	machine := content.NewStateMachine(db, &cfg)
	suggester, err := schedule.NewSuggester(&cfg)
	if err != nil {
		Logger.Log.Fatalf("fail to build suggester: %v", err)
	}

	s, err := server.NewServer(db, queue, statuses, machine, suggester, &cfg)
	if err != nil {
		Logger.Log.Fatalf("fail to build server: %v", err)
	}

	// Default comes with the Logger and Recovery middleware already attached.
	router := gin.Default()
	router.Use(cors.Default())
	s.Register(router)

	Logger.Log.Info("api server starts up")
	router.Run(":8080")
}
