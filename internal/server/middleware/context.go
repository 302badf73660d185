package middleware

import (
	"github.com/studyontology/backend/internal/artifact"
	"github.com/studyontology/backend/internal/ingest"
	"github.com/studyontology/backend/internal/util"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"

	"github.com/studyontology/backend/pkg/ai"
	oai "github.com/studyontology/backend/pkg/ai/ollama"
	gai "github.com/studyontology/backend/pkg/ai/openai"
	"github.com/studyontology/backend/pkg/canvas"
	"github.com/studyontology/backend/pkg/enrich"
	"github.com/studyontology/backend/pkg/graph"
	"github.com/studyontology/backend/pkg/leaselock"
	"github.com/studyontology/backend/pkg/logger"
	"github.com/studyontology/backend/pkg/query"
	"github.com/studyontology/backend/pkg/store"
	storepgx "github.com/studyontology/backend/pkg/store/pgx"
)

type App struct {
	DBConn   *pgxpool.Pool
	Queue    *amqp091.Channel
	S3       *s3.Client
	AiClient ai.GraphAIClient

	Storage store.GraphStorage
	Engine  *query.Engine
	Ingest  *ingest.Service
}

type AppContext struct {
	echo.Context
	App *App
}

// NewAIClient builds the extraction client selected by AI_ADAPTER.
func NewAIClient() ai.GraphAIClient {
	adapter := util.GetEnv("AI_ADAPTER")

	switch adapter {
	case "ollama":
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			ExtractionModel: util.GetEnv("AI_CHAT_EXTRACT_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 15)),
		})
		if err != nil {
			logger.Fatal("Failed to create Ollama client", "err", err)
		}
		return client
	default:
		return gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			ExtractionModel: util.GetEnv("AI_CHAT_EXTRACT_MODEL"),

			ChatURL: util.GetEnv("AI_CHAT_URL"),
			ChatKey: util.GetEnv("AI_CHAT_KEY"),
		})
	}
}

// NewArtifactReader picks the artifact backend from ARTIFACT_STORE.
// Anything other than "s3" reads from the local upload root.
func NewArtifactReader(s3Client *s3.Client) artifact.Reader {
	if util.GetEnvString("ARTIFACT_STORE", "local") == "s3" {
		return artifact.NewS3Reader(s3Client)
	}
	return artifact.NewLocalReader(artifact.UploadRoot())
}

func AppContextMiddleware(
	db *pgxpool.Pool,
	queue *amqp091.Channel,
	s3Client *s3.Client,
) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			aiClient := NewAIClient()

			storage := storepgx.NewGraphDBStorageWithConnection(db)
			pipeline := graph.NewPipeline(aiClient, enrich.NewOpenAlexEnricher())
			svc := ingest.NewService(
				storage,
				NewArtifactReader(s3Client),
				pipeline,
				canvas.NewClient(),
				leaselock.New(db),
			)

			app := &App{
				DBConn:   db,
				Queue:    queue,
				S3:       s3Client,
				AiClient: aiClient,

				Storage: storage,
				Engine:  query.NewEngine(storage),
				Ingest:  svc,
			}
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}
