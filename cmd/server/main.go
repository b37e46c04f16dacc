package main

import (
	"context"
	"log"
	"net/http"

	"github.com/podlab/podcast-backend-go/internal/api"
	"github.com/podlab/podcast-backend-go/internal/artifacts"
	"github.com/podlab/podcast-backend-go/internal/broadcast"
	"github.com/podlab/podcast-backend-go/internal/config"
	"github.com/podlab/podcast-backend-go/internal/database"
	"github.com/podlab/podcast-backend-go/internal/handler"
	"github.com/podlab/podcast-backend-go/internal/pipeline"
	"github.com/podlab/podcast-backend-go/internal/repository"
	"github.com/podlab/podcast-backend-go/internal/service"
	"github.com/podlab/podcast-backend-go/internal/stages"
	"github.com/podlab/podcast-backend-go/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	if err := database.Init(database.Config{Path: cfg.Database.Path}); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer database.Close()

	artifactStore, err := artifacts.NewStore(cfg.Artifacts.Dir, cfg.ArtifactTTL())
	if err != nil {
		log.Fatal("Failed to initialize artifact store:", err)
	}

	registry := broadcast.NewRegistry(cfg.Broadcast.QueueSize)
	taskStore := store.NewTaskStore(registry, cfg.Pipeline.MaxListLimit)
	registry.SetSource(taskStore)

	sequencer := pipeline.NewSequencer(taskStore, cfg.Deadline(), service.AgentTable(), stages.ResultKey)

	httpClient := &http.Client{}
	llm := &stages.LLMClient{Client: httpClient, BaseURL: cfg.Stages.LLMURL, Model: cfg.Stages.LLMModel}
	runners := []pipeline.Runner{
		&stages.TranscriptStage{Client: httpClient, BaseURL: cfg.Stages.TranscriptURL},
		&stages.SummarizeStage{LLM: llm},
		&stages.SynthesizeStage{LLM: llm},
		&stages.RenderStage{
			Client:     httpClient,
			BaseURL:    cfg.Stages.TTSURL,
			VoiceA:     cfg.Stages.VoiceA,
			VoiceB:     cfg.Stages.VoiceB,
			Artifacts:  artifactStore,
			PublicPath: "/audio",
		},
	}

	episodes := repository.NewEpisodeRepository(database.GetDB())
	svc := service.NewPodcastService(taskStore, sequencer, episodes, runners, cfg.TaskTTL())

	ctx := context.Background()
	svc.StartEviction(ctx, cfg.SweepInterval())
	artifactStore.StartSweeper(ctx, cfg.SweepInterval())

	router := api.SetupRouter(cfg,
		handler.NewTaskHandler(svc),
		handler.NewStreamHandler(svc, registry, cfg.PingInterval()),
		handler.NewEpisodeHandler(svc),
		artifactStore.Dir(),
	)

	log.Printf("Server starting on %s", cfg.Server.Port)
	if err := router.Run(cfg.Server.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
