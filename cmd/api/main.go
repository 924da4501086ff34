package main

import (
	"log"
	"net/http"

	"themeflow/internal/api"
	"themeflow/internal/config"
	"themeflow/internal/purpose"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	if err := purpose.ValidateConfigs(); err != nil {
		log.Fatal(err)
	}
	cfg := config.Load()
	h := api.NewServer(cfg)
	log.Printf("themeflow api listening on %s llm_providers=%q embed_providers=%q", cfg.APIAddr, cfg.LLMProviders, cfg.EmbedProviders)
	if err := http.ListenAndServe(cfg.APIAddr, h.Routes()); err != nil {
		log.Fatal(err)
	}
}
