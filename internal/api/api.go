package api

import (
	"net/http"

	"finetune-backend/internal/completions"
	"finetune-backend/internal/finetune"
	"finetune-backend/internal/messaging"
	"finetune-backend/internal/respcache"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type BackendService struct {
	db          *gorm.DB
	publisher   messaging.Publisher
	manager     *finetune.Manager
	completions *completions.Client
	cache       respcache.ResponseCache
}

// NewBackendService wires the HTTP handlers. cache must be the same cache the
// completions client was built with; it is only used to clear stored responses.
func NewBackendService(db *gorm.DB, publisher messaging.Publisher, manager *finetune.Manager, client *completions.Client, cache respcache.ResponseCache) *BackendService {
	if cache == nil {
		cache = respcache.NopCache{}
	}
	return &BackendService{
		db:          db,
		publisher:   publisher,
		manager:     manager,
		completions: client,
		cache:       cache,
	}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))

	r.Route("/finetunes", func(r chi.Router) {
		r.Post("/", RestHandler(s.CreateFineTune))
		r.Get("/", RestHandler(s.ListFineTunes))
		r.Get("/{fine_tune_id}", RestHandler(s.GetFineTune))
		r.Get("/{fine_tune_id}/status", RestHandler(s.GetFineTuneStatus))
		r.Get("/{fine_tune_id}/events", RestHandler(s.GetFineTuneEvents))
		r.Get("/{fine_tune_id}/events/stream", RestStreamHandler(s.StreamFineTuneEvents))
		r.Get("/{fine_tune_id}/model", RestHandler(s.GetFineTuneModel))
		r.Post("/{fine_tune_id}/completions", RestHandler(s.CompleteWithFineTune))
	})

	r.Post("/completions", RestHandler(s.Complete))
	r.Post("/chat/completions", RestHandler(s.ChatComplete))
	r.Post("/embeddings", RestHandler(s.Embed))
	r.Delete("/cache", RestHandler(s.ClearCache))
}
