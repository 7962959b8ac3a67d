package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/artpar/docmodel/core/model"
	"github.com/artpar/docmodel/core/schema"
	"github.com/artpar/docmodel/core/storage"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 10 << 20

// Models looks up registered models. *registry.Registry implements it.
type Models interface {
	Get(name string) (*model.Model, bool)
	Models() []*model.Model
}

// ModelSummary is one entry of GET /models.
type ModelSummary struct {
	Name       string `json:"name"`
	Collection string `json:"collection"`
}

// ModelSchema is returned by GET /models/{model}.
type ModelSchema struct {
	Name       string               `json:"name"`
	Collection string               `json:"collection"`
	Fields     []schema.FieldSchema `json:"fields"`
}

// ValidationErrorBody is the 422 response body.
type ValidationErrorBody struct {
	Error    string           `json:"error"`
	Failures []schema.Failure `json:"failures"`
}

// ModelHandler serves the /models API.
type ModelHandler struct {
	models Models
	logger zerolog.Logger
}

// NewModelHandler creates a handler over models.
func NewModelHandler(models Models, logger zerolog.Logger) *ModelHandler {
	return &ModelHandler{models: models, logger: logger}
}

// Routes returns a router to mount at /models.
func (h *ModelHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.list)
	r.Route("/{model}", func(r chi.Router) {
		r.Get("/", h.describe)
		r.Get("/documents", h.find)
		r.Post("/documents", h.insert)
		r.Get("/documents/one", h.findOne)
		r.Post("/validate", h.validate)
		r.Post("/aggregate", h.aggregate)
	})

	return r
}

func (h *ModelHandler) list(w http.ResponseWriter, r *http.Request) {
	models := h.models.Models()
	out := make([]ModelSummary, len(models))
	for i, m := range models {
		out[i] = ModelSummary{Name: m.Name(), Collection: m.CollectionName()}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  out,
		"count": len(out),
	})
}

func (h *ModelHandler) describe(w http.ResponseWriter, r *http.Request) {
	m, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ModelSchema{
		Name:       m.Name(),
		Collection: m.CollectionName(),
		Fields:     m.Engine().Describe(),
	})
}

func (h *ModelHandler) find(w http.ResponseWriter, r *http.Request) {
	m, ok := h.lookup(w, r)
	if !ok {
		return
	}

	docs, err := m.Find(r.Context(), queryFilter(m, r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if docs == nil {
		docs = []schema.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  docs,
		"count": len(docs),
	})
}

func (h *ModelHandler) findOne(w http.ResponseWriter, r *http.Request) {
	m, ok := h.lookup(w, r)
	if !ok {
		return
	}

	doc, found, err := m.FindOne(r.Context(), queryFilter(m, r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, fmt.Errorf("no %s matches", m.Name()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": doc})
}

func (h *ModelHandler) insert(w http.ResponseWriter, r *http.Request) {
	m, ok := h.lookup(w, r)
	if !ok {
		return
	}
	doc, ok := decodeDocument(w, r)
	if !ok {
		return
	}
	if !rawRequested(r) {
		doc = m.New(doc)
	}

	out, err := m.Insert(r.Context(), doc)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"data": out})
}

func (h *ModelHandler) validate(w http.ResponseWriter, r *http.Request) {
	m, ok := h.lookup(w, r)
	if !ok {
		return
	}
	doc, ok := decodeDocument(w, r)
	if !ok {
		return
	}
	if !rawRequested(r) {
		doc = m.New(doc)
	}

	out, err := m.Validate(r.Context(), doc)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "data": out})
}

func (h *ModelHandler) aggregate(w http.ResponseWriter, r *http.Request) {
	m, ok := h.lookup(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read body: %w", err))
		return
	}
	pipeline, err := storage.ParsePipeline(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	docs, err := m.Aggregate(r.Context(), pipeline)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if docs == nil {
		docs = []schema.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  docs,
		"count": len(docs),
	})
}

// rawRequested reports whether ?raw= asks to skip shaping, so the body is
// validated and stored exactly as sent.
func rawRequested(r *http.Request) bool {
	raw, err := strconv.ParseBool(r.URL.Query().Get("raw"))
	return err == nil && raw
}

func (h *ModelHandler) lookup(w http.ResponseWriter, r *http.Request) (*model.Model, bool) {
	name := chi.URLParam(r, "model")
	m, ok := h.models.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("model %q not found", name))
	}
	return m, ok
}

// fail maps validation errors to 422 and everything else to 500.
func (h *ModelHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, ValidationErrorBody{
			Error:    verr.Error(),
			Failures: verr.Failures,
		})
		return
	}

	h.logger.Error().Err(err).
		Str("model", chi.URLParam(r, "model")).
		Str("path", r.URL.Path).
		Msg("model operation failed")
	writeError(w, http.StatusInternalServerError, err)
}

// queryFilter turns query parameters naming declared fields into a
// string equality filter. Other parameters are ignored.
func queryFilter(m *model.Model, r *http.Request) storage.Filter {
	filter := storage.Filter{}
	q := r.URL.Query()
	for _, f := range m.Engine().Fields() {
		if q.Has(f) {
			filter[f] = q.Get(f)
		}
	}
	return filter
}

func decodeDocument(w http.ResponseWriter, r *http.Request) (schema.Document, bool) {
	var doc schema.Document
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return nil, false
	}
	if doc == nil {
		doc = schema.Document{}
	}
	return doc, true
}
