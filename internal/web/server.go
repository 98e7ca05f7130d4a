// Package web exposes the study engine over a JSON API. One engine runs
// per active session; all handlers funnel through a single mutex so the
// engines keep their single-threaded discipline.
package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/evaluate"
	"github.com/conorfennell/studydeck/internal/library"
	"github.com/conorfennell/studydeck/internal/mastery"
	"github.com/conorfennell/studydeck/internal/parser"
	"github.com/conorfennell/studydeck/internal/session"
	"github.com/conorfennell/studydeck/internal/storage"
	deckSync "github.com/conorfennell/studydeck/internal/sync"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	lib      *library.Library
	db       *storage.DB
	writer   *storage.Writer
	logger   *slog.Logger
	router   *http.ServeMux
	defaults domain.Settings
	reposDir string

	mu       sync.Mutex
	engines  map[string]*session.Engine
	confirms map[string]*mastery.Confirm
}

// validate checks imported sets against the domain model's constraints
// before they enter the library.
var validate = validator.New()

// NewServer creates and configures a new server. defaults are the study
// settings applied when a session starts without overrides.
func NewServer(lib *library.Library, db *storage.DB, writer *storage.Writer, logger *slog.Logger, defaults domain.Settings, reposDir string) *Server {
	s := &Server{
		lib:      lib,
		db:       db,
		writer:   writer,
		logger:   logger,
		router:   http.NewServeMux(),
		defaults: defaults,
		reposDir: reposDir,
		engines:  make(map[string]*session.Engine),
		confirms: make(map[string]*mastery.Confirm),
	}

	// Every set the library touches gets persisted in the background.
	lib.OnChange(func(sets []*domain.CardSet) {
		for _, set := range sets {
			writer.Save(set)
		}
	})

	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("/api/sets", s.handleSets())
	s.router.HandleFunc("/api/sets/", s.handleSet())
	s.router.HandleFunc("/api/multistudy", s.handleMultistudy())
	s.router.HandleFunc("/api/sessions/", s.handleSession())
	s.router.HandleFunc("/api/sources", s.handleSources())
	s.router.HandleFunc("/api/sources/", s.handleDeleteSource())
	s.router.HandleFunc("/api/sync", s.handlePostSync())
	s.router.HandleFunc("/api/stats", s.handleStats())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// setSummary is the list view of a card set.
type setSummary struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Cards      int       `json:"cards"`
	Mastered   int       `json:"mastered"`
	Starred    int       `json:"starred"`
	LastPlayed time.Time `json:"lastPlayed"`
	ElapsedMS  int64     `json:"elapsedMs"`
	TopStreak  int       `json:"topStreak"`
	Multistudy bool      `json:"multistudy"`
	Active     bool      `json:"active"`
}

func summarize(set *domain.CardSet) setSummary {
	out := setSummary{
		ID:         set.ID,
		Name:       set.Name,
		Cards:      len(set.Cards),
		LastPlayed: set.LastPlayed,
		ElapsedMS:  set.ElapsedTime.Milliseconds(),
		TopStreak:  set.TopStreak,
		Multistudy: set.Multistudy,
		Active:     set.SessionActive,
	}
	for _, c := range set.Cards {
		if c.Mastery == domain.MasteryFull {
			out.Mastered++
		}
		if c.Star {
			out.Starred++
		}
	}
	return out
}

// handleSets lists the library on GET and imports a deck on POST.
func (s *Server) handleSets() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			s.mu.Lock()
			defer s.mu.Unlock()
			summaries := make([]setSummary, 0, len(s.lib.Sets()))
			for _, set := range s.lib.Sets() {
				summaries = append(summaries, summarize(set))
			}
			s.writeJSON(w, http.StatusOK, summaries)

		case http.MethodPost:
			var req struct {
				Name string `json:"name"`
				Text string `json:"text"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
				s.writeError(w, http.StatusBadRequest, "name and text are required")
				return
			}
			cards, err := parser.Parse(strings.NewReader(req.Text))
			if err != nil {
				s.writeError(w, http.StatusBadRequest, "failed to parse deck text")
				return
			}

			set := &domain.CardSet{
				ID:               uuid.NewString(),
				Name:             req.Name,
				Cards:            cards,
				CustomFieldNames: parser.FieldNames(cards),
			}
			if err := validate.Struct(set); err != nil {
				s.writeError(w, http.StatusBadRequest, "imported deck is invalid")
				return
			}
			s.mu.Lock()
			s.lib.Add(set)
			s.mu.Unlock()
			s.writeJSON(w, http.StatusCreated, summarize(set))

		default:
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

// handleSet routes /api/sets/{id} and its sub-actions.
func (s *Server) handleSet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/sets/")
		id, action, _ := strings.Cut(rest, "/")

		s.mu.Lock()
		defer s.mu.Unlock()

		set := s.lib.Find(id)
		if set == nil {
			s.writeError(w, http.StatusNotFound, "no such set")
			return
		}

		switch {
		case action == "" && r.Method == http.MethodGet:
			s.writeJSON(w, http.StatusOK, set)

		case action == "" && r.Method == http.MethodDelete:
			if err := s.lib.Delete(id); err != nil {
				s.writeError(w, http.StatusNotFound, "no such set")
				return
			}
			if err := s.db.DeleteSet(id); err != nil {
				s.logger.Error("failed to delete set", "set", id, "error", err)
			}
			w.WriteHeader(http.StatusNoContent)

		case action == "start" && r.Method == http.MethodPost:
			s.startSession(w, r, set)

		case action == "end" && r.Method == http.MethodPost:
			s.endSession(w, set)

		case action == "starred-copy" && r.Method == http.MethodPost:
			var req struct {
				Name string `json:"name"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
				s.writeError(w, http.StatusBadRequest, "name is required")
				return
			}
			out, err := s.lib.StarredCopy(id, req.Name)
			if err != nil {
				s.writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			s.writeJSON(w, http.StatusCreated, summarize(out))

		case action == "reset-level" && r.Method == http.MethodPost:
			s.resetLevel(w, r, set)

		default:
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

// startSession spins up an engine for the set. Settings come from the
// request body where given, otherwise the configured defaults. Callers
// must hold s.mu.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, set *domain.CardSet) {
	if _, live := s.engines[set.ID]; live {
		s.writeError(w, http.StatusConflict, "session already active")
		return
	}

	settings := s.defaults
	var req struct {
		StrictSpelling  *bool   `json:"strictSpelling"`
		RetypeOnMistake *bool   `json:"retypeOnMistake"`
		StarredOnly     *bool   `json:"starredOnly"`
		Mode            *string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
		if req.StrictSpelling != nil {
			settings.StrictSpelling = *req.StrictSpelling
		}
		if req.RetypeOnMistake != nil {
			settings.RetypeOnMistake = *req.RetypeOnMistake
		}
		if req.StarredOnly != nil {
			settings.StarredOnly = *req.StarredOnly
		}
		if req.Mode != nil {
			settings.Mode = domain.Mode(*req.Mode)
		}
	}
	if settings.Mode != domain.ModeMultipleChoice {
		settings.Mode = domain.ModeStandard
	}

	if _, err := s.lib.StartSession(set.ID); err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	engine := session.New(set, settings, session.Options{
		OnUpdate: func(updated *domain.CardSet) {
			// Multistudy progress fans out to the source sets; every
			// touched set is saved through the library's OnChange hook.
			s.lib.Propagate(updated)
			s.writer.Save(updated)
		},
		OnFinish: func() {
			s.logger.Info("session complete", "set", set.Name)
		},
		OnCorrect: func() {
			if err := s.db.IncrementLifetimeCorrect(); err != nil {
				s.logger.Warn("failed to record correct answer", "error", err)
			}
		},
	})
	s.engines[set.ID] = engine
	s.writeJSON(w, http.StatusCreated, s.viewState(set.ID, engine))
}

// endSession tears the engine down. Callers must hold s.mu.
func (s *Server) endSession(w http.ResponseWriter, set *domain.CardSet) {
	engine, live := s.engines[set.ID]
	if !live {
		s.writeError(w, http.StatusNotFound, "no active session")
		return
	}
	engine.Close()
	delete(s.engines, set.ID)
	if err := s.lib.EndSession(set.ID); err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// resetLevel demotes every card at the given mastery level, guarded by a
// two-press confirmation. Callers must hold s.mu.
func (s *Server) resetLevel(w http.ResponseWriter, r *http.Request, set *domain.CardSet) {
	var req struct {
		Level int `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "level is required")
		return
	}
	if req.Level < domain.MasteryOnce || req.Level > domain.MasteryFull {
		s.writeError(w, http.StatusBadRequest, "level out of range")
		return
	}

	key := set.ID + ":" + strconv.Itoa(req.Level)
	confirm := s.confirms[key]
	if confirm == nil {
		confirm = mastery.NewConfirm()
		s.confirms[key] = confirm
	}

	now := time.Now()
	if !confirm.Press(now) {
		s.writeJSON(w, http.StatusOK, map[string]any{"confirm": "armed"})
		return
	}

	changed := mastery.DemoteLevel(set.Cards, req.Level)
	delete(s.confirms, key)
	s.writer.Save(set)
	s.writeJSON(w, http.StatusOK, map[string]any{"confirm": "executed", "changed": changed})
}

// handleMultistudy builds a combined session set from several sources.
func (s *Server) handleMultistudy() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req struct {
			Name      string   `json:"name"`
			SourceIDs []string `json:"sourceIds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || len(req.SourceIDs) == 0 {
			s.writeError(w, http.StatusBadRequest, "name and sourceIds are required")
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		ms, err := s.lib.NewMultistudy(req.Name, req.SourceIDs...)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeJSON(w, http.StatusCreated, summarize(ms))
	}
}

// sessionView is the JSON shape of an in-flight session.
type sessionView struct {
	SetID      string            `json:"setId"`
	Card       *cardView         `json:"card,omitempty"`
	Feedback   string            `json:"feedback"`
	Streak     int               `json:"streak"`
	TopStreak  int               `json:"topStreak"`
	Correction string            `json:"correction,omitempty"`
	WrongMsg   string            `json:"wrongMessage,omitempty"`
	Choices    []string          `json:"choices,omitempty"`
	Retype     *retypeView       `json:"retype,omitempty"`
	ShakeSeq   int               `json:"shakeSeq"`
	Done       bool              `json:"done"`
	NoEligible bool              `json:"noEligible"`
	ElapsedMS  int64             `json:"elapsedMs"`
	FieldNames []string          `json:"fieldNames,omitempty"`
	Revealed   map[string]string `json:"revealed,omitempty"`
}

type cardView struct {
	ID      string   `json:"id"`
	Content string   `json:"content"`
	Image   string   `json:"image,omitempty"`
	Year    bool     `json:"asksYear"`
	Fields  []string `json:"asksFields,omitempty"`
	Star    bool     `json:"star"`
	Mastery int      `json:"mastery"`
	Origin  string   `json:"origin,omitempty"`
}

type retypeView struct {
	TermLocked   bool            `json:"termLocked"`
	YearLocked   bool            `json:"yearLocked"`
	FieldsLocked map[string]bool `json:"fieldsLocked,omitempty"`
}

// viewState renders the engine for the client. The card's terms stay
// hidden until feedback reveals them. Callers must hold s.mu.
func (s *Server) viewState(setID string, e *session.Engine) sessionView {
	set := e.Set()
	view := sessionView{
		SetID:      setID,
		Feedback:   e.Feedback().String(),
		Streak:     e.Streak(),
		TopStreak:  set.TopStreak,
		Correction: e.Correction(),
		WrongMsg:   e.WrongMessage(),
		Choices:    e.Choices(),
		ShakeSeq:   e.ShakeSeq(),
		Done:       e.Done(),
		NoEligible: e.NoEligible(),
		ElapsedMS:  e.Elapsed().Milliseconds(),
		FieldNames: set.CustomFieldNames,
	}
	if rt := e.Retype(); rt != nil {
		view.Retype = &retypeView{
			TermLocked:   rt.TermLocked,
			YearLocked:   rt.YearLocked,
			FieldsLocked: rt.FieldsLocked,
		}
	}
	if card := e.Current(); card != nil {
		cv := &cardView{
			ID:      card.ID,
			Content: card.Content,
			Image:   card.Image,
			Year:    card.Year != "",
			Star:    card.Star,
			Mastery: card.Mastery,
			Origin:  card.OriginalSetName,
		}
		for _, f := range card.Fields {
			cv.Fields = append(cv.Fields, f.Name)
		}
		view.Card = cv

		// Judged or revealed cards show their answers.
		if e.Feedback() != session.FeedbackNone && e.Feedback() != session.FeedbackRetype {
			view.Revealed = map[string]string{"term": card.PrimaryTerm()}
			if card.Year != "" {
				view.Revealed["year"] = card.Year
			}
			for _, f := range card.Fields {
				view.Revealed[f.Name] = f.Value
			}
		}
	}
	return view
}

// handleSession routes /api/sessions/{setId}/{action}.
func (s *Server) handleSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
		id, action, _ := strings.Cut(rest, "/")

		s.mu.Lock()
		defer s.mu.Unlock()

		engine, live := s.engines[id]
		if !live {
			s.writeError(w, http.StatusNotFound, "no active session")
			return
		}

		if r.Method == http.MethodGet && action == "" {
			s.writeJSON(w, http.StatusOK, s.viewState(id, engine))
			return
		}
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		switch action {
		case "submit":
			var req struct {
				Term   string            `json:"term"`
				Year   string            `json:"year"`
				Fields map[string]string `json:"fields"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				s.writeError(w, http.StatusBadRequest, "invalid submission")
				return
			}
			engine.Submit(evaluate.Input{Term: req.Term, Year: req.Year, Fields: req.Fields})

		case "choose":
			var req struct {
				Option string `json:"option"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				s.writeError(w, http.StatusBadRequest, "invalid option")
				return
			}
			engine.SelectOption(req.Option)

		case "reveal":
			engine.Reveal()

		case "override":
			var req struct {
				Correct bool `json:"correct"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				s.writeError(w, http.StatusBadRequest, "invalid override")
				return
			}
			engine.Override(req.Correct)

		case "advance":
			engine.Advance()

		case "pause":
			engine.Pause()

		case "resume":
			engine.Resume()

		case "star":
			engine.ToggleStar()

		case "settings":
			var req struct {
				StrictSpelling  bool   `json:"strictSpelling"`
				RetypeOnMistake bool   `json:"retypeOnMistake"`
				StarredOnly     bool   `json:"starredOnly"`
				Mode            string `json:"mode"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				s.writeError(w, http.StatusBadRequest, "invalid settings")
				return
			}
			mode := domain.Mode(req.Mode)
			if mode != domain.ModeMultipleChoice {
				mode = domain.ModeStandard
			}
			engine.SetSettings(domain.Settings{
				StrictSpelling:  req.StrictSpelling,
				RetypeOnMistake: req.RetypeOnMistake,
				StarredOnly:     req.StarredOnly,
				Mode:            mode,
			})

		default:
			s.writeError(w, http.StatusNotFound, "unknown action")
			return
		}

		s.writeJSON(w, http.StatusOK, s.viewState(id, engine))
	}
}

// handleSources handles both GET and POST for deck sources.
func (s *Server) handleSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			sources, err := s.db.GetAllSources()
			if err != nil {
				s.logger.Error("failed to get sources", "error", err)
				s.writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			s.writeJSON(w, http.StatusOK, sources)

		case http.MethodPost:
			var req struct {
				Path string `json:"path"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
				s.writeError(w, http.StatusBadRequest, "path is required")
				return
			}

			sourceType := "local"
			if strings.HasSuffix(req.Path, ".git") || strings.HasPrefix(req.Path, "git@") || strings.HasPrefix(req.Path, "https://") {
				sourceType = "git"
			}

			id, err := s.db.InsertSource(req.Path, sourceType)
			if err != nil {
				s.logger.Error("failed to insert source", "path", req.Path, "error", err)
				s.writeError(w, http.StatusInternalServerError, "failed to add source")
				return
			}
			s.writeJSON(w, http.StatusCreated, map[string]any{"id": id, "path": req.Path, "type": sourceType})

		default:
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

// handleDeleteSource deletes a source by id.
func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		idStr := strings.TrimPrefix(r.URL.Path, "/api/sources/")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid source id")
			return
		}

		if err := s.db.DeleteSource(id); err != nil {
			s.logger.Error("failed to delete source", "id", id, "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to delete source")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handlePostSync triggers a manual reconcile of every source. Runs in
// the foreground so the caller sees a consistent library afterwards.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		s.mu.Lock()
		deckSync.RunSync(s.db, s.lib, s.reposDir)
		s.mu.Unlock()

		w.WriteHeader(http.StatusNoContent)
	}
}

// handleStats reports lifetime counters.
func (s *Server) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		correct, err := s.db.LifetimeCorrect()
		if err != nil {
			s.logger.Error("failed to read stats", "error", err)
			s.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]int64{"lifetimeCorrect": correct})
	}
}
