package api

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bothive/bothive/internal/registry"
	"github.com/bothive/bothive/internal/session"
)

// maxUploadBytes caps archive uploads.
const maxUploadBytes = 32 << 20

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	})
}

// handleRedeem handles POST /auth/redeem. A valid code establishes a session
// and lazily creates the tenant on first login.
func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	identity, err := s.broker.Redeem(r.Context(), req.Code)
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}

	tenant, err := s.registry.FindOrCreateTenant(r.Context(), identity.ChatID, identity.DisplayName, identity.AvatarRef)
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}

	token, err := s.sessions.Create(r.Context(), tenant.ID)
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, RedeemResponse{
		Token:       token,
		TenantID:    tenant.ID,
		DisplayName: tenant.DisplayName,
	})
}

// handleListBots handles GET /bots.
func (s *Server) handleListBots(w http.ResponseWriter, r *http.Request) {
	principal, _ := session.PrincipalFromContext(r.Context())

	bots, err := s.registry.ListBots(r.Context(), principal.TenantID)
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}

	out := make([]BotResponse, 0, len(bots))
	for _, b := range bots {
		out = append(out, s.botResponse(b))
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleCreateBot handles POST /bots. The quota check happens inside the
// registry transaction; the sandbox directory is only created after the
// record exists, so a rejected create leaves nothing behind.
func (s *Server) handleCreateBot(w http.ResponseWriter, r *http.Request) {
	principal, _ := session.PrincipalFromContext(r.Context())

	var req CreateBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	tenant, err := s.registry.GetTenant(r.Context(), principal.TenantID)
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}

	bot, err := s.registry.CreateBot(r.Context(), registry.NewBot{
		TenantID: principal.TenantID,
		Name:     req.Name,
		Language: req.Language,
		DataDir:  s.config.DataDir,
	}, s.quota(tenant.Tier))
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}

	if err := s.files.Ensure(bot.Dir); err != nil {
		s.writeTaxonomyError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, s.botResponse(bot))
}

// handleGetBot handles GET /bots/{botID}.
func (s *Server) handleGetBot(w http.ResponseWriter, r *http.Request) {
	bot, ok := s.lookupBot(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, s.botResponse(bot))
}

// handleDeleteBot handles DELETE /bots/{botID}. Cleanup is partial-failure
// tolerant: a sandbox removal error is logged but does not keep the process
// alive or the record in place.
func (s *Server) handleDeleteBot(w http.ResponseWriter, r *http.Request) {
	principal, _ := session.PrincipalFromContext(r.Context())

	bot, ok := s.lookupBot(w, r)
	if !ok {
		return
	}

	if err := s.supervisor.Stop(r.Context(), bot.ID); err != nil {
		s.logger.Warn("stop bot during delete", "bot_id", bot.ID, "error", err)
	}
	if err := os.RemoveAll(bot.Dir); err != nil {
		s.logger.Warn("remove sandbox during delete", "bot_id", bot.ID, "error", err)
	}
	if err := s.registry.DeleteBot(r.Context(), bot.ID, principal.TenantID); err != nil {
		s.writeTaxonomyError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleStartBot handles POST /bots/{botID}/start.
func (s *Server) handleStartBot(w http.ResponseWriter, r *http.Request) {
	bot, ok := s.lookupBot(w, r)
	if !ok {
		return
	}

	if err := s.supervisor.Start(r.Context(), bot); err != nil {
		s.writeTaxonomyError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": registry.StatusRunning})
}

// handleStopBot handles POST /bots/{botID}/stop.
func (s *Server) handleStopBot(w http.ResponseWriter, r *http.Request) {
	bot, ok := s.lookupBot(w, r)
	if !ok {
		return
	}

	if err := s.supervisor.Stop(r.Context(), bot.ID); err != nil {
		s.writeTaxonomyError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": registry.StatusStopped})
}

// handleListFiles handles GET /bots/{botID}/files.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	bot, ok := s.lookupBot(w, r)
	if !ok {
		return
	}

	entries, err := s.files.List(bot.Dir)
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

// handleReadFile handles GET /bots/{botID}/files/content?path=.
func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	bot, ok := s.lookupBot(w, r)
	if !ok {
		return
	}

	content, err := s.files.Read(bot.Dir, r.URL.Query().Get("path"))
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

// handleWriteFile handles PUT /bots/{botID}/files/content?path=.
func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	bot, ok := s.lookupBot(w, r)
	if !ok {
		return
	}

	// Read one byte past the cap to tell an at-limit body from an oversized
	// one; truncating silently would corrupt the bot's file.
	content, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read request body")
		return
	}
	if len(content) > maxUploadBytes {
		s.writeError(w, http.StatusRequestEntityTooLarge, "file exceeds upload size limit")
		return
	}

	if err := s.files.Write(bot.Dir, r.URL.Query().Get("path"), content); err != nil {
		s.writeTaxonomyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteFile handles DELETE /bots/{botID}/files?path=.
func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	bot, ok := s.lookupBot(w, r)
	if !ok {
		return
	}

	if err := s.files.Delete(bot.Dir, r.URL.Query().Get("path")); err != nil {
		s.writeTaxonomyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUploadArchive handles POST /bots/{botID}/archive. The multipart part
// is staged to a temp file, then extracted into the sandbox with
// overwrite-on-conflict semantics.
func (s *Server) handleUploadArchive(w http.ResponseWriter, r *http.Request) {
	bot, ok := s.lookupBot(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	part, _, err := r.FormFile("archive")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing archive part")
		return
	}
	defer part.Close()

	tmp, err := os.CreateTemp("", "bothive-upload-*.zip")
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "stage upload")
		return
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	staged, err := io.Copy(tmp, io.LimitReader(part, maxUploadBytes+1))
	if err != nil {
		_ = tmp.Close()
		s.writeError(w, http.StatusBadRequest, "read archive")
		return
	}
	if staged > maxUploadBytes {
		_ = tmp.Close()
		s.writeError(w, http.StatusRequestEntityTooLarge, "archive exceeds upload size limit")
		return
	}
	if err := tmp.Close(); err != nil {
		s.writeError(w, http.StatusInternalServerError, "stage upload")
		return
	}

	digest, err := s.files.ExtractArchive(tmpPath, bot.Dir)
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}

	if err := s.registry.SetArchiveDigest(r.Context(), bot.ID, digest); err != nil {
		s.writeTaxonomyError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, UploadResponse{Digest: digest})
}

// handleTailLogs handles GET /bots/{botID}/logs?limit=.
func (s *Server) handleTailLogs(w http.ResponseWriter, r *http.Request) {
	bot, ok := s.lookupBot(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	entries, err := s.logs.Tail(r.Context(), bot.ID, limit)
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

// lookupBot resolves {botID} against the caller's tenant, writing the error
// response on failure.
func (s *Server) lookupBot(w http.ResponseWriter, r *http.Request) (*registry.Bot, bool) {
	principal, _ := session.PrincipalFromContext(r.Context())

	bot, err := s.registry.GetBot(r.Context(), chi.URLParam(r, "botID"), principal.TenantID)
	if err != nil {
		s.writeTaxonomyError(w, err)
		return nil, false
	}
	return bot, true
}

func (s *Server) botResponse(b *registry.Bot) BotResponse {
	resp := BotResponse{
		ID:            b.ID,
		Name:          b.Name,
		Language:      b.Language,
		Status:        b.Status,
		Running:       s.supervisor.Running(b.ID),
		CreatedAt:     b.CreatedAt,
		LastStartedAt: b.LastStartedAt,
		LastStoppedAt: b.LastStoppedAt,
	}
	if b.ArchiveDigest != nil {
		resp.ArchiveDigest = *b.ArchiveDigest
	}
	return resp
}
