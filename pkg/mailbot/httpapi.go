// Copyright 2024-2026 Aiku AI

package mailbot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"
)

const maxCallbackBodySize = 1 << 20 // 1 MiB

// CallbackServer receives interactive callbacks from Mattermost:
// message action clicks on /actions and dialog submissions on
// /dialogs. Mattermost delivers these over HTTP to the URL embedded
// in each action's integration.
type CallbackServer struct {
	bot    *Bot
	server *http.Server
	log    zerolog.Logger
}

func NewCallbackServer(bot *Bot, addr string, log zerolog.Logger) *CallbackServer {
	s := &CallbackServer{
		bot: bot,
		log: log.With().Str("component", "callback_server").Logger(),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/actions", s.handleActions)
	mux.HandleFunc("/dialogs", s.handleDialogs)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the server stops. http.ErrServerClosed
// is swallowed so a clean Shutdown reads as a nil error.
func (s *CallbackServer) ListenAndServe() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Callback server listening")
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *CallbackServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *CallbackServer) readBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxCallbackBodySize)
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		s.log.Warn().Err(err).Str("path", r.URL.Path).Msg("Failed to decode callback payload")
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *CallbackServer) handleActions(w http.ResponseWriter, r *http.Request) {
	var req model.PostActionIntegrationRequest
	if !s.readBody(w, r, &req) {
		return
	}

	token, _ := req.Context["token"].(string)
	if token == "" {
		http.Error(w, "missing action token", http.StatusBadRequest)
		return
	}

	evt := &ActionEvent{
		UserID:    req.UserId,
		ChannelID: req.ChannelId,
		TriggerID: req.TriggerId,
		Token:     token,
		Value:     selectedOption(&req),
	}

	reply := s.bot.HandleAction(r.Context(), evt)

	resp := model.PostActionIntegrationResponse{}
	if reply != nil {
		resp.EphemeralText = reply.Ephemeral
	}
	writeJSON(w, &resp)
}

// selectedOption extracts the chosen menu value. Mattermost puts it in
// the integration context under selected_option for select actions.
func selectedOption(req *model.PostActionIntegrationRequest) string {
	if v, ok := req.Context["selected_option"].(string); ok {
		return v
	}
	return ""
}

func (s *CallbackServer) handleDialogs(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitDialogRequest
	if !s.readBody(w, r, &req) {
		return
	}

	if req.Cancelled {
		writeJSON(w, &model.SubmitDialogResponse{})
		return
	}

	values := make(map[string]string, len(req.Submission))
	for key, raw := range req.Submission {
		if v, ok := raw.(string); ok {
			values[key] = v
		}
	}

	evt := &FormEvent{
		UserID:    req.UserId,
		ChannelID: req.ChannelId,
		Token:     req.CallbackId,
		Values:    values,
	}

	s.bot.HandleForm(r.Context(), evt)
	writeJSON(w, &model.SubmitDialogResponse{})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
