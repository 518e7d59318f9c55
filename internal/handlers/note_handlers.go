package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"taskAssistant/internal/handlers/dto"
	"taskAssistant/internal/logger"

	"go.uber.org/zap"
)

type NoteHandler struct {
	NoteService NoteService
	OwnerUserID int64
}

func NewNoteHandler(noteService NoteService, ownerUserID int64) NoteHandler {
	return NoteHandler{
		NoteService: noteService,
		OwnerUserID: ownerUserID,
	}
}

func (h *NoteHandler) userID(r *http.Request) int64 {
	th := TaskHandler{OwnerUserID: h.OwnerUserID}
	return th.userID(r)
}

func (h *NoteHandler) PostNote(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	if !checkContentType(r, "application/json") {
		responseWithError(w, http.StatusUnsupportedMediaType, "Content-Type должен быть application/json")
		return
	}

	var request dto.CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		logger.Warn("HTTP: ошибка чтения JSON",
			zap.Error(err),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusBadRequest, "неверное тело запроса: "+err.Error())
		return
	}

	n, err := h.NoteService.AddNote(r.Context(), h.userID(r), request.Text)
	if err != nil {
		if handleBusinessError(w, err) {
			return
		}
		logger.Error("HTTP: Ошибка Service", err,
			zap.String("operation", "add_note"))
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Info("HTTP_OUT: Заметка создана",
		zap.Int64("note_id", n.ID),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusCreated))
	responseWithJSON(w, http.StatusCreated, toPayload("note", dto.FromNote(n)))
}

func (h *NoteHandler) GetNotes(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	notes, err := h.NoteService.ListNotes(r.Context(), h.userID(r),
		queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		logger.Error("HTTP: Ошибка Service", err)
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Info("HTTP_OUT: Заметки получены",
		zap.Int("count", len(notes)),
		zap.Duration("ms", time.Since(start)))
	responseWithJSON(w, http.StatusOK, toPayload("notes", dto.FromNoteList(notes)))
}

func (h *NoteHandler) SearchNotes(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	keyword := r.URL.Query().Get("q")
	notes, err := h.NoteService.SearchNotes(r.Context(), h.userID(r), keyword,
		queryInt(r, "limit", 50))
	if err != nil {
		if handleBusinessError(w, err) {
			return
		}
		logger.Error("HTTP: Ошибка Service", err,
			zap.String("operation", "search_notes"))
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Info("HTTP_OUT: Поиск заметок выполнен",
		zap.Int("count", len(notes)),
		zap.Duration("ms", time.Since(start)))
	responseWithJSON(w, http.StatusOK, toPayload("notes", dto.FromNoteList(notes)))
}

func (h *NoteHandler) GetNoteByID(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, err := pathID(r)
	if err != nil || id <= 0 {
		responseWithError(w, http.StatusBadRequest, "неверный id заметки")
		return
	}

	n, err := h.NoteService.GetNoteByID(r.Context(), id)
	if err != nil {
		if handleBusinessError(w, err) {
			return
		}
		logger.Error("HTTP: Ошибка Service", err,
			zap.String("operation", "get_note"))
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("note", dto.FromNote(n)))
}

func (h *NoteHandler) DeleteNoteByID(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, err := pathID(r)
	if err != nil || id <= 0 {
		responseWithError(w, http.StatusBadRequest, "неверный id заметки")
		return
	}

	if err := h.NoteService.DeleteNoteByID(r.Context(), id); err != nil {
		if handleBusinessError(w, err) {
			return
		}
		logger.Error("HTTP: Ошибка Service", err,
			zap.String("operation", "delete_note"))
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
