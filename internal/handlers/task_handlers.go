package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"taskAssistant/internal/handlers/dto"
	"taskAssistant/internal/logger"
	"taskAssistant/internal/models/task"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type TaskHandler struct {
	TaskService TaskService
	OwnerUserID int64
	Location    *time.Location
}

func NewTaskHandler(taskService TaskService, ownerUserID int64, loc *time.Location) TaskHandler {
	return TaskHandler{
		TaskService: taskService,
		OwnerUserID: ownerUserID,
		Location:    loc,
	}
}

// userID берётся из query или заголовка; по умолчанию — владелец
func (h *TaskHandler) userID(r *http.Request) int64 {
	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		raw = r.Header.Get("X-User-ID")
	}
	if raw == "" {
		return h.OwnerUserID
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return h.OwnerUserID
	}
	return id
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *TaskHandler) PostTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	if !checkContentType(r, "application/json") {
		logger.Warn("HTTP: Неверный тип контента",
			zap.String("expected", "application/json"),
			zap.String("received", r.Header.Get("Content-Type")),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusUnsupportedMediaType, "Content-Type должен быть application/json")
		return
	}

	var request dto.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		logger.Warn("HTTP: ошибка чтения JSON",
			zap.Error(err),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusBadRequest, "неверное тело запроса: "+err.Error())
		return
	}

	if request.Text == "" {
		logger.Warn("HTTP: Ошибка валидации",
			zap.String("field", "text"),
			zap.String("error", "empty_field"),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusBadRequest, "текст задачи не может быть пустым")
		return
	}

	var options []task.TaskOption
	if request.AllDay {
		options = append(options, task.WithAllDay(true))
	}
	if request.Recurrence != "" {
		options = append(options, task.WithRecurrence(request.Recurrence))
	}
	if request.Notes != "" {
		options = append(options, task.WithNotes(request.Notes))
	}

	logger.Info("HTTP: Вызов сервиса создания задач")
	t, err := h.TaskService.CreateNewTask(r.Context(), h.userID(r), request.Text, request.RawText, request.DueAt, options...)
	if err != nil {
		if handleBusinessError(w, err) {
			return
		}
		logger.Error("HTTP: Ошибка Service", err,
			zap.String("operation", "create_task"),
			zap.String("client_ip", r.RemoteAddr),
			zap.Duration("ms", time.Since(start)))
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Info("HTTP_OUT: Задача создана",
		zap.Int64("task_id", t.ID),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusCreated))
	responseWithJSON(w, http.StatusCreated, toPayload("task", dto.FromTask(t)))
}

func (h *TaskHandler) GetTasks(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	var status *task.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := task.Status(raw)
		if st != task.StatusOpen && st != task.StatusDone && st != task.StatusArchived {
			logger.Warn("HTTP: Неверное значение параметра",
				zap.String("query", "status"),
				zap.String("received", raw),
				zap.String("client_ip", r.RemoteAddr))
			responseWithError(w, http.StatusBadRequest, "неверное значение status")
			return
		}
		status = &st
	}

	tasks, err := h.TaskService.ListTasks(r.Context(), h.userID(r), status,
		queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		logger.Error("HTTP: Ошибка Service", err)
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Info("HTTP_OUT: Задачи получены",
		zap.Int("count", len(tasks)),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))
	responseWithJSON(w, http.StatusOK, toPayload("tasks", dto.FromTaskList(tasks)))
}

func (h *TaskHandler) GetAgenda(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	today, overdue, err := h.TaskService.Agenda(r.Context(), h.userID(r), h.Location)
	if err != nil {
		logger.Error("HTTP: Ошибка Service", err,
			zap.String("operation", "agenda"))
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Info("HTTP_OUT: Повестка собрана",
		zap.Int("today", len(today)),
		zap.Int("overdue", len(overdue)),
		zap.Duration("ms", time.Since(start)))
	responseWithJSON(w, http.StatusOK,
		toPayload("today", dto.FromTaskList(today)),
		toPayload("overdue", dto.FromTaskList(overdue)))
}

func (h *TaskHandler) GetTaskByID(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, err := pathID(r)
	if err != nil || id <= 0 {
		logger.Warn("HTTP: Не удалось получить id",
			zap.Error(err),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusBadRequest, "неверный id задачи")
		return
	}

	t, err := h.TaskService.GetTaskByID(r.Context(), id)
	if err != nil {
		if handleBusinessError(w, err) {
			return
		}
		logger.Error("HTTP: Ошибка в Service", err,
			zap.String("operation", "get_task"),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Info("HTTP_OUT: Задача получена",
		zap.Int64("task_id", t.ID),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))
	responseWithJSON(w, http.StatusOK, toPayload("task", dto.FromTask(t)))
}

func (h *TaskHandler) UpdateTaskByID(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, err := pathID(r)
	if err != nil || id <= 0 {
		logger.Warn("HTTP: Не удалось получить id",
			zap.Error(err),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusBadRequest, "неверный id задачи")
		return
	}

	var request dto.UpdateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		logger.Warn("HTTP: ошибка чтения JSON",
			zap.Error(err),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusBadRequest, "неверно переданы параметры обновления: "+err.Error())
		return
	}

	var options []task.TaskOption
	if request.Text != nil {
		options = append(options, task.WithText(*request.Text))
	}
	if request.Status != nil {
		st := task.Status(*request.Status)
		if st != task.StatusOpen && st != task.StatusDone && st != task.StatusArchived {
			responseWithError(w, http.StatusBadRequest, "неверное значение status")
			return
		}
		options = append(options, task.WithStatus(st))
	}
	if request.ClearDue {
		options = append(options, task.WithDueAt(nil))
	} else if request.DueAt != nil {
		options = append(options, task.WithDueAt(request.DueAt))
	}
	if request.AllDay != nil {
		options = append(options, task.WithAllDay(*request.AllDay))
	}
	if request.Recurrence != nil {
		options = append(options, task.WithRecurrence(*request.Recurrence))
	}
	if request.Notes != nil {
		options = append(options, task.WithNotes(*request.Notes))
	}

	logger.Info("HTTP: запрос к сервису обновления данных")
	t, err := h.TaskService.UpdateTaskByID(r.Context(), id, options...)
	if err != nil {
		if handleBusinessError(w, err) {
			return
		}
		logger.Error("HTTP: ошибка в Service", err,
			zap.String("operation", "update_task"),
			zap.String("client_addr", r.RemoteAddr))
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Info("HTTP_OUT: Задача обновлена",
		zap.Int64("task_id", t.ID),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))
	responseWithJSON(w, http.StatusOK, toPayload("task", dto.FromTask(t)))
}

func (h *TaskHandler) CompleteTaskByID(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, err := pathID(r)
	if err != nil || id <= 0 {
		responseWithError(w, http.StatusBadRequest, "неверный id задачи")
		return
	}

	t, err := h.TaskService.CompleteTask(r.Context(), id)
	if err != nil {
		if handleBusinessError(w, err) {
			return
		}
		logger.Error("HTTP: ошибка в Service", err,
			zap.String("operation", "complete_task"))
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Info("HTTP_OUT: Задача завершена",
		zap.Int64("task_id", t.ID),
		zap.Duration("ms", time.Since(start)))
	responseWithJSON(w, http.StatusOK, toPayload("task", dto.FromTask(t)))
}

func (h *TaskHandler) DeleteTaskByID(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, err := pathID(r)
	if err != nil || id <= 0 {
		logger.Warn("HTTP: Не удалось получить id",
			zap.Error(err),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusBadRequest, "неверный id задачи")
		return
	}

	if err := h.TaskService.DeleteTaskByID(r.Context(), id); err != nil {
		if handleBusinessError(w, err) {
			return
		}
		logger.Error("HTTP: ошибка в Service", err,
			zap.String("operation", "delete_task"))
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Info("HTTP_OUT: Задача удалена",
		zap.Int64("task_id", id),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusNoContent))
	w.WriteHeader(http.StatusNoContent)
}
