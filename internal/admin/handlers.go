package admin

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edgard/chatkeeper/internal/bot"
	"github.com/edgard/chatkeeper/internal/conversation"
	"github.com/edgard/chatkeeper/internal/kvstore"
)

const (
	defaultReportLimit  = 20
	defaultMessageLimit = 100
)

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.deps.Archive != nil {
		if err := h.deps.Archive.Ping(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "Health check failed", "error", err)
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "archive": err.Error()})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type taskInfo struct {
	Name    string    `json:"name"`
	NextRun time.Time `json:"next_run,omitempty"`
}

func (h *handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := struct {
		Snapshot     any        `json:"snapshot"`
		Groups       []string   `json:"groups"`
		ReportGroups []string   `json:"report_groups"`
		Tasks        []taskInfo `json:"tasks"`
	}{
		Snapshot:     h.deps.Snapshot.Info(),
		Groups:       h.deps.Conversations.GroupIDs(r.Context()),
		ReportGroups: h.reportGroups(),
		Tasks:        h.tasks(),
	}
	respondJSON(w, http.StatusOK, info)
}

func (h *handler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	result, err := h.deps.Snapshot.ForceCleanup(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Cleanup via admin API failed", "error", err)
		respondError(w, http.StatusInternalServerError, "cleanup failed")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *handler) handleListGroups(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{"groups": h.deps.Conversations.GroupIDs(r.Context())})
}

func (h *handler) handleGroupStats(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	date := r.URL.Query().Get("date")
	if date == "" {
		date = conversation.DateOf(time.Now(), h.deps.Location)
	} else if _, err := time.Parse(conversation.DateLayout, date); err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	counts, err := h.deps.Conversations.DailyCounts(r.Context(), groupID, date)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to read stats", "group_id", groupID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to read stats")
		return
	}
	var total int64
	for _, c := range counts {
		total += c.Count
	}
	logSize, err := h.deps.Conversations.TotalMessageCount(r.Context(), groupID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to count messages", "group_id", groupID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to count messages")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"group_id":       groupID,
		"date":           date,
		"total_messages": total,
		"users":          counts,
		"log_size":       logSize,
	})
}

func (h *handler) handleGroupMessages(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	q := r.URL.Query()

	from, err := boundParam(q.Get("from"), math.Inf(-1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid from: "+err.Error())
		return
	}
	to, err := boundParam(q.Get("to"), math.Inf(1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid to: "+err.Error())
		return
	}
	limit, err := limitParam(q.Get("limit"), defaultMessageLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	messages, err := h.deps.Conversations.MessagesInRange(r.Context(), groupID, from, to)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to read messages", "group_id", groupID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to read messages")
		return
	}
	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	respondJSON(w, http.StatusOK, map[string]any{"group_id": groupID, "messages": messages})
}

func (h *handler) handleGroupReports(w http.ResponseWriter, r *http.Request) {
	if h.deps.Archive == nil {
		respondError(w, http.StatusServiceUnavailable, "report archive disabled")
		return
	}
	groupID := chi.URLParam(r, "groupID")
	limit, err := limitParam(r.URL.Query().Get("limit"), defaultReportLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	reports, err := h.deps.Archive.ListReports(r.Context(), groupID, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to list reports", "group_id", groupID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"group_id": groupID, "reports": reports})
}

func (h *handler) handleListReportGroups(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{"groups": h.reportGroups()})
}

func (h *handler) handleAddReportGroup(w http.ResponseWriter, r *http.Request) {
	if h.deps.Groups == nil {
		respondError(w, http.StatusServiceUnavailable, "report groups unavailable")
		return
	}
	groupID := chi.URLParam(r, "groupID")
	if _, err := strconv.ParseInt(groupID, 10, 64); err != nil {
		respondError(w, http.StatusBadRequest, "group id must be a Telegram chat id")
		return
	}
	status := http.StatusOK
	if h.deps.Groups.AddGroup(groupID) {
		status = http.StatusCreated
		h.logger.InfoContext(r.Context(), "Report group added", "group_id", groupID)
	}
	respondJSON(w, status, map[string][]string{"groups": h.deps.Groups.Groups()})
}

func (h *handler) handleRemoveReportGroup(w http.ResponseWriter, r *http.Request) {
	if h.deps.Groups == nil {
		respondError(w, http.StatusServiceUnavailable, "report groups unavailable")
		return
	}
	groupID := chi.URLParam(r, "groupID")
	if !h.deps.Groups.RemoveGroup(groupID) {
		respondError(w, http.StatusNotFound, "group not in report list")
		return
	}
	h.logger.InfoContext(r.Context(), "Report group removed", "group_id", groupID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleListTasks(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]taskInfo{"tasks": h.tasks()})
}

func (h *handler) handleRunTask(w http.ResponseWriter, r *http.Request) {
	if h.deps.Tasks == nil {
		respondError(w, http.StatusServiceUnavailable, "scheduler unavailable")
		return
	}
	name := chi.URLParam(r, "name")
	if err := h.deps.Tasks.RunNow(name); err != nil {
		if errors.Is(err, bot.ErrUnknownTask) {
			respondError(w, http.StatusNotFound, "unknown task")
			return
		}
		h.logger.ErrorContext(r.Context(), "Failed to trigger task", "task", name, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to trigger task")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"task": name, "status": "triggered"})
}

func (h *handler) reportGroups() []string {
	if h.deps.Groups == nil {
		return []string{}
	}
	return h.deps.Groups.Groups()
}

func (h *handler) tasks() []taskInfo {
	out := []taskInfo{}
	if h.deps.Tasks == nil {
		return out
	}
	for _, name := range h.deps.Tasks.Tasks() {
		info := taskInfo{Name: name}
		if next, err := h.deps.Tasks.NextRun(name); err == nil {
			info.NextRun = next
		}
		out = append(out, info)
	}
	return out
}

// boundParam parses a millisecond timestamp bound, accepting -inf and +inf.
func boundParam(raw string, fallback float64) (int64, error) {
	v := fallback
	if raw != "" {
		parsed, err := kvstore.ParseBound(raw)
		if err != nil {
			return 0, err
		}
		v = parsed
	}
	switch {
	case math.IsInf(v, -1):
		return math.MinInt64, nil
	case math.IsInf(v, 1):
		return math.MaxInt64, nil
	default:
		return int64(v), nil
	}
}

func limitParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return n, nil
}
