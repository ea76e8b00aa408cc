package server

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/hyperengineering/taskwire"
)

// handleSync is POST /api/sync: a batch of change records, each applied
// independently with at-most-once semantics. One malformed record
// degrades to a per-record error outcome; only infrastructure faults fail
// the request as a whole.
func (s *Server) handleSync(c *gin.Context) {
	var changes []taskwire.Change
	if err := c.ShouldBindJSON(&changes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be an array of change records"})
		return
	}

	userID := currentUser(c)
	status := make(taskwire.SyncStatus, len(changes))

	for _, change := range changes {
		outcome, err := s.store.ApplyChange(c.Request.Context(), userID, change)
		if err != nil {
			// Store-level fault: fail the whole batch. The client
			// classifies this as a server error and retries.
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		key := change.ID
		if key == "" {
			// Shape validation already produced an error outcome; keep
			// it addressable in the response.
			key = fmt.Sprintf("(missing id #%d)", len(status))
		}
		status[key] = outcome
	}

	c.JSON(http.StatusOK, taskwire.SyncResponse{SyncStatus: status})
}

func (s *Server) handleListUpcoming(c *gin.Context) {
	s.handleList(c, taskwire.PartitionUpcoming)
}

func (s *Server) handleListCompleted(c *gin.Context) {
	s.handleList(c, taskwire.PartitionCompleted)
}

// handleList is the shared GET /api/tasks/{partition} handler: keyset
// pagination, newest first, next_page_url null on the last page.
func (s *Server) handleList(c *gin.Context, p taskwire.Partition) {
	var (
		after *Cursor
		limit int
	)

	switch p {
	case taskwire.PartitionCompleted:
		limit = completedPageSize
	default:
		limit = upcomingFirstPageSize
	}

	if raw := c.Query("cursor"); raw != "" {
		cur, err := DecodeCursor(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
			return
		}
		after = &cur
		if p == taskwire.PartitionUpcoming {
			limit = upcomingPageSize
		}
	}

	page, err := s.store.ListTasks(c.Request.Context(), currentUser(c), p, after, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := taskwire.Page{Data: page.Tasks}
	if resp.Data == nil {
		resp.Data = []taskwire.Task{}
	}
	if page.HasMore {
		next := nextPageURL(p, page.Cursor)
		resp.NextPageURL = &next
	}

	c.JSON(http.StatusOK, resp)
}

func nextPageURL(p taskwire.Partition, cur Cursor) string {
	return taskwire.FirstPageURL(p) + "?cursor=" + url.QueryEscape(cur.Encode())
}

// handleHealth is GET /api/health, the connectivity probe.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, taskwire.HealthResponse{
		Status:  "ok",
		Version: Version,
	})
}
