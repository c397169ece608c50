package handlers_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Gamemanuel/BathPass/internal/config"
	"github.com/Gamemanuel/BathPass/internal/handlers"
	"github.com/Gamemanuel/BathPass/internal/live"
	"github.com/Gamemanuel/BathPass/internal/models"
	"github.com/Gamemanuel/BathPass/internal/queue"
	"github.com/Gamemanuel/BathPass/internal/storage"
	"github.com/Gamemanuel/BathPass/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hubOnce sync.Once

// authMiddlewareTest replaces JWT auth in tests: the teacher ID comes
// from the X-Test-TeacherID header, defaulting to 1.
func authMiddlewareTest() gin.HandlerFunc {
	return func(c *gin.Context) {
		idStr := c.Request.Header.Get("X-Test-TeacherID")
		if idStr == "" {
			c.Set("teacherID", uint(1))
		} else {
			id, err := strconv.Atoi(idStr)
			if err != nil {
				c.Set("teacherID", uint(1))
			} else {
				c.Set("teacherID", uint(id))
			}
		}
		c.Next()
	}
}

func setupTestServer(t *testing.T) *httptest.Server {
	if !storage.ConnectTestingDatabase() {
		t.Skip("TEST_DB_HOST is not set, skipping database-backed tests")
	}

	if err := storage.DB.AutoMigrate(
		&models.Teacher{},
		&models.Pass{},
		&models.QueueEntry{},
		&models.ClassPeriod{},
		&models.Objective{},
		&models.TVSettings{},
	); err != nil {
		log.Fatal("Migration failed... ", err.Error())
	}
	storage.DB.Exec("TRUNCATE TABLE teachers, passes, queue_entries, class_periods, objectives, tv_settings RESTART IDENTITY CASCADE;")

	// The stub middleware authenticates as teacher 1; the row has to
	// exist for the pass and queue foreign keys.
	if err := storage.DB.Create(&models.Teacher{
		Name:         "Ms. Test",
		Email:        fmt.Sprintf("stub_%d@example.com", time.Now().UnixNano()),
		PasswordHash: "unused",
	}).Error; err != nil {
		log.Fatal("Failed to seed stub teacher... ", err.Error())
	}

	cfg := config.Load()
	liveStore := live.NewStore(live.DBFetcher{DB: storage.DB})
	engine := queue.New(storage.DB)
	handlers.Init(liveStore, engine, cfg)

	ws.HubInstance.OnTeacherChange = func(teacherID uint) {
		liveStore.OnChange(teacherID)
		handlers.InvalidateDisplayCache(teacherID)
	}
	hubOnce.Do(func() {
		go ws.HubInstance.Run()
	})

	gin.SetMode(gin.TestMode)
	r := gin.Default()

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", handlers.Register)
		authGroup.POST("/login", handlers.Login)
		authGroup.POST("/refresh", handlers.RefreshToken)
	}

	apiGroup := r.Group("/api", authMiddlewareTest())
	{
		apiGroup.GET("/passes", handlers.ListPassesHandler)
		apiGroup.POST("/passes", handlers.CreatePassHandler)
		apiGroup.POST("/passes/:id/close", handlers.ClosePassHandler)
		apiGroup.POST("/passes/:id/reopen", handlers.ReopenPassHandler)
		apiGroup.PATCH("/passes/:id", handlers.EditPassHandler)
		apiGroup.DELETE("/passes/:id", handlers.DeletePassHandler)
		apiGroup.GET("/passes/export", handlers.ExportPassesHandler)

		apiGroup.GET("/queue", handlers.GetQueueHandler)
		apiGroup.POST("/queue", handlers.EnqueueHandler)
		apiGroup.POST("/queue/:id/promote", handlers.PromoteHandler)
		apiGroup.DELETE("/queue/:id", handlers.RemoveFromQueueHandler)

		apiGroup.GET("/dashboard", handlers.DashboardHandler)

		apiGroup.GET("/schedule", handlers.GetScheduleHandler)
		apiGroup.POST("/schedule", handlers.CreatePeriodHandler)
		apiGroup.DELETE("/schedule/:id", handlers.DeletePeriodHandler)
		apiGroup.GET("/objective", handlers.GetObjectiveHandler)
		apiGroup.PUT("/objective", handlers.PutObjectiveHandler)

		apiGroup.GET("/tv/settings", handlers.GetTVSettingsHandler)
		apiGroup.PUT("/tv/settings", handlers.PutTVSettingsHandler)
		apiGroup.GET("/tv/display", handlers.TVDisplayHandler)

		apiGroup.GET("/ws", ws.ServeHandler)
	}

	return httptest.NewServer(r)
}

func doJSON(t *testing.T, method, url string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-TeacherID", "1")

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var parsed map[string]interface{}
	json.NewDecoder(res.Body).Decode(&parsed)
	return res, parsed
}

func doJSONList(t *testing.T, url string) (*http.Response, []map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest("GET", url, nil)
	require.NoError(t, err)
	req.Header.Set("X-Test-TeacherID", "1")

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var parsed []map[string]interface{}
	json.NewDecoder(res.Body).Decode(&parsed)
	return res, parsed
}

func TestAuthFlow(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.Close()

	email := fmt.Sprintf("teacher_%d@example.com", time.Now().UnixNano())

	res, _ := doJSON(t, "POST", ts.URL+"/auth/register", map[string]string{
		"name": "Ms. Rivera", "email": email, "password": "secret123",
	})
	assert.Equal(t, http.StatusCreated, res.StatusCode)

	// The same email cannot register twice.
	res, body := doJSON(t, "POST", ts.URL+"/auth/register", map[string]string{
		"name": "Ms. Rivera", "email": email, "password": "secret123",
	})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "EMAIL_EXISTS", body["code"])

	res, body = doJSON(t, "POST", ts.URL+"/auth/login", map[string]string{
		"email": email, "password": "secret123",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotEmpty(t, body["access_token"])
	require.NotEmpty(t, body["refresh_token"])

	res, body = doJSON(t, "POST", ts.URL+"/auth/refresh", map[string]string{
		"refresh_token": body["refresh_token"].(string),
	})
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotEmpty(t, body["access_token"])

	res, body = doJSON(t, "POST", ts.URL+"/auth/login", map[string]string{
		"email": email, "password": "wrongpass",
	})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "INVALID_CREDENTIALS", body["code"])
}

func TestPassLifecycle(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.Close()

	// Open a pass.
	res, created := doJSON(t, "POST", ts.URL+"/api/passes", map[string]string{
		"student_name": "Jordan Lee", "destination": "Restroom",
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, "Jordan Lee", created["student_name"])
	assert.Equal(t, false, created["final"])
	passID := int(created["id"].(float64))
	passURL := ts.URL + "/api/passes/" + strconv.Itoa(passID)

	// Closing with a time in before time out must fail and leave the
	// pass open.
	res, body := doJSON(t, "POST", passURL+"/close", map[string]string{
		"time_in": time.Now().Add(-1 * time.Hour).UTC().Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "INVALID_INTERVAL", body["code"])

	res, list := doJSONList(t, ts.URL+"/api/passes?status=open")
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Len(t, list, 1)

	// Close for real.
	res, closed := doJSON(t, "POST", passURL+"/close", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, true, closed["final"])
	assert.NotEmpty(t, closed["time_in"])

	// Reopen puts it back in the open list.
	res, reopened := doJSON(t, "POST", passURL+"/reopen", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, false, reopened["final"])
	assert.Nil(t, reopened["time_in"])

	// Edit batch: rename works; an unknown op is rejected.
	res, edited := doJSON(t, "PATCH", passURL, map[string]interface{}{
		"edits": []map[string]string{
			{"op": "rename_student", "value": "Jordan L."},
			{"op": "set_destination", "value": "Nurse"},
		},
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Jordan L.", edited["student_name"])
	assert.Equal(t, "Nurse", edited["destination"])

	// An empty edit value is meaningful: it clears the destination.
	res, edited = doJSON(t, "PATCH", passURL, map[string]interface{}{
		"edits": []map[string]string{{"op": "set_destination", "value": ""}},
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Nil(t, edited["destination"])

	res, body = doJSON(t, "PATCH", passURL, map[string]interface{}{
		"edits": []map[string]string{{"op": "set_teacher", "value": "2"}},
	})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])

	// Search filter matches the renamed student.
	res, list = doJSONList(t, ts.URL+"/api/passes?q=jordan")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, list, 1)

	// Delete, then delete again: the second call is a soft no-op.
	res, body = doJSON(t, "DELETE", passURL, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Pass deleted", body["message"])

	res, body = doJSON(t, "DELETE", passURL, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Pass already removed", body["message"])
}

func TestLineFlow(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.Close()

	// With an empty line every arrival goes straight out on a pass, no
	// matter how many go in sequence.
	for _, name := range []string{"Jordan Lee", "Sam Rivera"} {
		res, body := doJSON(t, "POST", ts.URL+"/api/queue", map[string]string{
			"student_name": name, "destination": "Restroom",
		})
		require.Equal(t, http.StatusCreated, res.StatusCode)
		assert.Equal(t, true, body["went_now"])
		require.NotNil(t, body["pass"], "go-now must carry the started pass")
	}

	// A whitespace-only name is rejected before anything persists.
	res, body := doJSON(t, "POST", ts.URL+"/api/queue", map[string]string{
		"student_name": "   ", "destination": "Restroom",
	})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])

	// Seed a waiting line directly so the position semantics run
	// against a non-empty line.
	for i, name := range []string{"Alex Kim", "Morgan Diaz", "Casey Wu"} {
		require.NoError(t, storage.DB.Create(&models.QueueEntry{
			TeacherID:   1,
			StudentName: name,
			Destination: "Restroom",
			Position:    i + 1,
			TimeJoined:  time.Now(),
		}).Error)
	}

	// With students waiting, the next arrival joins the tail.
	// Destination is optional.
	res, body = doJSON(t, "POST", ts.URL+"/api/queue", map[string]string{
		"student_name": "Riley Chen",
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, false, body["went_now"])
	assert.Equal(t, float64(4), body["position"])

	res, line := doJSONList(t, ts.URL+"/api/queue")
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Len(t, line, 4)
	removeID := int(line[1]["id"].(float64)) // Morgan Diaz

	// Removing the middle entry closes the gap.
	res, body = doJSON(t, "DELETE", ts.URL+"/api/queue/"+strconv.Itoa(removeID), nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, line = doJSONList(t, ts.URL+"/api/queue")
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Len(t, line, 3)
	for i, want := range []string{"Alex Kim", "Casey Wu", "Riley Chen"} {
		assert.Equal(t, want, line[i]["student_name"])
		assert.Equal(t, float64(i+1), line[i]["position"])
	}

	// Removing it again is a soft no-op.
	res, body = doJSON(t, "DELETE", ts.URL+"/api/queue/"+strconv.Itoa(removeID), nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Entry already removed", body["message"])

	// Promote the front of the line: a pass starts, the entry leaves the
	// line, and positions stay contiguous from 1.
	promoteID := int(line[0]["id"].(float64))
	res, body = doJSON(t, "POST", ts.URL+"/api/queue/"+strconv.Itoa(promoteID)+"/promote", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, body["warning"])
	promoted := body["pass"].(map[string]interface{})
	assert.Equal(t, "Alex Kim", promoted["student_name"])

	res, line = doJSONList(t, ts.URL+"/api/queue")
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Len(t, line, 2)
	assert.Equal(t, "Casey Wu", line[0]["student_name"])
	assert.Equal(t, float64(1), line[0]["position"])

	// Promoting an unknown entry is a hard 404, unlike remove.
	res, body = doJSON(t, "POST", ts.URL+"/api/queue/99999/promote", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "ENTRY_NOT_FOUND", body["code"])

	// The dashboard reflects both open passes and the remaining line.
	res, body = doJSON(t, "GET", ts.URL+"/api/dashboard", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, body["passes"], 3)
	assert.Len(t, body["queue"], 2)
}

func TestExportCSV(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.Close()

	res, created := doJSON(t, "POST", ts.URL+"/api/passes", map[string]string{
		"student_name": `Lee, Jordan "JJ"`, "destination": "Nurse",
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	passID := int(created["id"].(float64))

	res, _ = doJSON(t, "POST", ts.URL+"/api/passes/"+strconv.Itoa(passID)+"/close", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, _ = doJSON(t, "POST", ts.URL+"/api/passes", map[string]string{
		"student_name": "Sam Rivera", "destination": "Restroom",
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)

	req, _ := http.NewRequest("GET", ts.URL+"/api/passes/export", nil)
	req.Header.Set("X-Test-TeacherID", "1")
	exportRes, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer exportRes.Body.Close()
	require.Equal(t, http.StatusOK, exportRes.StatusCode)
	assert.Contains(t, exportRes.Header.Get("Content-Disposition"), "passes.csv")

	rows, err := csv.NewReader(exportRes.Body).ReadAll()
	require.NoError(t, err, "the export must re-parse as valid CSV")
	require.Len(t, rows, 3)
	assert.Equal(t, "Student Name", rows[0][0])

	byName := map[string][]string{}
	for _, row := range rows[1:] {
		byName[row[0]] = row
	}
	closed, ok := byName[`Lee, Jordan "JJ"`]
	require.True(t, ok, "quoted name must survive the round trip")
	assert.NotEqual(t, "N/A", closed[3])
	open := byName["Sam Rivera"]
	assert.Equal(t, "N/A", open[3])
	assert.Equal(t, "N/A", open[4])
}

func TestScheduleAndTVDisplay(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.Close()

	// A slot covering the whole current day so the display has a class
	// in session.
	res, period := doJSON(t, "POST", ts.URL+"/api/schedule", map[string]string{
		"class_name": "Algebra I",
		"day":        time.Now().Weekday().String(),
		"start_time": "00:00",
		"end_time":   "23:59",
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	periodID := int(period["id"].(float64))

	today := time.Now().Format("2006-01-02")
	res, _ = doJSON(t, "PUT", ts.URL+"/api/objective", map[string]interface{}{
		"text":       "Solve linear equations",
		"period_id":  periodID,
		"start_date": today,
		"end_date":   today,
	})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, objective := doJSON(t, "GET", ts.URL+"/api/objective", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Solve linear equations", objective["text"])

	res, _ = doJSON(t, "PUT", ts.URL+"/api/tv/settings", map[string]interface{}{
		"show_line": false,
	})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, display := doJSON(t, "GET", ts.URL+"/api/tv/display", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	settings := display["settings"].(map[string]interface{})
	assert.Equal(t, false, settings["show_line"])
	require.NotNil(t, display["current_period"])
	current := display["current_period"].(map[string]interface{})
	assert.Equal(t, "Algebra I", current["class_name"])
	require.NotNil(t, display["objective"])

	// Deleting the slot twice: soft no-op the second time.
	res, body := doJSON(t, "DELETE", ts.URL+"/api/schedule/"+strconv.Itoa(periodID), nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	res, body = doJSON(t, "DELETE", ts.URL+"/api/schedule/"+strconv.Itoa(periodID), nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Period already removed", body["message"])
}

func TestWebSocketChangeEvents(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	headers := http.Header{}
	headers.Set("X-Test-TeacherID", "1")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, headers)
	require.NoError(t, err, "websocket dial failed")
	defer conn.Close()

	res, _ := doJSON(t, "POST", ts.URL+"/api/passes", map[string]string{
		"student_name": "Jordan Lee", "destination": "Restroom",
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err, "expected a change event after creating a pass")

	var event map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &event))
	assert.Equal(t, "insert", event["event_type"])
	assert.Equal(t, "passes", event["table"])
}
