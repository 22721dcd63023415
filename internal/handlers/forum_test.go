package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/emilythestrangee/qa-forum/backend/internal/config"
	"github.com/emilythestrangee/qa-forum/backend/internal/database"
	"github.com/emilythestrangee/qa-forum/backend/internal/models"
	"github.com/emilythestrangee/qa-forum/backend/internal/reputation"
)

type forum struct {
	db     *gorm.DB
	router *gin.Engine
}

func newForum(t *testing.T) *forum {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("qa_forum_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := database.Open(dsn, logger.Default.LogMode(logger.Silent))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	engine := reputation.New(database.NewLedgerStore(db, time.Second), reputation.DefaultRules())
	cfg := config.Config{}
	cfg.JWT.Secret = "test-secret"
	cfg.JWT.TTL = time.Hour
	h := NewHandler(db, engine, cfg)

	r := gin.New()
	r.Use(asUser)
	api := r.Group("/api")
	api.POST("/questions", h.Question.CreateQuestion)
	api.GET("/questions", h.Question.GetQuestions)
	api.GET("/questions/:id", h.Question.GetQuestion)
	api.DELETE("/questions/:id", h.Question.DeleteQuestion)
	api.POST("/questions/:id/answers", h.Answer.CreateAnswer)
	api.DELETE("/answers/:answerId", h.Answer.DeleteAnswer)
	api.POST("/votes", h.Vote.Vote)
	api.POST("/questions/:id/answers/:answerId/accept", h.Vote.AcceptAnswer)
	api.POST("/questions/:id/comments", h.Comment.CreateQuestionComment)
	api.GET("/questions/:id/comments", h.Comment.GetQuestionComments)
	api.GET("/users", h.User.GetUsers)
	api.GET("/users/:id", h.User.GetUserProfile)
	api.GET("/users/:id/activity", h.User.GetUserActivity)
	api.POST("/users/:id/reputation/recompute", h.User.RecomputeReputation)
	api.GET("/notifications", h.Notification.GetNotifications)
	api.PUT("/notifications/read", h.Notification.MarkAllRead)

	return &forum{db: db, router: r}
}

func (f *forum) user(t *testing.T, name string) int {
	t.Helper()
	u := models.User{Username: name, Email: name + "@example.com", Password: "x"}
	require.NoError(t, f.db.Create(&u).Error)
	return u.ID
}

// call performs a request as userID (0 for anonymous) and decodes the JSON
// response into out when out is non-nil.
func (f *forum) call(t *testing.T, userID int, method, path, body string, want int, out any) {
	t.Helper()
	user := ""
	if userID > 0 {
		user = fmt.Sprint(userID)
	}
	w := do(f.router, method, path, user, body)
	require.Equal(t, want, w.Code, "%s %s: %s", method, path, w.Body.String())
	if out != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
	}
}

func (f *forum) reputation(t *testing.T, userID int) int {
	t.Helper()
	var u models.User
	require.NoError(t, f.db.First(&u, userID).Error)
	return u.Reputation
}

func TestForumFlow(t *testing.T) {
	f := newForum(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")

	var question models.Question
	f.call(t, alice, http.MethodPost, "/api/questions",
		`{"title":"How do row locks work?","body":"Details inside"}`, http.StatusCreated, &question)
	var answer models.Answer
	f.call(t, bob, http.MethodPost, fmt.Sprintf("/api/questions/%d/answers", question.ID),
		`{"body":"SELECT ... FOR UPDATE"}`, http.StatusCreated, &answer)

	vote := func(userID int, polarity string) map[string]any {
		var out map[string]any
		body := fmt.Sprintf(`{"target_type":"answer","target_id":%d,"vote_type":%q}`, answer.ID, polarity)
		f.call(t, userID, http.MethodPost, "/api/votes", body, http.StatusOK, &out)
		return out
	}

	assert.Equal(t, "UP", vote(carol, "UP")["result_polarity"])
	assert.Equal(t, "DOWN", vote(carol, "DOWN")["result_polarity"])
	assert.Equal(t, "NONE", vote(carol, "DOWN")["result_polarity"])
	assert.Equal(t, "UP", vote(alice, "UP")["result_polarity"])

	var accepted map[string]any
	f.call(t, alice, http.MethodPost, fmt.Sprintf("/api/questions/%d/answers/%d/accept", question.ID, answer.ID),
		"", http.StatusOK, &accepted)
	assert.Equal(t, true, accepted["bonus_granted"])

	assert.Equal(t, 25, f.reputation(t, bob))
	assert.Equal(t, 2, f.reputation(t, alice))
	assert.Equal(t, 0, f.reputation(t, carol))

	// Voting on your own answer is refused and changes nothing.
	body := fmt.Sprintf(`{"target_type":"answer","target_id":%d,"vote_type":"UP"}`, answer.ID)
	f.call(t, bob, http.MethodPost, "/api/votes", body, http.StatusBadRequest, nil)
	assert.Equal(t, 25, f.reputation(t, bob))

	// The question view reflects the stored vote of the viewer.
	var view map[string]any
	f.call(t, alice, http.MethodGet, fmt.Sprintf("/api/questions/%d", question.ID), "", http.StatusOK, &view)
	answers := view["answers"].([]any)
	require.Len(t, answers, 1)
	first := answers[0].(map[string]any)
	assert.Equal(t, true, first["is_accepted"])
	assert.EqualValues(t, 1, first["score"])
	assert.Equal(t, "UP", first["my_vote"])
	assert.Equal(t, "NONE", view["my_vote"])

	// Recompute agrees with the incrementally maintained value.
	var recomputed map[string]any
	f.call(t, bob, http.MethodPost, fmt.Sprintf("/api/users/%d/reputation/recompute", bob), "", http.StatusOK, &recomputed)
	assert.EqualValues(t, 25, recomputed["previous"])
	assert.EqualValues(t, 25, recomputed["reputation"])
	f.call(t, carol, http.MethodPost, fmt.Sprintf("/api/users/%d/reputation/recompute", bob), "", http.StatusForbidden, nil)

	// Bob was notified of the answer vote and the acceptance; Alice of the answer.
	var inbox struct {
		Notifications []models.Notification `json:"notifications"`
		UnreadCount   int                   `json:"unread_count"`
	}
	f.call(t, bob, http.MethodGet, "/api/notifications", "", http.StatusOK, &inbox)
	kinds := map[string]int{}
	for _, n := range inbox.Notifications {
		kinds[n.Kind]++
	}
	assert.Equal(t, map[string]int{models.NotificationVote: 3, models.NotificationAccept: 1}, kinds)
	assert.Equal(t, 4, inbox.UnreadCount)

	f.call(t, bob, http.MethodPut, "/api/notifications/read", "", http.StatusOK, nil)
	f.call(t, bob, http.MethodGet, "/api/notifications?unread=true", "", http.StatusOK, &inbox)
	assert.Empty(t, inbox.Notifications)
	assert.Zero(t, inbox.UnreadCount)

	// Leaderboard order follows reputation.
	var users []map[string]any
	f.call(t, 0, http.MethodGet, "/api/users", "", http.StatusOK, &users)
	require.Len(t, users, 3)
	assert.Equal(t, "bob", users[0]["username"])
}

func TestDeleteRefusedWhileReputationDepends(t *testing.T) {
	f := newForum(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")

	var question models.Question
	f.call(t, alice, http.MethodPost, "/api/questions",
		`{"title":"Deleting voted content","body":"?"}`, http.StatusCreated, &question)
	var answer models.Answer
	f.call(t, bob, http.MethodPost, fmt.Sprintf("/api/questions/%d/answers", question.ID),
		`{"body":"You cannot"}`, http.StatusCreated, &answer)

	body := fmt.Sprintf(`{"target_type":"answer","target_id":%d,"vote_type":"UP"}`, answer.ID)
	f.call(t, carol, http.MethodPost, "/api/votes", body, http.StatusOK, nil)

	answerPath := fmt.Sprintf("/api/answers/%d", answer.ID)
	questionPath := fmt.Sprintf("/api/questions/%d", question.ID)
	f.call(t, alice, http.MethodDelete, answerPath, "", http.StatusForbidden, nil)
	f.call(t, bob, http.MethodDelete, answerPath, "", http.StatusConflict, nil)
	f.call(t, alice, http.MethodDelete, questionPath, "", http.StatusConflict, nil)

	// Retracting the only vote frees both for deletion.
	f.call(t, carol, http.MethodPost, "/api/votes", body, http.StatusOK, nil)
	assert.Equal(t, 0, f.reputation(t, bob))

	f.call(t, alice, http.MethodPost, fmt.Sprintf("/api/questions/%d/comments", question.ID),
		`{"body":"closing this"}`, http.StatusCreated, nil)
	f.call(t, bob, http.MethodDelete, answerPath, "", http.StatusOK, nil)
	f.call(t, alice, http.MethodDelete, questionPath, "", http.StatusOK, nil)
	f.call(t, 0, http.MethodGet, questionPath, "", http.StatusNotFound, nil)

	var comments int64
	require.NoError(t, f.db.Model(&models.Comment{}).Count(&comments).Error)
	assert.Zero(t, comments)
}

func TestRegisterLoginAndMe(t *testing.T) {
	f := newForum(t)
	auth := NewAuthHandler(f.db, []byte("test-secret"), time.Hour)
	f.router.POST("/auth/register", auth.Register)
	f.router.POST("/auth/login", auth.Login)
	f.router.GET("/auth/me", auth.GetMe)

	var registered struct {
		Token string         `json:"token"`
		User  map[string]any `json:"user"`
	}
	f.call(t, 0, http.MethodPost, "/auth/register",
		`{"username":"dave","email":"dave@example.com","password":"hunter22"}`, http.StatusCreated, &registered)
	assert.NotEmpty(t, registered.Token)
	assert.EqualValues(t, 0, registered.User["reputation"])

	f.call(t, 0, http.MethodPost, "/auth/register",
		`{"username":"dave","email":"other@example.com","password":"hunter22"}`, http.StatusBadRequest, nil)
	f.call(t, 0, http.MethodPost, "/auth/login",
		`{"email":"dave@example.com","password":"wrong"}`, http.StatusUnauthorized, nil)

	var loggedIn struct {
		Token string `json:"token"`
	}
	f.call(t, 0, http.MethodPost, "/auth/login",
		`{"email":"dave@example.com","password":"hunter22"}`, http.StatusOK, &loggedIn)
	assert.NotEmpty(t, loggedIn.Token)

	var me map[string]any
	id := int(registered.User["id"].(float64))
	f.call(t, id, http.MethodGet, "/auth/me", "", http.StatusOK, &me)
	assert.Equal(t, "dave", me["username"])
	f.call(t, 0, http.MethodGet, "/auth/me", "", http.StatusUnauthorized, nil)
}

func TestDeleteQuestionWaitsForInFlightAnswerVote(t *testing.T) {
	f := newForum(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")

	var question models.Question
	f.call(t, alice, http.MethodPost, "/api/questions",
		`{"title":"Racing a delete","body":"?"}`, http.StatusCreated, &question)
	var answer models.Answer
	f.call(t, bob, http.MethodPost, fmt.Sprintf("/api/questions/%d/answers", question.ID),
		`{"body":"Lock the answers"}`, http.StatusCreated, &answer)

	// Hold an answer vote open, the same way the ledger applies one.
	store := database.NewLedgerStore(f.db, 5*time.Second)
	held := make(chan struct{})
	release := make(chan struct{})
	voted := make(chan error, 1)
	go func() {
		voted <- store.InTx(context.Background(), func(tx reputation.Tx) error {
			target := reputation.Target{Type: reputation.TargetAnswer, ID: answer.ID}
			authorID, err := tx.LockTarget(target)
			if err != nil {
				return err
			}
			if err := tx.InsertVote(&reputation.Vote{VoterID: carol, Target: target, Polarity: reputation.Up}); err != nil {
				return err
			}
			if err := tx.AdjustReputation(authorID, reputation.DefaultRules().UpAnswer); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()

	select {
	case <-held:
	case err := <-voted:
		t.Fatalf("vote finished early: %v", err)
	}

	deleted := make(chan int, 1)
	go func() {
		w := do(f.router, http.MethodDelete, fmt.Sprintf("/api/questions/%d", question.ID), fmt.Sprint(alice), "")
		deleted <- w.Code
	}()

	select {
	case code := <-deleted:
		t.Fatalf("delete finished with %d while the vote was uncommitted", code)
	case <-time.After(300 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-voted)
	assert.Equal(t, http.StatusConflict, <-deleted)

	var remaining int64
	require.NoError(t, f.db.Model(&models.Answer{}).Where("id = ?", answer.ID).Count(&remaining).Error)
	assert.EqualValues(t, 1, remaining)
	assert.Equal(t, 10, f.reputation(t, bob))

	var recomputed map[string]any
	f.call(t, bob, http.MethodPost, fmt.Sprintf("/api/users/%d/reputation/recompute", bob), "", http.StatusOK, &recomputed)
	assert.EqualValues(t, 10, recomputed["previous"])
	assert.EqualValues(t, 10, recomputed["reputation"])
}

func TestQuestionSearch(t *testing.T) {
	f := newForum(t)
	alice := f.user(t, "alice")

	for _, q := range []string{
		`{"title":"Postgres row locks","body":"How does FOR UPDATE behave?"}`,
		`{"title":"Gin middleware order","body":"Does postgres care?"}`,
		`{"title":"Discounts","body":"Is 100% off allowed?"}`,
	} {
		f.call(t, alice, http.MethodPost, "/api/questions", q, http.StatusCreated, nil)
	}

	titles := func(query string) []string {
		var out []map[string]any
		f.call(t, 0, http.MethodGet, "/api/questions?"+query, "", http.StatusOK, &out)
		var got []string
		for _, q := range out {
			got = append(got, q["title"].(string))
		}
		return got
	}

	assert.ElementsMatch(t, []string{"Postgres row locks", "Gin middleware order"}, titles("q=POSTGRES"))
	assert.Equal(t, []string{"Postgres row locks"}, titles("q=postgres+update"))
	assert.Equal(t, []string{"Gin middleware order"}, titles("search=middleware"))
	assert.Equal(t, []string{"Discounts"}, titles("q=100%25"))
	assert.Empty(t, titles("q=postgres+discounts"))
	assert.Len(t, titles(""), 3)
}

func TestUserActivity(t *testing.T) {
	f := newForum(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")

	var question models.Question
	f.call(t, alice, http.MethodPost, "/api/questions",
		`{"title":"What is a ledger?","body":"?"}`, http.StatusCreated, &question)
	var answer models.Answer
	f.call(t, bob, http.MethodPost, fmt.Sprintf("/api/questions/%d/answers", question.ID),
		`{"body":"An append-only record"}`, http.StatusCreated, &answer)

	f.call(t, carol, http.MethodPost, "/api/votes",
		fmt.Sprintf(`{"target_type":"answer","target_id":%d,"vote_type":"UP"}`, answer.ID), http.StatusOK, nil)
	f.call(t, bob, http.MethodPost, "/api/votes",
		fmt.Sprintf(`{"target_type":"question","target_id":%d,"vote_type":"DOWN"}`, question.ID), http.StatusOK, nil)
	f.call(t, alice, http.MethodPost, fmt.Sprintf("/api/questions/%d/answers/%d/accept", question.ID, answer.ID),
		"", http.StatusOK, nil)

	var activity struct {
		Questions []map[string]any `json:"questions"`
		Answers   []map[string]any `json:"answers"`
	}
	f.call(t, 0, http.MethodGet, fmt.Sprintf("/api/users/%d/activity", alice), "", http.StatusOK, &activity)
	require.Len(t, activity.Questions, 1)
	assert.Empty(t, activity.Answers)
	assert.EqualValues(t, 1, activity.Questions[0]["answer_count"])
	assert.EqualValues(t, 0, activity.Questions[0]["upvotes"])
	assert.EqualValues(t, 1, activity.Questions[0]["downvotes"])

	f.call(t, 0, http.MethodGet, fmt.Sprintf("/api/users/%d/activity", bob), "", http.StatusOK, &activity)
	assert.Empty(t, activity.Questions)
	require.Len(t, activity.Answers, 1)
	got := activity.Answers[0]
	assert.Equal(t, true, got["is_accepted"])
	assert.EqualValues(t, question.ID, got["question_id"])
	assert.Equal(t, "What is a ledger?", got["question_title"])
	assert.EqualValues(t, 1, got["upvotes"])
	assert.EqualValues(t, 0, got["downvotes"])

	f.call(t, 0, http.MethodGet, "/api/users/9999/activity", "", http.StatusNotFound, nil)
}
