package http

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kptumpala/inkpost/internal/config"
	"github.com/kptumpala/inkpost/internal/db"
	"github.com/kptumpala/inkpost/internal/mail"
	"github.com/kptumpala/inkpost/internal/models"
	"github.com/kptumpala/inkpost/internal/store"
	"github.com/kptumpala/inkpost/internal/ws"
)

type recordingSender struct {
	msgs chan mail.Message
}

func (r *recordingSender) Send(_ context.Context, m mail.Message) error {
	r.msgs <- m
	return nil
}

type testApp struct {
	srv    *httptest.Server
	store  *store.Store
	db     *gorm.DB
	sender *recordingSender
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// A file-backed database per test: in-memory sqlite hands each pooled
	// connection its own empty database.
	database, err := db.Init("sqlite://" + filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(&models.User{}, &models.Post{}, &models.Comment{}))

	hub := ws.NewHub()
	go hub.Run()

	sender := &recordingSender{msgs: make(chan mail.Message, 8)}
	mailer := mail.NewMailer(sender, 8)
	go mailer.Run()

	st := store.New(database)
	router := gin.New()
	err = SetupRoutes(router, Deps{
		Store:       st,
		Hub:         hub,
		Mailer:      mailer,
		Cfg:         config.Config{SessionSecret: "test-secret"},
		TemplateDir: "../../web/templates",
	})
	require.NoError(t, err)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	t.Cleanup(mailer.Close)

	return &testApp{srv: srv, store: st, db: database, sender: sender}
}

// client returns an http client with its own cookie jar that does not follow
// redirects, so tests can assert on status codes and Location headers.
func (a *testApp) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (a *testApp) get(t *testing.T, c *http.Client, path string) *http.Response {
	t.Helper()
	resp, err := c.Get(a.srv.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (a *testApp) postForm(t *testing.T, c *http.Client, path string, data url.Values) *http.Response {
	t.Helper()
	resp, err := c.PostForm(a.srv.URL+path, data)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func (a *testApp) register(t *testing.T, c *http.Client, name, email, password string) {
	t.Helper()
	resp := a.postForm(t, c, "/register", url.Values{
		"name": {name}, "email": {email}, "password": {password},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))
}

func (a *testApp) login(t *testing.T, c *http.Client, email, password string) {
	t.Helper()
	resp := a.postForm(t, c, "/login", url.Values{
		"email": {email}, "password": {password},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))
}

func (a *testApp) createPost(t *testing.T, c *http.Client, title, subtitle, body string) {
	t.Helper()
	resp := a.postForm(t, c, "/new_post", url.Values{
		"title":    {title},
		"subtitle": {subtitle},
		"img_url":  {"https://example.com/cover.png"},
		"body":     {body},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	app := newTestApp(t)
	c := app.client(t)

	app.register(t, c, "Alice", "alice@example.com", "secret")

	resp := app.postForm(t, c, "/register", url.Values{
		"name": {"Alice Again"}, "email": {"alice@example.com"}, "password": {"other"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	body := readBody(t, app.get(t, c, "/login"))
	assert.Contains(t, body, "You already signed up with that email")

	n, err := app.store.CountUsers(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestLoginFailures(t *testing.T) {
	app := newTestApp(t)
	c := app.client(t)
	app.register(t, c, "Alice", "alice@example.com", "secret")

	resp := app.postForm(t, c, "/login", url.Values{
		"email": {"alice@example.com"}, "password": {"wrong"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	body := readBody(t, app.get(t, c, "/login"))
	assert.Contains(t, body, "Incorrect password")
	assert.NotContains(t, body, "does not exist")

	resp = app.postForm(t, c, "/login", url.Values{
		"email": {"nobody@example.com"}, "password": {"secret"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	body = readBody(t, app.get(t, c, "/login"))
	assert.Contains(t, body, "That email does not exist")

	// A failed login never establishes a session.
	home := readBody(t, app.get(t, c, "/"))
	assert.Contains(t, home, "Log In")
}

func TestAdminGate(t *testing.T) {
	app := newTestApp(t)

	admin := app.client(t)
	app.register(t, admin, "Owner", "owner@example.com", "secret")
	app.login(t, admin, "owner@example.com", "secret")

	reader := app.client(t)
	app.register(t, reader, "Reader", "reader@example.com", "secret")
	app.login(t, reader, "reader@example.com", "secret")

	anon := app.client(t)

	// Only the first registered account holds the admin role.
	owner, err := app.store.UserByEmail(context.Background(), "owner@example.com")
	require.NoError(t, err)
	assert.True(t, owner.IsAdmin)
	other, err := app.store.UserByEmail(context.Background(), "reader@example.com")
	require.NoError(t, err)
	assert.False(t, other.IsAdmin)

	for _, path := range []string{"/new_post", "/edit_post/1", "/delete/1"} {
		resp := app.get(t, anon, path)
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode, path)
		assert.Equal(t, "/login", resp.Header.Get("Location"), path)

		resp = app.get(t, reader, path)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, path)
	}

	resp := app.get(t, admin, "/new_post")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAnonymousCommentRedirectsAndPersistsNothing(t *testing.T) {
	app := newTestApp(t)

	admin := app.client(t)
	app.register(t, admin, "Owner", "owner@example.com", "secret")
	app.login(t, admin, "owner@example.com", "secret")
	app.createPost(t, admin, "Hello", "World", "X")

	anon := app.client(t)
	resp := app.postForm(t, anon, "/blogs/1", url.Values{"comment": {"drive-by"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	var n int64
	require.NoError(t, app.db.Model(&models.Comment{}).Count(&n).Error)
	assert.Zero(t, n)

	body := readBody(t, app.get(t, anon, "/login"))
	assert.Contains(t, body, "You need to log in or register")
}

func TestCommentThread(t *testing.T) {
	app := newTestApp(t)

	admin := app.client(t)
	app.register(t, admin, "Owner", "owner@example.com", "secret")
	app.login(t, admin, "owner@example.com", "secret")
	app.createPost(t, admin, "Hello", "World", "X")

	reader := app.client(t)
	app.register(t, reader, "Reader", "reader@example.com", "secret")
	app.login(t, reader, "reader@example.com", "secret")

	resp := app.postForm(t, reader, "/blogs/1", url.Values{"comment": {"Great read!"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/blogs/1", resp.Header.Get("Location"))

	body := readBody(t, app.get(t, reader, "/blogs/1"))
	assert.Contains(t, body, "Great read!")
	assert.Contains(t, body, "Reader")
	assert.Contains(t, body, "gravatar.com/avatar/")

	// An empty comment re-renders the thread with a field error.
	resp = app.postForm(t, reader, "/blogs/1", url.Values{"comment": {""}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Body is required.")
}

func TestDeletePostLeavesOthersIntact(t *testing.T) {
	app := newTestApp(t)

	admin := app.client(t)
	app.register(t, admin, "Owner", "owner@example.com", "secret")
	app.login(t, admin, "owner@example.com", "secret")
	app.createPost(t, admin, "First", "one", "body1")
	app.createPost(t, admin, "Second", "two", "body2")
	app.createPost(t, admin, "Third", "three", "body3")

	resp := app.get(t, admin, "/delete/1")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	posts, err := app.store.Posts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.EqualValues(t, 2, posts[0].ID)
	assert.Equal(t, "Second", posts[0].Title)
	assert.EqualValues(t, 3, posts[1].ID)
	assert.Equal(t, "Third", posts[1].Title)

	// Edit resolves by primary key: /edit_post/2 still targets "Second"
	// after an earlier post is deleted, and the deleted id is gone.
	body := readBody(t, app.get(t, admin, "/edit_post/2"))
	assert.Contains(t, body, "Second")

	resp = app.get(t, admin, "/edit_post/1")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEndToEnd(t *testing.T) {
	app := newTestApp(t)

	admin := app.client(t)
	app.register(t, admin, "Owner", "owner@example.com", "secret")
	app.login(t, admin, "owner@example.com", "secret")
	app.createPost(t, admin, "Hello", "World", "X")

	body := readBody(t, app.get(t, admin, "/"))
	assert.Contains(t, body, "Hello")

	body = readBody(t, app.get(t, admin, "/blogs/1"))
	assert.Contains(t, body, "X")

	reader := app.client(t)
	app.register(t, reader, "Reader", "reader@example.com", "secret")
	app.login(t, reader, "reader@example.com", "secret")
	resp := app.get(t, reader, "/edit_post/1")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = app.postForm(t, admin, "/edit_post/1", url.Values{
		"title":    {"Hi"},
		"subtitle": {"World"},
		"img_url":  {"https://example.com/cover.png"},
		"body":     {"X"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	body = readBody(t, app.get(t, admin, "/"))
	assert.Contains(t, body, "Hi")
	assert.NotContains(t, body, "Hello")
}

func TestStaticPages(t *testing.T) {
	app := newTestApp(t)
	c := app.client(t)

	resp := app.get(t, c, "/about")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "About")

	resp = app.get(t, c, "/contact")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Contact")

	resp = app.get(t, c, "/no-such-page")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPostFormValidationRetainsValues(t *testing.T) {
	app := newTestApp(t)

	admin := app.client(t)
	app.register(t, admin, "Owner", "owner@example.com", "secret")
	app.login(t, admin, "owner@example.com", "secret")

	resp := app.postForm(t, admin, "/new_post", url.Values{
		"title":    {""},
		"subtitle": {"Still here"},
		"img_url":  {"https://example.com/cover.png"},
		"body":     {"Body text"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, "Title is required.")
	assert.Contains(t, body, "Still here")
	assert.Contains(t, body, "Body text")

	var n int64
	require.NoError(t, app.db.Model(&models.Post{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestContactQueuesMail(t *testing.T) {
	app := newTestApp(t)
	c := app.client(t)

	resp := app.postForm(t, c, "/contact", url.Values{
		"name":    {"Visitor"},
		"email":   {"visitor@example.com"},
		"phone":   {"555-0100"},
		"message": {"Hi there"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Message sent")

	select {
	case msg := <-app.sender.msgs:
		assert.NotEmpty(t, msg.Ref)
		assert.Equal(t, "Visitor", msg.Name)
		assert.Contains(t, msg.Text(), "visitor@example.com")
		assert.Contains(t, msg.Text(), "Hi there")
	case <-time.After(2 * time.Second):
		t.Fatal("contact mail never reached the sender")
	}
}

func TestLogoutClearsSession(t *testing.T) {
	app := newTestApp(t)
	c := app.client(t)
	app.register(t, c, "Alice", "alice@example.com", "secret")
	app.login(t, c, "alice@example.com", "secret")

	body := readBody(t, app.get(t, c, "/"))
	assert.Contains(t, body, "Alice")

	resp := app.get(t, c, "/logout")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	body = readBody(t, app.get(t, c, "/"))
	assert.Contains(t, body, "Log In")
	assert.NotContains(t, body, "Log Out")
}
