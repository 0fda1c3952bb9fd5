package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kptumpala/inkpost/internal/mail"
	"github.com/kptumpala/inkpost/internal/models"
	"github.com/kptumpala/inkpost/internal/store"
	"github.com/kptumpala/inkpost/internal/ws"
)

// Env carries the handler dependencies.
type Env struct {
	Store  *store.Store
	Hub    *ws.Hub
	Mailer *mail.Mailer
	// Pages is the set of template names servable through the generic
	// static-page route.
	Pages map[string]bool
}

// wsEvent is the JSON shape pushed to live-feed subscribers.
type wsEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// render executes a template with the ambient page data (year, identity,
// pending flashes) merged in.
func (e *Env) render(c *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["Year"] = time.Now().Year()
	if u, ok := currentUser(c); ok {
		data["User"] = u
	}
	data["Flashes"] = takeFlashes(c)
	c.HTML(status, name, data)
}

func (e *Env) serverError(c *gin.Context, err error) {
	log.Printf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	c.String(http.StatusInternalServerError, "Internal Server Error")
	c.Abort()
}

func notFound(c *gin.Context) {
	c.String(http.StatusNotFound, "404 page not found")
	c.Abort()
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// Home lists every post in publication order.
func (e *Env) Home(c *gin.Context) {
	posts, err := e.Store.Posts(c.Request.Context())
	if err != nil {
		e.serverError(c, err)
		return
	}
	e.render(c, http.StatusOK, "index.html", gin.H{"Posts": posts})
}

// ShowPost renders a single post with its comment thread.
func (e *Env) ShowPost(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		notFound(c)
		return
	}
	post, err := e.Store.PostByID(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		notFound(c)
		return
	}
	if err != nil {
		e.serverError(c, err)
		return
	}
	e.render(c, http.StatusOK, "post.html", gin.H{"Post": post, "Form": CommentForm{}})
}

// CreateComment accepts a comment on a post. Anonymous submitters are sent to
// the login page and nothing is persisted.
func (e *Env) CreateComment(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		notFound(c)
		return
	}
	user, ok := currentUser(c)
	if !ok {
		addFlash(c, "You need to log in or register to post a comment.")
		c.Redirect(http.StatusSeeOther, "/login")
		return
	}

	var form CommentForm
	if err := c.ShouldBind(&form); err != nil {
		post, perr := e.Store.PostByID(c.Request.Context(), id)
		if perr != nil {
			notFound(c)
			return
		}
		e.render(c, http.StatusOK, "post.html", gin.H{
			"Post": post, "Form": form, "Errors": fieldErrors(err),
		})
		return
	}

	comment := models.Comment{Body: form.Body, UserID: user.ID, PostID: id}
	err := e.Store.CreateComment(c.Request.Context(), &comment)
	if errors.Is(err, store.ErrNotFound) {
		notFound(c)
		return
	}
	if err != nil {
		e.serverError(c, err)
		return
	}

	e.broadcast(wsEvent{Type: "new_comment", Data: gin.H{
		"postId": id, "author": user.Name, "body": comment.Body,
	}})
	c.Redirect(http.StatusSeeOther, "/blogs/"+strconv.FormatUint(uint64(id), 10))
}

// StaticPage serves any unrouted GET /<name> from the template directory.
func (e *Env) StaticPage(c *gin.Context) {
	if c.Request.Method != http.MethodGet {
		notFound(c)
		return
	}
	name := strings.Trim(c.Request.URL.Path, "/")
	if name == "" || strings.Contains(name, "/") || !e.Pages[name] {
		notFound(c)
		return
	}
	e.render(c, http.StatusOK, name+".html", gin.H{})
}

func (e *Env) ShowRegister(c *gin.Context) {
	e.render(c, http.StatusOK, "register.html", gin.H{"Form": RegisterForm{}})
}

// Register creates an account. The very first account becomes the admin.
func (e *Env) Register(c *gin.Context) {
	var form RegisterForm
	if err := c.ShouldBind(&form); err != nil {
		e.render(c, http.StatusOK, "register.html", gin.H{"Form": form, "Errors": fieldErrors(err)})
		return
	}

	ctx := c.Request.Context()
	if _, err := e.Store.UserByEmail(ctx, form.Email); err == nil {
		addFlash(c, "You already signed up with that email! Log in instead.")
		c.Redirect(http.StatusSeeOther, "/login")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		e.serverError(c, err)
		return
	}

	hash, err := hashPassword(form.Password)
	if err != nil {
		e.serverError(c, err)
		return
	}
	n, err := e.Store.CountUsers(ctx)
	if err != nil {
		e.serverError(c, err)
		return
	}

	user := models.User{Name: form.Name, Email: form.Email, PasswordHash: hash, IsAdmin: n == 0}
	if err := e.Store.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			addFlash(c, "You already signed up with that email! Log in instead.")
			c.Redirect(http.StatusSeeOther, "/login")
			return
		}
		e.serverError(c, err)
		return
	}

	log.Printf("registered user id=%d admin=%t", user.ID, user.IsAdmin)
	c.Redirect(http.StatusSeeOther, "/")
}

func (e *Env) ShowLogin(c *gin.Context) {
	e.render(c, http.StatusOK, "login.html", gin.H{"Form": LoginForm{}})
}

// Login verifies credentials and binds the session to the user id. Unknown
// email and bad password get distinct messages.
func (e *Env) Login(c *gin.Context) {
	var form LoginForm
	if err := c.ShouldBind(&form); err != nil {
		e.render(c, http.StatusOK, "login.html", gin.H{"Form": form, "Errors": fieldErrors(err)})
		return
	}

	user, err := e.Store.UserByEmail(c.Request.Context(), form.Email)
	if errors.Is(err, store.ErrNotFound) {
		addFlash(c, "That email does not exist! Try again.")
		c.Redirect(http.StatusSeeOther, "/login")
		return
	}
	if err != nil {
		e.serverError(c, err)
		return
	}
	if !verifyPassword(user.PasswordHash, form.Password) {
		addFlash(c, "Incorrect password! Try again.")
		c.Redirect(http.StatusSeeOther, "/login")
		return
	}

	if err := setSessionUser(c, user.ID); err != nil {
		e.serverError(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (e *Env) Logout(c *gin.Context) {
	clearSession(c)
	c.Redirect(http.StatusSeeOther, "/")
}

// Contact queues the submission for mail delivery and confirms to the
// visitor. A saturated queue fails fast instead of blocking the request.
func (e *Env) Contact(c *gin.Context) {
	msg := mail.Message{
		Ref:   uuid.NewString(),
		Name:  c.PostForm("name"),
		Email: c.PostForm("email"),
		Phone: c.PostForm("phone"),
		Body:  c.PostForm("message"),
	}
	if err := e.Mailer.Enqueue(msg); err != nil {
		log.Printf("contact enqueue ref=%s err=%v", msg.Ref, err)
		c.String(http.StatusServiceUnavailable, "Could not send your message. Please try again later.")
		return
	}
	log.Printf("contact queued ref=%s from=%s", msg.Ref, msg.Email)
	e.render(c, http.StatusOK, "contact.html", gin.H{"MsgSent": true})
}

func (e *Env) NewPost(c *gin.Context) {
	e.render(c, http.StatusOK, "make-post.html", gin.H{"Form": PostForm{}, "Action": "/new_post"})
}

// CreatePost stores a new post authored by the current identity.
func (e *Env) CreatePost(c *gin.Context) {
	var form PostForm
	if err := c.ShouldBind(&form); err != nil {
		e.render(c, http.StatusOK, "make-post.html", gin.H{
			"Form": form, "Action": "/new_post", "Errors": fieldErrors(err),
		})
		return
	}

	user, _ := currentUser(c)
	post := models.Post{
		Title:    form.Title,
		Subtitle: form.Subtitle,
		ImageURL: form.ImageURL,
		Body:     form.Body,
		Date:     time.Now().Format(models.PostDateFormat),
		AuthorID: user.ID,
	}
	if err := e.Store.CreatePost(c.Request.Context(), &post); err != nil {
		e.serverError(c, err)
		return
	}

	e.broadcast(wsEvent{Type: "new_post", Data: gin.H{"id": post.ID, "title": post.Title}})
	c.Redirect(http.StatusSeeOther, "/")
}

// EditPost renders the authoring form pre-filled from the post found by
// primary key.
func (e *Env) EditPost(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		notFound(c)
		return
	}
	post, err := e.Store.PostByID(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		notFound(c)
		return
	}
	if err != nil {
		e.serverError(c, err)
		return
	}
	form := PostForm{Title: post.Title, Subtitle: post.Subtitle, ImageURL: post.ImageURL, Body: post.Body}
	e.render(c, http.StatusOK, "make-post.html", gin.H{
		"Form": form, "Action": "/edit_post/" + strconv.FormatUint(uint64(id), 10), "Editing": true,
	})
}

func (e *Env) UpdatePost(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		notFound(c)
		return
	}
	var form PostForm
	if err := c.ShouldBind(&form); err != nil {
		e.render(c, http.StatusOK, "make-post.html", gin.H{
			"Form": form, "Action": "/edit_post/" + strconv.FormatUint(uint64(id), 10),
			"Editing": true, "Errors": fieldErrors(err),
		})
		return
	}

	err := e.Store.UpdatePost(c.Request.Context(), id, form.Title, form.Subtitle, form.ImageURL, form.Body)
	if errors.Is(err, store.ErrNotFound) {
		notFound(c)
		return
	}
	if err != nil {
		e.serverError(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (e *Env) DeletePost(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		notFound(c)
		return
	}
	err := e.Store.DeletePost(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		notFound(c)
		return
	}
	if err != nil {
		e.serverError(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (e *Env) broadcast(ev wsEvent) {
	b, err := json.Marshal(ev)
	if err != nil {
		log.Printf("ws marshal: %v", err)
		return
	}
	select {
	case e.Hub.Broadcast <- b:
	default:
		log.Println("ws broadcast dropped: hub busy")
	}
}
