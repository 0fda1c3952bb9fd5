package http

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/kptumpala/inkpost/internal/config"
	"github.com/kptumpala/inkpost/internal/mail"
	"github.com/kptumpala/inkpost/internal/store"
	"github.com/kptumpala/inkpost/internal/ws"
)

const (
	sessionCookie = "inkpost_session"
	sessionMaxAge = 7 * 24 * 60 * 60

	rateLimitRPS   = 1.0
	rateLimitBurst = 5
)

// Deps carries everything route setup needs.
type Deps struct {
	Store       *store.Store
	Hub         *ws.Hub
	Mailer      *mail.Mailer
	Cfg         config.Config
	TemplateDir string
}

// SetupRoutes configures middleware, templates and all application routes.
func SetupRoutes(router *gin.Engine, d Deps) error {
	pages, err := discoverPages(d.TemplateDir)
	if err != nil {
		return err
	}
	env := &Env{Store: d.Store, Hub: d.Hub, Mailer: d.Mailer, Pages: pages}

	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(SecurityHeaders())

	if origin := d.Cfg.CORSOrigin; origin != "" {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     []string{origin},
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			AllowCredentials: true,
		}))
	}

	sessionStore := cookie.NewStore([]byte(d.Cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions(sessionCookie, sessionStore))
	router.Use(env.loadCurrentUser())

	router.LoadHTMLGlob(filepath.Join(d.TemplateDir, "*.html"))
	router.Static("/static", filepath.Join(filepath.Dir(d.TemplateDir), "static"))

	limiter := NewIPRateLimiter(rate.Limit(rateLimitRPS), rateLimitBurst)

	router.GET("/", env.Home)
	router.GET("/register", env.ShowRegister)
	router.POST("/register", env.Register)
	router.GET("/login", env.ShowLogin)
	router.POST("/login", RateLimit(limiter), env.Login)
	router.GET("/logout", env.Logout)

	router.GET("/blogs/:id", env.ShowPost)
	router.POST("/blogs/:id", env.CreateComment)

	router.POST("/contact", RateLimit(limiter), env.Contact)

	admin := router.Group("/", RequireAuth(), RequireAdmin())
	{
		admin.GET("/new_post", env.NewPost)
		admin.POST("/new_post", env.CreatePost)
		admin.GET("/edit_post/:id", env.EditPost)
		admin.POST("/edit_post/:id", env.UpdatePost)
		admin.GET("/delete/:id", env.DeletePost)
		admin.DELETE("/delete/:id", env.DeletePost)
	}

	router.GET("/ws", func(c *gin.Context) {
		ws.ServeWs(d.Hub, c.Writer, c.Request)
	})

	// Anything else is a candidate static page.
	router.NoRoute(env.StaticPage)

	return nil
}

// discoverPages lists the templates reachable through GET /<name>. Templates
// owned by dedicated routes and layout partials are excluded.
func discoverPages(dir string) (map[string]bool, error) {
	reserved := map[string]bool{
		"index.html":     true,
		"post.html":      true,
		"make-post.html": true,
		"register.html":  true,
		"login.html":     true,
		"header.html":    true,
		"footer.html":    true,
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	pages := make(map[string]bool)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".html") || reserved[name] {
			continue
		}
		pages[strings.TrimSuffix(name, ".html")] = true
	}
	return pages, nil
}
