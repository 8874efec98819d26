// Package main is the entry point of the marketplace server.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/mongo/mongodriver"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/yourusername/course-market/internal/auth"
	"github.com/yourusername/course-market/internal/cart"
	"github.com/yourusername/course-market/internal/config"
	"github.com/yourusername/course-market/internal/courses"
	"github.com/yourusername/course-market/internal/jobs"
	"github.com/yourusername/course-market/internal/mail"
	"github.com/yourusername/course-market/internal/orders"
	"github.com/yourusername/course-market/internal/profile"
	"github.com/yourusername/course-market/internal/storage"
	"github.com/yourusername/course-market/internal/store"
)

// Login lockout policy: 5 failures inside 15 minutes lock the IP for 10.
const (
	loginWindow      = 15 * time.Minute
	loginLockTime    = 10 * time.Minute
	maxLoginAttempts = 5
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	gin.SetMode(cfg.GinMode)
	logger := log.New(os.Stdout, "", log.LstdFlags)

	// MongoDB holds users, courses, orders and the session records.
	client, err := store.Connect(context.Background(), cfg.MongoURI)
	if err != nil {
		log.Fatalf("Failed to connect to mongodb: %v", err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	db := client.Database(cfg.MongoDatabase)
	userStore := store.NewUserStore(db)
	courseStore := store.NewCourseStore(db)
	orderStore := store.NewOrderStore(db)
	if err := userStore.EnsureIndexes(context.Background()); err != nil {
		log.Fatalf("Failed to ensure indexes: %v", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to parse redis url: %v", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()

	mailer, err := mail.NewClient(cfg)
	if err != nil {
		log.Fatalf("Failed to create mail client: %v", err)
	}

	queue, err := jobs.NewManager(cfg.RedisURL, mailer, logger)
	if err != nil {
		log.Fatalf("Failed to create job manager: %v", err)
	}
	if err := queue.StartWorkers(); err != nil {
		log.Fatalf("Failed to start workers: %v", err)
	}
	defer queue.Shutdown()

	images, err := storage.NewLocal(cfg.UploadDir, "/images", cfg.MaxUploadSize)
	if err != nil {
		log.Fatalf("Failed to prepare upload dir: %v", err)
	}

	router := gin.New()
	router.Use(gin.Logger())
	// The recovery boundary guarantees exactly one response per request,
	// a generic error page on any uncaught failure.
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Printf("panic recovered: %v", recovered)
		auth.RenderError(c, http.StatusInternalServerError, "Something went wrong, try again later")
	}))
	router.MaxMultipartMemory = cfg.MaxUploadSize

	router.LoadHTMLGlob("web/templates/*.tmpl")
	router.Static("/images", images.Dir())

	// Server-side sessions live in the sessions collection, keyed by an
	// opaque signed cookie.
	sessionStore := mongodriver.NewStore(db.Collection("sessions"), cfg.SessionMaxAge, true, []byte(cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   cfg.SessionMaxAge,
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions(auth.SessionCookieName, sessionStore))

	limiter := auth.NewRedisLimiter(rdb, loginWindow, loginLockTime, maxLoginAttempts)
	authManager := auth.NewManager(cfg, userStore, mailer, limiter, logger)

	// CSRF tokens are issued to every session and verified on every
	// state-changing request before any controller runs.
	router.Use(auth.EnsureCSRF())
	router.Use(auth.VerifyCSRF())
	router.Use(authManager.LoadUser())

	courseHandler := courses.NewHandler(courseStore, logger)
	cartHandler := cart.NewHandler(courseStore, userStore, logger)
	orderHandler := orders.NewHandler(orderStore, courseStore, userStore, queue, logger)
	profileHandler := profile.NewHandler(userStore, images, logger)

	setupRoutes(router, authManager, courseHandler, cartHandler, orderHandler, profileHandler)

	addr := ":" + cfg.Port
	log.Printf("Starting server on %s (mode: %s)", addr, cfg.GinMode)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// handleHome renders the landing page.
func handleHome(c *gin.Context) {
	c.HTML(http.StatusOK, "home.tmpl", auth.ViewData(c, gin.H{
		"title":  "Home",
		"isHome": true,
	}))
}

// setupRoutes wires every route group.
func setupRoutes(
	router *gin.Engine,
	authManager *auth.Manager,
	courseHandler *courses.Handler,
	cartHandler *cart.Handler,
	orderHandler *orders.Handler,
	profileHandler *profile.Handler,
) {
	router.GET("/", handleHome)

	authRoutes := router.Group("/auth")
	{
		authRoutes.GET("/login", authManager.LoginPage)
		authRoutes.POST("/login", authManager.Login)
		authRoutes.POST("/register", authManager.Register)
		authRoutes.GET("/logout", authManager.Logout)
		authRoutes.GET("/reset", authManager.ResetPage)
		authRoutes.POST("/reset", authManager.Reset)
		authRoutes.GET("/password/:token", authManager.PasswordPage)
		authRoutes.POST("/password", authManager.Password)
	}

	courseRoutes := router.Group("/courses")
	{
		courseRoutes.GET("", courseHandler.List)
		courseRoutes.GET("/:id", courseHandler.Detail)
		courseRoutes.GET("/:id/edit", auth.RequireLogin(), courseHandler.EditPage)
		courseRoutes.POST("/edit", auth.RequireLogin(), courseHandler.Edit)
		courseRoutes.POST("/remove", auth.RequireLogin(), courseHandler.Remove)
	}

	addRoutes := router.Group("/add", auth.RequireLogin())
	{
		addRoutes.GET("", courseHandler.AddPage)
		addRoutes.POST("", courseHandler.Add)
	}

	cartRoutes := router.Group("/cart", auth.RequireLogin())
	{
		cartRoutes.GET("", cartHandler.View)
		cartRoutes.POST("/add", cartHandler.Add)
		cartRoutes.POST("/remove/:id", cartHandler.Remove)
	}

	orderRoutes := router.Group("/orders", auth.RequireLogin())
	{
		orderRoutes.GET("", orderHandler.List)
		orderRoutes.POST("", orderHandler.Create)
	}

	profileRoutes := router.Group("/profile", auth.RequireLogin())
	{
		profileRoutes.GET("", profileHandler.Page)
		profileRoutes.POST("", profileHandler.Update)
	}
}
