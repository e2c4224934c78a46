// Package devserver is an in-process backend for the task board API: REST
// endpoints on gin, realtime over websocket or long polling, and storage on
// gorm. It backs the end-to-end tests and `cmd/devserver`.
package devserver

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/task-management-client/internal/config"
	"github.com/yukikurage/task-management-client/internal/database"
	"github.com/yukikurage/task-management-client/internal/handlers"
	"github.com/yukikurage/task-management-client/internal/middleware"
	"github.com/yukikurage/task-management-client/internal/models"
	"github.com/yukikurage/task-management-client/internal/realtime"
	"github.com/yukikurage/task-management-client/internal/repository"
	"github.com/yukikurage/task-management-client/internal/services"
	"gorm.io/gorm"
)

type Options struct {
	DatabaseDriver string
	DatabaseDSN    string
	JWTSecret      string
	TokenTTL       time.Duration
	Debug          bool
	Logger         *log.Logger
}

// OptionsFromConfig takes the DEV_* settings from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DatabaseDriver: cfg.DevDatabaseDriver,
		DatabaseDSN:    cfg.DevDatabaseDSN,
		JWTSecret:      cfg.DevJWTSecret,
		TokenTTL:       cfg.DevTokenTTL,
		Debug:          cfg.Debug,
	}
}

type Server struct {
	db     *gorm.DB
	engine *gin.Engine
	hub    *Hub
	logger *log.Logger

	Auth   *services.AuthService
	Tasks  *services.TaskService
	Leaves *services.LeaveService
	Teams  *services.TeamService
}

func New(opts Options) (*Server, error) {
	if opts.DatabaseDriver == "" {
		opts.DatabaseDriver = database.DriverSQLite
	}
	if opts.DatabaseDSN == "" {
		opts.DatabaseDSN = database.MemoryDSN
	}
	if opts.JWTSecret == "" {
		opts.JWTSecret = "dev-secret-change-me"
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	db, err := database.Open(opts.DatabaseDriver, opts.DatabaseDSN, opts.Debug)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, err
	}

	hub := NewHub(opts.Logger)
	userRepo := repository.NewUserRepository(db)

	s := &Server{
		db:     db,
		hub:    hub,
		logger: opts.Logger,
		Auth:   services.NewAuthService(userRepo, opts.JWTSecret, opts.TokenTTL),
		Tasks:  services.NewTaskService(repository.NewTaskRepository(db), userRepo, hub),
		Leaves: services.NewLeaveService(repository.NewLeaveRepository(db), hub),
		Teams:  services.NewTeamService(repository.NewTeamRepository(db), userRepo, hub),
	}
	s.engine = s.routes(opts.Debug)
	return s, nil
}

// Migrate creates the schema and its secondary indexes.
func Migrate(db *gorm.DB) error {
	if err := database.Migrate(db, repository.Models()...); err != nil {
		return err
	}
	return database.AddIndexes(db,
		database.IndexSpec{Model: &repository.TaskAssignment{}, Name: "idx_task_assignments_user", Columns: []string{"user_id"}},
		database.IndexSpec{Model: &repository.Task{}, Name: "idx_tasks_creator", Columns: []string{"creator_id"}},
		database.IndexSpec{Model: &repository.Leave{}, Name: "idx_leaves_requester", Columns: []string{"requester_id"}},
	)
}

func (s *Server) routes(debug bool) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if debug {
		r.Use(gin.Logger())
	}

	authHandler := handlers.NewAuthHandler(s.Auth)
	taskHandler := handlers.NewTaskHandler(s.Tasks)
	leaveHandler := handlers.NewLeaveHandler(s.Leaves)
	teamHandler := handlers.NewTeamHandler(s.Teams)
	requireAuth := middleware.RequireAuth(s.Auth)

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"connections": s.hub.ConnectionCount(""),
		})
	})

	api := r.Group("/api")
	{
		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.GET("/me", requireAuth, authHandler.GetCurrentUser)
		}

		users := api.Group("/users")
		users.Use(requireAuth, middleware.RequireAdmin())
		{
			users.GET("", authHandler.ListUsers)
			users.PATCH("/:id/active", authHandler.SetUserActive)
		}

		// Task routes (protected)
		tasks := api.Group("/tasks")
		tasks.Use(requireAuth)
		{
			tasks.GET("", taskHandler.ListTasks)
			tasks.POST("", taskHandler.CreateTask)
			tasks.GET("/users", taskHandler.ListAssignableUsers)
			tasks.GET("/:id", middleware.RequireTaskAccess(s.Tasks), taskHandler.GetTask)
			tasks.PUT("/:id", middleware.RequireTaskAccess(s.Tasks), taskHandler.UpdateTask)
			tasks.PATCH("/:id/status", taskHandler.UpdateTaskStatus)
			tasks.DELETE("/:id", middleware.RequireTaskAccess(s.Tasks), taskHandler.DeleteTask)
		}

		leaves := api.Group("/leaves")
		leaves.Use(requireAuth)
		{
			leaves.GET("", leaveHandler.ListLeaves)
			leaves.POST("", leaveHandler.CreateLeave)
			leaves.PUT("/:id", leaveHandler.UpdateLeaveStatus)
		}

		teams := api.Group("/teams")
		teams.Use(requireAuth)
		{
			teams.GET("", teamHandler.ListTeams)
			teams.POST("", middleware.RequireAdmin(), teamHandler.CreateTeam)
			teams.POST("/:id/members", middleware.RequireAdmin(), teamHandler.AddMember)
			teams.DELETE("/:id/members/:user_id", middleware.RequireAdmin(), teamHandler.RemoveMember)
		}
	}

	rt := r.Group("/realtime")
	rt.Use(requireAuth)
	{
		rt.GET("", s.hub.ServeWebSocket)
		rt.POST("/poll", s.hub.OpenPoll)
		rt.GET("/poll/:sid", s.hub.Poll)
		rt.POST("/poll/:sid/emit", s.hub.EmitPoll)
		rt.DELETE("/poll/:sid", s.hub.ClosePoll)
	}

	return r
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Close releases the database.
func (s *Server) Close() error {
	s.hub.DropConnections()
	return database.Close(s.db)
}

// CreateUser seeds an account directly, bypassing the register endpoint.
func (s *Server) CreateUser(name, email, password string, role models.Role) (models.User, error) {
	user, _, err := s.Auth.Register(services.RegisterInput{
		Name:     name,
		Email:    email,
		Password: password,
		Role:     role,
	})
	if err != nil {
		return models.User{}, fmt.Errorf("seed user %s: %w", email, err)
	}
	return user.ToModel(), nil
}

// Emit pushes ev to the given audience as if a service had produced it.
func (s *Server) Emit(audience services.Audience, ev realtime.Event) error {
	env, err := realtime.Encode(ev)
	if err != nil {
		return err
	}
	s.hub.Publish(audience, env)
	return nil
}

// ForceDisconnect revokes every token of userID and closes their connections.
func (s *Server) ForceDisconnect(userID, reason string) error {
	if err := s.Auth.RevokeTokens(userID); err != nil {
		return err
	}
	n := s.hub.ForceDisconnect(userID, reason)
	s.logger.Printf("devserver: forced %d connection(s) of user %s to close: %s", n, userID, reason)
	return nil
}

// DropConnections simulates a network failure on every live connection.
func (s *Server) DropConnections() int {
	return s.hub.DropConnections()
}

// ConnectionCount counts live realtime connections; an empty userID counts all.
func (s *Server) ConnectionCount(userID string) int {
	return s.hub.ConnectionCount(userID)
}

// DisableWebSocket forces clients onto the long-polling transport.
func (s *Server) DisableWebSocket(disabled bool) {
	s.hub.DisableWebSocket(disabled)
}
